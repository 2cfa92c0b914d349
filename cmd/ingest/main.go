package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/fhirgraph/internal/config"
	"stealthcompany.com/fhirgraph/internal/couchbase"
	"stealthcompany.com/fhirgraph/internal/fhir"
	"stealthcompany.com/fhirgraph/internal/graph"
	"stealthcompany.com/fhirgraph/internal/graphdb"
	"stealthcompany.com/fhirgraph/internal/ingest"
	"stealthcompany.com/fhirgraph/internal/lifecycle"
	"stealthcompany.com/fhirgraph/internal/metrics"
	"stealthcompany.com/fhirgraph/pkg/zerolog_config"
)

// Exit codes
const (
	exitOK      = 0
	exitFailed  = 1
	exitConfig  = 2
	exitPartial = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	dataDir := flag.String("data", "", "directory of FHIR bundle files (overrides DATA_DIR)")
	fetchURL := flag.String("fetch", "", "download bundles from this FHIR server into the data directory first (overrides FHIR_BASE_URL)")
	clearFirst := flag.Bool("clear", false, "delete all graph content before loading (overrides CLEAR_DATABASE_ON_START)")
	flag.Parse()

	cfg, err := config.Load()
	zerolog_config.SetAppPrefix("fhirgraph-ingest")
	zerolog_config.StartupWithEnv(cfg.ElasticsearchURL, "logs", cfg.LogLevel)
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return exitConfig
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *fetchURL != "" {
		cfg.FHIRBaseURL = *fetchURL
	}
	if *clearFirst {
		cfg.ClearOnStart = true
	}

	log.Info().Str("backend", cfg.GraphBackend).Str("data_dir", cfg.DataDir).Msg("Starting fhirgraph-ingest")

	ctx, stop := lifecycle.NewSignalHandler().Context(context.Background())
	defer stop()

	metrics.Configure(metrics.Options{Business: cfg.EnableBusinessMetrics, System: cfg.EnableSystemMetrics})
	if cfg.EnableSystemMetrics {
		metrics.StartSystemMetrics(ctx, 15*time.Second)
	}
	if cfg.MetricsPort != "" {
		go serveMetrics(cfg.MetricsPort)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open graph store")
		return exitFailed
	}
	defer store.Close(context.Background())

	opts := ingest.Options{
		EnsureConstraints: cfg.CreateConstraints,
		ClearFirst:        cfg.ClearOnStart,
	}

	if cfg.CouchbaseEnabled() {
		cb, err := couchbase.NewClient(ctx, couchbase.Config{
			URL:      cfg.CouchbaseURL,
			Username: cfg.CouchbaseUsername,
			Password: cfg.CouchbasePassword,
			Bucket:   cfg.CouchbaseBucket,
		}, cfg.LockTTL)
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to Couchbase")
			return exitFailed
		}
		defer cb.Close()

		locker := cb.Lock()
		log.Info().Msg("Locking ingestion")
		if err := locker.Lock(ctx, hostOwner()); err != nil {
			if errors.Is(err, couchbase.ErrLocked) {
				held, checkErr := locker.CheckLockStatus(ctx)
				log.Error().Bool("unexpired", held).AnErr("check_error", checkErr).Msg("Another ingestion run holds the lock")
			} else {
				log.Error().Err(err).Msg("Failed to lock ingestion")
			}
			return exitFailed
		}

		// Ensure unlock happens even if ingestion fails
		defer func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := locker.Unlock(unlockCtx); err != nil {
				log.Error().Err(err).Msg("Failed to unlock ingestion")
			}
		}()

		opts.Recorder = cb.RunStatus()
	}

	if cfg.FHIRBaseURL != "" {
		client := fhir.NewClient(cfg.FHIRBaseURL, cfg.FHIRTimeout, cfg.FHIRPageSize, cfg.FHIRMaxPages)
		stats, err := client.FetchAll(ctx, cfg.DataDir)
		if err != nil {
			log.Error().Err(err).Str("base_url", cfg.FHIRBaseURL).Msg("Failed to fetch bundles from FHIR server")
			return exitFailed
		}
		log.Info().Int("files", len(stats.Files)).Str("data_dir", cfg.DataDir).Msg("Fetched bundles from FHIR server")
	}

	summary, err := ingest.NewOrchestrator(store, opts).Run(ctx, cfg.DataDir)
	if summary != nil {
		summary.Log()
		printSummary(summary)
	}

	switch {
	case errors.Is(err, ingest.ErrInputMissing):
		log.Error().Err(err).Msg("Input directory missing")
		return exitConfig
	case err != nil:
		log.Error().Err(err).Msg("Ingestion failed")
		return exitFailed
	case summary.Files.Failed > 0:
		log.Warn().Int("failed_files", summary.Files.Failed).Msg("Ingestion completed with failed files")
		return exitPartial
	}

	log.Info().Msg("Ingestion completed successfully")
	return exitOK
}

func openStore(ctx context.Context, cfg config.Config) (graph.Store, error) {
	if cfg.GraphBackend == config.BackendMemory {
		log.Warn().Msg("Using in-memory graph store, nothing will be persisted")
		return graph.NewMemoryStore(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return graphdb.Connect(connectCtx, graphdb.Config{
		URI:      cfg.Neo4jURI,
		Username: cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	})
}

func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.Info().Str("port", port).Msg("Metrics server starting")
	if err := http.ListenAndServe(":"+port, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Metrics server stopped")
	}
}

func printSummary(s *ingest.Summary) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		log.Error().Err(err).Msg("Failed to write summary")
	}
}

func hostOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("fhirgraph-ingest@%s:%d", host, os.Getpid())
}
