package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/fhirgraph/internal/api"
	"stealthcompany.com/fhirgraph/internal/config"
	"stealthcompany.com/fhirgraph/internal/couchbase"
	"stealthcompany.com/fhirgraph/internal/graph"
	"stealthcompany.com/fhirgraph/internal/graphdb"
	"stealthcompany.com/fhirgraph/internal/lifecycle"
	"stealthcompany.com/fhirgraph/internal/metrics"
	"stealthcompany.com/fhirgraph/pkg/zerolog_config"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	zerolog_config.SetAppPrefix("fhirgraph-api")
	zerolog_config.StartupWithEnv(cfg.ElasticsearchURL, "logs", cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.GraphBackend != config.BackendNeo4j {
		log.Fatal().Str("backend", cfg.GraphBackend).Msg("The API reads from Neo4j only")
	}

	log.Info().Msg("Starting fhirgraph-api service")

	ctx, stop := lifecycle.NewSignalHandler().Context(context.Background())
	defer stop()

	metrics.Configure(metrics.Options{Business: cfg.EnableBusinessMetrics, System: cfg.EnableSystemMetrics})
	metrics.StartSystemMetrics(ctx, 15*time.Second)

	if cfg.CouchbaseEnabled() && cfg.APIIngestWait > 0 {
		waitForIngestion(ctx, cfg)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := graphdb.Connect(connectCtx, graphdb.Config{
		URI:      cfg.Neo4jURI,
		Username: cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	})
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Neo4j")
	}

	serve(ctx, cfg.APIPort, store)

	log.Info().Msg("Closing database connection...")
	if err := store.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Failed to close graph store")
	}
	log.Info().Msg("API service shutdown complete")
}

// waitForIngestion blocks until the run-status document reports a completed
// batch or cfg.APIIngestWait elapses. Timing out only logs a warning.
func waitForIngestion(ctx context.Context, cfg config.Config) {
	waitCtx, cancel := context.WithTimeout(ctx, cfg.APIIngestWait)
	defer cancel()

	cb, err := couchbase.NewClient(waitCtx, couchbase.Config{
		URL:      cfg.CouchbaseURL,
		Username: cfg.CouchbaseUsername,
		Password: cfg.CouchbasePassword,
		Bucket:   cfg.CouchbaseBucket,
	}, cfg.LockTTL)
	if err != nil {
		log.Warn().Err(err).Msg("Could not reach Couchbase, serving without waiting for ingestion")
		return
	}
	defer cb.Close()

	if err := api.WaitForIngestion(waitCtx, cb.RunStatus(), 5*time.Second); err != nil {
		log.Warn().Err(err).Dur("waited", cfg.APIIngestWait).Msg("Ingestion not complete, serving anyway")
	}
}

func serve(ctx context.Context, port string, reader graph.Reader) {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           api.SetupRoutes(reader, version),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", port).
			Msg("Server starting")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to start server")
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}
