package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/fhirgraph/internal/graph"
	"stealthcompany.com/fhirgraph/internal/metrics"
)

// ErrInputMissing is returned when the input directory does not exist
var ErrInputMissing = errors.New("input directory not found")

// RunRecorder persists run progress outside the graph, e.g. so the API can
// wait for the first completed batch
type RunRecorder interface {
	RunStarted(ctx context.Context, summary *Summary) error
	RunFinished(ctx context.Context, summary *Summary) error
}

// Options control the setup phase of a batch
type Options struct {
	// EnsureConstraints creates the per-label id uniqueness constraints first
	EnsureConstraints bool
	// ClearFirst deletes all graph content before loading
	ClearFirst bool
	// Recorder is optional
	Recorder RunRecorder
}

// Orchestrator runs one batch: every bundle in a directory, then relationship
// synthesis, then temporal chains, then counts
type Orchestrator struct {
	store       graph.Writer
	processor   *Processor
	synthesizer *Synthesizer
	chains      *ChainBuilder
	opts        Options
	now         func() time.Time
}

// NewOrchestrator wires the ingestion phases to store
func NewOrchestrator(store graph.Writer, opts Options) *Orchestrator {
	return &Orchestrator{
		store:       store,
		processor:   NewProcessor(store),
		synthesizer: NewSynthesizer(store),
		chains:      NewChainBuilder(store),
		opts:        opts,
		now:         time.Now,
	}
}

// Run ingests every *.json bundle directly inside dir. Files that cannot be
// read or parsed are logged and counted; an unreachable store or a cancelled
// context aborts the batch. The summary is returned even on error.
func (o *Orchestrator) Run(ctx context.Context, dir string) (*Summary, error) {
	files, err := discoverBundles(dir)
	if err != nil {
		return nil, err
	}

	start := o.now()
	summary := newSummary(uuid.NewString(), dir, start.UTC())
	summary.Files.Found = len(files)

	log.Info().
		Str("run_id", summary.RunID).
		Str("directory", dir).
		Int("files", len(files)).
		Msg("Starting ingestion batch")

	if o.opts.Recorder != nil {
		if err := o.opts.Recorder.RunStarted(ctx, summary); err != nil {
			log.Warn().Err(err).Str("run_id", summary.RunID).Msg("Failed to record run start")
		}
	}

	err = o.run(ctx, files, summary)
	summary.FinishedAt = o.now().UTC()
	if err != nil {
		summary.Error = err.Error()
	}

	if o.opts.Recorder != nil {
		// the batch context may already be cancelled; still try to record the outcome
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if rerr := o.opts.Recorder.RunFinished(recordCtx, summary); rerr != nil {
			log.Warn().Err(rerr).Str("run_id", summary.RunID).Msg("Failed to record run completion")
		}
		cancel()
	}

	metrics.RecordBatch(start, err)
	return summary, err
}

func (o *Orchestrator) run(ctx context.Context, files []string, summary *Summary) error {
	if err := o.setup(ctx); err != nil {
		return err
	}

	var refs []graph.Reference
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingestion interrupted: %w", err)
		}

		name := filepath.Base(path)
		result, err := o.processFile(ctx, path)
		if err != nil {
			if isFatal(err) {
				return err
			}
			summary.addFailure(name)
			metrics.RecordBundle("failed")
			log.Error().Err(err).Str("file", name).Msg("Failed to process bundle")
			continue
		}

		summary.addBundle(result)
		refs = append(refs, result.References...)
		metrics.RecordBundle("processed")
		log.Info().
			Str("file", name).
			Int("entries", result.Entries).
			Int("skipped", result.Skipped).
			Msg("Processed bundle")
	}

	log.Info().Int("candidates", len(refs)).Msg("Synthesizing relationships")
	links, err := o.synthesizer.Run(ctx, refs)
	summary.Links = links
	if err != nil {
		return err
	}

	log.Info().Msg("Building temporal chains")
	chains, err := o.chains.Run(ctx)
	summary.Chains = chains
	if err != nil {
		return err
	}

	return o.count(ctx, summary)
}

func (o *Orchestrator) setup(ctx context.Context) error {
	if o.opts.ClearFirst {
		log.Warn().Msg("Clearing graph before ingestion")
		if err := o.store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear graph: %w", err)
		}
	}

	if o.opts.EnsureConstraints {
		if err := o.store.EnsureConstraints(ctx); err != nil {
			if isFatal(err) {
				return fmt.Errorf("failed to create constraints: %w", err)
			}
			log.Warn().Err(err).Msg("Could not create constraints, continuing")
		}
	}
	return nil
}

func (o *Orchestrator) processFile(ctx context.Context, path string) (*BundleResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return o.processor.ProcessBundle(ctx, filepath.Base(path), data)
}

func (o *Orchestrator) count(ctx context.Context, summary *Summary) error {
	nodes, err := o.store.CountNodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to count nodes: %w", err)
	}
	edges, err := o.store.CountEdges(ctx)
	if err != nil {
		return fmt.Errorf("failed to count edges: %w", err)
	}
	summary.Nodes = nodes
	summary.Edges = edges
	return nil
}

// discoverBundles lists *.json files directly inside dir in lexicographic order
func discoverBundles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputMissing, dir)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInputMissing, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}
