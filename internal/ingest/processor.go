package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/fhirgraph/internal/fhir"
	"stealthcompany.com/fhirgraph/internal/graph"
	"stealthcompany.com/fhirgraph/internal/mapping"
	"stealthcompany.com/fhirgraph/internal/metrics"
)

// BundleResult is what one bundle contributed to the batch
type BundleResult struct {
	Name         string
	BundleID     string
	Entries      int
	Upserted     map[graph.Label]int
	Skipped      int
	Ignored      map[string]int
	FailedWrites int
	References   []graph.Reference
}

// Processor maps bundle resources to nodes and writes them. References are
// collected for the synthesizer, which runs after every bundle is loaded.
type Processor struct {
	store graph.Writer
	seq   atomic.Int64
}

// NewProcessor creates a processor writing to store
func NewProcessor(store graph.Writer) *Processor {
	return &Processor{store: store}
}

// ProcessBundle parses and loads one bundle file. Malformed input fails only
// this file; graph.ErrUnavailable is returned for the caller to abort on.
func (p *Processor) ProcessBundle(ctx context.Context, name string, data []byte) (*BundleResult, error) {
	bundle, err := fhir.ParseBundle(data)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", name, err)
	}

	result := &BundleResult{
		Name:     name,
		BundleID: bundle.ID,
		Entries:  len(bundle.Entries),
		Upserted: make(map[graph.Label]int),
		Ignored:  make(map[string]int),
	}

	nodes := make([]graph.Node, 0, len(bundle.Entries))
	for _, entry := range bundle.Entries {
		if entry.Resource == nil {
			result.Skipped++
			log.Warn().Str("bundle", name).Int("entry", entry.Index).Msg("Skipping entry without a resource")
			continue
		}

		tag := entry.Resource.String("/resourceType")
		rt := fhir.ParseResourceType(tag)
		if rt == fhir.Unsupported {
			if tag == "" {
				tag = "unknown"
			}
			result.Ignored[tag]++
			continue
		}

		mapped, err := mapping.Map(rt, entry.Resource)
		if err != nil {
			result.Skipped++
			metrics.RecordResources(rt.String(), "skipped", 1)
			log.Warn().
				Err(err).
				Str("bundle", name).
				Int("entry", entry.Index).
				Str("resource_type", tag).
				Msg("Skipping resource")
			continue
		}

		if mapped.Node.Label == graph.LabelCondition {
			mapped.Node.Attrs[graph.AttrIngestSeq] = p.seq.Add(1)
		}

		nodes = append(nodes, mapped.Node)
		result.References = append(result.References, mapped.References...)
	}

	for tag, n := range result.Ignored {
		metrics.RecordResources(tag, "ignored", n)
	}

	if err := p.writeNodes(ctx, result, nodes); err != nil {
		return nil, fmt.Errorf("bundle %s: %w", name, err)
	}

	log.Debug().
		Str("bundle", name).
		Int("entries", result.Entries).
		Int("skipped", result.Skipped).
		Int("failed_writes", result.FailedWrites).
		Int("references", len(result.References)).
		Msg("Bundle loaded")

	return result, nil
}

// writeNodes upserts the bundle in one transaction, falling back to one
// write per node when the transaction is rejected for a reason other than
// connectivity
func (p *Processor) writeNodes(ctx context.Context, result *BundleResult, nodes []graph.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	err := p.store.UpsertNodes(ctx, nodes)
	if err == nil {
		for _, n := range nodes {
			result.Upserted[n.Label]++
		}
		p.recordUpserts(result)
		return nil
	}
	if isFatal(err) {
		return err
	}

	log.Warn().
		Err(err).
		Str("bundle", result.Name).
		Int("nodes", len(nodes)).
		Msg("Bundle write failed, retrying resources individually")

	for _, n := range nodes {
		if err := p.store.UpsertNode(ctx, n); err != nil {
			if isFatal(err) {
				return err
			}
			result.FailedWrites++
			metrics.RecordResources(string(n.Label), "failed", 1)
			log.Warn().
				Err(err).
				Str("bundle", result.Name).
				Str("label", string(n.Label)).
				Str("id", n.ID).
				Msg("Failed to write resource")
			continue
		}
		result.Upserted[n.Label]++
	}
	p.recordUpserts(result)
	return nil
}

func (p *Processor) recordUpserts(result *BundleResult) {
	for label, n := range result.Upserted {
		metrics.RecordResources(string(label), "upserted", n)
	}
}

// isFatal reports errors that must abort the whole batch
func isFatal(err error) bool {
	return errors.Is(err, graph.ErrUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
