package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/fhirgraph/internal/graph"
	"stealthcompany.com/fhirgraph/internal/metrics"
)

// LinkStats counts what became of the candidates for one edge type
type LinkStats struct {
	Candidates int `json:"candidates"`
	Linked     int `json:"linked"`
	Dropped    int `json:"dropped"`
}

// Synthesizer turns collected references into edges
type Synthesizer struct {
	store graph.Writer
}

// NewSynthesizer creates a synthesizer writing to store
func NewSynthesizer(store graph.Writer) *Synthesizer {
	return &Synthesizer{store: store}
}

// Run links every candidate whose two endpoints exist. Candidates are grouped
// by relationship and linked in graph.Structural order. A failing edge type
// is logged and skipped unless the store is unreachable.
func (s *Synthesizer) Run(ctx context.Context, refs []graph.Reference) (map[graph.EdgeType]LinkStats, error) {
	grouped := groupReferences(refs)
	stats := make(map[graph.EdgeType]LinkStats, len(graph.Structural))

	for _, rel := range graph.Structural {
		batch := grouped[rel.Type]
		delete(grouped, rel.Type)
		if len(batch) == 0 {
			stats[rel.Type] = LinkStats{}
			continue
		}

		linked, err := s.store.LinkReferences(ctx, rel, batch)
		if err != nil {
			if isFatal(err) {
				return stats, fmt.Errorf("link %s: %w", rel.Type, err)
			}
			log.Error().Err(err).Str("edge_type", string(rel.Type)).Int("candidates", len(batch)).Msg("Failed to link references")
			stats[rel.Type] = LinkStats{Candidates: len(batch), Dropped: len(batch)}
			continue
		}

		st := LinkStats{Candidates: len(batch), Linked: linked, Dropped: len(batch) - linked}
		stats[rel.Type] = st
		metrics.RecordLinks(string(rel.Type), st.Linked, st.Dropped)

		log.Info().
			Str("edge_type", string(rel.Type)).
			Int("candidates", st.Candidates).
			Int("linked", st.Linked).
			Int("dropped", st.Dropped).
			Msg("Linked references")
	}

	for t, batch := range grouped {
		log.Warn().Str("edge_type", string(t)).Int("candidates", len(batch)).Msg("Ignoring references of a non-structural edge type")
	}

	return stats, nil
}

type refKey struct {
	from string
	to   string
}

// groupReferences buckets candidates by edge type, keeping the first
// occurrence order and letting later attributes overwrite earlier ones
func groupReferences(refs []graph.Reference) map[graph.EdgeType][]graph.Reference {
	grouped := make(map[graph.EdgeType][]graph.Reference)
	index := make(map[graph.EdgeType]map[refKey]int)

	for _, ref := range refs {
		if ref.FromID == "" || ref.ToID == "" {
			continue
		}
		seen, ok := index[ref.Type]
		if !ok {
			seen = make(map[refKey]int)
			index[ref.Type] = seen
		}
		key := refKey{ref.FromID, ref.ToID}
		if i, dup := seen[key]; dup {
			if len(ref.Attrs) > 0 {
				grouped[ref.Type][i].Attrs = ref.Attrs
			}
			continue
		}
		seen[key] = len(grouped[ref.Type])
		grouped[ref.Type] = append(grouped[ref.Type], ref)
	}
	return grouped
}
