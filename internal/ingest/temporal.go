package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/fhirgraph/internal/graph"
)

// Chain is one patient's dated conditions in onset order
type Chain struct {
	PatientID  string
	Conditions []graph.ConditionLink
}

// ChainStats counts the temporal edges written
type ChainStats struct {
	Patients int `json:"patients"`
	First    int `json:"first"`
	Latest   int `json:"latest"`
	Next     int `json:"next"`
}

const onsetKeyLayout = "2006-01-02T15:04:05.000000000Z"

// onsetLayouts are the FHIR dateTime precisions, most specific first
var onsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
	"2006-01",
	"2006",
}

// onsetKey normalizes a FHIR dateTime to a fixed-width UTC string so values
// with different offsets or precisions sort chronologically. Unparseable
// values are returned as-is.
func onsetKey(onset string) string {
	for _, layout := range onsetLayouts {
		if t, err := time.Parse(layout, onset); err == nil {
			return t.UTC().Format(onsetKeyLayout)
		}
	}
	return onset
}

// BuildChains orders each patient's conditions by onset. Conditions without
// an onset are left out. Ties keep ingestion order (Seq), then input order.
// Patients are returned in ascending id order.
func BuildChains(links []graph.ConditionLink) []Chain {
	type keyed struct {
		link graph.ConditionLink
		key  string
	}

	groups := make(map[string][]keyed)
	seen := make(map[[2]string]bool)
	for _, l := range links {
		if l.Onset == "" {
			continue
		}
		pair := [2]string{l.PatientID, l.ConditionID}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		groups[l.PatientID] = append(groups[l.PatientID], keyed{link: l, key: onsetKey(l.Onset)})
	}

	patients := make([]string, 0, len(groups))
	for pid := range groups {
		patients = append(patients, pid)
	}
	sort.Strings(patients)

	chains := make([]Chain, 0, len(patients))
	for _, pid := range patients {
		items := groups[pid]
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].key != items[j].key {
				return items[i].key < items[j].key
			}
			return items[i].link.Seq < items[j].link.Seq
		})

		conds := make([]graph.ConditionLink, len(items))
		for i, it := range items {
			conds[i] = it.link
		}
		chains = append(chains, Chain{PatientID: pid, Conditions: conds})
	}
	return chains
}

// chainReferences expands chains into FIRST, LATEST and NEXT candidates
func chainReferences(chains []Chain) (first, latest, next []graph.Reference) {
	for _, c := range chains {
		if len(c.Conditions) == 0 {
			continue
		}
		head := c.Conditions[0]
		tail := c.Conditions[len(c.Conditions)-1]

		first = append(first, graph.Reference{
			Type:   graph.EdgeFirstCondition,
			FromID: c.PatientID,
			ToID:   head.ConditionID,
			Attrs:  map[string]any{graph.AttrDate: head.Onset},
		})
		latest = append(latest, graph.Reference{
			Type:   graph.EdgeLatestCondition,
			FromID: c.PatientID,
			ToID:   tail.ConditionID,
			Attrs:  map[string]any{graph.AttrDate: tail.Onset},
		})

		for i := 0; i+1 < len(c.Conditions); i++ {
			succ := c.Conditions[i+1]
			next = append(next, graph.Reference{
				Type:   graph.EdgeNextCondition,
				FromID: c.Conditions[i].ConditionID,
				ToID:   succ.ConditionID,
				Attrs:  map[string]any{graph.AttrDate: succ.Onset},
			})
		}
	}
	return first, latest, next
}

// ChainBuilder rebuilds the temporal edges from the HASCONDITION edges in
// the store
type ChainBuilder struct {
	store graph.Writer
}

// NewChainBuilder creates a chain builder writing to store
func NewChainBuilder(store graph.Writer) *ChainBuilder {
	return &ChainBuilder{store: store}
}

// Run clears existing temporal edges and relinks them from scratch, so a
// condition loaded by a later batch lands in the right place
func (b *ChainBuilder) Run(ctx context.Context) (ChainStats, error) {
	links, err := b.store.PatientConditions(ctx)
	if err != nil {
		return ChainStats{}, fmt.Errorf("failed to read patient conditions: %w", err)
	}

	chains := BuildChains(links)
	first, latest, next := chainReferences(chains)

	types := make([]graph.EdgeType, len(graph.Temporal))
	for i, rel := range graph.Temporal {
		types[i] = rel.Type
	}
	if err := b.store.ClearEdges(ctx, types...); err != nil {
		return ChainStats{}, fmt.Errorf("failed to clear temporal edges: %w", err)
	}

	stats := ChainStats{Patients: len(chains)}
	batches := map[graph.EdgeType][]graph.Reference{
		graph.EdgeFirstCondition:  first,
		graph.EdgeLatestCondition: latest,
		graph.EdgeNextCondition:   next,
	}
	for _, rel := range graph.Temporal {
		refs := batches[rel.Type]
		if len(refs) == 0 {
			continue
		}
		linked, err := b.store.LinkReferences(ctx, rel, refs)
		if err != nil {
			return stats, fmt.Errorf("failed to link %s: %w", rel.Type, err)
		}
		switch rel.Type {
		case graph.EdgeFirstCondition:
			stats.First = linked
		case graph.EdgeLatestCondition:
			stats.Latest = linked
		case graph.EdgeNextCondition:
			stats.Next = linked
		}
	}

	log.Info().
		Int("patients", stats.Patients).
		Int("first", stats.First).
		Int("latest", stats.Latest).
		Int("next", stats.Next).
		Msg("Temporal chains built")

	return stats, nil
}
