package ingest

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/fhirgraph/internal/graph"
)

// FileStats counts bundle files
type FileStats struct {
	Found       int      `json:"found"`
	Processed   int      `json:"processed"`
	Failed      int      `json:"failed"`
	FailedFiles []string `json:"failed_files,omitempty"`
}

// ResourceStats counts resources across all bundles
type ResourceStats struct {
	Upserted     map[graph.Label]int `json:"upserted"`
	Skipped      int                 `json:"skipped"`
	Ignored      map[string]int      `json:"ignored"`
	FailedWrites int                 `json:"failed_writes"`
}

// Summary describes one batch run
type Summary struct {
	RunID      string                       `json:"run_id"`
	Directory  string                       `json:"directory"`
	StartedAt  time.Time                    `json:"started_at"`
	FinishedAt time.Time                    `json:"finished_at"`
	Files      FileStats                    `json:"files"`
	Resources  ResourceStats                `json:"resources"`
	Links      map[graph.EdgeType]LinkStats `json:"links"`
	Chains     ChainStats                   `json:"chains"`
	Nodes      map[graph.Label]int64        `json:"nodes"`
	Edges      map[graph.EdgeType]int64     `json:"edges"`
	Error      string                       `json:"error,omitempty"`
}

func newSummary(runID, dir string, startedAt time.Time) *Summary {
	return &Summary{
		RunID:     runID,
		Directory: dir,
		StartedAt: startedAt,
		Resources: ResourceStats{
			Upserted: make(map[graph.Label]int),
			Ignored:  make(map[string]int),
		},
		Links: make(map[graph.EdgeType]LinkStats),
		Nodes: make(map[graph.Label]int64),
		Edges: make(map[graph.EdgeType]int64),
	}
}

func (s *Summary) addBundle(r *BundleResult) {
	s.Files.Processed++
	for label, n := range r.Upserted {
		s.Resources.Upserted[label] += n
	}
	for tag, n := range r.Ignored {
		s.Resources.Ignored[tag] += n
	}
	s.Resources.Skipped += r.Skipped
	s.Resources.FailedWrites += r.FailedWrites
}

func (s *Summary) addFailure(name string) {
	s.Files.Failed++
	s.Files.FailedFiles = append(s.Files.FailedFiles, name)
}

// TotalNodes sums the node counts
func (s *Summary) TotalNodes() int64 {
	var total int64
	for _, n := range s.Nodes {
		total += n
	}
	return total
}

// TotalEdges sums the edge counts
func (s *Summary) TotalEdges() int64 {
	var total int64
	for _, n := range s.Edges {
		total += n
	}
	return total
}

// Log writes the summary at Info level, one line per label and edge type
func (s *Summary) Log() {
	log.Info().
		Str("run_id", s.RunID).
		Str("directory", s.Directory).
		Dur("duration", s.FinishedAt.Sub(s.StartedAt)).
		Int("files_found", s.Files.Found).
		Int("files_processed", s.Files.Processed).
		Int("files_failed", s.Files.Failed).
		Int("resources_skipped", s.Resources.Skipped).
		Int("failed_writes", s.Resources.FailedWrites).
		Int64("nodes", s.TotalNodes()).
		Int64("edges", s.TotalEdges()).
		Msg("Ingestion summary")

	for _, label := range graph.Labels {
		log.Info().Str("label", string(label)).Int64("count", s.Nodes[label]).Msg("Nodes")
	}

	types := make([]string, 0, len(s.Edges))
	for t := range s.Edges {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		event := log.Info().Str("edge_type", t).Int64("count", s.Edges[graph.EdgeType(t)])
		if st, ok := s.Links[graph.EdgeType(t)]; ok {
			event = event.Int("dropped", st.Dropped)
		}
		event.Msg("Relationships")
	}

	if len(s.Resources.Ignored) > 0 {
		dict := zerolog.Dict()
		for tag, n := range s.Resources.Ignored {
			dict = dict.Int(tag, n)
		}
		log.Info().Dict("ignored", dict).Msg("Unsupported resource types")
	}
}
