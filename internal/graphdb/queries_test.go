package graphdb

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"stealthcompany.com/fhirgraph/internal/graph"
)

func TestQueryBuilders(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		contains []string
	}{
		{
			name:     "constraint",
			query:    constraintQuery(graph.LabelPatient),
			contains: []string{"CREATE CONSTRAINT patient_id IF NOT EXISTS", "FOR (n:Patient)", "REQUIRE n.id IS UNIQUE"},
		},
		{
			name:     "upsert",
			query:    upsertQuery(graph.LabelCondition),
			contains: []string{"UNWIND $rows AS row", "MERGE (n:Condition {id: row.id})", "SET n += row.props"},
		},
		{
			name: "link",
			query: linkQuery(graph.Relationship{
				Type: graph.EdgeHasCondition, From: graph.LabelPatient, To: graph.LabelCondition,
			}),
			contains: []string{
				"MATCH (a:Patient {id: ref.from})",
				"MATCH (b:Condition {id: ref.to})",
				"MERGE (a)-[r:HASCONDITION]->(b)",
				"RETURN count(r) AS linked",
			},
		},
		{
			name:     "clear edges",
			query:    clearEdgesQuery(graph.EdgeNextCondition),
			contains: []string{"MATCH ()-[r:NEXTCONDITION]->() DELETE r"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, want := range tt.contains {
				if !strings.Contains(tt.query, want) {
					t.Errorf("Expected query to contain %q, got %q", want, tt.query)
				}
			}
		})
	}
}

func TestNodeRows(t *testing.T) {
	nodes := []graph.Node{
		{Label: graph.LabelPatient, ID: "p1", Attrs: map[string]any{"id": "p1", "fname": "Ann"}},
		{Label: graph.LabelCondition, ID: "c1"},
		{Label: graph.LabelPatient, ID: "p2", Attrs: map[string]any{"fname": nil}},
	}

	order, rows := nodeRows(nodes)

	if len(order) != 2 || order[0] != graph.LabelPatient || order[1] != graph.LabelCondition {
		t.Fatalf("Expected order [Patient Condition], got %v", order)
	}
	if len(rows[graph.LabelPatient]) != 2 {
		t.Fatalf("Expected 2 patient rows, got %d", len(rows[graph.LabelPatient]))
	}

	first := rows[graph.LabelPatient][0]
	props := first["props"].(map[string]any)
	if _, ok := props["id"]; ok {
		t.Error("Expected id to be dropped from props")
	}
	if props["fname"] != "Ann" {
		t.Errorf("Expected fname Ann, got %v", props["fname"])
	}

	cond := rows[graph.LabelCondition][0]["props"].(map[string]any)
	if cond == nil || len(cond) != 0 {
		t.Errorf("Expected empty non-nil props, got %v", cond)
	}

	second := rows[graph.LabelPatient][1]["props"].(map[string]any)
	if v, ok := second["fname"]; !ok || v != nil {
		t.Errorf("Expected explicit nil fname to be kept for removal, got %v (present=%v)", v, ok)
	}
}

func TestRefRows(t *testing.T) {
	refs := []graph.Reference{
		{Type: graph.EdgeHasCondition, FromID: "p1", ToID: "c1", Attrs: map[string]any{graph.AttrDate: "2020-01-01"}},
		{Type: graph.EdgeHasCondition, FromID: "p1", ToID: "c2"},
	}

	rows := refRows(refs)
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0]["from"] != "p1" || rows[0]["to"] != "c1" {
		t.Errorf("Expected p1->c1, got %v->%v", rows[0]["from"], rows[0]["to"])
	}
	if rows[0]["props"].(map[string]any)[graph.AttrDate] != "2020-01-01" {
		t.Errorf("Expected date prop, got %v", rows[0]["props"])
	}
	if rows[1]["props"] == nil {
		t.Error("Expected non-nil props for reference without attrs")
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		size  int
		sizes []int
	}{
		{"empty", 0, 3, []int{0}},
		{"smaller than size", 2, 3, []int{2}},
		{"exact", 3, 3, []int{3}},
		{"remainder", 7, 3, []int{3, 3, 1}},
		{"even split", 6, 3, []int{3, 3}},
		{"no limit", 5, 0, []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := make([]int, tt.n)
			got := chunk(rows, tt.size)
			if len(got) != len(tt.sizes) {
				t.Fatalf("Expected %d batches, got %d", len(tt.sizes), len(got))
			}
			for i, b := range got {
				if len(b) != tt.sizes[i] {
					t.Errorf("Expected batch %d size %d, got %d", i, tt.sizes[i], len(b))
				}
			}
		})
	}
}

func TestNamesCoverModel(t *testing.T) {
	if len(labelNames()) != len(graph.Labels) {
		t.Errorf("Expected %d labels, got %d", len(graph.Labels), len(labelNames()))
	}
	want := len(graph.Structural) + len(graph.Temporal)
	if len(edgeTypeNames()) != want {
		t.Errorf("Expected %d edge types, got %d", want, len(edgeTypeNames()))
	}
}

func TestClassify(t *testing.T) {
	if classify(nil) != nil {
		t.Error("Expected nil for nil error")
	}

	plain := errors.New("syntax error")
	if got := classify(plain); got != plain {
		t.Errorf("Expected plain error to pass through, got %v", got)
	}

	wrapped := fmt.Errorf("%w: down", graph.ErrUnavailable)
	if got := classify(wrapped); !errors.Is(got, graph.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable to be preserved, got %v", got)
	}
}
