package graph

import (
	"context"
	"errors"
	"testing"
)

func seedPatients(t *testing.T, store *MemoryStore) {
	t.Helper()
	nodes := []Node{
		{Label: LabelPatient, ID: "p1", Attrs: map[string]any{"fname": "Ann", "lname": "Smith"}},
		{Label: LabelPatient, ID: "p2", Attrs: map[string]any{"fname": "Bob", "lname": "Adams"}},
		{Label: LabelPatient, ID: "p3", Attrs: map[string]any{"fname": "Al", "lname": "Smith"}},
		{Label: LabelEncounter, ID: "e1", Attrs: map[string]any{"encstart": "2020-01-01T10:00:00Z"}},
		{Label: LabelEncounter, ID: "e2", Attrs: map[string]any{"encstart": "2021-05-01T10:00:00Z"}},
	}
	if err := store.UpsertNodes(context.Background(), nodes); err != nil {
		t.Fatalf("UpsertNodes: %v", err)
	}
}

func TestMemoryStoreUpsertMerges(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := Node{Label: LabelPatient, ID: "p1", Attrs: map[string]any{"fname": "Ann", "gender": "female"}}
	second := Node{Label: LabelPatient, ID: "p1", Attrs: map[string]any{"fname": "Anne", "gender": nil}}

	for _, n := range []Node{first, second, second} {
		if err := store.UpsertNode(ctx, n); err != nil {
			t.Fatalf("UpsertNode: %v", err)
		}
	}

	counts, _ := store.CountNodes(ctx)
	if counts[LabelPatient] != 1 {
		t.Fatalf("Expected 1 patient, got %d", counts[LabelPatient])
	}

	props, _ := store.Node(LabelPatient, "p1")
	if props["fname"] != "Anne" {
		t.Errorf("Expected latest fname, got %v", props["fname"])
	}
	if _, ok := props["gender"]; ok {
		t.Error("nil attribute should remove the property")
	}
	if props[AttrID] != "p1" {
		t.Errorf("id property missing: %v", props)
	}
}

func TestMemoryStoreUpsertNodesIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.UpsertNodes(ctx, []Node{
		{Label: LabelPatient, ID: "p1"},
		{Label: LabelPatient, ID: ""},
	})
	if !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("Expected ErrInvalidNode, got %v", err)
	}
	if _, ok := store.Node(LabelPatient, "p1"); ok {
		t.Error("no node should be written when the batch fails")
	}

	if err := store.UpsertNode(ctx, Node{Label: "Medication", ID: "m1"}); !errors.Is(err, ErrInvalidNode) {
		t.Errorf("Expected unknown label to be rejected, got %v", err)
	}
}

func TestMemoryStoreLinkReferences(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedPatients(t, store)

	rel, _ := RelationshipFor(EdgeHasEncounter)
	refs := []Reference{
		{Type: EdgeHasEncounter, FromID: "p1", ToID: "e1"},
		{Type: EdgeHasEncounter, FromID: "p1", ToID: "missing"},
		{Type: EdgeHasEncounter, FromID: "e1", ToID: "e2"},
	}

	linked, err := store.LinkReferences(ctx, rel, refs)
	if err != nil {
		t.Fatalf("LinkReferences: %v", err)
	}
	if linked != 1 {
		t.Errorf("Expected 1 linked, got %d", linked)
	}

	// idempotent
	linked, _ = store.LinkReferences(ctx, rel, refs[:1])
	edges, _ := store.CountEdges(ctx)
	if linked != 1 || edges[EdgeHasEncounter] != 1 {
		t.Errorf("Expected a single merged edge, got linked=%d count=%d", linked, edges[EdgeHasEncounter])
	}

	bad := Relationship{Type: EdgeHasEncounter, From: LabelCondition, To: LabelEncounter}
	if _, err := store.LinkReferences(ctx, bad, refs); !errors.Is(err, ErrUnknownRelationship) {
		t.Errorf("Expected mismatched labels to be rejected, got %v", err)
	}
}

func TestMemoryStorePatientConditions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedPatients(t, store)
	_ = store.UpsertNodes(ctx, []Node{
		{Label: LabelCondition, ID: "c1", Attrs: map[string]any{AttrOnset: "2020-01-01", AttrIngestSeq: int64(2)}},
		{Label: LabelCondition, ID: "c2", Attrs: map[string]any{AttrIngestSeq: int64(1)}},
	})
	rel, _ := RelationshipFor(EdgeHasCondition)
	_, _ = store.LinkReferences(ctx, rel, []Reference{
		{Type: EdgeHasCondition, FromID: "p1", ToID: "c1"},
		{Type: EdgeHasCondition, FromID: "p1", ToID: "c2"},
	})

	links, err := store.PatientConditions(ctx)
	if err != nil {
		t.Fatalf("PatientConditions: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("Expected 2 links, got %d", len(links))
	}
	if links[0].ConditionID != "c2" || links[0].Onset != "" || links[1].Onset != "2020-01-01" {
		t.Errorf("unexpected links %+v", links)
	}
}

func TestMemoryStoreListPatients(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedPatients(t, store)

	tests := []struct {
		name     string
		skip     int
		limit    int
		expected []string
	}{
		{"ordered by last then first name", 0, 10, []string{"p2", "p3", "p1"}},
		{"limit", 0, 2, []string{"p2", "p3"}},
		{"skip", 1, 10, []string{"p3", "p1"}},
		{"skip past end", 5, 10, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := store.ListPatients(ctx, tt.skip, tt.limit)
			if err != nil {
				t.Fatalf("ListPatients: %v", err)
			}
			if len(rows) != len(tt.expected) {
				t.Fatalf("Expected %d rows, got %d", len(tt.expected), len(rows))
			}
			for i, id := range tt.expected {
				if rows[i].ID != id {
					t.Errorf("row %d: expected %s, got %s", i, id, rows[i].ID)
				}
			}
		})
	}
}

func TestMemoryStorePatientEncounters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedPatients(t, store)
	rel, _ := RelationshipFor(EdgeHasEncounter)
	_, _ = store.LinkReferences(ctx, rel, []Reference{
		{Type: EdgeHasEncounter, FromID: "p1", ToID: "e1"},
		{Type: EdgeHasEncounter, FromID: "p1", ToID: "e2"},
	})

	view, found, err := store.PatientEncounters(ctx, "p1")
	if err != nil || !found {
		t.Fatalf("PatientEncounters: found=%v err=%v", found, err)
	}
	if view.PatientName != "Ann Smith" || view.TotalEncounters != 2 {
		t.Errorf("unexpected view %+v", view)
	}
	if view.Encounters[0].ID != "e2" {
		t.Errorf("Expected newest encounter first, got %s", view.Encounters[0].ID)
	}

	if _, found, _ := store.PatientEncounters(ctx, "nobody"); found {
		t.Error("unknown patient should not be found")
	}

	empty, found, _ := store.PatientEncounters(ctx, "p2")
	if !found || empty.TotalEncounters != 0 || empty.Encounters == nil {
		t.Errorf("Expected an empty, non-nil encounter list: %+v", empty)
	}
}

func TestMemoryStoreClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedPatients(t, store)
	rel, _ := RelationshipFor(EdgeHasEncounter)
	_, _ = store.LinkReferences(ctx, rel, []Reference{{Type: EdgeHasEncounter, FromID: "p1", ToID: "e1"}})

	if err := store.ClearEdges(ctx, EdgeHasEncounter); err != nil {
		t.Fatalf("ClearEdges: %v", err)
	}
	if edges, _ := store.CountEdges(ctx); len(edges) != 0 {
		t.Errorf("Expected no edges, got %v", edges)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if nodes, _ := store.CountNodes(ctx); len(nodes) != 0 {
		t.Errorf("Expected no nodes, got %v", nodes)
	}
}
