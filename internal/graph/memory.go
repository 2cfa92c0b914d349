package graph

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type edgeKey struct {
	from string
	to   string
}

// MemoryStore is an in-process Store with the same merge semantics as the
// Neo4j backend. It backs GRAPH_BACKEND=memory and the tests.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[Label]map[string]map[string]any
	edges map[EdgeType]map[edgeKey]map[string]any

	// FailUpsert, when set, is consulted before every node write. Tests use it
	// to simulate rejected writes.
	FailUpsert func(Node) error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[Label]map[string]map[string]any),
		edges: make(map[EdgeType]map[edgeKey]map[string]any),
	}
}

func (m *MemoryStore) EnsureConstraints(ctx context.Context) error {
	return ctx.Err()
}

// UpsertNodes writes all nodes or none
func (m *MemoryStore) UpsertNodes(ctx context.Context, nodes []Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, n := range nodes {
		if err := m.check(n); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range nodes {
		m.merge(n)
	}
	return nil
}

func (m *MemoryStore) UpsertNode(ctx context.Context, node Node) error {
	return m.UpsertNodes(ctx, []Node{node})
}

func (m *MemoryStore) check(n Node) error {
	if err := ValidateNode(n); err != nil {
		return err
	}
	if m.FailUpsert != nil {
		return m.FailUpsert(n)
	}
	return nil
}

func (m *MemoryStore) merge(n Node) {
	byID, ok := m.nodes[n.Label]
	if !ok {
		byID = make(map[string]map[string]any)
		m.nodes[n.Label] = byID
	}
	props, ok := byID[n.ID]
	if !ok {
		props = map[string]any{AttrID: n.ID}
		byID[n.ID] = props
	}
	mergeProps(props, n.Attrs)
}

// mergeProps applies SET n += attrs: nil values remove the property
func mergeProps(dst, src map[string]any) {
	for k, v := range src {
		if k == AttrID {
			continue
		}
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
}

func (m *MemoryStore) LinkReferences(ctx context.Context, rel Relationship, refs []Reference) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := ValidateRelationship(rel); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	linked := 0
	for _, ref := range refs {
		if !m.exists(rel.From, ref.FromID) || !m.exists(rel.To, ref.ToID) {
			continue
		}
		byKey, ok := m.edges[rel.Type]
		if !ok {
			byKey = make(map[edgeKey]map[string]any)
			m.edges[rel.Type] = byKey
		}
		key := edgeKey{ref.FromID, ref.ToID}
		props, ok := byKey[key]
		if !ok {
			props = make(map[string]any)
			byKey[key] = props
		}
		mergeProps(props, ref.Attrs)
		linked++
	}
	return linked, nil
}

func (m *MemoryStore) exists(label Label, id string) bool {
	_, ok := m.nodes[label][id]
	return ok
}

func (m *MemoryStore) PatientConditions(ctx context.Context) ([]ConditionLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	links := make([]ConditionLink, 0, len(m.edges[EdgeHasCondition]))
	for key := range m.edges[EdgeHasCondition] {
		props := m.nodes[LabelCondition][key.to]
		onset, _ := props[AttrOnset].(string)
		links = append(links, ConditionLink{
			PatientID:   key.from,
			ConditionID: key.to,
			Onset:       onset,
			Seq:         toInt64(props[AttrIngestSeq]),
		})
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].PatientID != links[j].PatientID {
			return links[i].PatientID < links[j].PatientID
		}
		if links[i].Seq != links[j].Seq {
			return links[i].Seq < links[j].Seq
		}
		return links[i].ConditionID < links[j].ConditionID
	})
	return links, nil
}

func (m *MemoryStore) ClearEdges(ctx context.Context, types ...EdgeType) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range types {
		delete(m.edges, t)
	}
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = make(map[Label]map[string]map[string]any)
	m.edges = make(map[EdgeType]map[edgeKey]map[string]any)
	return nil
}

func (m *MemoryStore) CountNodes(ctx context.Context) (map[Label]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[Label]int64, len(m.nodes))
	for label, byID := range m.nodes {
		if len(byID) > 0 {
			counts[label] = int64(len(byID))
		}
	}
	return counts, ctx.Err()
}

func (m *MemoryStore) CountEdges(ctx context.Context) (map[EdgeType]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[EdgeType]int64, len(m.edges))
	for t, byKey := range m.edges {
		if len(byKey) > 0 {
			counts[t] = int64(len(byKey))
		}
	}
	return counts, ctx.Err()
}

// Node returns a copy of a stored node's properties
func (m *MemoryStore) Node(label Label, id string) (map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	props, ok := m.nodes[label][id]
	if !ok {
		return nil, false
	}
	return copyProps(props), true
}

// Edge returns a copy of a stored edge's properties
func (m *MemoryStore) Edge(t EdgeType, fromID, toID string) (map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	props, ok := m.edges[t][edgeKey{fromID, toID}]
	if !ok {
		return nil, false
	}
	return copyProps(props), true
}

// EdgesOf lists the (from, to) pairs of one edge type, sorted
func (m *MemoryStore) EdgesOf(t EdgeType) [][2]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][2]string, 0, len(m.edges[t]))
	for key := range m.edges[t] {
		out = append(out, [2]string{key.from, key.to})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// ListPatients orders by last name, then first name, then id
func (m *MemoryStore) ListPatients(ctx context.Context, skip, limit int) ([]PatientSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	rows := make([]PatientSummary, 0, len(m.nodes[LabelPatient]))
	for id, props := range m.nodes[LabelPatient] {
		rows = append(rows, PatientSummaryFromProps(id, props))
	}
	m.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if c := strings.Compare(deref(a.LName), deref(b.LName)); c != 0 {
			return c < 0
		}
		if c := strings.Compare(deref(a.FName), deref(b.FName)); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})

	if skip >= len(rows) {
		return []PatientSummary{}, nil
	}
	rows = rows[skip:]
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *MemoryStore) GetPatient(ctx context.Context, id string) (PatientDetails, bool, error) {
	if err := ctx.Err(); err != nil {
		return PatientDetails{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	props, ok := m.nodes[LabelPatient][id]
	if !ok {
		return PatientDetails{}, false, nil
	}
	return PatientDetailsFromProps(id, props), true, nil
}

// PatientEncounters returns encounters linked by HASENCOUNTER, newest start first
func (m *MemoryStore) PatientEncounters(ctx context.Context, id string) (PatientEncounters, bool, error) {
	patient, ok, err := m.GetPatient(ctx, id)
	if err != nil || !ok {
		return PatientEncounters{}, ok, err
	}

	m.mu.RLock()
	encounters := []EncounterSummary{}
	for key := range m.edges[EdgeHasEncounter] {
		if key.from != id {
			continue
		}
		encounters = append(encounters, EncounterFromProps(key.to, m.nodes[LabelEncounter][key.to]))
	}
	m.mu.RUnlock()

	sort.Slice(encounters, func(i, j int) bool {
		a, b := deref(encounters[i].Start), deref(encounters[j].Start)
		if a != b {
			return a > b
		}
		return encounters[i].ID < encounters[j].ID
	})

	return PatientEncounters{
		PatientID:       id,
		PatientName:     patient.DisplayName(),
		TotalEncounters: len(encounters),
		Encounters:      encounters,
	}, true, nil
}

func (m *MemoryStore) Close(context.Context) error {
	return nil
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
