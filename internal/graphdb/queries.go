package graphdb

import (
	"fmt"
	"strings"

	"stealthcompany.com/fhirgraph/internal/graph"
)

// Labels and relationship types cannot be query parameters in Cypher, so the
// builders below only accept values that passed graph.ValidateNode or
// graph.ValidateRelationship.

func constraintQuery(label graph.Label) string {
	return fmt.Sprintf(
		"CREATE CONSTRAINT %s_id IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE",
		strings.ToLower(string(label)), label,
	)
}

func upsertQuery(label graph.Label) string {
	return fmt.Sprintf(`UNWIND $rows AS row
MERGE (n:%s {id: row.id})
SET n += row.props`, label)
}

func linkQuery(rel graph.Relationship) string {
	return fmt.Sprintf(`UNWIND $refs AS ref
MATCH (a:%s {id: ref.from})
MATCH (b:%s {id: ref.to})
MERGE (a)-[r:%s]->(b)
SET r += ref.props
RETURN count(r) AS linked`, rel.From, rel.To, rel.Type)
}

func clearEdgesQuery(t graph.EdgeType) string {
	return fmt.Sprintf("MATCH ()-[r:%s]->() DELETE r", t)
}

const clearQuery = `MATCH (n)
WHERE any(l IN labels(n) WHERE l IN $labels)
DETACH DELETE n`

const countNodesQuery = `MATCH (n)
UNWIND labels(n) AS label
WITH label WHERE label IN $labels
RETURN label, count(*) AS count`

const countEdgesQuery = `MATCH ()-[r]->()
WITH type(r) AS type WHERE type IN $types
RETURN type, count(*) AS count`

const patientConditionsQuery = `MATCH (p:Patient)-[:HASCONDITION]->(c:Condition)
RETURN p.id AS patientId,
       c.id AS conditionId,
       coalesce(c.onsetDateTime, '') AS onset,
       coalesce(c.ingestSeq, 0) AS seq
ORDER BY patientId, seq, conditionId`

const listPatientsQuery = `MATCH (p:Patient)
RETURN p.id AS id, properties(p) AS props
ORDER BY p.lname, p.fname, p.id
SKIP $skip LIMIT $limit`

const getPatientQuery = `MATCH (p:Patient {id: $id})
RETURN properties(p) AS props`

const patientEncountersQuery = `MATCH (p:Patient {id: $id})
OPTIONAL MATCH (p)-[:HASENCOUNTER]->(e:Encounter)
RETURN properties(p) AS patient, e.id AS id, properties(e) AS props
ORDER BY e.encstart DESC, e.id`

// nodeRows groups nodes by label into UNWIND rows, keeping label order stable
func nodeRows(nodes []graph.Node) ([]graph.Label, map[graph.Label][]map[string]any) {
	var order []graph.Label
	rows := make(map[graph.Label][]map[string]any)
	for _, n := range nodes {
		if _, ok := rows[n.Label]; !ok {
			order = append(order, n.Label)
		}
		rows[n.Label] = append(rows[n.Label], map[string]any{
			"id":    n.ID,
			"props": propsOrEmpty(n.Attrs),
		})
	}
	return order, rows
}

func refRows(refs []graph.Reference) []map[string]any {
	rows := make([]map[string]any, 0, len(refs))
	for _, r := range refs {
		rows = append(rows, map[string]any{
			"from":  r.FromID,
			"to":    r.ToID,
			"props": propsOrEmpty(r.Attrs),
		})
	}
	return rows
}

// propsOrEmpty drops the id key and replaces nil with an empty map, since
// SET += requires a map
func propsOrEmpty(attrs map[string]any) map[string]any {
	props := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if k == graph.AttrID {
			continue
		}
		props[k] = v
	}
	return props
}

func labelNames() []string {
	names := make([]string, len(graph.Labels))
	for i, l := range graph.Labels {
		names[i] = string(l)
	}
	return names
}

func edgeTypeNames() []string {
	names := make([]string, 0, len(graph.Structural)+len(graph.Temporal))
	for _, rel := range graph.Structural {
		names = append(names, string(rel.Type))
	}
	for _, rel := range graph.Temporal {
		names = append(names, string(rel.Type))
	}
	return names
}

// chunk splits rows into batches of at most size
func chunk[T any](rows []T, size int) [][]T {
	if size <= 0 || len(rows) <= size {
		return [][]T{rows}
	}
	var out [][]T
	for len(rows) > size {
		out = append(out, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		out = append(out, rows)
	}
	return out
}
