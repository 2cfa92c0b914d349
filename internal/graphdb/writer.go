package graphdb

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/fhirgraph/internal/graph"
)

// EnsureConstraints creates one id uniqueness constraint per label. Each
// constraint is its own schema transaction.
func (s *Store) EnsureConstraints(ctx context.Context) error {
	for _, label := range graph.Labels {
		query := constraintQuery(label)
		_, err := s.write(ctx, "ensure_constraints", func(tx neo4j.ManagedTransaction) (any, error) {
			return nil, runAndConsume(ctx, tx, query, nil)
		})
		if err != nil {
			return fmt.Errorf("failed to create constraint for %s: %w", label, err)
		}
		log.Debug().Str("label", string(label)).Msg("Constraint ensured")
	}
	return nil
}

// UpsertNodes merges all nodes in a single transaction
func (s *Store) UpsertNodes(ctx context.Context, nodes []graph.Node) error {
	for _, n := range nodes {
		if err := graph.ValidateNode(n); err != nil {
			return err
		}
	}
	if len(nodes) == 0 {
		return nil
	}

	order, rows := nodeRows(nodes)
	_, err := s.write(ctx, "upsert_nodes", func(tx neo4j.ManagedTransaction) (any, error) {
		for _, label := range order {
			if err := runAndConsume(ctx, tx, upsertQuery(label), map[string]any{"rows": rows[label]}); err != nil {
				return nil, fmt.Errorf("upsert %s: %w", label, err)
			}
		}
		return nil, nil
	})
	return err
}

// UpsertNode merges one node
func (s *Store) UpsertNode(ctx context.Context, node graph.Node) error {
	return s.UpsertNodes(ctx, []graph.Node{node})
}

// LinkReferences merges edges for refs whose endpoints both exist
func (s *Store) LinkReferences(ctx context.Context, rel graph.Relationship, refs []graph.Reference) (int, error) {
	if err := graph.ValidateRelationship(rel); err != nil {
		return 0, err
	}

	query := linkQuery(rel)
	total := 0
	for _, batch := range chunk(refRows(refs), refBatchSize) {
		if len(batch) == 0 {
			continue
		}
		res, err := s.write(ctx, "link_references", func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, query, map[string]any{"refs": batch})
			if err != nil {
				return nil, err
			}
			record, err := result.Single(ctx)
			if err != nil {
				return nil, err
			}
			return getInt64FromRecord(record, "linked"), nil
		})
		if err != nil {
			return total, fmt.Errorf("failed to link %s: %w", rel.Type, err)
		}
		total += int(res.(int64))
	}
	return total, nil
}

// PatientConditions reads every Patient-HASCONDITION->Condition pair
func (s *Store) PatientConditions(ctx context.Context) ([]graph.ConditionLink, error) {
	res, err := s.read(ctx, "patient_conditions", func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, patientConditionsQuery, nil)
		if err != nil {
			return nil, err
		}

		var links []graph.ConditionLink
		for result.Next(ctx) {
			record := result.Record()
			links = append(links, graph.ConditionLink{
				PatientID:   getStringFromRecord(record, "patientId"),
				ConditionID: getStringFromRecord(record, "conditionId"),
				Onset:       getStringFromRecord(record, "onset"),
				Seq:         getInt64FromRecord(record, "seq"),
			})
		}
		return links, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read patient conditions: %w", err)
	}
	links, _ := res.([]graph.ConditionLink)
	return links, nil
}

// ClearEdges deletes every edge of the given types
func (s *Store) ClearEdges(ctx context.Context, types ...graph.EdgeType) error {
	for _, t := range types {
		if _, ok := graph.RelationshipFor(t); !ok {
			return fmt.Errorf("%w: %s", graph.ErrUnknownRelationship, t)
		}
	}

	_, err := s.write(ctx, "clear_edges", func(tx neo4j.ManagedTransaction) (any, error) {
		for _, t := range types {
			if err := runAndConsume(ctx, tx, clearEdgesQuery(t), nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// Clear deletes every node carrying one of the ingester's labels
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.write(ctx, "clear", func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, runAndConsume(ctx, tx, clearQuery, map[string]any{"labels": labelNames()})
	})
	if err != nil {
		return fmt.Errorf("failed to clear graph: %w", err)
	}
	return nil
}

// CountNodes counts nodes per label
func (s *Store) CountNodes(ctx context.Context) (map[graph.Label]int64, error) {
	res, err := s.read(ctx, "count_nodes", func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, countNodesQuery, map[string]any{"labels": labelNames()})
		if err != nil {
			return nil, err
		}
		counts := make(map[graph.Label]int64)
		for result.Next(ctx) {
			record := result.Record()
			counts[graph.Label(getStringFromRecord(record, "label"))] = getInt64FromRecord(record, "count")
		}
		return counts, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count nodes: %w", err)
	}
	return res.(map[graph.Label]int64), nil
}

// CountEdges counts edges per type
func (s *Store) CountEdges(ctx context.Context) (map[graph.EdgeType]int64, error) {
	res, err := s.read(ctx, "count_edges", func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, countEdgesQuery, map[string]any{"types": edgeTypeNames()})
		if err != nil {
			return nil, err
		}
		counts := make(map[graph.EdgeType]int64)
		for result.Next(ctx) {
			record := result.Record()
			counts[graph.EdgeType(getStringFromRecord(record, "type"))] = getInt64FromRecord(record, "count")
		}
		return counts, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count edges: %w", err)
	}
	return res.(map[graph.EdgeType]int64), nil
}
