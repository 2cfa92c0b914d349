package graph

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable wraps failures to reach the graph store at all. Callers
	// abort the run on it instead of isolating the failure.
	ErrUnavailable = errors.New("graph store unavailable")

	// ErrInvalidNode is returned for nodes with an unknown label or empty id
	ErrInvalidNode = errors.New("invalid node")

	// ErrUnknownRelationship is returned for edge types outside Structural and Temporal
	ErrUnknownRelationship = errors.New("unknown relationship")
)

// Writer is the ingestion side of a graph store
type Writer interface {
	// EnsureConstraints creates a uniqueness constraint on id per label
	EnsureConstraints(ctx context.Context) error

	// UpsertNodes merges all nodes by (label, id) in a single transaction
	UpsertNodes(ctx context.Context, nodes []Node) error
	UpsertNode(ctx context.Context, node Node) error

	// LinkReferences merges one edge per reference whose endpoints both exist
	// and returns how many were linked
	LinkReferences(ctx context.Context, rel Relationship, refs []Reference) (int, error)

	// PatientConditions returns every Patient-HASCONDITION->Condition pair
	PatientConditions(ctx context.Context) ([]ConditionLink, error)

	ClearEdges(ctx context.Context, types ...EdgeType) error
	Clear(ctx context.Context) error

	CountNodes(ctx context.Context) (map[Label]int64, error)
	CountEdges(ctx context.Context) (map[EdgeType]int64, error)
}

// Reader backs the query API
type Reader interface {
	Ping(ctx context.Context) error
	ListPatients(ctx context.Context, skip, limit int) ([]PatientSummary, error)
	GetPatient(ctx context.Context, id string) (PatientDetails, bool, error)
	PatientEncounters(ctx context.Context, id string) (PatientEncounters, bool, error)
}

// Store is a full graph backend
type Store interface {
	Writer
	Reader
	Close(ctx context.Context) error
}

// ValidateNode checks a node can be written
func ValidateNode(n Node) error {
	if !n.Label.Valid() {
		return fmt.Errorf("%w: unknown label %q", ErrInvalidNode, n.Label)
	}
	if n.ID == "" {
		return fmt.Errorf("%w: empty id for %s", ErrInvalidNode, n.Label)
	}
	return nil
}

// ValidateRelationship checks rel is a known relationship with matching labels
func ValidateRelationship(rel Relationship) error {
	known, ok := RelationshipFor(rel.Type)
	if !ok || known != rel {
		return fmt.Errorf("%w: %s (%s->%s)", ErrUnknownRelationship, rel.Type, rel.From, rel.To)
	}
	return nil
}
