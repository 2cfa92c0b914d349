package graphdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/fhirgraph/internal/graph"
	"stealthcompany.com/fhirgraph/internal/metrics"
)

const (
	backendName = "neo4j"

	// refBatchSize bounds the UNWIND list sent per query
	refBatchSize = 1000
)

// Config holds the Neo4j connection settings
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Store is the Neo4j implementation of graph.Store
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ graph.Store = (*Store)(nil)

// Connect opens a driver and verifies the server is reachable
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: %w", graph.ErrUnavailable, err)
	}

	log.Info().Str("uri", cfg.URI).Str("database", cfg.Database).Msg("Connected to Neo4j")

	return &Store{driver: driver, database: cfg.Database}, nil
}

// Close releases the driver
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return classify(s.driver.VerifyConnectivity(ctx))
}

func (s *Store) newSession(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

// write runs work in one managed write transaction
func (s *Store) write(ctx context.Context, op string, work neo4j.ManagedTransactionWork) (any, error) {
	start := time.Now()
	session := s.newSession(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	res, err := session.ExecuteWrite(ctx, work)
	err = classify(err)
	metrics.RecordStoreOperation(backendName, op, start, err)
	return res, err
}

// read runs work in one managed read transaction
func (s *Store) read(ctx context.Context, op string, work neo4j.ManagedTransactionWork) (any, error) {
	start := time.Now()
	session := s.newSession(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.ExecuteRead(ctx, work)
	err = classify(err)
	metrics.RecordStoreOperation(backendName, op, start, err)
	return res, err
}

// classify marks connectivity failures with graph.ErrUnavailable
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, graph.ErrUnavailable) {
		return err
	}
	if neo4j.IsConnectivityError(err) {
		return fmt.Errorf("%w: %w", graph.ErrUnavailable, err)
	}
	return err
}

// runAndConsume runs a statement inside tx and discards its records
func runAndConsume(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) error {
	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}
