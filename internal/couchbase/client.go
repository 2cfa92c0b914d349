package couchbase

import (
	"context"
	"time"
)

// Client wires the connection, the ingestion lock and the run-status store
type Client struct {
	connManager *ConnectionManager
	docs        *DocumentManager
	lock        *IngestionLock
	status      *RunStatusStore
}

// NewClient connects to Couchbase. lockTTL bounds how long a crashed
// ingester can hold the lock.
func NewClient(ctx context.Context, cfg Config, lockTTL time.Duration) (*Client, error) {
	connManager, err := NewConnectionManager(ctx, cfg)
	if err != nil {
		return nil, err
	}

	docs := NewDocumentManager(connManager.GetBucket())

	return &Client{
		connManager: connManager,
		docs:        docs,
		lock:        NewIngestionLock(docs, lockTTL),
		status:      NewRunStatusStore(docs),
	}, nil
}

// Close closes the Couchbase connection
func (c *Client) Close() error {
	return c.connManager.Close()
}

// Lock returns the ingestion lock
func (c *Client) Lock() *IngestionLock {
	return c.lock
}

// RunStatus returns the run-status store
func (c *Client) RunStatus() *RunStatusStore {
	return c.status
}
