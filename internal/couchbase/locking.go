package couchbase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const lockDocID = "ingest_lock"

// ErrLocked is returned when another ingester holds the lock
var ErrLocked = errors.New("ingestion is locked by another run")

// LockDocument is stored while a batch runs
type LockDocument struct {
	Owner     string    `json:"owner"`
	LockedAt  time.Time `json:"lockedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func newLockDocument(owner string, now time.Time, ttl time.Duration) LockDocument {
	return LockDocument{
		Owner:     owner,
		LockedAt:  now.UTC(),
		ExpiresAt: now.UTC().Add(ttl),
	}
}

// IngestionLock keeps two batches from writing the graph at once. The lock
// document expires on its own so a crashed run cannot block forever.
type IngestionLock struct {
	docs *DocumentManager
	ttl  time.Duration

	mu     sync.Mutex
	locked bool
}

// NewIngestionLock creates a lock whose document expires after ttl
func NewIngestionLock(docs *DocumentManager, ttl time.Duration) *IngestionLock {
	return &IngestionLock{docs: docs, ttl: ttl}
}

// Lock takes the lock for owner or returns ErrLocked
func (l *IngestionLock) Lock(ctx context.Context, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locked {
		return fmt.Errorf("%w: already held by this process", ErrLocked)
	}

	err := l.docs.Insert(ctx, lockDocID, newLockDocument(owner, time.Now(), l.ttl), l.ttl)
	if err != nil {
		if errors.Is(err, ErrExists) {
			return ErrLocked
		}
		return fmt.Errorf("failed to create lock document: %w", err)
	}

	l.locked = true
	log.Info().Str("owner", owner).Dur("ttl", l.ttl).Msg("Ingestion locked")
	return nil
}

// Unlock releases the lock
func (l *IngestionLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.locked {
		return fmt.Errorf("ingestion is not locked")
	}
	if err := l.docs.Remove(ctx, lockDocID); err != nil {
		return fmt.Errorf("failed to remove lock document: %w", err)
	}

	l.locked = false
	log.Info().Msg("Ingestion unlocked")
	return nil
}

// CheckLockStatus reports whether any process currently holds the lock
func (l *IngestionLock) CheckLockStatus(ctx context.Context) (bool, error) {
	var doc LockDocument
	if err := l.docs.Get(ctx, lockDocID, &doc); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check lock status: %w", err)
	}
	return time.Now().UTC().Before(doc.ExpiresAt), nil
}
