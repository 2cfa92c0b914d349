package couchbase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
)

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("document not found")
	// ErrExists is returned by Insert when the key is taken
	ErrExists = errors.New("document already exists")
)

// DocumentManager handles document CRUD on the bucket's default collection
type DocumentManager struct {
	collection *gocb.Collection
}

// NewDocumentManager creates a new document manager
func NewDocumentManager(bucket *gocb.Bucket) *DocumentManager {
	return &DocumentManager{collection: bucket.DefaultCollection()}
}

// Upsert stores or replaces a document
func (dm *DocumentManager) Upsert(ctx context.Context, docID string, data any) error {
	_, err := dm.collection.Upsert(docID, data, &gocb.UpsertOptions{Context: ctx})
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", docID, err)
	}
	return nil
}

// Insert stores a document only when docID is free. A zero expiry keeps the
// document forever.
func (dm *DocumentManager) Insert(ctx context.Context, docID string, data any, expiry time.Duration) error {
	_, err := dm.collection.Insert(docID, data, &gocb.InsertOptions{Context: ctx, Expiry: expiry})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentExists) {
			return fmt.Errorf("%w: %s", ErrExists, docID)
		}
		return fmt.Errorf("failed to insert document %s: %w", docID, err)
	}
	return nil
}

// Get decodes a document into result
func (dm *DocumentManager) Get(ctx context.Context, docID string, result any) error {
	doc, err := dm.collection.Get(docID, &gocb.GetOptions{Context: ctx})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, docID)
		}
		return fmt.Errorf("failed to get document %s: %w", docID, err)
	}

	if err := doc.Content(result); err != nil {
		return fmt.Errorf("failed to parse document content: %w", err)
	}
	return nil
}

// Remove deletes a document; a missing document is not an error
func (dm *DocumentManager) Remove(ctx context.Context, docID string) error {
	_, err := dm.collection.Remove(docID, &gocb.RemoveOptions{Context: ctx})
	if err != nil && !errors.Is(err, gocb.ErrDocumentNotFound) {
		return fmt.Errorf("failed to delete document %s: %w", docID, err)
	}
	return nil
}
