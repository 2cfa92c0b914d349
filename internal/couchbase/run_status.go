package couchbase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/fhirgraph/internal/ingest"
)

// IngestionStatusKey is the document key of the latest batch status
const IngestionStatusKey = "_system/ingestion_status"

// IngestionStatus is the run-status document. Ready turns true once a batch
// completes without error and stays true through later runs that start.
type IngestionStatus struct {
	Ready       bool            `json:"ready"`
	RunID       string          `json:"runId"`
	State       string          `json:"state"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt time.Time       `json:"completedAt,omitempty"`
	Message     string          `json:"message"`
	Summary     *ingest.Summary `json:"summary,omitempty"`
}

// Run states
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// startedStatus keeps prev.Ready so the API stays available while a
// re-ingestion runs over an already loaded graph
func startedStatus(prev IngestionStatus, s *ingest.Summary) IngestionStatus {
	return IngestionStatus{
		Ready:     prev.Ready,
		RunID:     s.RunID,
		State:     StateRunning,
		StartedAt: s.StartedAt,
		Message:   fmt.Sprintf("ingesting %d bundle files from %s", s.Files.Found, s.Directory),
	}
}

func finishedStatus(prev IngestionStatus, s *ingest.Summary) IngestionStatus {
	status := IngestionStatus{
		Ready:       prev.Ready,
		RunID:       s.RunID,
		State:       StateCompleted,
		StartedAt:   s.StartedAt,
		CompletedAt: s.FinishedAt,
		Summary:     s,
	}
	if s.Error != "" {
		status.State = StateFailed
		status.Message = s.Error
		return status
	}
	status.Ready = true
	status.Message = fmt.Sprintf("processed %d of %d bundle files", s.Files.Processed, s.Files.Found)
	return status
}

// RunStatusStore records batch progress and implements ingest.RunRecorder
type RunStatusStore struct {
	docs *DocumentManager
}

var _ ingest.RunRecorder = (*RunStatusStore)(nil)

// NewRunStatusStore creates a status store on docs
func NewRunStatusStore(docs *DocumentManager) *RunStatusStore {
	return &RunStatusStore{docs: docs}
}

// Latest returns the current status; a missing document is a not-ready status
func (rs *RunStatusStore) Latest(ctx context.Context) (IngestionStatus, error) {
	var status IngestionStatus
	if err := rs.docs.Get(ctx, IngestionStatusKey, &status); err != nil {
		if errors.Is(err, ErrNotFound) {
			return IngestionStatus{}, nil
		}
		return IngestionStatus{}, fmt.Errorf("failed to get ingestion status: %w", err)
	}
	return status, nil
}

// IsIngestionReady reports whether a batch has completed
func (rs *RunStatusStore) IsIngestionReady(ctx context.Context) (bool, error) {
	status, err := rs.Latest(ctx)
	if err != nil {
		return false, err
	}
	return status.Ready, nil
}

// RunStarted marks a batch as running
func (rs *RunStatusStore) RunStarted(ctx context.Context, s *ingest.Summary) error {
	prev, err := rs.Latest(ctx)
	if err != nil {
		return err
	}
	return rs.set(ctx, startedStatus(prev, s))
}

// RunFinished stores the outcome and summary of a batch
func (rs *RunStatusStore) RunFinished(ctx context.Context, s *ingest.Summary) error {
	prev, err := rs.Latest(ctx)
	if err != nil {
		return err
	}
	return rs.set(ctx, finishedStatus(prev, s))
}

func (rs *RunStatusStore) set(ctx context.Context, status IngestionStatus) error {
	if err := rs.docs.Upsert(ctx, IngestionStatusKey, status); err != nil {
		return fmt.Errorf("failed to set ingestion status: %w", err)
	}
	log.Debug().Str("run_id", status.RunID).Str("state", status.State).Bool("ready", status.Ready).Msg("Ingestion status updated")
	return nil
}
