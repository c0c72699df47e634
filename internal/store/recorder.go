package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pageforge/pageforge/pkg/schema"
)

// Recorder persists run lifecycle and stage events through a Store. It
// satisfies the pipeline's RunRecorder contract.
type Recorder struct {
	store Store
}

// NewRecorder wraps a Store for run recording.
func NewRecorder(s Store) *Recorder {
	return &Recorder{store: s}
}

// RecordRunStart creates the run row in active state.
func (r *Recorder) RecordRunStart(ctx context.Context, runID string, req schema.RunRequest) error {
	now := time.Now().UTC()
	return r.store.CreateRun(ctx, &Run{
		ID:        runID,
		ProjectID: req.ProjectID,
		Request:   req,
		Status:    schema.RunStatusActive,
		CreatedAt: now,
		StartedAt: &now,
	})
}

// RecordRunEnd closes the run with its terminal status and result payload.
func (r *Recorder) RecordRunEnd(ctx context.Context, runID string, status schema.RunStatus, result *schema.GenerationResult) error {
	now := time.Now().UTC()
	update := RunUpdate{Status: &status, CompletedAt: &now}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		update.Result = raw
		update.Degraded = &result.Degraded
	}
	return r.store.UpdateRun(ctx, runID, update)
}

// RecordEvent appends one event to the run's log.
func (r *Recorder) RecordEvent(ctx context.Context, runID, eventType, stage string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		raw = buf
	}
	return r.store.AppendRunEvent(ctx, &RunEvent{
		RunID:   runID,
		Type:    eventType,
		Stage:   stage,
		Payload: raw,
	})
}
