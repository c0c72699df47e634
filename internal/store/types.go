package store

import (
	"encoding/json"
	"time"

	"github.com/pageforge/pageforge/pkg/schema"
)

// Run is the persisted representation of a generation run.
type Run struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"project_id,omitempty"`
	DocumentID  string            `json:"document_id,omitempty"`
	Request     schema.RunRequest `json:"request"`
	Status      schema.RunStatus  `json:"status"`
	Degraded    bool              `json:"degraded"`
	Result      json.RawMessage   `json:"result,omitempty"`
	Error       json.RawMessage   `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// RunEvent is an immutable entry in a run's event log.
type RunEvent struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	Stage     string          `json:"stage,omitempty"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// DesignVersion is one immutable merged design system, keyed by its version id.
// Style sync replays any stored version onto a live document.
type DesignVersion struct {
	Version    string          `json:"version"`
	DocumentID string          `json:"document_id,omitempty"`
	RunID      string          `json:"run_id,omitempty"`
	Payload    json.RawMessage `json:"payload"` // serialized DesignSystem
	CreatedAt  time.Time       `json:"created_at"`
}

// DocumentSnapshot captures the full node graph of a document after an apply.
// The newest snapshot per document is the recovery point after a restart.
type DocumentSnapshot struct {
	ID           int64           `json:"id"`
	DocumentID   string          `json:"document_id"`
	RunID        string          `json:"run_id,omitempty"`
	StyleVersion string          `json:"style_version,omitempty"`
	Nodes        json.RawMessage `json:"nodes"` // serialized node arena
	TakenAt      time.Time       `json:"taken_at"`
}

// ReferenceRecord is a durable cache row for one analyzed reference URL.
// Expired rows are swept by the maintenance job.
type ReferenceRecord struct {
	URL       string          `json:"url"`
	Signals   json.RawMessage `json:"signals"` // serialized RawSignals
	FetchedAt time.Time       `json:"fetched_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// --- Filter and update types ---

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status    *schema.RunStatus `json:"status,omitempty"`
	ProjectID string            `json:"project_id,omitempty"`
	Since     *time.Time        `json:"since,omitempty"`
	Limit     int               `json:"limit,omitempty"`
	Offset    int               `json:"offset,omitempty"`
}

// RunUpdate specifies mutable fields of a run.
type RunUpdate struct {
	Status      *schema.RunStatus `json:"status,omitempty"`
	Degraded    *bool             `json:"degraded,omitempty"`
	Result      json.RawMessage   `json:"result,omitempty"`
	Error       json.RawMessage   `json:"error,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}
