package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRun(ctx context.Context, id string, update RunUpdate) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// Run Events (append-only)
	AppendRunEvent(ctx context.Context, event *RunEvent) error
	GetRunEvents(ctx context.Context, runID string, since int64) ([]*RunEvent, error)

	// Design System Versions
	SaveDesignVersion(ctx context.Context, dv *DesignVersion) error
	GetDesignVersion(ctx context.Context, version string) (*DesignVersion, error)
	ListDesignVersions(ctx context.Context, documentID string, limit int) ([]*DesignVersion, error)

	// Document Snapshots
	SaveSnapshot(ctx context.Context, snap *DocumentSnapshot) error
	LatestSnapshot(ctx context.Context, documentID string) (*DocumentSnapshot, error)
	ListSnapshots(ctx context.Context, documentID string, limit int) ([]*DocumentSnapshot, error)

	// Reference Signals (durable reference-analysis cache)
	PutReferenceSignals(ctx context.Context, ref *ReferenceRecord) error
	GetReferenceSignals(ctx context.Context, url string) (*ReferenceRecord, error)
	PurgeExpiredReferences(ctx context.Context) (int64, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
