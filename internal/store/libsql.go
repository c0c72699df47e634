package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/pageforge/pageforge/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Runs ---

func (s *LibSQLStore) CreateRun(ctx context.Context, run *Run) error {
	req, err := json.Marshal(run.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, project_id, document_id, request, status, degraded, result, error, created_at, started_at, completed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, nullStr(run.ProjectID), nullStr(run.DocumentID), string(req),
		string(run.Status), boolInt(run.Degraded), nullRaw(run.Result), nullRaw(run.Error),
		timeOrNow(run.CreatedAt), nullTime(run.StartedAt), nullTime(run.CompletedAt), timeOrNow(run.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	run := &Run{}
	var (
		projectID, documentID  sql.NullString
		reqJSON                string
		resultJSON, errorJSON  sql.NullString
		startedAt, completedAt sql.NullTime
		status                 string
		degraded               int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, document_id, request, status, degraded, result, error, created_at, started_at, completed_at, updated_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &projectID, &documentID, &reqJSON, &status, &degraded,
		&resultJSON, &errorJSON, &run.CreatedAt, &startedAt, &completedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	run.ProjectID = projectID.String
	run.DocumentID = documentID.String
	run.Status = schema.RunStatus(status)
	run.Degraded = degraded != 0
	if err := json.Unmarshal([]byte(reqJSON), &run.Request); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	run.Result = rawOrNil(resultJSON)
	run.Error = rawOrNil(errorJSON)
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

func (s *LibSQLStore) UpdateRun(ctx context.Context, id string, update RunUpdate) error {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []any{}
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Degraded != nil {
		sets = append(sets, "degraded = ?")
		args = append(args, boolInt(*update.Degraded))
	}
	if update.Result != nil {
		sets = append(sets, "result = ?")
		args = append(args, string(update.Result))
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, string(update.Error))
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE runs SET %s WHERE id = ?`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "run", id)
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `SELECT id FROM runs WHERE 1=1`
	args := []any{}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	runs := make([]*Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// --- Run Events ---

// AppendRunEvent appends an event with a monotonically increasing per-run
// sequence. A write-intent statement inside the transaction forces the write
// lock before the sequence read so concurrent appenders cannot interleave.
func (s *LibSQLStore) AppendRunEvent(ctx context.Context, event *RunEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM run_events WHERE run_id = ?`, event.RunID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO run_events (run_id, stage, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.RunID, nullStr(event.Stage), event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert run event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run event: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetRunEvents(ctx context.Context, runID string, since int64) ([]*RunEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, stage, event_type, payload, timestamp, sequence
		 FROM run_events WHERE run_id = ? AND sequence > ? ORDER BY sequence ASC`,
		runID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*RunEvent
	for rows.Next() {
		e := &RunEvent{}
		var stage, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &stage, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.Stage = stage.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Design System Versions ---

func (s *LibSQLStore) SaveDesignVersion(ctx context.Context, dv *DesignVersion) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO design_versions (version, document_id, run_id, payload, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(version) DO UPDATE SET document_id=excluded.document_id, payload=excluded.payload`,
		dv.Version, nullStr(dv.DocumentID), nullStr(dv.RunID), string(dv.Payload), timeOrNow(dv.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetDesignVersion(ctx context.Context, version string) (*DesignVersion, error) {
	dv := &DesignVersion{}
	var documentID, runID sql.NullString
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT version, document_id, run_id, payload, created_at FROM design_versions WHERE version = ?`, version,
	).Scan(&dv.Version, &documentID, &runID, &payload, &dv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("design version", version)
	}
	if err != nil {
		return nil, err
	}
	dv.DocumentID = documentID.String
	dv.RunID = runID.String
	dv.Payload = json.RawMessage(payload)
	return dv, nil
}

func (s *LibSQLStore) ListDesignVersions(ctx context.Context, documentID string, limit int) ([]*DesignVersion, error) {
	query := `SELECT version, document_id, run_id, payload, created_at FROM design_versions WHERE document_id = ? ORDER BY created_at DESC`
	args := []any{documentID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DesignVersion
	for rows.Next() {
		dv := &DesignVersion{}
		var docID, runID sql.NullString
		var payload string
		if err := rows.Scan(&dv.Version, &docID, &runID, &payload, &dv.CreatedAt); err != nil {
			return nil, err
		}
		dv.DocumentID = docID.String
		dv.RunID = runID.String
		dv.Payload = json.RawMessage(payload)
		out = append(out, dv)
	}
	return out, rows.Err()
}

// --- Document Snapshots ---

func (s *LibSQLStore) SaveSnapshot(ctx context.Context, snap *DocumentSnapshot) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO document_snapshots (document_id, run_id, style_version, nodes, taken_at) VALUES (?, ?, ?, ?, ?)`,
		snap.DocumentID, nullStr(snap.RunID), nullStr(snap.StyleVersion), string(snap.Nodes), timeOrNow(snap.TakenAt),
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		snap.ID = id
	}
	return nil
}

func (s *LibSQLStore) LatestSnapshot(ctx context.Context, documentID string) (*DocumentSnapshot, error) {
	snap := &DocumentSnapshot{}
	var runID, styleVersion sql.NullString
	var nodes string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, run_id, style_version, nodes, taken_at
		 FROM document_snapshots WHERE document_id = ? ORDER BY id DESC LIMIT 1`, documentID,
	).Scan(&snap.ID, &snap.DocumentID, &runID, &styleVersion, &nodes, &snap.TakenAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("snapshot", documentID)
	}
	if err != nil {
		return nil, err
	}
	snap.RunID = runID.String
	snap.StyleVersion = styleVersion.String
	snap.Nodes = json.RawMessage(nodes)
	return snap, nil
}

func (s *LibSQLStore) ListSnapshots(ctx context.Context, documentID string, limit int) ([]*DocumentSnapshot, error) {
	query := `SELECT id, document_id, run_id, style_version, nodes, taken_at
		 FROM document_snapshots WHERE document_id = ? ORDER BY id DESC`
	args := []any{documentID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DocumentSnapshot
	for rows.Next() {
		snap := &DocumentSnapshot{}
		var runID, styleVersion sql.NullString
		var nodes string
		if err := rows.Scan(&snap.ID, &snap.DocumentID, &runID, &styleVersion, &nodes, &snap.TakenAt); err != nil {
			return nil, err
		}
		snap.RunID = runID.String
		snap.StyleVersion = styleVersion.String
		snap.Nodes = json.RawMessage(nodes)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// --- Reference Signals ---

func (s *LibSQLStore) PutReferenceSignals(ctx context.Context, ref *ReferenceRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reference_signals (url, signals, fetched_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET signals=excluded.signals, fetched_at=excluded.fetched_at, expires_at=excluded.expires_at`,
		ref.URL, string(ref.Signals), timeOrNow(ref.FetchedAt), ref.ExpiresAt,
	)
	return err
}

func (s *LibSQLStore) GetReferenceSignals(ctx context.Context, url string) (*ReferenceRecord, error) {
	ref := &ReferenceRecord{}
	var signals string
	err := s.db.QueryRowContext(ctx,
		`SELECT url, signals, fetched_at, expires_at FROM reference_signals WHERE url = ? AND expires_at > ?`,
		url, time.Now().UTC(),
	).Scan(&ref.URL, &signals, &ref.FetchedAt, &ref.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("reference signals", url)
	}
	if err != nil {
		return nil, err
	}
	ref.Signals = json.RawMessage(signals)
	return ref, nil
}

func (s *LibSQLStore) PurgeExpiredReferences(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reference_signals WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.ForgeError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s not found: %s", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
