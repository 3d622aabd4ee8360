package runstate

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tunesync/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped on incompatible schema changes; a mismatched
// database must be cleared.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different
// schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// History persists terminal run records in SQLite so results survive daemon
// restarts. It complements the in-memory Store, which holds live runs.
type History struct {
	db   *sql.DB
	path string
}

// Stats aggregates run counts per lifecycle status.
type Stats struct {
	Total     int
	Completed int
	Failed    int
	Matched   int
}

// OpenHistory initializes or connects to the run history database.
func OpenHistory(cfg *config.Config) (*History, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenHistoryPath(filepath.Join(cfg.Paths.DataDir, "runs.db"))
}

// OpenHistoryPath opens the history database at an explicit path.
func OpenHistoryPath(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	h := &History{db: db, path: dbPath}
	if err := h.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

// Close closes the underlying database connection.
func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// Path returns the database file path.
func (h *History) Path() string {
	return h.path
}

func (h *History) initSchema(ctx context.Context) error {
	var tableExists int
	err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return h.createSchema(ctx)
	}

	var version int
	if err := h.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (run 'tunesync history clear' or delete the database)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (h *History) createSchema(ctx context.Context) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Record upserts a run. Called when a run starts and again on each state
// change, so the stored row always reflects the latest known state.
func (h *History) Record(ctx context.Context, state RunState) error {
	var resultJSON sql.NullString
	if state.Result != nil {
		encoded, err := json.Marshal(state.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		resultJSON = sql.NullString{String: string(encoded), Valid: true}
	}
	var finishedAt sql.NullString
	if !state.FinishedAt.IsZero() {
		finishedAt = sql.NullString{String: state.FinishedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	return h.execWithRetry(ctx, `
        INSERT INTO runs (
            run_id, requester_id, source_title, source_artist, source_album,
            playlist_id, status, current_step, candidates, started_at,
            finished_at, error, result_json
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(run_id) DO UPDATE SET
            status = excluded.status,
            current_step = excluded.current_step,
            candidates = excluded.candidates,
            finished_at = excluded.finished_at,
            error = excluded.error,
            result_json = excluded.result_json`,
		state.RunID,
		state.Request.RequesterID,
		state.Request.Source.Title,
		state.Request.Source.Artist,
		state.Request.Source.Album,
		state.Request.TargetPlaylistID,
		string(state.Status),
		string(state.CurrentStep),
		state.CandidatesFound,
		state.StartedAt.UTC().Format(time.RFC3339Nano),
		finishedAt,
		state.Error,
		resultJSON,
	)
}

// Get returns the stored run, if any.
func (h *History) Get(ctx context.Context, runID string) (RunState, bool, error) {
	row := h.db.QueryRowContext(ctx, `
        SELECT run_id, requester_id, source_title, source_artist, source_album,
               playlist_id, status, current_step, candidates, started_at,
               finished_at, error, result_json
        FROM runs WHERE run_id = ?`, runID)
	state, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunState{}, false, nil
	}
	if err != nil {
		return RunState{}, false, err
	}
	return state, true, nil
}

// List returns up to limit runs, most recent first.
func (h *History) List(ctx context.Context, limit int) ([]RunState, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.QueryContext(ctx, `
        SELECT run_id, requester_id, source_title, source_artist, source_album,
               playlist_id, status, current_step, candidates, started_at,
               finished_at, error, result_json
        FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunState
	for rows.Next() {
		state, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, rows.Err()
}

// Stats returns aggregate counts across all stored runs.
func (h *History) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := h.db.QueryRowContext(ctx, `
        SELECT COUNT(1),
               COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN result_json LIKE '%"success":true%' THEN 1 ELSE 0 END), 0)
        FROM runs`).Scan(&stats.Total, &stats.Completed, &stats.Failed, &stats.Matched)
	return stats, err
}

// ClearTerminal deletes completed and failed runs, returning the count
// removed.
func (h *History) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := h.execWithRetryResult(ctx, "DELETE FROM runs WHERE status IN ('completed', 'failed')")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunState, error) {
	var (
		state      RunState
		status     string
		step       string
		startedAt  string
		finishedAt sql.NullString
		resultJSON sql.NullString
	)
	err := row.Scan(
		&state.RunID,
		&state.Request.RequesterID,
		&state.Request.Source.Title,
		&state.Request.Source.Artist,
		&state.Request.Source.Album,
		&state.Request.TargetPlaylistID,
		&status,
		&step,
		&state.CandidatesFound,
		&startedAt,
		&finishedAt,
		&state.Error,
		&resultJSON,
	)
	if err != nil {
		return RunState{}, err
	}
	state.Status = Status(status)
	state.CurrentStep = Step(step)
	if state.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return RunState{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		if state.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt.String); err != nil {
			return RunState{}, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	if resultJSON.Valid {
		var result RunResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return RunState{}, fmt.Errorf("decode result: %w", err)
		}
		state.Result = &result
	}
	return state, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (h *History) execWithRetry(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := h.db.ExecContext(ctx, query, args...)
		return err
	})
}

func (h *History) execWithRetryResult(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = h.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}
