// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/verte-zerg/mtpe/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when no session matches a lookup.
var ErrNotFound = errors.New("session not found")

// Store wraps SQLite access for session data.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			operator TEXT NOT NULL,
			mode TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			segment_count INTEGER NOT NULL,
			next_segment INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			finished_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS segments (
			session_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			source TEXT NOT NULL,
			mt TEXT NOT NULL,
			current TEXT NOT NULL,
			PRIMARY KEY (session_id, idx)
		);`,
		`CREATE TABLE IF NOT EXISTS timings (
			session_id TEXT NOT NULL,
			segment_id INTEGER NOT NULL,
			mode TEXT NOT NULL,
			active_ms INTEGER NOT NULL,
			idle_ms INTEGER NOT NULL,
			pending_ms INTEGER NOT NULL,
			pause_count INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT NOT NULL,
			PRIMARY KEY (session_id, segment_id)
		);`,
		`CREATE TABLE IF NOT EXISTS edit_metrics (
			session_id TEXT NOT NULL,
			segment_id INTEGER NOT NULL,
			edited TEXT NOT NULL,
			edit_time REAL NOT NULL,
			idle_time REAL NOT NULL,
			pause_count INTEGER NOT NULL,
			insertions INTEGER NOT NULL,
			deletions INTEGER NOT NULL,
			char_insertions INTEGER NOT NULL,
			char_deletions INTEGER NOT NULL,
			bleu REAL,
			chrf REAL,
			ter REAL,
			no_time INTEGER NOT NULL,
			computed_at TEXT NOT NULL,
			PRIMARY KEY (session_id, segment_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_operator ON sessions(operator, updated_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

func rollback(tx *sql.Tx) {
	if rerr := tx.Rollback(); rerr != nil {
		// Best-effort rollback.
		_ = rerr
	}
}

// CreateSession stores a new session with its segments.
func (s *Store) CreateSession(ctx context.Context, state model.SessionState) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			rollback(tx)
		}
	}()

	created := state.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, operator, mode, fingerprint, segment_count, next_segment, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		state.ID,
		state.Operator,
		string(state.Mode),
		state.Fingerprint,
		len(state.Segments),
		state.NextSegment,
		formatTime(created),
		formatTime(created),
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO segments (session_id, idx, source, mt, current) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()
	for _, seg := range state.Segments {
		if _, err = stmt.ExecContext(ctx, state.ID, seg.ID, seg.Source, seg.MT, seg.Current); err != nil {
			return fmt.Errorf("insert segment %d: %w", seg.ID, err)
		}
	}
	return tx.Commit()
}

func upsertTiming(ctx context.Context, tx *sql.Tx, sessionID string, rec model.TimingRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO timings (session_id, segment_id, mode, active_ms, idle_ms, pending_ms, pause_count, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, segment_id) DO UPDATE SET
			mode = excluded.mode,
			active_ms = excluded.active_ms,
			idle_ms = excluded.idle_ms,
			pending_ms = excluded.pending_ms,
			pause_count = excluded.pause_count,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		sessionID,
		rec.SegmentID,
		string(rec.Mode),
		rec.ActiveMs,
		rec.IdleMs,
		rec.PendingMs,
		rec.PauseCount,
		formatTime(rec.StartedAt),
		formatTime(rec.CompletedAt),
	)
	return err
}

func (s *Store) touch(ctx context.Context, tx *sql.Tx, sessionID string, next int) error {
	var res sql.Result
	var err error
	if next < 0 {
		res, err = tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, formatTime(s.now()), sessionID)
	} else {
		res, err = tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ?, next_segment = ? WHERE id = ?`, formatTime(s.now()), next, sessionID)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return nil
}

// SaveCheckpoint records the in-flight text and timing of the active segment.
func (s *Store) SaveCheckpoint(ctx context.Context, sessionID string, cp model.Checkpoint) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			rollback(tx)
		}
	}()
	if err = s.touch(ctx, tx, sessionID, -1); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE segments SET current = ? WHERE session_id = ? AND idx = ?`,
		cp.Current, sessionID, cp.SegmentID,
	); err != nil {
		return err
	}
	if err = upsertTiming(ctx, tx, sessionID, cp.Timing); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveMetric replaces the finalized metric and timing of one segment.
func (s *Store) SaveMetric(ctx context.Context, sessionID string, metric model.EditMetric, timing model.TimingRecord, next int) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			rollback(tx)
		}
	}()
	if err = s.touch(ctx, tx, sessionID, next); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE segments SET current = ? WHERE session_id = ? AND idx = ?`,
		metric.Edited, sessionID, metric.SegmentID,
	); err != nil {
		return err
	}
	if err = upsertTiming(ctx, tx, sessionID, timing); err != nil {
		return err
	}

	var bleu, chrf, ter sql.NullFloat64
	if metric.Quality != nil {
		bleu = sql.NullFloat64{Float64: metric.Quality.BLEU, Valid: true}
		chrf = sql.NullFloat64{Float64: metric.Quality.CHRF, Valid: true}
		ter = sql.NullFloat64{Float64: metric.Quality.TER, Valid: true}
	}
	noTime := 0
	if metric.NoTimeRecorded {
		noTime = 1
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO edit_metrics (session_id, segment_id, edited, edit_time, idle_time, pause_count, insertions, deletions, char_insertions, char_deletions, bleu, chrf, ter, no_time, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, segment_id) DO UPDATE SET
			edited = excluded.edited,
			edit_time = excluded.edit_time,
			idle_time = excluded.idle_time,
			pause_count = excluded.pause_count,
			insertions = excluded.insertions,
			deletions = excluded.deletions,
			char_insertions = excluded.char_insertions,
			char_deletions = excluded.char_deletions,
			bleu = excluded.bleu,
			chrf = excluded.chrf,
			ter = excluded.ter,
			no_time = excluded.no_time,
			computed_at = excluded.computed_at`,
		sessionID,
		metric.SegmentID,
		metric.Edited,
		metric.EditTime,
		metric.IdleTime,
		metric.PauseCount,
		metric.Insertions,
		metric.Deletions,
		metric.CharInsertions,
		metric.CharDeletions,
		bleu,
		chrf,
		ter,
		noTime,
		formatTime(metric.ComputedAt),
	); err != nil {
		return fmt.Errorf("upsert metric %d: %w", metric.SegmentID, err)
	}
	return tx.Commit()
}

// FinishSession marks a session as finished.
func (s *Store) FinishSession(ctx context.Context, sessionID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET finished_at = ?, updated_at = ? WHERE id = ?`,
		formatTime(at), formatTime(at), sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return nil
}
