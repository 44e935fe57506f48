package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/verte-zerg/mtpe/internal/model"
)

// LoadSession returns the resumable state of one session.
func (s *Store) LoadSession(ctx context.Context, id string) (model.SessionState, error) {
	var state model.SessionState
	var mode, created, updated string
	var finished sql.NullString
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, operator, mode, fingerprint, segment_count, next_segment, created_at, updated_at, finished_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&state.ID, &state.Operator, &mode, &state.Fingerprint, &count, &state.NextSegment, &created, &updated, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return state, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return state, err
	}
	state.Mode = model.Mode(mode)
	if state.CreatedAt, err = parseTime(created); err != nil {
		return state, err
	}
	if state.UpdatedAt, err = parseTime(updated); err != nil {
		return state, err
	}
	if finished.Valid && finished.String != "" {
		at, err := parseTime(finished.String)
		if err != nil {
			return state, err
		}
		state.FinishedAt = &at
	}

	if state.Segments, err = s.loadSegments(ctx, id, count); err != nil {
		return state, err
	}
	if state.Timings, err = s.loadTimings(ctx, id, count); err != nil {
		return state, err
	}
	metrics, err := s.ListMetrics(ctx, id)
	if err != nil {
		return state, err
	}
	state.Metrics = make([]*model.EditMetric, count)
	for _, m := range metrics {
		if m.SegmentID >= 0 && m.SegmentID < count {
			state.Metrics[m.SegmentID] = m
		}
	}
	return state, nil
}

// LatestSession returns the most recently updated unfinished session,
// optionally restricted to one operator.
func (s *Store) LatestSession(ctx context.Context, operator string) (model.SessionState, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM sessions
		 WHERE finished_at IS NULL AND (? = '' OR operator = ?)
		 ORDER BY updated_at DESC
		 LIMIT 1`, operator, operator,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SessionState{}, ErrNotFound
	}
	if err != nil {
		return model.SessionState{}, err
	}
	return s.LoadSession(ctx, id)
}

func (s *Store) loadSegments(ctx context.Context, id string, count int) ([]model.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, source, mt, current FROM segments WHERE session_id = ? ORDER BY idx ASC`, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	segs := make([]model.Segment, 0, count)
	for rows.Next() {
		var seg model.Segment
		if err := rows.Scan(&seg.ID, &seg.Source, &seg.MT, &seg.Current); err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(segs) != count {
		return nil, fmt.Errorf("session %s: expected %d segments, found %d", id, count, len(segs))
	}
	return segs, nil
}

func (s *Store) loadTimings(ctx context.Context, id string, count int) ([]*model.TimingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT segment_id, mode, active_ms, idle_ms, pending_ms, pause_count, started_at, completed_at
		 FROM timings WHERE session_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	timings := make([]*model.TimingRecord, count)
	for rows.Next() {
		var rec model.TimingRecord
		var mode, started, completed string
		if err := rows.Scan(&rec.SegmentID, &mode, &rec.ActiveMs, &rec.IdleMs, &rec.PendingMs, &rec.PauseCount, &started, &completed); err != nil {
			return nil, err
		}
		rec.Mode = model.Mode(mode)
		if rec.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if rec.CompletedAt, err = parseTime(completed); err != nil {
			return nil, err
		}
		if rec.SegmentID >= 0 && rec.SegmentID < count {
			timings[rec.SegmentID] = &rec
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return timings, nil
}

// ListMetrics returns the finalized metrics of a session ordered by segment.
func (s *Store) ListMetrics(ctx context.Context, id string) ([]*model.EditMetric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.segment_id, g.source, g.mt, m.edited, m.edit_time, m.idle_time, m.pause_count,
			m.insertions, m.deletions, m.char_insertions, m.char_deletions,
			m.bleu, m.chrf, m.ter, m.no_time, m.computed_at
		 FROM edit_metrics m
		 JOIN segments g ON g.session_id = m.session_id AND g.idx = m.segment_id
		 WHERE m.session_id = ?
		 ORDER BY m.segment_id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []*model.EditMetric
	for rows.Next() {
		var m model.EditMetric
		var bleu, chrf, ter sql.NullFloat64
		var noTime int
		var computed string
		if err := rows.Scan(&m.SegmentID, &m.Source, &m.MT, &m.Edited, &m.EditTime, &m.IdleTime, &m.PauseCount,
			&m.Insertions, &m.Deletions, &m.CharInsertions, &m.CharDeletions,
			&bleu, &chrf, &ter, &noTime, &computed); err != nil {
			return nil, err
		}
		if bleu.Valid && chrf.Valid && ter.Valid {
			m.Quality = &model.QualityScores{BLEU: bleu.Float64, CHRF: chrf.Float64, TER: ter.Float64}
		}
		m.NoTimeRecorded = noTime != 0
		if m.ComputedAt, err = parseTime(computed); err != nil {
			return nil, err
		}
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListSessions returns stored sessions, newest first, filtered by report config.
func (s *Store) ListSessions(ctx context.Context, cfg model.ReportConfig) ([]model.SessionSummary, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Operator != "" {
		clauses = append(clauses, "s.operator = ?")
		args = append(args, cfg.Operator)
	}
	if cfg.SessionID != "" {
		clauses = append(clauses, "s.id = ?")
		args = append(args, cfg.SessionID)
	}
	query := fmt.Sprintf(`SELECT s.id, s.operator, s.mode, s.segment_count, s.created_at, s.updated_at, s.finished_at,
			COUNT(m.segment_id) AS completed,
			COALESCE(SUM(m.edit_time), 0) AS edit_time
		FROM sessions s
		LEFT JOIN edit_metrics m ON m.session_id = s.id
		WHERE %s
		GROUP BY s.id
		ORDER BY s.updated_at DESC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var sessions []model.SessionSummary
	for rows.Next() {
		var sum model.SessionSummary
		var mode, created, updated string
		var finished sql.NullString
		var editTime float64
		if err := rows.Scan(&sum.ID, &sum.Operator, &mode, &sum.SegmentCount, &created, &updated, &finished, &sum.Completed, &editTime); err != nil {
			return nil, err
		}
		sum.Mode = model.Mode(mode)
		sum.ActiveMs = int64(editTime*1000 + 0.5)
		if sum.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if sum.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		if finished.Valid && finished.String != "" {
			at, err := parseTime(finished.String)
			if err != nil {
				return nil, err
			}
			sum.FinishedAt = &at
		}
		sessions = append(sessions, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}
