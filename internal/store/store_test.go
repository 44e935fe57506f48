package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/mtpe/internal/model"
	"github.com/verte-zerg/mtpe/internal/session"
	"github.com/verte-zerg/mtpe/internal/tracker"
)

var _ session.Persister = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "mtpe.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})
	return s
}

func testState() model.SessionState {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return model.SessionState{
		ID:          "5b0c5f7e-2f5e-4c86-9a53-7d6f5b8e0c11",
		Operator:    "ana",
		Mode:        model.ModePET,
		Fingerprint: "abc123",
		Segments: []model.Segment{
			{ID: 0, Source: "Hallo", MT: "Hello", Current: "Hello"},
			{ID: 1, Source: "Welt", MT: "World", Current: "World"},
			{ID: 2, Source: "Tschüss", MT: "Bye", Current: "Bye"},
		},
		CreatedAt: created,
	}
}

func TestCreateAndLoadSession(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	state := testState()
	if err := s.CreateSession(ctx, state); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	got, err := s.LoadSession(ctx, state.ID)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got.Mode != model.ModePET || got.Operator != "ana" || got.Fingerprint != "abc123" {
		t.Fatalf("unexpected session %+v", got)
	}
	if len(got.Segments) != 3 || got.Segments[2].Source != "Tschüss" {
		t.Fatalf("unexpected segments %+v", got.Segments)
	}
	if len(got.Metrics) != 3 || got.Metrics[0] != nil {
		t.Fatalf("metrics should be sparse and empty: %+v", got.Metrics)
	}
	if !got.CreatedAt.Equal(state.CreatedAt) {
		t.Fatalf("created = %v, want %v", got.CreatedAt, state.CreatedAt)
	}
}

func TestSaveMetricUpserts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	state := testState()
	if err := s.CreateSession(ctx, state); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	timing := model.TimingRecord{SegmentID: 1, Mode: model.ModePET, ActiveMs: 3000, PauseCount: 1}
	metric := model.EditMetric{
		SegmentID:  1,
		Edited:     "The world",
		EditTime:   3,
		PauseCount: 1,
		Insertions: 1,
		Quality:    &model.QualityScores{BLEU: 42.5, CHRF: 70.1, TER: 50},
		ComputedAt: time.Date(2024, 5, 1, 8, 1, 0, 0, time.UTC),
	}
	if err := s.SaveMetric(ctx, state.ID, metric, timing, 0); err != nil {
		t.Fatalf("SaveMetric: %v", err)
	}
	metric.Edited = "A world"
	metric.Quality = nil
	metric.EditTime = 5
	timing.ActiveMs = 5000
	if err := s.SaveMetric(ctx, state.ID, metric, timing, 0); err != nil {
		t.Fatalf("SaveMetric replace: %v", err)
	}

	metrics, err := s.ListMetrics(ctx, state.ID)
	if err != nil {
		t.Fatalf("ListMetrics: %v", err)
	}
	if len(metrics) != 1 {
		t.Fatalf("expected one metric after replace, got %d", len(metrics))
	}
	got := metrics[0]
	if got.Edited != "A world" || got.EditTime != 5 || got.Quality != nil {
		t.Fatalf("unexpected metric %+v", got)
	}
	if got.Source != "Welt" || got.MT != "World" {
		t.Fatalf("segment text not joined: %+v", got)
	}

	loaded, err := s.LoadSession(ctx, state.ID)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if loaded.Metrics[1] == nil || loaded.Timings[1] == nil || loaded.Timings[1].ActiveMs != 5000 {
		t.Fatalf("metric slot not restored: %+v %+v", loaded.Metrics, loaded.Timings)
	}
	if loaded.Segments[1].Current != "A world" {
		t.Fatalf("segment text = %q", loaded.Segments[1].Current)
	}
}

func TestSaveCheckpoint(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	state := testState()
	if err := s.CreateSession(ctx, state); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	cp := model.Checkpoint{
		SegmentID: 0,
		Current:   "Hello there",
		Timing:    model.TimingRecord{SegmentID: 0, Mode: model.ModePET, ActiveMs: 1200},
	}
	if err := s.SaveCheckpoint(ctx, state.ID, cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	loaded, err := s.LoadSession(ctx, state.ID)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if loaded.Segments[0].Current != "Hello there" {
		t.Fatalf("checkpoint text = %q", loaded.Segments[0].Current)
	}
	if loaded.Timings[0] == nil || loaded.Timings[0].ActiveMs != 1200 {
		t.Fatalf("checkpoint timing = %+v", loaded.Timings[0])
	}
	if loaded.Metrics[0] != nil {
		t.Fatalf("checkpoint must not create a metric")
	}
}

func TestUnknownSession(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if _, err := s.LoadSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadSession: expected ErrNotFound, got %v", err)
	}
	err := s.SaveCheckpoint(ctx, "missing", model.Checkpoint{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("SaveCheckpoint: expected ErrNotFound, got %v", err)
	}
	if _, err := s.LatestSession(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LatestSession: expected ErrNotFound, got %v", err)
	}
}

func TestLatestSessionSkipsFinished(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }

	first := testState()
	first.ID = "first"
	second := testState()
	second.ID = "second"
	second.CreatedAt = base.Add(time.Hour)
	if err := s.CreateSession(ctx, first); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.CreateSession(ctx, second); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	got, err := s.LatestSession(ctx, "ana")
	if err != nil {
		t.Fatalf("LatestSession: %v", err)
	}
	if got.ID != "second" {
		t.Fatalf("latest = %s, want second", got.ID)
	}
	if err := s.FinishSession(ctx, "second", base.Add(2*time.Hour)); err != nil {
		t.Fatalf("FinishSession: %v", err)
	}
	got, err = s.LatestSession(ctx, "ana")
	if err != nil {
		t.Fatalf("LatestSession: %v", err)
	}
	if got.ID != "first" {
		t.Fatalf("latest = %s, want first", got.ID)
	}
	if _, err := s.LatestSession(ctx, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other operator, got %v", err)
	}
}

func TestListSessions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	state := testState()
	if err := s.CreateSession(ctx, state); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	for i := 0; i < 2; i++ {
		metric := model.EditMetric{SegmentID: i, Edited: state.Segments[i].MT, EditTime: 1.5}
		timing := model.TimingRecord{SegmentID: i, Mode: model.ModePET, ActiveMs: 1500}
		if err := s.SaveMetric(ctx, state.ID, metric, timing, i+1); err != nil {
			t.Fatalf("SaveMetric: %v", err)
		}
	}
	sessions, err := s.ListSessions(ctx, model.ReportConfig{Operator: "ana"})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	got := sessions[0]
	if got.Completed != 2 || got.SegmentCount != 3 || got.ActiveMs != 3000 {
		t.Fatalf("unexpected summary %+v", got)
	}
	if got.FinishedAt != nil {
		t.Fatalf("session should be unfinished")
	}

	none, err := s.ListSessions(ctx, model.ReportConfig{Operator: "bob"})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no sessions for bob, got %d", len(none))
	}
}

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func TestResumeAfterCrashReopensRevisitedSegment(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	clock := &stepClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	opts := tracker.DefaultOptions()
	opts.Clock = clock
	segs := []model.Segment{
		{ID: 0, Source: "Die Katze", MT: "the cat sat", Current: "the cat sat"},
		{ID: 1, Source: "Der Hund", MT: "the dog", Current: "the dog"},
	}
	ctrl, err := session.New(segs, model.ModeCurrent, session.WithPersister(s), session.WithTrackerOptions(opts))
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	if err := s.CreateSession(ctx, ctrl.State()); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	clock.now = clock.now.Add(time.Second)
	if err := ctrl.Navigate(ctx, 1); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if err := ctrl.Navigate(ctx, -1); err != nil {
		t.Fatalf("Navigate back: %v", err)
	}
	if err := ctrl.Edit("the cat sat on the mat"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	clock.now = clock.now.Add(5 * time.Second)
	if _, err := ctrl.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	loaded, err := s.LoadSession(ctx, ctrl.ID())
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if rec := loaded.Timings[0]; rec == nil || !rec.CompletedAt.IsZero() || rec.PendingMs != 5000 {
		t.Fatalf("checkpointed timing not open: %+v", rec)
	}
	resumed, err := session.Resume(loaded, model.ModeCurrent, session.WithPersister(s), session.WithTrackerOptions(opts))
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Active() != 0 {
		t.Fatalf("active = %d, want 0", resumed.Active())
	}
	if err := resumed.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	final, err := s.LoadSession(ctx, ctrl.ID())
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	m := final.Metrics[0]
	if m == nil || m.Edited != "the cat sat on the mat" || m.EditTime != 6 {
		t.Fatalf("metric not refinalized: %+v", m)
	}
}
