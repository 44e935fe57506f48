package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/mtpe/internal/model"
	"github.com/verte-zerg/mtpe/internal/segments"
	"github.com/verte-zerg/mtpe/internal/session"
	"github.com/verte-zerg/mtpe/internal/tracker"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestModel(t *testing.T, mode model.Mode) (*Model, *fakeClock) {
	t.Helper()
	segs, err := segments.Pair(
		[]string{"Hallo Welt", "Gute Nacht"},
		[]string{"hello world", "good night"},
	)
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	opts := tracker.DefaultOptions()
	opts.Clock = clock
	ctrl, err := session.New(segs, mode, session.WithTrackerOptions(opts))
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	cfg := model.Config{Mode: mode, TickInterval: 200 * time.Millisecond, ContextLines: 1}
	return NewModel(context.Background(), ctrl, cfg, nil), clock
}

func typeRunes(m *Model, s string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func TestRenderFooterFormats(t *testing.T) {
	m, clock := newTestModel(t, model.ModeCurrent)
	clock.Advance(3 * time.Second)
	out := m.renderFooter()
	if !containsAll(out, []string{"Segment 1/2", "Mode current", "Timer running", "Active 0:03.0", "Done 0/2"}) {
		t.Fatalf("footer missing expected segments: %s", out)
	}
}

func TestRenderFooterExcludesIdleGap(t *testing.T) {
	m, clock := newTestModel(t, model.ModeCurrent)
	clock.Advance(2 * time.Second)
	typeRunes(m, "!")
	clock.Advance(40 * time.Second)
	out := m.renderFooter()
	if !strings.Contains(out, "Active 0:02.0") {
		t.Fatalf("idle gap should not count as active: %s", out)
	}
}

func TestEditUpdatesActiveSegment(t *testing.T) {
	m, _ := newTestModel(t, model.ModeCurrent)
	typeRunes(m, "!")
	if got := m.ctrl.Segment(0).Current; got != "hello world!" {
		t.Fatalf("segment text = %q", got)
	}
}

func TestPETEditBlockedUntilStarted(t *testing.T) {
	m, clock := newTestModel(t, model.ModePET)
	typeRunes(m, "x")
	if got := m.ctrl.Segment(0).Current; got != "hello world" {
		t.Fatalf("edit before start was applied: %q", got)
	}
	if !strings.Contains(m.status, "ctrl+s") {
		t.Fatalf("expected start hint, got %q", m.status)
	}

	clock.Advance(500 * time.Millisecond)
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	if !m.statusErr || !strings.Contains(m.status, "1.5s") {
		t.Fatalf("expected dwell hint, got %q", m.status)
	}

	clock.Advance(2 * time.Second)
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	if m.ctrl.TrackerState() != tracker.Running {
		t.Fatalf("timer state = %s", m.ctrl.TrackerState())
	}
	typeRunes(m, "x")
	if got := m.ctrl.Segment(0).Current; got != "hello worldx" {
		t.Fatalf("segment text = %q", got)
	}
}

func TestCurrentModePauseHint(t *testing.T) {
	m, _ := newTestModel(t, model.ModeCurrent)
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	if !strings.Contains(m.status, "automatically") {
		t.Fatalf("unexpected status %q", m.status)
	}
	if m.ctrl.TrackerState() != tracker.Running {
		t.Fatalf("timer state = %s", m.ctrl.TrackerState())
	}
}

func TestNavigateFinalizesSegment(t *testing.T) {
	m, clock := newTestModel(t, model.ModeCurrent)
	clock.Advance(time.Second)
	typeRunes(m, "!")
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	if m.ctrl.Active() != 1 {
		t.Fatalf("active = %d, want 1", m.ctrl.Active())
	}
	metric := m.ctrl.Metric(0)
	if metric == nil || metric.Edited != "hello world!" || metric.EditTime != 1 {
		t.Fatalf("unexpected metric %+v", metric)
	}
	if m.input.Value() != "good night" {
		t.Fatalf("input = %q", m.input.Value())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	if m.ctrl.Active() != 1 || !strings.Contains(m.status, "Last segment") {
		t.Fatalf("expected last segment hint, active=%d status=%q", m.ctrl.Active(), m.status)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlP})
	if m.ctrl.Active() != 0 || m.input.Value() != "hello world!" {
		t.Fatalf("back navigation: active=%d input=%q", m.ctrl.Active(), m.input.Value())
	}
}

func TestCtrlCSuspends(t *testing.T) {
	m, _ := newTestModel(t, model.ModeCurrent)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
	if m.ctrl.Finished() || m.ctrl.Metric(0) != nil {
		t.Fatalf("suspend must not finalize the session")
	}
}

func TestCtrlFFinishes(t *testing.T) {
	m, _ := newTestModel(t, model.ModeCurrent)
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlF})
	if !m.Finished() || !m.ctrl.Finished() {
		t.Fatalf("expected finished session")
	}
	if m.ctrl.Metric(0) == nil {
		t.Fatalf("active segment was not finalized")
	}
}

func TestViewShowsSegmentAndChanges(t *testing.T) {
	m, _ := newTestModel(t, model.ModeCurrent)
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	out := m.View()
	if !containsAll(out, []string{"Gute Nacht", "good night", "Changes", "1. hello world"}) {
		t.Fatalf("view missing content:\n%s", out)
	}
}

func TestFormatElapsed(t *testing.T) {
	cases := map[int64]string{
		0:      "0:00.0",
		5300:   "0:05.3",
		65_300: "1:05.3",
	}
	for ms, want := range cases {
		if got := formatElapsed(ms); got != want {
			t.Fatalf("formatElapsed(%d) = %q, want %q", ms, got, want)
		}
	}
}

func containsAll(haystack string, needles []string) bool {
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
