package stats

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/mtpe/internal/model"
	"github.com/verte-zerg/mtpe/internal/store"
)

func TestBuildReport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "mtpe.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	ctx := context.Background()
	state := model.SessionState{
		ID:          "report-session",
		Operator:    "ana",
		Mode:        model.ModeCurrent,
		Fingerprint: "f",
		Segments: []model.Segment{
			{ID: 0, Source: "Hallo Welt", MT: "hello world", Current: "hello world"},
			{ID: 1, Source: "Guten Tag", MT: "good day", Current: "good day"},
		},
		CreatedAt: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := st.CreateSession(ctx, state); err != nil {
		t.Fatalf("create session: %v", err)
	}
	metric := model.EditMetric{
		SegmentID:  0,
		Edited:     "hello, big world",
		EditTime:   7.5,
		Insertions: 1,
		Quality:    &model.QualityScores{BLEU: 30, CHRF: 70, TER: 50},
	}
	timing := model.TimingRecord{SegmentID: 0, Mode: model.ModeCurrent, ActiveMs: 7500}
	if err := st.SaveMetric(ctx, state.ID, metric, timing, 1); err != nil {
		t.Fatalf("save metric: %v", err)
	}

	report, err := BuildReport(ctx, st, model.ReportConfig{Operator: "ana"})
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if report.Session.ID != state.ID {
		t.Fatalf("unexpected session %q", report.Session.ID)
	}
	if report.Summary.SegmentsCompleted != 1 || report.Summary.ActiveMs != 7500 {
		t.Fatalf("unexpected summary %+v", report.Summary.Aggregate)
	}
	if len(report.TopEffort) != 1 || report.TopEffort[0] != 0 {
		t.Fatalf("unexpected top effort %v", report.TopEffort)
	}

	var buf bytes.Buffer
	if err := RenderReport(&buf, report, 1, 60, false); err != nil {
		t.Fatalf("render report: %v", err)
	}
	if !strings.Contains(buf.String(), "Session report-session (current mode, operator ana)") {
		t.Fatalf("missing header:\n%s", buf.String())
	}

	if _, err := BuildReport(ctx, st, model.ReportConfig{Operator: "bob"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
