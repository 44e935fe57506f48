package stats

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/mtpe/internal/model"
)

func sampleMetrics() []*model.EditMetric {
	return []*model.EditMetric{
		{
			SegmentID:  0,
			Source:     "Die Katze sitzt auf der Matte",
			MT:         "the cat sat",
			Edited:     "the cat sat on the mat",
			EditTime:   6,
			Insertions: 3,
			Quality:    &model.QualityScores{BLEU: 40, CHRF: 60, TER: 100},
		},
		nil,
		{
			SegmentID: 2,
			Source:    "Es regnet",
			MT:        "it rains",
			Edited:    "it rains",
			EditTime:  3,
			IdleTime:  31,
			Quality:   &model.QualityScores{BLEU: 100, CHRF: 100, TER: 0},
		},
		{
			SegmentID:      3,
			Source:         "Ja",
			MT:             "Yes",
			Edited:         "Yeah",
			Insertions:     1,
			Deletions:      1,
			NoTimeRecorded: true,
		},
	}
}

func TestSummarize(t *testing.T) {
	sum := Summarize(sampleMetrics())
	if sum.SegmentsTotal != 4 || sum.SegmentsCompleted != 3 || sum.SegmentsModified != 2 {
		t.Fatalf("unexpected counts %+v", sum.Aggregate)
	}
	if sum.ActiveMs != 9000 || sum.IdleMs != 31000 {
		t.Fatalf("unexpected times %+v", sum.Aggregate)
	}
	if sum.AvgEditTime != 3 {
		t.Fatalf("avg edit time = %v, want 3", sum.AvgEditTime)
	}
	if sum.AvgScores.BLEU != 70 || sum.AvgScores.TER != 50 {
		t.Fatalf("unexpected averages %+v", sum.AvgScores)
	}
	if sum.NoTimeCount != 1 || sum.PartialCount != 1 {
		t.Fatalf("unexpected warnings no-time=%d partial=%d", sum.NoTimeCount, sum.PartialCount)
	}
	if !sum.CorpusScoreOK || sum.Corpus.TER <= 0 {
		t.Fatalf("expected corpus scores, got %+v", sum.Corpus)
	}
	// 9 source words in 9 seconds.
	if math.Abs(sum.WordsPerHour-3600) > 1e-6 {
		t.Fatalf("words per hour = %v, want 3600", sum.WordsPerHour)
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{2, 4, 6, 8}, 2)
	want := []float64{2, 3, 5, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("MovingAverage = %v, want %v", got, want)
		}
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{1, 1, 1}); got != "+++" {
		t.Fatalf("flat sparkline = %q", got)
	}
	got := Sparkline([]float64{0, 10})
	if got != " @" {
		t.Fatalf("sparkline = %q", got)
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderSummary(&buf, Summarize(sampleMetrics())); err != nil {
		t.Fatalf("RenderSummary: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Segments: 3/4 completed, 2 modified", "Active time: 9.0s", "Corpus BLEU/CHRF/TER", "no editing time recorded"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRenderSummaryEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderSummary(&buf, Summarize([]*model.EditMetric{nil})); err != nil {
		t.Fatalf("RenderSummary: %v", err)
	}
	if !strings.Contains(buf.String(), "No finalized segments.") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestRenderSegmentTable(t *testing.T) {
	var buf bytes.Buffer
	flagged := map[int]struct{}{0: {}}
	if err := RenderSegmentTable(&buf, sampleMetrics(), flagged); err != nil {
		t.Fatalf("RenderSegmentTable: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected title, header and 3 rows, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasSuffix(lines[2], "*") {
		t.Fatalf("flagged row not marked: %q", lines[2])
	}
	if !strings.Contains(lines[4], "no time") || !strings.Contains(lines[4], "-") {
		t.Fatalf("partial row not rendered: %q", lines[4])
	}
}

func TestRenderSessionList(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	finished := now.Add(-time.Hour)
	sessions := []model.SessionSummary{
		{ID: "a", Operator: "ana", Mode: model.ModePET, SegmentCount: 10, Completed: 4, ActiveMs: 95000, UpdatedAt: now.Add(-3 * time.Minute)},
		{ID: "b", Mode: model.ModeCurrent, SegmentCount: 2, Completed: 2, UpdatedAt: finished, FinishedAt: &finished},
	}
	var buf bytes.Buffer
	if err := RenderSessionList(&buf, sessions, now); err != nil {
		t.Fatalf("RenderSessionList: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"4/10", "1m35s", "3 minutes ago", "finished 1 hour ago"} {
		if !strings.Contains(out, want) {
			t.Fatalf("session list missing %q:\n%s", want, out)
		}
	}
}

func TestRenderCurves(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderCurvesWithSize(&buf, sampleMetrics(), 1, 60, 4, false); err != nil {
		t.Fatalf("RenderCurves: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Effort by Segment") || !strings.Contains(out, "TER") {
		t.Fatalf("unexpected curves output:\n%s", out)
	}
}
