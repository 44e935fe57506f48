// Package stats summarizes finalized segment metrics for reports.
package stats

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/verte-zerg/mtpe/internal/model"
	"github.com/verte-zerg/mtpe/internal/quality"
	"github.com/verte-zerg/mtpe/internal/session"
)

const sparkChars = " .:-=+*#%@"

// Summary holds session-level figures derived from metrics.
type Summary struct {
	model.Aggregate
	AvgEditTime   float64
	WordsPerHour  float64
	NoTimeCount   int
	PartialCount  int
	AvgScores     model.QualityScores
	Corpus        model.QualityScores
	CorpusScoreOK bool
}

// Summarize derives a Summary from a sparse metric sequence.
func Summarize(metrics []*model.EditMetric) Summary {
	sum := Summary{Aggregate: session.Summarize(metrics)}
	var pairs []quality.Pair
	var sourceWords, scored int
	for _, m := range metrics {
		if m == nil {
			continue
		}
		sourceWords += len(strings.Fields(m.Source))
		if m.NoTimeRecorded {
			sum.NoTimeCount++
		}
		if m.Quality == nil {
			sum.PartialCount++
		} else {
			scored++
			sum.AvgScores.BLEU += m.Quality.BLEU
			sum.AvgScores.CHRF += m.Quality.CHRF
			sum.AvgScores.TER += m.Quality.TER
		}
		pairs = append(pairs, quality.Pair{Hypothesis: m.Edited, Reference: m.MT})
	}
	if sum.SegmentsCompleted > 0 {
		sum.AvgEditTime = float64(sum.ActiveMs) / 1000 / float64(sum.SegmentsCompleted)
	}
	if scored > 0 {
		sum.AvgScores.BLEU = round2(sum.AvgScores.BLEU / float64(scored))
		sum.AvgScores.CHRF = round2(sum.AvgScores.CHRF / float64(scored))
		sum.AvgScores.TER = round2(sum.AvgScores.TER / float64(scored))
	}
	sum.WordsPerHour = WordsPerHour(sourceWords, sum.ActiveMs)
	if len(pairs) > 0 {
		if corpus, err := quality.CorpusScore(pairs); err == nil {
			sum.Corpus = corpus
			sum.CorpusScoreOK = true
		}
	}
	return sum
}

// WordsPerHour converts source words and active time into throughput.
func WordsPerHour(words int, activeMs int64) float64 {
	if activeMs <= 0 {
		return 0
	}
	hours := float64(activeMs) / 3600000.0
	return float64(words) / hours
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Finalized returns the non-nil metrics in segment order.
func Finalized(metrics []*model.EditMetric) []*model.EditMetric {
	out := make([]*model.EditMetric, 0, len(metrics))
	for _, m := range metrics {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := seriesMinMaxSingle(values)
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = min(max(idx, 0), len(sparkChars)-1)
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderSummary prints session totals.
func RenderSummary(w io.Writer, sum Summary) error {
	if sum.SegmentsCompleted == 0 {
		_, err := fmt.Fprintln(w, "No finalized segments.")
		return err
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Segments: %d/%d completed, %d modified", sum.SegmentsCompleted, sum.SegmentsTotal, sum.SegmentsModified),
		fmt.Sprintf("Active time: %s (avg %.1fs per segment)", formatMs(sum.ActiveMs), sum.AvgEditTime),
		fmt.Sprintf("Idle time: %s", formatMs(sum.IdleMs)),
		fmt.Sprintf("Throughput: %.0f source words/hour", sum.WordsPerHour),
		fmt.Sprintf("Edits: +%d -%d words", sum.Insertions, sum.Deletions),
		fmt.Sprintf("Avg BLEU/CHRF/TER: %.2f / %.2f / %.2f", sum.AvgScores.BLEU, sum.AvgScores.CHRF, sum.AvgScores.TER),
	}
	if sum.CorpusScoreOK {
		lines = append(lines, fmt.Sprintf("Corpus BLEU/CHRF/TER: %.2f / %.2f / %.2f", sum.Corpus.BLEU, sum.Corpus.CHRF, sum.Corpus.TER))
	}
	if sum.NoTimeCount > 0 {
		lines = append(lines, fmt.Sprintf("Warning: %d changed segment(s) with no editing time recorded", sum.NoTimeCount))
	}
	if sum.PartialCount > 0 {
		lines = append(lines, fmt.Sprintf("Warning: %d segment(s) without quality scores", sum.PartialCount))
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

func formatMs(ms int64) string {
	secs := float64(ms) / 1000
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	minutes := int(secs) / 60
	return fmt.Sprintf("%dm%02ds", minutes, int(secs)%60)
}

// RenderCurves prints per-segment edit time and TER.
func RenderCurves(w io.Writer, metrics []*model.EditMetric, window int) error {
	return RenderCurvesWithSize(w, metrics, window, 0, 10, false)
}

// RenderCurvesWithSize prints per-segment curves sized to a given total width.
func RenderCurvesWithSize(w io.Writer, metrics []*model.EditMetric, window, totalWidth, height int, useColor bool) error {
	done := Finalized(metrics)
	if len(done) == 0 {
		return nil
	}
	times := make([]float64, len(done))
	edits := make([]float64, len(done))
	var ters []float64
	for i, m := range done {
		times[i] = m.EditTime
		edits[i] = float64(m.TotalEdits())
		if m.Quality != nil {
			ters = append(ters, m.Quality.TER)
		}
	}
	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	return PlotSeriesWithColor(w, "Effort by Segment", []Series{
		{Name: "Edit time (s)", Values: MovingAverage(times, window)},
		{Name: "Word edits", Values: MovingAverage(edits, window)},
		{Name: "TER", Values: MovingAverage(ters, window)},
	}, width, height, useColor)
}

// RenderSegmentTable prints one row per finalized segment. Segments in
// flagged are marked with an asterisk.
func RenderSegmentTable(w io.Writer, metrics []*model.EditMetric, flagged map[int]struct{}) error {
	done := Finalized(metrics)
	if len(done) == 0 {
		_, err := fmt.Fprintln(w, "No segment metrics found.")
		return err
	}
	if _, err := fmt.Fprintln(w, "Segments"); err != nil {
		return err
	}
	headers := []string{"Seg", "Time (s)", "Idle (s)", "Pauses", "+Words", "-Words", "BLEU", "CHRF", "TER", ""}
	rows := make([][]string, 0, len(done))
	for _, m := range done {
		bleu, chrf, ter := "-", "-", "-"
		if q := m.Quality; q != nil {
			bleu = fmt.Sprintf("%.2f", q.BLEU)
			chrf = fmt.Sprintf("%.2f", q.CHRF)
			ter = fmt.Sprintf("%.2f", q.TER)
		}
		var marks []string
		if _, ok := flagged[m.SegmentID]; ok {
			marks = append(marks, "*")
		}
		if m.NoTimeRecorded {
			marks = append(marks, "no time")
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", m.SegmentID+1),
			fmt.Sprintf("%.1f", m.EditTime),
			fmt.Sprintf("%.1f", m.IdleTime),
			fmt.Sprintf("%d", m.PauseCount),
			fmt.Sprintf("%d", m.Insertions),
			fmt.Sprintf("%d", m.Deletions),
			bleu,
			chrf,
			ter,
			strings.Join(marks, " "),
		})
	}
	rightAlign := map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true, 8: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}
