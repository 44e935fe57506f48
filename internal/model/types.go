// Package model defines shared data structures.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects the timing discipline for a whole session.
type Mode string

const (
	// ModeCurrent times automatically and detects idle gaps.
	ModeCurrent Mode = "current"
	// ModePET requires the operator to start and pause the timer.
	ModePET Mode = "pet"
)

// ParseMode converts user input into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCurrent:
		return ModeCurrent, nil
	case ModePET:
		return ModePET, nil
	default:
		return "", fmt.Errorf("unknown timing mode %q (want %q or %q)", s, ModeCurrent, ModePET)
	}
}

// Config defines editing session settings.
type Config struct {
	Mode          Mode
	Operator      string
	IdleThreshold time.Duration
	MinDwell      time.Duration
	TickInterval  time.Duration
	IdleDetection bool
	ContextLines  int
}

// Segment is one source/MT sentence pair under edit.
type Segment struct {
	ID      int    `json:"id" yaml:"id"`
	Source  string `json:"source" yaml:"source"`
	MT      string `json:"mt" yaml:"mt"`
	Current string `json:"current" yaml:"current"`
}

// Modified reports whether the operator changed the MT output.
func (s Segment) Modified() bool {
	return s.Current != s.MT
}

// TimingRecord holds the accumulated time for one segment in one session.
type TimingRecord struct {
	SegmentID   int
	Mode        Mode
	ActiveMs    int64
	IdleMs      int64
	PendingMs   int64
	PauseCount  int
	StartedAt   time.Time
	CompletedAt time.Time
}

// RunningMs is the total time the tracker spent running.
func (r TimingRecord) RunningMs() int64 {
	return r.ActiveMs + r.IdleMs + r.PendingMs
}

// QualityScores are automatic quality proxies between MT and edited text.
type QualityScores struct {
	BLEU       float64 `json:"bleu" yaml:"bleu"`
	CHRF       float64 `json:"chrf" yaml:"chrf"`
	TER        float64 `json:"ter" yaml:"ter"`
	Degenerate bool    `json:"-" yaml:"-"`
}

// EditMetric is the finalized measurement for one segment.
type EditMetric struct {
	SegmentID      int
	Source         string
	MT             string
	Edited         string
	EditTime       float64
	IdleTime       float64
	PauseCount     int
	Insertions     int
	Deletions      int
	CharInsertions int
	CharDeletions  int
	Quality        *QualityScores
	NoTimeRecorded bool
	ComputedAt     time.Time
}

// Modified reports whether the metric reflects a changed segment.
func (m EditMetric) Modified() bool {
	return m.MT != m.Edited
}

// TotalEdits sums word-level insertions and deletions.
func (m EditMetric) TotalEdits() int {
	return m.Insertions + m.Deletions
}

// Checkpoint is the in-flight state of the active segment.
type Checkpoint struct {
	SegmentID int
	Current   string
	Timing    TimingRecord
}

// SessionState is the resumable shape of an editing session.
type SessionState struct {
	ID          string
	Operator    string
	Mode        Mode
	Fingerprint string
	Segments    []Segment
	Metrics     []*EditMetric
	Timings     []*TimingRecord
	NextSegment int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	FinishedAt  *time.Time
}

// Aggregate summarizes a session; it is always derived, never stored.
type Aggregate struct {
	SegmentsTotal     int
	SegmentsCompleted int
	SegmentsModified  int
	ActiveMs          int64
	IdleMs            int64
	Insertions        int
	Deletions         int
}

// SessionSummary is a stored session row for listings.
type SessionSummary struct {
	ID           string
	Operator     string
	Mode         Mode
	SegmentCount int
	Completed    int
	ActiveMs     int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FinishedAt   *time.Time
}

// ReportConfig defines filters and options for report output.
type ReportConfig struct {
	SessionID   string
	Operator    string
	CurveWindow int
	Top         int
}
