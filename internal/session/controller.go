// Package session binds timing and metric computation to the segments of one
// editing session.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/mtpe/internal/editdist"
	"github.com/verte-zerg/mtpe/internal/model"
	"github.com/verte-zerg/mtpe/internal/quality"
	"github.com/verte-zerg/mtpe/internal/segments"
	"github.com/verte-zerg/mtpe/internal/tracker"
)

// Persister receives checkpoints and finalized metrics.
type Persister interface {
	SaveCheckpoint(ctx context.Context, sessionID string, cp model.Checkpoint) error
	SaveMetric(ctx context.Context, sessionID string, metric model.EditMetric, timing model.TimingRecord, next int) error
	FinishSession(ctx context.Context, sessionID string, at time.Time) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.log = logger
		}
	}
}

// WithPersister sets where checkpoints and metrics are written.
func WithPersister(p Persister) Option {
	return func(c *Controller) { c.persist = p }
}

// WithTrackerOptions sets thresholds and the clock used for timing.
func WithTrackerOptions(opts tracker.Options) Option {
	return func(c *Controller) { c.trackerOpts = opts }
}

// WithOperator records who is editing.
func WithOperator(name string) Option {
	return func(c *Controller) { c.operator = name }
}

// WithDocument supplies freshly loaded segments to check against a resumed session.
func WithDocument(segs []model.Segment) Option {
	return func(c *Controller) { c.document = segs }
}

// Controller owns the metrics of one session. It is not safe for concurrent use.
type Controller struct {
	id          string
	operator    string
	mode        model.Mode
	fingerprint string
	segments    []model.Segment
	metrics     []*model.EditMetric
	timings     []*model.TimingRecord
	active      int
	tracker     tracker.Tracker
	createdAt   time.Time
	finishedAt  *time.Time

	trackerOpts tracker.Options
	persist     Persister
	log         *slog.Logger
	document    []model.Segment
}

func newController(mode model.Mode, opts []Option) (*Controller, error) {
	if _, err := model.ParseMode(string(mode)); err != nil {
		return nil, err
	}
	c := &Controller{
		mode:        mode,
		active:      -1,
		trackerOpts: tracker.DefaultOptions(),
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.trackerOpts.Clock == nil {
		c.trackerOpts.Clock = tracker.SystemClock()
	}
	return c, nil
}

// New starts a session over segs and activates the first segment.
func New(segs []model.Segment, mode model.Mode, opts ...Option) (*Controller, error) {
	if len(segs) == 0 {
		return nil, fmt.Errorf("session needs at least one segment")
	}
	c, err := newController(mode, opts)
	if err != nil {
		return nil, err
	}
	c.id = uuid.NewString()
	c.segments = append([]model.Segment(nil), segs...)
	c.fingerprint = segments.Fingerprint(c.segments)
	c.metrics = make([]*model.EditMetric, len(segs))
	c.timings = make([]*model.TimingRecord, len(segs))
	c.createdAt = c.now()
	c.log.Info("session created", "session", c.id, "mode", c.mode, "segments", len(segs))
	if err := c.activate(0); err != nil {
		return nil, err
	}
	return c, nil
}

// Resume rebuilds a controller from persisted state. A segment whose timing
// was checkpointed but never finalized is reopened; otherwise the first
// segment without a metric becomes active.
func Resume(state model.SessionState, mode model.Mode, opts ...Option) (*Controller, error) {
	if state.Mode != mode {
		return nil, &ModeMismatchError{Persisted: state.Mode, Requested: mode}
	}
	if state.FinishedAt != nil {
		return nil, fmt.Errorf("resume %s: %w", state.ID, ErrFinished)
	}
	if len(state.Segments) == 0 {
		return nil, fmt.Errorf("resume %s: session has no segments", state.ID)
	}
	c, err := newController(mode, opts)
	if err != nil {
		return nil, err
	}
	if c.document != nil && segments.Fingerprint(c.document) != state.Fingerprint {
		return nil, fmt.Errorf("resume %s: %w", state.ID, ErrDocumentMismatch)
	}
	n := len(state.Segments)
	c.id = state.ID
	c.operator = state.Operator
	c.fingerprint = state.Fingerprint
	c.createdAt = state.CreatedAt
	c.segments = append([]model.Segment(nil), state.Segments...)
	c.metrics = make([]*model.EditMetric, n)
	c.timings = make([]*model.TimingRecord, n)
	for i := 0; i < n && i < len(state.Metrics); i++ {
		c.metrics[i] = state.Metrics[i]
	}
	for i := 0; i < n && i < len(state.Timings); i++ {
		if rec := state.Timings[i]; rec != nil {
			folded := c.foldPending(*rec)
			c.timings[i] = &folded
		}
	}
	next := c.resumeTarget()
	c.log.Info("session resumed", "session", c.id, "mode", c.mode, "next", next)
	if next < n {
		if err := c.activate(next); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// resumeTarget returns the segment that was open when the session stopped.
func (c *Controller) resumeTarget() int {
	for i, rec := range c.timings {
		if rec != nil && rec.CompletedAt.IsZero() {
			return i
		}
	}
	return c.NextSegment()
}

// foldPending attributes a checkpointed open gap the way the tracker would have.
func (c *Controller) foldPending(rec model.TimingRecord) model.TimingRecord {
	if rec.PendingMs <= 0 {
		return rec
	}
	gap := time.Duration(rec.PendingMs) * time.Millisecond
	threshold := c.trackerOpts.IdleThreshold
	if threshold <= 0 {
		threshold = tracker.DefaultIdleThreshold
	}
	if c.trackerOpts.IdleDetection && gap >= threshold {
		rec.IdleMs += rec.PendingMs
	} else {
		rec.ActiveMs += rec.PendingMs
	}
	rec.PendingMs = 0
	return rec
}

func (c *Controller) now() time.Time {
	return c.trackerOpts.Clock.Now()
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// Mode returns the fixed timing mode.
func (c *Controller) Mode() model.Mode { return c.mode }

// Operator returns the operator name.
func (c *Controller) Operator() string { return c.operator }

// Len returns the number of segments.
func (c *Controller) Len() int { return len(c.segments) }

// Active returns the active segment index, or -1.
func (c *Controller) Active() int { return c.active }

// Segment returns a copy of segment i.
func (c *Controller) Segment(i int) model.Segment { return c.segments[i] }

// Finished reports whether Finish has been called.
func (c *Controller) Finished() bool { return c.finishedAt != nil }

// TrackerState returns the state of the active tracker.
func (c *Controller) TrackerState() tracker.State {
	if c.tracker == nil {
		return tracker.Stopped
	}
	return c.tracker.State()
}

// CanEdit reports whether edits to the active segment would be accepted.
func (c *Controller) CanEdit() bool {
	return c.tracker != nil && c.tracker.State() == tracker.Running
}

// Activate makes segment idx active, finalizing the previously active one.
// When the finalized metric cannot be saved, idx is still activated and the
// save error is returned.
func (c *Controller) Activate(ctx context.Context, idx int) error {
	if c.finishedAt != nil {
		return ErrFinished
	}
	if idx < 0 || idx >= len(c.segments) {
		return fmt.Errorf("segment %d out of range [0,%d)", idx, len(c.segments))
	}
	if idx == c.active {
		return nil
	}
	var saveErr error
	if c.active >= 0 {
		metric, err := c.Deactivate(ctx)
		if metric == nil && err != nil {
			return err
		}
		saveErr = err
	}
	if err := c.activate(idx); err != nil {
		return err
	}
	return saveErr
}

func (c *Controller) activate(idx int) error {
	base := model.TimingRecord{SegmentID: idx}
	if prev := c.timings[idx]; prev != nil {
		base = *prev
	}
	tr, err := tracker.New(c.mode, base, c.trackerOpts)
	if err != nil {
		return err
	}
	if c.mode == model.ModeCurrent {
		if err := tr.Start(); err != nil {
			return err
		}
	}
	c.tracker = tr
	c.active = idx
	rec := tr.Snapshot()
	c.timings[idx] = &rec
	c.log.Debug("segment activated", "session", c.id, "segment", idx, "state", tr.State())
	return nil
}

// Deactivate stops the active tracker and finalizes its metric. The metric
// replaces any earlier one for the same segment. A persistence failure is
// returned alongside the metric, which is kept in memory either way.
func (c *Controller) Deactivate(ctx context.Context) (*model.EditMetric, error) {
	if c.active < 0 || c.tracker == nil {
		return nil, ErrNoActiveSegment
	}
	idx := c.active
	rec, err := c.tracker.Stop()
	if err != nil {
		return nil, err
	}
	c.timings[idx] = &rec
	metric := c.computeMetric(c.segments[idx], rec)
	c.metrics[idx] = metric
	c.active = -1
	c.tracker = nil
	c.log.Info("segment finalized",
		"session", c.id,
		"segment", idx,
		"active_ms", rec.ActiveMs,
		"idle_ms", rec.IdleMs,
		"insertions", metric.Insertions,
		"deletions", metric.Deletions,
	)
	if c.persist != nil {
		if err := c.persist.SaveMetric(ctx, c.id, *metric, rec, c.NextSegment()); err != nil {
			return metric, fmt.Errorf("save metric for segment %d: %w", idx, err)
		}
	}
	return metric, nil
}

func (c *Controller) computeMetric(seg model.Segment, rec model.TimingRecord) *model.EditMetric {
	words := editdist.Compute(seg.MT, seg.Current, editdist.Words)
	chars := editdist.Compute(seg.MT, seg.Current, editdist.Chars)
	metric := &model.EditMetric{
		SegmentID:      seg.ID,
		Source:         seg.Source,
		MT:             seg.MT,
		Edited:         seg.Current,
		EditTime:       float64(rec.ActiveMs) / 1000,
		IdleTime:       float64(rec.IdleMs) / 1000,
		PauseCount:     rec.PauseCount,
		Insertions:     words.Insertions,
		Deletions:      words.Deletions,
		CharInsertions: chars.Insertions,
		CharDeletions:  chars.Deletions,
		ComputedAt:     c.now(),
	}
	scores, err := quality.Score(seg.Current, seg.MT)
	if err != nil {
		c.log.Warn("quality scoring failed, storing partial metric", "session", c.id, "segment", seg.ID, "err", err)
	} else {
		metric.Quality = &scores
	}
	if seg.Modified() && rec.ActiveMs == 0 {
		metric.NoTimeRecorded = true
		c.log.Warn("text changed but no editing time recorded", "session", c.id, "segment", seg.ID, "mode", c.mode)
	}
	return metric
}

// Navigate moves delta segments from the active one, clamped to the document.
func (c *Controller) Navigate(ctx context.Context, delta int) error {
	from := c.active
	if from < 0 {
		from = min(c.NextSegment(), len(c.segments)-1)
		if delta == 0 {
			return c.Activate(ctx, from)
		}
	}
	target := min(max(from+delta, 0), len(c.segments)-1)
	return c.Activate(ctx, target)
}

// Edit replaces the active segment's text and records activity. A rejected
// edit leaves the text unchanged.
func (c *Controller) Edit(text string) error {
	if c.tracker == nil {
		return ErrNoActiveSegment
	}
	if err := c.tracker.Activity(); err != nil {
		return err
	}
	c.segments[c.active].Current = text
	return nil
}

// Start starts a PET timer; CURRENT timers start on activation.
func (c *Controller) Start() error {
	if c.tracker == nil {
		return ErrNoActiveSegment
	}
	return c.tracker.Start()
}

// Pause pauses the active PET timer.
func (c *Controller) Pause() error {
	p, err := c.pauser("pause")
	if err != nil {
		return err
	}
	return p.Pause()
}

// ResumeTimer resumes the active PET timer.
func (c *Controller) ResumeTimer() error {
	p, err := c.pauser("resume")
	if err != nil {
		return err
	}
	return p.Resume()
}

func (c *Controller) pauser(op string) (tracker.Pauser, error) {
	if c.tracker == nil {
		return nil, ErrNoActiveSegment
	}
	p, ok := c.tracker.(tracker.Pauser)
	if !ok {
		return nil, &tracker.TransitionError{Op: op, State: c.tracker.State(), Mode: c.mode}
	}
	return p, nil
}

// Toggle starts, pauses or resumes the PET timer depending on its state.
func (c *Controller) Toggle() error {
	switch c.TrackerState() {
	case tracker.IdleBeforeStart:
		return c.Start()
	case tracker.Running:
		return c.Pause()
	case tracker.Paused:
		return c.ResumeTimer()
	default:
		return ErrNoActiveSegment
	}
}

// Tick samples the active tracker and checkpoints it.
func (c *Controller) Tick(ctx context.Context) (model.TimingRecord, error) {
	if c.tracker == nil {
		return model.TimingRecord{}, nil
	}
	rec := c.tracker.Tick()
	if c.persist == nil {
		return rec, nil
	}
	cp := model.Checkpoint{SegmentID: c.active, Current: c.segments[c.active].Current, Timing: rec}
	if err := c.persist.SaveCheckpoint(ctx, c.id, cp); err != nil {
		return rec, fmt.Errorf("checkpoint segment %d: %w", c.active, err)
	}
	return rec, nil
}

// Suspend checkpoints the active segment without finalizing it, so the
// session can be resumed at the same place.
func (c *Controller) Suspend(ctx context.Context) error {
	if _, err := c.Tick(ctx); err != nil {
		return err
	}
	c.log.Info("session suspended", "session", c.id, "segment", c.active)
	return nil
}

// Finish finalizes the active segment and closes the session.
func (c *Controller) Finish(ctx context.Context) error {
	if c.finishedAt != nil {
		return ErrFinished
	}
	var saveErr error
	if c.active >= 0 {
		if _, err := c.Deactivate(ctx); err != nil {
			saveErr = err
		}
	}
	at := c.now()
	c.finishedAt = &at
	agg := c.Aggregate()
	c.log.Info("session finished",
		"session", c.id,
		"completed", agg.SegmentsCompleted,
		"active_ms", agg.ActiveMs,
	)
	if c.persist != nil {
		if err := c.persist.FinishSession(ctx, c.id, at); err != nil {
			return fmt.Errorf("finish session: %w", err)
		}
	}
	return saveErr
}

// NextSegment returns the first segment without a metric, or Len() when all are done.
func (c *Controller) NextSegment() int {
	for i, m := range c.metrics {
		if m == nil {
			return i
		}
	}
	return len(c.metrics)
}

// Metrics returns the metric slots; unfinalized segments are nil.
func (c *Controller) Metrics() []*model.EditMetric {
	return append([]*model.EditMetric(nil), c.metrics...)
}

// Metric returns the metric for segment i, or nil.
func (c *Controller) Metric(i int) *model.EditMetric { return c.metrics[i] }

// Elapsed returns the running timing record of the active segment with the
// open gap attributed to active or idle time as it would be if the gap
// closed now.
func (c *Controller) Elapsed() model.TimingRecord {
	if c.tracker == nil {
		return model.TimingRecord{}
	}
	return c.foldPending(c.tracker.Tick())
}

// Aggregate derives session totals from the finalized metrics.
func (c *Controller) Aggregate() model.Aggregate {
	return Summarize(c.metrics)
}

// Summarize derives totals from a metric sequence.
func Summarize(metrics []*model.EditMetric) model.Aggregate {
	agg := model.Aggregate{SegmentsTotal: len(metrics)}
	for _, m := range metrics {
		if m == nil {
			continue
		}
		agg.SegmentsCompleted++
		if m.Modified() {
			agg.SegmentsModified++
		}
		agg.ActiveMs += int64(math.Round(m.EditTime * 1000))
		agg.IdleMs += int64(math.Round(m.IdleTime * 1000))
		agg.Insertions += m.Insertions
		agg.Deletions += m.Deletions
	}
	return agg
}

// State returns the resumable shape of the session.
func (c *Controller) State() model.SessionState {
	state := model.SessionState{
		ID:          c.id,
		Operator:    c.operator,
		Mode:        c.mode,
		Fingerprint: c.fingerprint,
		Segments:    append([]model.Segment(nil), c.segments...),
		Metrics:     c.Metrics(),
		Timings:     make([]*model.TimingRecord, len(c.timings)),
		NextSegment: c.NextSegment(),
		CreatedAt:   c.createdAt,
		UpdatedAt:   c.now(),
		FinishedAt:  c.finishedAt,
	}
	for i, rec := range c.timings {
		if rec == nil {
			continue
		}
		cp := *rec
		if i == c.active && c.tracker != nil {
			cp = c.tracker.Tick()
		}
		state.Timings[i] = &cp
	}
	return state
}
