// Package tracker measures active editing time for a single segment.
package tracker

import (
	"fmt"
	"time"

	"github.com/verte-zerg/mtpe/internal/model"
)

const (
	// DefaultIdleThreshold is the silence after which a gap counts as idle.
	DefaultIdleThreshold = 30 * time.Second
	// DefaultMinDwell is how long a PET segment must be visible before starting.
	DefaultMinDwell = 2 * time.Second
	// DefaultTickInterval is the checkpoint sampling period.
	DefaultTickInterval = 200 * time.Millisecond
)

// State is the lifecycle position of a tracker.
type State int

const (
	IdleBeforeStart State = iota
	Running
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case IdleBeforeStart:
		return "idle-before-start"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// Options tunes tracker behavior.
type Options struct {
	IdleThreshold time.Duration
	MinDwell      time.Duration
	IdleDetection bool
	Clock         Clock
}

// DefaultOptions returns the standard thresholds with idle detection enabled.
func DefaultOptions() Options {
	return Options{
		IdleThreshold: DefaultIdleThreshold,
		MinDwell:      DefaultMinDwell,
		IdleDetection: true,
		Clock:         SystemClock(),
	}
}

func (o Options) withDefaults() Options {
	if o.IdleThreshold <= 0 {
		o.IdleThreshold = DefaultIdleThreshold
	}
	if o.MinDwell < 0 {
		o.MinDwell = 0
	}
	if o.Clock == nil {
		o.Clock = SystemClock()
	}
	return o
}

// Tracker is the behavior shared by both timing disciplines.
type Tracker interface {
	Mode() model.Mode
	State() State
	// Start moves the tracker into Running.
	Start() error
	// Activity records an edit or keystroke.
	Activity() error
	// Tick samples the clock and returns a checkpoint record.
	Tick() model.TimingRecord
	// Stop finalizes the tracker; it is terminal.
	Stop() (model.TimingRecord, error)
	// Snapshot returns the committed accumulators without sampling the clock.
	Snapshot() model.TimingRecord
}

// Pauser is implemented by trackers with operator-controlled pauses.
type Pauser interface {
	Pause() error
	Resume() error
}

// New creates a tracker for mode. base carries accumulators from earlier
// visits to the same segment and is extended, never reset.
func New(mode model.Mode, base model.TimingRecord, opts Options) (Tracker, error) {
	opts = opts.withDefaults()
	base.Mode = mode
	base.PendingMs = 0
	base.CompletedAt = time.Time{}
	switch mode {
	case model.ModeCurrent:
		return &currentTracker{opts: opts, rec: base}, nil
	case model.ModePET:
		base.IdleMs = 0
		return &petTracker{opts: opts, rec: base, viewedAt: opts.Clock.Now()}, nil
	default:
		return nil, fmt.Errorf("unknown timing mode %q", mode)
	}
}

func millis(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

// currentTracker runs automatically and classifies gaps between activity.
type currentTracker struct {
	opts         Options
	rec          model.TimingRecord
	state        State
	lastActivity time.Time
}

func (t *currentTracker) Mode() model.Mode { return model.ModeCurrent }

func (t *currentTracker) State() State { return t.state }

func (t *currentTracker) reject(op string) error {
	return &TransitionError{Op: op, State: t.state, Mode: model.ModeCurrent}
}

func (t *currentTracker) Start() error {
	if t.state != IdleBeforeStart {
		return t.reject("start")
	}
	now := t.opts.Clock.Now()
	t.state = Running
	t.lastActivity = now
	if t.rec.StartedAt.IsZero() {
		t.rec.StartedAt = now
	}
	return nil
}

func (t *currentTracker) Activity() error {
	if t.state != Running {
		return t.reject("edit")
	}
	t.closeGap(t.opts.Clock.Now())
	return nil
}

// closeGap attributes the whole interval since the last activity to one bucket.
// lastActivity advances only by the whole milliseconds credited, so the
// sub-millisecond remainder carries into the next gap.
func (t *currentTracker) closeGap(now time.Time) {
	gap := now.Sub(t.lastActivity)
	if gap <= 0 {
		return
	}
	ms := millis(gap)
	if t.opts.IdleDetection && gap >= t.opts.IdleThreshold {
		t.rec.IdleMs += ms
	} else {
		t.rec.ActiveMs += ms
	}
	t.lastActivity = t.lastActivity.Add(time.Duration(ms) * time.Millisecond)
}

func (t *currentTracker) Tick() model.TimingRecord {
	rec := t.rec
	if t.state == Running {
		rec.PendingMs = millis(t.opts.Clock.Now().Sub(t.lastActivity))
	}
	return rec
}

func (t *currentTracker) Stop() (model.TimingRecord, error) {
	if t.state == Stopped {
		return t.rec, t.reject("stop")
	}
	now := t.opts.Clock.Now()
	if t.state == Running {
		t.closeGap(now)
	}
	t.state = Stopped
	t.rec.CompletedAt = now
	return t.rec, nil
}

func (t *currentTracker) Snapshot() model.TimingRecord { return t.rec }

// petTracker is gated by explicit operator start, pause and resume.
type petTracker struct {
	opts     Options
	rec      model.TimingRecord
	state    State
	viewedAt time.Time
	runStart time.Time
	// carry is the sub-millisecond remainder of earlier runs.
	carry time.Duration
}

func (t *petTracker) Mode() model.Mode { return model.ModePET }

func (t *petTracker) State() State { return t.state }

func (t *petTracker) reject(op string) error {
	return &TransitionError{Op: op, State: t.state, Mode: model.ModePET}
}

func (t *petTracker) Start() error {
	if t.state != IdleBeforeStart {
		return t.reject("start")
	}
	now := t.opts.Clock.Now()
	if waited := now.Sub(t.viewedAt); waited < t.opts.MinDwell {
		return &DwellError{Remaining: t.opts.MinDwell - waited}
	}
	t.state = Running
	t.runStart = now
	if t.rec.StartedAt.IsZero() {
		t.rec.StartedAt = now
	}
	return nil
}

func (t *petTracker) Activity() error {
	if t.state != Running {
		return t.reject("edit")
	}
	return nil
}

func (t *petTracker) Pause() error {
	if t.state != Running {
		return t.reject("pause")
	}
	t.closeRun(t.opts.Clock.Now())
	t.state = Paused
	return nil
}

func (t *petTracker) runLength(now time.Time) time.Duration {
	d := now.Sub(t.runStart)
	if d < 0 {
		d = 0
	}
	return d + t.carry
}

func (t *petTracker) closeRun(now time.Time) {
	d := t.runLength(now)
	ms := millis(d)
	t.rec.ActiveMs += ms
	t.carry = d - time.Duration(ms)*time.Millisecond
}

func (t *petTracker) Resume() error {
	if t.state != Paused {
		return t.reject("resume")
	}
	t.runStart = t.opts.Clock.Now()
	t.rec.PauseCount++
	t.state = Running
	return nil
}

func (t *petTracker) Tick() model.TimingRecord {
	rec := t.rec
	if t.state == Running {
		rec.ActiveMs += millis(t.runLength(t.opts.Clock.Now()))
	}
	return rec
}

func (t *petTracker) Stop() (model.TimingRecord, error) {
	if t.state == Stopped {
		return t.rec, t.reject("stop")
	}
	now := t.opts.Clock.Now()
	if t.state == Running {
		t.closeRun(now)
	}
	t.state = Stopped
	t.rec.CompletedAt = now
	return t.rec, nil
}

func (t *petTracker) Snapshot() model.TimingRecord { return t.rec }
