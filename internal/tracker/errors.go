package tracker

import (
	"errors"
	"fmt"
	"time"

	"github.com/verte-zerg/mtpe/internal/model"
)

var (
	// ErrTooEarlyToStart is returned when a PET timer is started before the minimum dwell.
	ErrTooEarlyToStart = errors.New("too early to start timer")
	// ErrIllegalTransition is returned for any out-of-order state request.
	ErrIllegalTransition = errors.New("illegal timer transition")
)

// DwellError reports how much longer the operator must wait before starting.
type DwellError struct {
	Remaining time.Duration
}

func (e *DwellError) Error() string {
	return fmt.Sprintf("%s: wait %s", ErrTooEarlyToStart, e.Remaining.Round(time.Millisecond))
}

func (e *DwellError) Unwrap() error {
	return ErrTooEarlyToStart
}

// TransitionError describes a rejected operation.
type TransitionError struct {
	Op    string
	State State
	Mode  model.Mode
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s while %s (%s mode)", ErrIllegalTransition, e.Op, e.State, e.Mode)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}
