package session

import (
	"errors"
	"fmt"

	"github.com/verte-zerg/mtpe/internal/model"
)

var (
	// ErrModeMismatchOnResume is returned when a session is resumed under a different timing mode.
	ErrModeMismatchOnResume = errors.New("timing mode does not match persisted session")
	// ErrDocumentMismatch is returned when resumed files differ from the persisted session.
	ErrDocumentMismatch = errors.New("document does not match persisted session")
	// ErrNoActiveSegment is returned for timer operations with no segment active.
	ErrNoActiveSegment = errors.New("no active segment")
	// ErrFinished is returned for operations on a finished session.
	ErrFinished = errors.New("session is finished")
)

// ModeMismatchError carries both modes of a rejected resume.
type ModeMismatchError struct {
	Persisted model.Mode
	Requested model.Mode
}

func (e *ModeMismatchError) Error() string {
	return fmt.Sprintf("%s: session was recorded in %s mode, requested %s", ErrModeMismatchOnResume, e.Persisted, e.Requested)
}

func (e *ModeMismatchError) Unwrap() error {
	return ErrModeMismatchOnResume
}
