package xr

import (
	"errors"
	"fmt"
)

// Platform sentinel errors. Platform implementations wrap these so the
// session manager can classify failures with errors.Is.
var (
	// ErrNotSupported means the device or browser lacks the mode or a
	// required feature.
	ErrNotSupported = errors.New("xr: not supported")
	// ErrPermissionDenied means the user or policy refused access.
	ErrPermissionDenied = errors.New("xr: permission denied")
	// ErrSessionEnded is returned for calls on an ended session.
	ErrSessionEnded = errors.New("xr: session ended")
	// ErrInvalidState is returned for out-of-order platform calls.
	ErrInvalidState = errors.New("xr: invalid state")
)

// Category is the user-facing failure class.
type Category int

const (
	// CategoryUnsupported: the device cannot do this. Not retryable.
	CategoryUnsupported Category = iota
	// CategoryPermissionDenied: camera or sensor access refused. Retryable
	// once the user grants access.
	CategoryPermissionDenied
	// CategoryAcquisitionFailed: a reference space or hit-test source was
	// rejected. Retryable.
	CategoryAcquisitionFailed
	// CategoryEndedExternally: the platform tore the session down. Retryable
	// with a fresh enter.
	CategoryEndedExternally
)

// String returns a short identifier for logs and the journal.
func (c Category) String() string {
	switch c {
	case CategoryUnsupported:
		return "unsupported"
	case CategoryPermissionDenied:
		return "permission-denied"
	case CategoryAcquisitionFailed:
		return "acquisition-failed"
	case CategoryEndedExternally:
		return "ended-externally"
	default:
		return "unknown"
	}
}

// Retryable reports whether trying again on the same device can succeed.
func (c Category) Retryable() bool {
	return c != CategoryUnsupported
}

// Stage names the step of session acquisition that failed.
type Stage string

const (
	StageCapability    Stage = "capability"
	StageSession       Stage = "session"
	StageViewerSpace   Stage = "viewer-space"
	StageLocalSpace    Stage = "local-space"
	StageHitTestSource Stage = "hit-test-source"
	StagePresenter     Stage = "presenter"
	StageRunning       Stage = "running"
)

// Error is a categorised session failure.
type Error struct {
	Category Category
	Stage    Stage
	Err      error
}

// NewError builds an Error. err may be nil.
func NewError(c Category, stage Stage, err error) *Error {
	return &Error{Category: c, Stage: stage, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s at %s", e.Category, e.Stage)
	}
	return fmt.Sprintf("%s at %s: %v", e.Category, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the actionable sentence shown to the user.
func (e *Error) Message() string {
	switch e.Category {
	case CategoryUnsupported:
		return "This device or browser cannot run surface tracking. Try a different device."
	case CategoryPermissionDenied:
		return "Camera access was declined. Allow camera access and try again."
	case CategoryAcquisitionFailed:
		return fmt.Sprintf("Could not start surface tracking (%s). Please try again.", e.Stage)
	case CategoryEndedExternally:
		return "The tracking session ended unexpectedly. Tap Enter to try again."
	default:
		return "Surface tracking failed."
	}
}

// Classify maps a platform error raised at stage onto a category.
//
// Priority: permission refusal is the most specific signal, then missing
// capability; anything else at an acquisition step is an acquisition
// failure, and an ended session mid-acquisition counts as external teardown.
func Classify(stage Stage, err error) *Error {
	var xe *Error
	if errors.As(err, &xe) {
		return xe
	}
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return NewError(CategoryPermissionDenied, stage, err)
	case errors.Is(err, ErrNotSupported):
		if stage == StageCapability || stage == StageSession {
			return NewError(CategoryUnsupported, stage, err)
		}
		return NewError(CategoryAcquisitionFailed, stage, err)
	case errors.Is(err, ErrSessionEnded):
		return NewError(CategoryEndedExternally, stage, err)
	default:
		return NewError(CategoryAcquisitionFailed, stage, err)
	}
}

// CategoryOf extracts the category from err, if it carries one.
func CategoryOf(err error) (Category, bool) {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Category, true
	}
	return 0, false
}
