package session

import (
	"time"

	"github.com/banshee-data/anchorpoint/internal/xr"
)

// Reason says why a session ended.
type Reason int

const (
	// ReasonExited: the app asked to end an active session.
	ReasonExited Reason = iota
	// ReasonFailed: acquisition failed; Err carries the category.
	ReasonFailed
	// ReasonEndedExternally: the platform ended the session on its own.
	ReasonEndedExternally
	// ReasonCanceled: End or the Start context interrupted acquisition.
	ReasonCanceled
)

func (r Reason) String() string {
	switch r {
	case ReasonExited:
		return "exited"
	case ReasonFailed:
		return "failed"
	case ReasonEndedExternally:
		return "ended-externally"
	case ReasonCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Report is emitted exactly once per session attempt when it is torn down.
type Report struct {
	SessionID string
	Reason    Reason
	// Err is set for ReasonFailed and ReasonEndedExternally.
	Err *xr.Error
	// WasActive is true when acquisition had completed.
	WasActive bool
	StartedAt time.Time
	EndedAt   time.Time
}

// Message returns the user-facing text for the report, empty for endings
// the user asked for.
func (r Report) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Message()
}

// endRequest records why teardown is about to happen, set before asking the
// platform to end so the observer knows the ending was ours.
type endRequest struct {
	reason Reason
	err    *xr.Error
}
