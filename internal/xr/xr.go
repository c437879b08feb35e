// Package xr defines the immersive tracking platform the placement core runs
// against: session request, reference spaces, hit-test sources and frames.
//
// The interfaces follow the platform's own call sequence. Implementations
// must make RequestSession, RequestReferenceSpace and RequestHitTestSource
// honour ctx cancellation, and must invoke OnEnd observers exactly once per
// session regardless of which party ended it.
package xr

import (
	"context"
	"time"

	"github.com/banshee-data/anchorpoint/internal/spatial"
	"github.com/gogpu/gpucontext"
)

// Mode is the kind of session requested.
type Mode string

// ModeImmersiveAR is a camera passthrough session with world tracking.
const ModeImmersiveAR Mode = "immersive-ar"

// Feature is a session capability that can be required or optional.
type Feature string

const (
	// FeatureLocal is world-locked reference space tracking.
	FeatureLocal Feature = "local"
	// FeatureHitTest is environment ray hit-testing.
	FeatureHitTest Feature = "hit-test"
	// FeatureDOMOverlay lets 2D UI float over the camera view.
	FeatureDOMOverlay Feature = "dom-overlay"
)

// ReferenceSpaceType selects the coordinate space a platform hands out.
type ReferenceSpaceType string

const (
	// ReferenceSpaceViewer tracks the camera. Used only as a ray origin.
	ReferenceSpaceViewer ReferenceSpaceType = "viewer"
	// ReferenceSpaceLocal is fixed relative to the physical environment.
	ReferenceSpaceLocal ReferenceSpaceType = "local"
)

// SessionInit is the request sent to Platform.RequestSession.
type SessionInit struct {
	Mode             Mode
	RequiredFeatures []Feature
	OptionalFeatures []Feature

	// Device is the graphics device the renderer already owns. When set the
	// platform must present through it rather than creating its own.
	Device gpucontext.DeviceProvider
}

// Platform is the host's session entry point.
type Platform interface {
	// IsSessionSupported answers whether a session of mode could be granted.
	IsSessionSupported(ctx context.Context, mode Mode) (bool, error)

	// RequestSession asks the user and the device for a session. It may block
	// on a permission prompt.
	RequestSession(ctx context.Context, init SessionInit) (Session, error)
}

// Session is a live immersive session.
type Session interface {
	// EnabledFeatures lists the features the platform actually granted.
	EnabledFeatures() []Feature

	RequestReferenceSpace(ctx context.Context, kind ReferenceSpaceType) (ReferenceSpace, error)

	RequestHitTestSource(ctx context.Context, opts HitTestOptions) (HitTestSource, error)

	// OnEnd registers an observer fired once when the session ends for any
	// reason, including End.
	OnEnd(fn func())

	// End asks the platform to end the session. Observers fire from the
	// platform, possibly asynchronously. Ending an ended session returns
	// ErrSessionEnded.
	End() error
}

// ReferenceSpace is a coordinate space handed out by a session.
type ReferenceSpace interface {
	Type() ReferenceSpaceType
	// Release returns the space to the platform. Idempotent.
	Release()
}

// HitTestOptions configures a hit-test source.
type HitTestOptions struct {
	// Space is the ray origin. The ray follows the space's live pose.
	Space ReferenceSpace
}

// HitTestSource is a standing hit-test query.
type HitTestSource interface {
	// Cancel stops the query. Idempotent.
	Cancel()
}

// Frame is one presented frame.
type Frame interface {
	// Time is the frame's predicted display time since session start.
	Time() time.Duration

	// HitTestResults returns the intersections for src this frame, nearest
	// first. The slice is owned by the frame and valid only during it.
	HitTestResults(src HitTestSource) []HitTestResult
}

// HitTestResult is a single surface intersection.
type HitTestResult interface {
	// Pose resolves the intersection relative to base. ok is false when the
	// platform cannot relate the two spaces this frame.
	Pose(base ReferenceSpace) (pose spatial.Pose, ok bool)
}

// HasFeature reports whether f appears in granted.
func HasFeature(granted []Feature, f Feature) bool {
	for _, g := range granted {
		if g == f {
			return true
		}
	}
	return false
}
