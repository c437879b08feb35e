package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/anchorpoint/internal/spatial"
	"github.com/banshee-data/anchorpoint/internal/xr"
)

// Session is a simulated xr.Session.
type Session struct {
	platform *Platform
	id       int
	granted  []xr.Feature
	device   bool

	mu        sync.Mutex
	ended     bool
	observers []func()
	viewer    spatial.Pose
	local     spatial.Pose
	planes    []spatial.Plane
	elapsed   time.Duration
}

var _ xr.Session = (*Session)(nil)

// ID is the platform-local session number.
func (s *Session) ID() int { return s.id }

// SharedDevice reports whether the session presents through the caller's
// graphics device.
func (s *Session) SharedDevice() bool { return s.device }

// EnabledFeatures implements xr.Session.
func (s *Session) EnabledFeatures() []xr.Feature {
	return append([]xr.Feature(nil), s.granted...)
}

// Ended reports whether the session is over.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// RequestReferenceSpace implements xr.Session.
func (s *Session) RequestReferenceSpace(ctx context.Context, kind xr.ReferenceSpaceType) (xr.ReferenceSpace, error) {
	stage := xr.StageLocalSpace
	if kind == xr.ReferenceSpaceViewer {
		stage = xr.StageViewerSpace
	}
	if err := s.platform.wait(ctx, stage); err != nil {
		return nil, err
	}
	if s.Ended() {
		return nil, xr.ErrSessionEnded
	}
	if err := s.platform.failure(stage); err != nil {
		return nil, err
	}
	if kind == xr.ReferenceSpaceLocal && !xr.HasFeature(s.granted, xr.FeatureLocal) {
		return nil, fmt.Errorf("sim: local space without feature: %w", xr.ErrNotSupported)
	}
	if kind != xr.ReferenceSpaceLocal && kind != xr.ReferenceSpaceViewer {
		return nil, fmt.Errorf("sim: space %q: %w", kind, xr.ErrNotSupported)
	}
	s.platform.count(func(c *Counters) { c.SpacesAcquired++ })
	return &Space{session: s, kind: kind}, nil
}

// RequestHitTestSource implements xr.Session.
func (s *Session) RequestHitTestSource(ctx context.Context, opts xr.HitTestOptions) (xr.HitTestSource, error) {
	if err := s.platform.wait(ctx, xr.StageHitTestSource); err != nil {
		return nil, err
	}
	if s.Ended() {
		return nil, xr.ErrSessionEnded
	}
	if err := s.platform.failure(xr.StageHitTestSource); err != nil {
		return nil, err
	}
	if !xr.HasFeature(s.granted, xr.FeatureHitTest) {
		return nil, fmt.Errorf("sim: hit-test not granted: %w", xr.ErrNotSupported)
	}
	space, ok := opts.Space.(*Space)
	if !ok || space.session != s || space.isReleased() {
		return nil, fmt.Errorf("sim: hit-test source needs a live space from this session: %w", xr.ErrInvalidState)
	}
	s.platform.count(func(c *Counters) { c.HitSourcesAcquired++ })
	return &HitTestSource{session: s, space: space}, nil
}

// OnEnd implements xr.Session.
func (s *Session) OnEnd(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// End implements xr.Session. Application-initiated.
func (s *Session) End() error {
	_, suppress := s.platform.endBehaviour()
	return s.finish(!suppress)
}

// ForceEnd ends the session from the platform side, as when the device
// sleeps or permission is revoked. Observers always fire.
func (s *Session) ForceEnd() {
	_ = s.finish(true)
}

func (s *Session) finish(notify bool) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return xr.ErrSessionEnded
	}
	s.ended = true
	observers := append([]func(){}, s.observers...)
	s.mu.Unlock()

	s.platform.count(func(c *Counters) { c.SessionsEnded++ })
	if !notify {
		return nil
	}

	fire := func() {
		for _, fn := range observers {
			s.platform.count(func(c *Counters) { c.EndNotifications++ })
			fn()
		}
	}
	if async, _ := s.platform.endBehaviour(); async {
		go fire()
	} else {
		fire()
	}
	return nil
}

// SetViewer moves the camera to p (world coordinates).
func (s *Session) SetViewer(p spatial.Pose) {
	s.mu.Lock()
	s.viewer = p
	s.mu.Unlock()
}

// SetPlanes replaces the detectable surfaces.
func (s *Session) SetPlanes(planes []spatial.Plane) {
	s.mu.Lock()
	s.planes = append([]spatial.Plane(nil), planes...)
	s.mu.Unlock()
}

// NextFrame advances session time by dt and snapshots the world for one frame.
func (s *Session) NextFrame(dt time.Duration) *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elapsed += dt
	return &Frame{
		session: s,
		t:       s.elapsed,
		ended:   s.ended,
		viewer:  s.viewer,
		local:   s.local,
		planes:  s.planes,
	}
}

// Space is a simulated reference space.
type Space struct {
	session *Session
	kind    xr.ReferenceSpaceType

	mu       sync.Mutex
	released bool
}

// Type implements xr.ReferenceSpace.
func (sp *Space) Type() xr.ReferenceSpaceType { return sp.kind }

// Release implements xr.ReferenceSpace.
func (sp *Space) Release() {
	sp.mu.Lock()
	if sp.released {
		sp.mu.Unlock()
		return
	}
	sp.released = true
	sp.mu.Unlock()
	sp.session.platform.count(func(c *Counters) { c.SpacesReleased++ })
}

func (sp *Space) isReleased() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.released
}

// HitTestSource is a simulated standing hit-test query.
type HitTestSource struct {
	session *Session
	space   *Space

	mu       sync.Mutex
	canceled bool
}

// Cancel implements xr.HitTestSource.
func (h *HitTestSource) Cancel() {
	h.mu.Lock()
	if h.canceled {
		h.mu.Unlock()
		return
	}
	h.canceled = true
	h.mu.Unlock()
	h.session.platform.count(func(c *Counters) { c.HitSourcesCanceled++ })
}

func (h *HitTestSource) isCanceled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.canceled
}
