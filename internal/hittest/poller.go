// Package hittest turns each frame's hit-test results into at most one
// candidate surface pose in the local reference space.
package hittest

import (
	"sync/atomic"

	"github.com/banshee-data/anchorpoint/internal/monitoring"
	"github.com/banshee-data/anchorpoint/internal/session"
	"github.com/banshee-data/anchorpoint/internal/spatial"
	"github.com/banshee-data/anchorpoint/internal/xr"
)

// ResourceSource supplies the live viewer/local spaces and hit-test source.
// *session.Manager satisfies it.
type ResourceSource interface {
	Resources() (session.Resources, bool)
}

// Stats are cumulative poll counters.
type Stats struct {
	Frames   uint64
	Hits     uint64
	Misses   uint64
	Rejected uint64
	// Idle counts frames polled with no live session resources.
	Idle uint64
}

// Poller queries one hit-test result per frame. It keeps no state between
// frames other than counters, so a missed frame costs nothing.
type Poller struct {
	src ResourceSource

	frames   atomic.Uint64
	hits     atomic.Uint64
	misses   atomic.Uint64
	rejected atomic.Uint64
	idle     atomic.Uint64
}

// NewPoller creates a poller reading resources from src.
func NewPoller(src ResourceSource) *Poller {
	return &Poller{src: src}
}

// Poll returns the first result's pose relative to the local space. ok is
// false when the session is not active, the frame has no results, or the
// platform returned a pose that is not a rigid transform.
func (p *Poller) Poll(frame xr.Frame) (spatial.Pose, bool) {
	p.frames.Add(1)
	if frame == nil {
		p.idle.Add(1)
		return spatial.Pose{}, false
	}
	res, ok := p.src.Resources()
	if !ok {
		p.idle.Add(1)
		return spatial.Pose{}, false
	}

	results := frame.HitTestResults(res.HitTest)
	if len(results) == 0 {
		p.misses.Add(1)
		return spatial.Pose{}, false
	}

	pose, ok := results[0].Pose(res.Local)
	if !ok {
		p.misses.Add(1)
		return spatial.Pose{}, false
	}
	if err := spatial.Validate(pose); err != nil {
		p.rejected.Add(1)
		monitoring.Debugf("[hittest] rejected pose at %s: %v", frame.Time(), err)
		return spatial.Pose{}, false
	}
	p.hits.Add(1)
	return pose, true
}

// Stats returns a snapshot of the counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Frames:   p.frames.Load(),
		Hits:     p.hits.Load(),
		Misses:   p.misses.Load(),
		Rejected: p.rejected.Load(),
		Idle:     p.idle.Load(),
	}
}
