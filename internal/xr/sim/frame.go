package sim

import (
	"math"
	"time"

	"github.com/banshee-data/anchorpoint/internal/spatial"
	"github.com/banshee-data/anchorpoint/internal/xr"
)

// Frame is one simulated frame. It captures the viewer pose at creation so
// every query within the frame sees the same world.
type Frame struct {
	session *Session
	t       time.Duration
	ended   bool
	viewer  spatial.Pose
	local   spatial.Pose
	planes  []spatial.Plane
	results [1]xr.HitTestResult
}

var _ xr.Frame = (*Frame)(nil)

// Time implements xr.Frame.
func (f *Frame) Time() time.Duration { return f.t }

// Viewer returns the camera pose captured for this frame.
func (f *Frame) Viewer() spatial.Pose { return f.viewer }

// HitTestResults implements xr.Frame. At most one result, the nearest
// surface along the source space's ray.
func (f *Frame) HitTestResults(src xr.HitTestSource) []xr.HitTestResult {
	h, ok := src.(*HitTestSource)
	if !ok || f.ended || h.session != f.session || h.isCanceled() {
		return nil
	}

	origin := f.viewer
	if h.space.kind == xr.ReferenceSpaceLocal {
		origin = f.local
	}
	ray := spatial.RayFrom(origin)

	best := math.Inf(1)
	var hit spatial.Pose
	for _, pl := range f.planes {
		p, dist, ok := pl.Intersect(ray)
		if ok && dist < best {
			best = dist
			hit = pl.SurfacePose(p)
		}
	}
	if math.IsInf(best, 1) {
		return nil
	}
	f.results[0] = &result{frame: f, world: hit}
	return f.results[:1]
}

type result struct {
	frame *Frame
	world spatial.Pose
}

// Pose implements xr.HitTestResult.
func (r *result) Pose(base xr.ReferenceSpace) (spatial.Pose, bool) {
	sp, ok := base.(*Space)
	if !ok || sp.session != r.frame.session || sp.isReleased() {
		return spatial.Pose{}, false
	}
	switch sp.kind {
	case xr.ReferenceSpaceLocal:
		return r.frame.local.Inverse().Compose(r.world), true
	case xr.ReferenceSpaceViewer:
		return r.frame.viewer.Inverse().Compose(r.world), true
	default:
		return spatial.Pose{}, false
	}
}
