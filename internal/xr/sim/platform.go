package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/banshee-data/anchorpoint/internal/spatial"
	"github.com/banshee-data/anchorpoint/internal/xr"
)

// Config controls the simulated device.
type Config struct {
	// Unsupported makes the device report no immersive-ar support.
	Unsupported bool
	// ProbeErr is returned from IsSessionSupported when set.
	ProbeErr error
	// DenyPermission refuses the permission prompt.
	DenyPermission bool
	// DropFeatures are silently left out of the granted feature set even
	// when required, imitating a platform that under-grants.
	DropFeatures []xr.Feature
	// Fail injects an error at the given acquisition stage.
	Fail map[xr.Stage]error
	// AsyncEnd delivers end notifications on a new goroutine.
	AsyncEnd bool
	// SuppressEnd never delivers end notifications for End calls.
	SuppressEnd bool

	// Planes are the detectable surfaces, in world coordinates.
	Planes []spatial.Plane
	// LocalOrigin is the world pose of the local reference space. The zero
	// value means identity.
	LocalOrigin spatial.Pose
	// Viewer is the initial camera pose in world coordinates. The zero value
	// means identity.
	Viewer spatial.Pose
}

// Counters tallies platform-side resource traffic.
type Counters struct {
	SessionsGranted    int
	SessionsEnded      int
	EndNotifications   int
	SpacesAcquired     int
	SpacesReleased     int
	HitSourcesAcquired int
	HitSourcesCanceled int
	DevicesCreated     int
	DevicesShared      int
}

// Platform is a simulated xr.Platform.
type Platform struct {
	mu       sync.Mutex
	cfg      Config
	counters Counters
	holds    map[xr.Stage]chan struct{}
	current  *Session
	nextID   int
}

var _ xr.Platform = (*Platform)(nil)

// New creates a simulated platform.
func New(cfg Config) *Platform {
	if cfg.LocalOrigin.Orientation == (spatial.Pose{}).Orientation {
		cfg.LocalOrigin.Orientation = spatial.Identity().Orientation
	}
	if cfg.Viewer.Orientation == (spatial.Pose{}).Orientation {
		cfg.Viewer.Orientation = spatial.Identity().Orientation
	}
	return &Platform{cfg: cfg, holds: make(map[xr.Stage]chan struct{})}
}

// Update mutates the configuration under the platform lock. Changes apply
// to subsequent requests; live sessions keep their planes.
func (p *Platform) Update(fn func(*Config)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.cfg)
}

// Hold makes the next calls reaching stage block until the returned release
// func runs or the caller's context is cancelled.
func (p *Platform) Hold(stage xr.Stage) (release func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan struct{})
	p.holds[stage] = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if p.holds[stage] == ch {
				delete(p.holds, stage)
			}
			p.mu.Unlock()
			close(ch)
		})
	}
}

// Counters returns a snapshot of resource counters.
func (p *Platform) Counters() Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters
}

// Current returns the most recently granted session, ended or not.
func (p *Platform) Current() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// IsSessionSupported implements xr.Platform.
func (p *Platform) IsSessionSupported(ctx context.Context, mode xr.Mode) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.ProbeErr != nil {
		return false, p.cfg.ProbeErr
	}
	return mode == xr.ModeImmersiveAR && !p.cfg.Unsupported, nil
}

// RequestSession implements xr.Platform.
func (p *Platform) RequestSession(ctx context.Context, init xr.SessionInit) (xr.Session, error) {
	if err := p.wait(ctx, xr.StageSession); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.Unsupported || init.Mode != xr.ModeImmersiveAR {
		return nil, fmt.Errorf("sim: mode %q: %w", init.Mode, xr.ErrNotSupported)
	}
	if p.cfg.DenyPermission {
		return nil, fmt.Errorf("sim: camera prompt refused: %w", xr.ErrPermissionDenied)
	}
	if err := p.cfg.Fail[xr.StageSession]; err != nil {
		return nil, err
	}
	if p.current != nil && !p.current.Ended() {
		return nil, fmt.Errorf("sim: session already active: %w", xr.ErrInvalidState)
	}

	granted := make([]xr.Feature, 0, len(init.RequiredFeatures)+len(init.OptionalFeatures))
	for _, f := range append(append([]xr.Feature(nil), init.RequiredFeatures...), init.OptionalFeatures...) {
		if !xr.HasFeature(p.cfg.DropFeatures, f) && !xr.HasFeature(granted, f) {
			granted = append(granted, f)
		}
	}

	if init.Device == nil {
		p.counters.DevicesCreated++
	} else {
		p.counters.DevicesShared++
	}

	p.nextID++
	p.counters.SessionsGranted++
	s := &Session{
		platform: p,
		id:       p.nextID,
		granted:  granted,
		device:   init.Device != nil,
		viewer:   p.cfg.Viewer,
		local:    p.cfg.LocalOrigin,
		planes:   append([]spatial.Plane(nil), p.cfg.Planes...),
	}
	p.current = s
	return s, nil
}

// wait blocks while stage is held.
func (p *Platform) wait(ctx context.Context, stage xr.Stage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	ch := p.holds[stage]
	p.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Platform) failure(stage xr.Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Fail[stage]
}

func (p *Platform) count(fn func(*Counters)) {
	p.mu.Lock()
	fn(&p.counters)
	p.mu.Unlock()
}

func (p *Platform) endBehaviour() (async, suppress bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.AsyncEnd, p.cfg.SuppressEnd
}
