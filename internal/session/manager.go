package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/google/uuid"

	"github.com/banshee-data/anchorpoint/internal/monitoring"
	"github.com/banshee-data/anchorpoint/internal/timeutil"
	"github.com/banshee-data/anchorpoint/internal/xr"
)

var (
	// ErrAlreadyActive is returned by Start while a session is acquiring or active.
	ErrAlreadyActive = errors.New("session: already active")
	// ErrCanceled is returned by Start when End or its context interrupted it.
	ErrCanceled = errors.New("session: start canceled")
)

// DefaultEndTimeout bounds how long End waits for the platform's end
// notification before tearing down anyway.
const DefaultEndTimeout = 2 * time.Second

// Presenter is whatever already owns frame presentation. The manager hands
// it the live session instead of letting a second frame loop exist.
type Presenter interface {
	Attach(s xr.Session) error
	// Detach stops frames for s. It must return only once no frame
	// callback for s is running.
	Detach(s xr.Session)
}

// Options are per-Start inputs.
type Options struct {
	// Device is the renderer's existing graphics device, passed through to
	// the platform so the session does not open a competing context.
	Device gpucontext.DeviceProvider
	// Presenter receives the session after all resources exist.
	Presenter Presenter
	// OptionalFeatures are requested on top of local and hit-test.
	OptionalFeatures []xr.Feature
}

// Config configures a Manager.
type Config struct {
	// OnEnded receives the single Report for every session attempt. It is
	// never called with a manager lock held.
	OnEnded func(Report)
	// EndTimeout defaults to DefaultEndTimeout.
	EndTimeout time.Duration
	// Clock defaults to timeutil.RealClock.
	Clock timeutil.Clock
}

// Session describes the active session to callers. It holds no platform
// handles; those stay inside the manager.
type Session struct {
	ID        string
	StartedAt time.Time
	Features  []xr.Feature
}

// Resources is the per-frame view of what the hit-test poller needs.
type Resources struct {
	SessionID string
	Viewer    xr.ReferenceSpace
	Local     xr.ReferenceSpace
	HitTest   xr.HitTestSource
}

// Stats counts lifecycle traffic through the manager.
type Stats struct {
	Started            int
	Activated          int
	Failed             int
	Teardowns          int
	SpacesAcquired     int
	SpacesReleased     int
	HitSourcesAcquired int
	HitSourcesCanceled int
}

type phase int

const (
	phaseAcquiring phase = iota
	phaseActive
	phaseEnding
	phaseEnded
)

// record is one Start attempt. Mutable fields are guarded by Manager.mu.
type record struct {
	id        string
	startedAt time.Time
	cancel    context.CancelFunc
	ended     chan struct{}
	once      sync.Once

	phase     phase
	stage     xr.Stage
	pending   *endRequest
	session   xr.Session
	viewer    xr.ReferenceSpace
	local     xr.ReferenceSpace
	hitSource xr.HitTestSource
	presenter Presenter
	attached  bool
	report    Report
}

// Manager owns at most one tracking session at a time.
type Manager struct {
	platform xr.Platform
	cfg      Config

	mu    sync.Mutex
	cur   *record
	stats Stats

	resources atomic.Pointer[Resources]
}

// NewManager creates a manager for platform.
func NewManager(platform xr.Platform, cfg Config) *Manager {
	if cfg.EndTimeout <= 0 {
		cfg.EndTimeout = DefaultEndTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Manager{platform: platform, cfg: cfg}
}

// Start acquires a session and everything the poller needs. On any failure
// the partial acquisition is torn down before Start returns, and the error
// is an *xr.Error (or ErrCanceled / ErrAlreadyActive).
func (m *Manager) Start(ctx context.Context, opts Options) (*Session, error) {
	if m.platform == nil {
		return nil, xr.NewError(xr.CategoryUnsupported, xr.StageCapability, xr.ErrNotSupported)
	}
	rec, actx, err := m.claim(ctx)
	if err != nil {
		return nil, err
	}
	defer rec.cancel()

	monitoring.Logf("[session] %s: requesting %s (required: %s, %s)", rec.id, xr.ModeImmersiveAR, xr.FeatureLocal, xr.FeatureHitTest)
	init := xr.SessionInit{
		Mode:             xr.ModeImmersiveAR,
		RequiredFeatures: []xr.Feature{xr.FeatureLocal, xr.FeatureHitTest},
		OptionalFeatures: opts.OptionalFeatures,
		Device:           opts.Device,
	}
	if opts.Device != nil {
		if f := opts.Device.SurfaceFormat(); f == gputypes.TextureFormatUndefined {
			monitoring.Logf("[session] %s: renderer device has no surface format yet", rec.id)
		} else {
			monitoring.Logf("[session] %s: presenting through renderer device (format %v)", rec.id, f)
		}
	}

	sess, err := m.platform.RequestSession(actx, init)
	if err != nil {
		return nil, m.abort(rec, xr.StageSession, err)
	}
	m.mu.Lock()
	rec.session = sess
	m.mu.Unlock()
	sess.OnEnd(func() { m.teardown(rec) })

	granted := sess.EnabledFeatures()
	for _, f := range init.RequiredFeatures {
		if !xr.HasFeature(granted, f) {
			missing := fmt.Errorf("granted %v without %s: %w", granted, f, xr.ErrNotSupported)
			return nil, m.abort(rec, xr.StageSession, xr.NewError(xr.CategoryAcquisitionFailed, xr.StageSession, missing))
		}
	}
	if !m.advance(rec, xr.StageViewerSpace) {
		return nil, m.abort(rec, xr.StageSession, actx.Err())
	}

	viewer, err := sess.RequestReferenceSpace(actx, xr.ReferenceSpaceViewer)
	if err != nil {
		return nil, m.abort(rec, xr.StageViewerSpace, err)
	}
	if !m.keep(rec, func() { rec.viewer = viewer }, viewer.Release, &m.stats.SpacesAcquired) || !m.advance(rec, xr.StageLocalSpace) {
		return nil, m.abort(rec, xr.StageViewerSpace, actx.Err())
	}

	local, err := sess.RequestReferenceSpace(actx, xr.ReferenceSpaceLocal)
	if err != nil {
		return nil, m.abort(rec, xr.StageLocalSpace, err)
	}
	if !m.keep(rec, func() { rec.local = local }, local.Release, &m.stats.SpacesAcquired) || !m.advance(rec, xr.StageHitTestSource) {
		return nil, m.abort(rec, xr.StageLocalSpace, actx.Err())
	}

	hit, err := sess.RequestHitTestSource(actx, xr.HitTestOptions{Space: viewer})
	if err != nil {
		return nil, m.abort(rec, xr.StageHitTestSource, err)
	}
	if !m.keep(rec, func() { rec.hitSource = hit }, hit.Cancel, &m.stats.HitSourcesAcquired) || !m.advance(rec, xr.StagePresenter) {
		return nil, m.abort(rec, xr.StageHitTestSource, actx.Err())
	}

	if p := opts.Presenter; p != nil {
		if err := p.Attach(sess); err != nil {
			return nil, m.abort(rec, xr.StagePresenter, err)
		}
		if !m.keep(rec, func() { rec.presenter, rec.attached = p, true }, func() { p.Detach(sess) }, nil) {
			return nil, m.abort(rec, xr.StagePresenter, actx.Err())
		}
	}

	m.mu.Lock()
	if rec.phase != phaseAcquiring {
		m.mu.Unlock()
		return nil, m.abort(rec, xr.StagePresenter, actx.Err())
	}
	rec.phase = phaseActive
	rec.stage = xr.StageRunning
	m.stats.Activated++
	m.resources.Store(&Resources{SessionID: rec.id, Viewer: viewer, Local: local, HitTest: hit})
	m.mu.Unlock()

	monitoring.Logf("[session] %s: active, features %v", rec.id, granted)
	return &Session{ID: rec.id, StartedAt: rec.startedAt, Features: granted}, nil
}

// claim waits out a previous teardown and installs a fresh record whose
// acquisition context End can cancel.
func (m *Manager) claim(ctx context.Context) (*record, context.Context, error) {
	for {
		m.mu.Lock()
		prev := m.cur
		if prev == nil || prev.phase == phaseEnded {
			actx, cancel := context.WithCancel(ctx)
			rec := &record{
				id:        uuid.NewString(),
				startedAt: m.cfg.Clock.Now(),
				cancel:    cancel,
				ended:     make(chan struct{}),
				phase:     phaseAcquiring,
				stage:     xr.StageSession,
			}
			m.cur = rec
			m.stats.Started++
			m.mu.Unlock()
			return rec, actx, nil
		}
		if prev.phase != phaseEnding {
			m.mu.Unlock()
			return nil, nil, ErrAlreadyActive
		}
		ended := prev.ended
		m.mu.Unlock()

		select {
		case <-ended:
		case <-ctx.Done():
			return nil, nil, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
		}
	}
}

// advance moves acquisition to stage if nothing asked it to stop.
func (m *Manager) advance(rec *record, stage xr.Stage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.phase != phaseAcquiring {
		return false
	}
	rec.stage = stage
	return true
}

// keep stores a freshly acquired resource on rec. If teardown already ran,
// nothing will ever release it, so it is released here instead.
func (m *Manager) keep(rec *record, store func(), release func(), counter *int) bool {
	m.mu.Lock()
	if rec.phase == phaseEnded {
		m.mu.Unlock()
		release()
		return false
	}
	store()
	if counter != nil {
		*counter++
	}
	m.mu.Unlock()
	return true
}

// abort ends a failed or interrupted acquisition through the teardown
// funnel and returns the error Start should report.
func (m *Manager) abort(rec *record, stage xr.Stage, cause error) error {
	m.mu.Lock()
	if rec.pending == nil && rec.phase != phaseEnded {
		switch {
		case cause == nil || errors.Is(cause, context.Canceled):
			rec.pending = &endRequest{reason: ReasonCanceled}
		default:
			rec.pending = &endRequest{reason: ReasonFailed, err: xr.Classify(stage, cause)}
		}
	}
	if rec.phase != phaseEnded {
		rec.phase = phaseEnding
	}
	sess := rec.session
	m.mu.Unlock()

	if sess != nil {
		if err := sess.End(); err != nil && !errors.Is(err, xr.ErrSessionEnded) {
			monitoring.Logf("[session] %s: platform end failed: %v", rec.id, err)
		}
		m.await(context.Background(), rec)
	} else {
		m.teardown(rec)
	}

	m.mu.Lock()
	report := rec.report
	if report.Reason == ReasonFailed {
		m.stats.Failed++
	}
	m.mu.Unlock()

	switch {
	case report.Reason == ReasonCanceled:
		return fmt.Errorf("%w: %w", ErrCanceled, context.Canceled)
	case report.Err != nil:
		return report.Err
	default:
		return xr.Classify(stage, cause)
	}
}

// End ends the current session, or interrupts a Start in progress, and
// returns once teardown has completed. Calling End with nothing running is
// a no-op.
func (m *Manager) End(ctx context.Context) error {
	m.mu.Lock()
	rec := m.cur
	if rec == nil || rec.phase == phaseEnded {
		m.mu.Unlock()
		return nil
	}
	was := rec.phase
	if rec.pending == nil {
		reason := ReasonExited
		if was == phaseAcquiring {
			reason = ReasonCanceled
		}
		rec.pending = &endRequest{reason: reason}
	}
	rec.phase = phaseEnding
	sess, cancel := rec.session, rec.cancel
	m.mu.Unlock()

	switch was {
	case phaseAcquiring:
		// Start notices the cancellation and rolls back through abort.
		cancel()
		select {
		case <-rec.ended:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case phaseActive:
		monitoring.Logf("[session] %s: ending", rec.id)
		if err := sess.End(); err != nil && !errors.Is(err, xr.ErrSessionEnded) {
			monitoring.Logf("[session] %s: platform end failed: %v", rec.id, err)
		}
	}
	m.await(ctx, rec)
	return nil
}

// await waits for the end notification, forcing teardown if the platform
// stays silent past EndTimeout or ctx expires.
func (m *Manager) await(ctx context.Context, rec *record) {
	timer := m.cfg.Clock.NewTimer(m.cfg.EndTimeout)
	defer timer.Stop()
	select {
	case <-rec.ended:
	case <-timer.C():
		monitoring.Logf("[session] %s: no end notification after %s, tearing down", rec.id, m.cfg.EndTimeout)
		m.teardown(rec)
	case <-ctx.Done():
		m.teardown(rec)
	}
}

// Resources returns the acquired spaces and hit-test source. ok is false
// until acquisition completes and again from the first instant of teardown.
func (m *Manager) Resources() (Resources, bool) {
	r := m.resources.Load()
	if r == nil {
		return Resources{}, false
	}
	return *r, true
}

// Active reports whether the session with id is the current active one.
func (m *Manager) Active(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur != nil && m.cur.id == id && m.cur.phase == phaseActive
}

// Stats returns a snapshot of lifecycle counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
