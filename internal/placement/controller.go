package placement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/anchorpoint/internal/anchor"
	"github.com/banshee-data/anchorpoint/internal/capability"
	"github.com/banshee-data/anchorpoint/internal/hittest"
	"github.com/banshee-data/anchorpoint/internal/monitoring"
	"github.com/banshee-data/anchorpoint/internal/session"
	"github.com/banshee-data/anchorpoint/internal/spatial"
	"github.com/banshee-data/anchorpoint/internal/timeutil"
	"github.com/banshee-data/anchorpoint/internal/xr"
)

// ErrAlreadyEntered is returned by Enter while a session is starting or live.
var ErrAlreadyEntered = errors.New("placement: already entered")

// Sink receives outbound placement events. Calls are made without any
// controller lock held and in the order the transitions happened.
type Sink interface {
	StateChanged(t Transition)
	// AnchorPlaced fires exactly once per transition into Confirmed.
	AnchorPlaced(a spatial.Anchor)
	// SessionEnded fires once per session attempt with its teardown report.
	SessionEnded(r session.Report)
}

// FrameObserver sees every polled frame's result. It runs on the frame
// goroutine after the controller lock is released.
type FrameObserver func(t time.Duration, pose spatial.Pose, ok bool)

// Config configures a Controller.
type Config struct {
	Preview    bool
	Scale      r3.Vec
	EndTimeout time.Duration
	Clock      timeutil.Clock

	// Device is the renderer's graphics device, shared with the session.
	Device gpucontext.DeviceProvider
	// Presenter owns frame presentation and is expected to call OnFrame.
	Presenter session.Presenter

	Sink     Sink
	Observer FrameObserver
}

// Status is a point-in-time view of the controller.
type Status struct {
	State     State
	SessionID string
	Anchor    *spatial.Anchor
	// Surface is the coarse, possibly lagging surface-detected flag.
	Surface bool
	// LastError is the error from the most recent failed or externally
	// ended attempt, cleared by a successful Enter.
	LastError *xr.Error
}

// Controller ties the probe, session manager, poller, bridge and state
// machine together. Frame handling and UI actions may arrive on different
// goroutines.
type Controller struct {
	cfg    Config
	probe  *capability.Probe
	mgr    *session.Manager
	poller *hittest.Poller
	bridge *anchor.Bridge

	// mu serializes the machine with the frame loop so a confirm's read of
	// the bridge and its transition happen with no frame in between.
	mu        sync.Mutex
	machine   *Machine
	sessionID string
	entering  bool
	lastEnded session.Report
	lastErr   *xr.Error
	pending   []func(Sink)
	draining  bool
}

// NewController builds the core for platform.
func NewController(platform xr.Platform, cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	c := &Controller{
		cfg:    cfg,
		probe:  capability.NewProbe(platform),
		bridge: anchor.NewBridge(),
	}
	c.mgr = session.NewManager(platform, session.Config{
		OnEnded:    c.sessionEnded,
		EndTimeout: cfg.EndTimeout,
		Clock:      cfg.Clock,
	})
	c.poller = hittest.NewPoller(c.mgr)
	c.machine = NewMachine(MachineConfig{
		Preview: cfg.Preview,
		Scale:   cfg.Scale,
		Now:     cfg.Clock.Now,
	})
	return c
}

// Supported runs (or returns the cached) capability check.
func (c *Controller) Supported(ctx context.Context) capability.Support {
	return c.probe.Check(ctx)
}

// Enter starts a session and begins scanning. An Unsupported probe result
// fails immediately without touching the platform.
func (c *Controller) Enter(ctx context.Context) error {
	if c.probe.Check(ctx) == capability.Unsupported {
		err := xr.NewError(xr.CategoryUnsupported, xr.StageCapability, xr.ErrNotSupported)
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.entering || c.machine.State() != StateEnded {
		c.mu.Unlock()
		return ErrAlreadyEntered
	}
	c.entering = true
	c.mu.Unlock()

	s, err := c.mgr.Start(ctx, session.Options{Device: c.cfg.Device, Presenter: c.cfg.Presenter})

	c.mu.Lock()
	c.entering = false
	if err != nil {
		var xe *xr.Error
		if errors.As(err, &xe) {
			c.lastErr = xe
		}
		c.mu.Unlock()
		return err
	}
	if c.lastEnded.SessionID == s.ID {
		// Ended before we could start scanning; the report is already out.
		r := c.lastEnded
		c.mu.Unlock()
		if r.Err != nil {
			return r.Err
		}
		// An Exit raced the start.
		return session.ErrCanceled
	}
	t := c.machine.Start(s.ID)
	c.sessionID = s.ID
	c.lastErr = nil
	c.bridge.Clear()
	c.queueTransition(t)
	c.mu.Unlock()

	monitoring.Logf("[placement] session %s: scanning", s.ID)
	c.flush()
	return nil
}

// OnFrame is the per-frame hook. It polls only while Scanning and must be
// called from the single frame-producing goroutine.
func (c *Controller) OnFrame(frame xr.Frame) {
	c.mu.Lock()
	if !c.machine.State().Polling() {
		c.mu.Unlock()
		return
	}
	pose, ok := c.poller.Poll(frame)
	c.bridge.Write(pose, ok)
	obs := c.cfg.Observer
	c.mu.Unlock()

	if obs != nil && frame != nil {
		obs(frame.Time(), pose, ok)
	}
}

// Confirm reads the latest hit at this instant and advances the machine.
// With no hit it changes nothing.
func (c *Controller) Confirm() Transition {
	c.mu.Lock()
	latest, ok := c.bridge.ReadLatest()
	t := c.machine.Confirm(latest, ok)
	if t.Changed() {
		c.bridge.Clear()
		c.queueTransition(t)
	}
	c.mu.Unlock()

	if t.Changed() {
		monitoring.Logf("[placement] session %s: %s -> %s", t.SessionID, t.From, t.To)
	} else {
		monitoring.Debugf("[placement] confirm ignored in %s (hit=%v)", t.From, ok)
	}
	c.flush()
	return t
}

// Replace discards the preview or anchor and resumes scanning.
func (c *Controller) Replace() Transition {
	c.mu.Lock()
	t := c.machine.Replace()
	if t.Changed() {
		c.queueTransition(t)
	}
	c.mu.Unlock()

	if t.Changed() {
		monitoring.Logf("[placement] session %s: %s -> %s", t.SessionID, t.From, t.To)
	}
	c.flush()
	return t
}

// Exit ends the session, interrupting a start in progress, and returns
// once teardown is complete. It is a no-op with nothing running.
func (c *Controller) Exit(ctx context.Context) error {
	// The session's end observer may run synchronously inside End and take
	// c.mu, so End is called without it.
	err := c.mgr.End(ctx)

	c.mu.Lock()
	if c.machine.State() != StateEnded && !c.mgr.Active(c.sessionID) {
		c.queueTransition(c.machine.End())
		c.sessionID = ""
		c.bridge.Clear()
	}
	c.mu.Unlock()
	c.flush()
	return err
}

// sessionEnded is the manager's OnEnded callback.
func (c *Controller) sessionEnded(r session.Report) {
	c.mu.Lock()
	c.lastEnded = r
	if r.Err != nil {
		c.lastErr = r.Err
	}
	if r.SessionID == c.sessionID && c.machine.State() != StateEnded {
		c.queueTransition(c.machine.End())
		c.sessionID = ""
		c.bridge.Clear()
	}
	c.pending = append(c.pending, func(s Sink) { s.SessionEnded(r) })
	c.mu.Unlock()

	if msg := r.Message(); msg != "" {
		monitoring.Logf("[placement] session %s %s: %s", r.SessionID, r.Reason, msg)
	}
	c.flush()
}

// queueTransition records sink calls for t. Caller holds c.mu.
func (c *Controller) queueTransition(t Transition) {
	c.pending = append(c.pending, func(s Sink) { s.StateChanged(t) })
	if t.Anchor != nil {
		a := *t.Anchor
		c.pending = append(c.pending, func(s Sink) { s.AnchorPlaced(a) })
	}
}

// flush delivers queued sink calls in order. Only one goroutine drains at a
// time; a concurrent or reentrant caller leaves its events to the drainer.
func (c *Controller) flush() {
	c.mu.Lock()
	if c.draining || c.cfg.Sink == nil {
		if c.cfg.Sink == nil {
			c.pending = nil
		}
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.pending) > 0 {
		batch := c.pending
		c.pending = nil
		c.mu.Unlock()
		for _, fn := range batch {
			fn(c.cfg.Sink)
		}
		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

// State returns the current placement state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.State()
}

// Anchor returns the confirmed anchor, if any.
func (c *Controller) Anchor() (spatial.Anchor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Anchor()
}

// Preview returns the captured pose while Previewing.
func (c *Controller) Preview() (spatial.Pose, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Captured()
}

// LatestHit is the authoritative latest hit, for drawing the cursor.
func (c *Controller) LatestHit() (spatial.Pose, bool) {
	return c.bridge.ReadLatest()
}

// Surface delivers coarse surface-detected changes for UI affordances.
func (c *Controller) Surface() <-chan bool {
	return c.bridge.Available()
}

// SessionID returns the live session's ID, empty when Ended.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Status returns a snapshot for diagnostics.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:     c.machine.State(),
		SessionID: c.sessionID,
		Surface:   c.bridge.HitAvailable(),
		LastError: c.lastErr,
	}
	if a, ok := c.machine.Anchor(); ok {
		st.Anchor = &a
	}
	return st
}

// Stats bundles the component counters.
type Stats struct {
	Session session.Stats
	Poller  hittest.Stats
	Bridge  anchor.Stats
}

// Stats returns component counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Session: c.mgr.Stats(),
		Poller:  c.poller.Stats(),
		Bridge:  c.bridge.Stats(),
	}
}
