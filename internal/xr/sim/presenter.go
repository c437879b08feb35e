package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/anchorpoint/internal/monitoring"
	"github.com/banshee-data/anchorpoint/internal/spatial"
	"github.com/banshee-data/anchorpoint/internal/timeutil"
	"github.com/banshee-data/anchorpoint/internal/xr"
)

// ErrForeignSession is returned when a presenter is handed a session it
// cannot drive.
var ErrForeignSession = errors.New("sim: presenter needs a sim session")

// Presenter owns frame presentation for a simulated session: once attached
// it is the only thing producing frames, one per clock tick.
type Presenter struct {
	clock    timeutil.Clock
	interval time.Duration

	mu      sync.Mutex
	onFrame func(xr.Frame)
	script  func(t time.Duration) spatial.Pose
	cancel  context.CancelFunc
	done    chan struct{}
	frames  uint64
}

// NewPresenter creates a presenter ticking at fps on clock.
func NewPresenter(clock timeutil.Clock, fps float64) *Presenter {
	if fps <= 0 {
		fps = 60
	}
	return &Presenter{
		clock:    clock,
		interval: time.Duration(float64(time.Second) / fps),
	}
}

// SetFrameHandler installs the per-frame callback. It runs on the
// presenter's goroutine.
func (p *Presenter) SetFrameHandler(fn func(xr.Frame)) {
	p.mu.Lock()
	p.onFrame = fn
	p.mu.Unlock()
}

// SetViewerScript makes the camera follow script(t) each frame.
func (p *Presenter) SetViewerScript(script func(t time.Duration) spatial.Pose) {
	p.mu.Lock()
	p.script = script
	p.mu.Unlock()
}

// Frames returns the number of frames presented so far.
func (p *Presenter) Frames() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// Attach starts the frame loop for s. A second Attach without Detach
// replaces the previous loop.
func (p *Presenter) Attach(s xr.Session) error {
	sess, ok := s.(*Session)
	if !ok {
		return ErrForeignSession
	}
	p.Detach(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	// Ticker is created before the goroutine so a clock advanced right
	// after Attach already sees it.
	ticker := p.clock.NewTicker(p.interval)
	go p.loop(ctx, sess, ticker, done)
	monitoring.Logf("[sim] presenter attached to session %d at %s/frame", sess.ID(), p.interval)
	return nil
}

// Detach stops the frame loop and waits for the in-flight frame. It must
// not be called from the frame handler.
func (p *Presenter) Detach(xr.Session) {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Presenter) loop(ctx context.Context, s *Session, ticker timeutil.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}
		p.mu.Lock()
		handler, script := p.onFrame, p.script
		p.frames++
		p.mu.Unlock()

		if script != nil {
			s.mu.Lock()
			t := s.elapsed + p.interval
			s.mu.Unlock()
			s.SetViewer(script(t))
		}
		f := s.NextFrame(p.interval)
		if handler != nil {
			handler(f)
		}
	}
}
