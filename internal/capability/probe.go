// Package capability answers, once, whether this device can open an
// immersive session with environment hit-testing.
package capability

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/banshee-data/anchorpoint/internal/monitoring"
	"github.com/banshee-data/anchorpoint/internal/xr"
)

// Support is the probe outcome.
type Support int

const (
	// Unknown means the query itself failed; entering may still work.
	Unknown Support = iota
	Supported
	Unsupported
)

func (s Support) String() string {
	switch s {
	case Supported:
		return "supported"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Probe caches the platform's support answer for the life of the UI.
type Probe struct {
	platform xr.Platform
	mode     xr.Mode

	group  singleflight.Group
	mu     sync.Mutex
	cached bool
	result Support
}

// NewProbe creates a probe. A nil platform means the API is absent.
func NewProbe(platform xr.Platform) *Probe {
	return &Probe{platform: platform, mode: xr.ModeImmersiveAR}
}

// Check returns the cached answer, querying the platform on first use.
// Concurrent first callers share one query. Check never fails: a missing
// platform is Unsupported, a failed query is Unknown. A query aborted by
// ctx is not cached.
func (p *Probe) Check(ctx context.Context) Support {
	if p == nil || p.platform == nil {
		return Unsupported
	}

	p.mu.Lock()
	if p.cached {
		s := p.result
		p.mu.Unlock()
		return s
	}
	p.mu.Unlock()

	v, _, _ := p.group.Do(string(p.mode), func() (interface{}, error) {
		if s, ok := p.Cached(); ok {
			return s, nil
		}
		ok, err := p.platform.IsSessionSupported(ctx, p.mode)
		s := Unsupported
		switch {
		case err != nil:
			monitoring.Logf("[capability] support query failed: %v", err)
			s = Unknown
		case ok:
			s = Supported
		}
		if ctx.Err() == nil {
			p.mu.Lock()
			p.cached, p.result = true, s
			p.mu.Unlock()
		}
		monitoring.Logf("[capability] %s: %s", p.mode, s)
		return s, nil
	})
	return v.(Support)
}

// Cached returns the stored answer without querying.
func (p *Probe) Cached() (Support, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, p.cached
}

// Reset drops the cached answer, e.g. after the user switches device.
func (p *Probe) Reset() {
	p.mu.Lock()
	p.cached = false
	p.result = Unknown
	p.mu.Unlock()
}
