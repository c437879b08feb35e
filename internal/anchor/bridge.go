// Package anchor carries the most recent candidate surface pose from the
// per-frame poller to UI actions without either side blocking the other.
package anchor

import (
	"sync"
	"sync/atomic"

	"github.com/banshee-data/anchorpoint/internal/spatial"
)

// Stats are cumulative bridge counters.
type Stats struct {
	Writes uint64
	Hits   uint64
	Clears uint64
	// Flips counts availability changes published to Available.
	Flips uint64
	// Dropped counts availability values overwritten before anyone read them.
	Dropped uint64
}

// Bridge is a single-writer, many-reader cell holding the latest hit.
// The pose cell is authoritative; the availability channel is a coarse,
// possibly lagging signal for UI affordances only.
type Bridge struct {
	latest atomic.Pointer[spatial.Pose]

	// mu orders availability publication; pose reads never take it.
	mu        sync.Mutex
	available bool
	slot      chan bool

	writes  atomic.Uint64
	hits    atomic.Uint64
	clears  atomic.Uint64
	flips   atomic.Uint64
	dropped atomic.Uint64
}

// NewBridge returns an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{slot: make(chan bool, 1)}
}

// Write replaces the latest hit. ok false stores none.
func (b *Bridge) Write(pose spatial.Pose, ok bool) {
	b.writes.Add(1)
	if ok {
		p := pose
		b.latest.Store(&p)
		b.hits.Add(1)
	} else {
		b.latest.Store(nil)
	}
	b.publish(ok)
}

// Clear sets the latest hit to none.
func (b *Bridge) Clear() {
	b.clears.Add(1)
	b.latest.Store(nil)
	b.publish(false)
}

// ReadLatest returns the most recently written hit.
func (b *Bridge) ReadLatest() (spatial.Pose, bool) {
	p := b.latest.Load()
	if p == nil {
		return spatial.Pose{}, false
	}
	return *p, true
}

// HitAvailable reports the coarse availability flag.
func (b *Bridge) HitAvailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

// Available delivers availability changes. Only the newest unread value is
// kept; a slow reader sees the current state, not every flip.
func (b *Bridge) Available() <-chan bool {
	return b.slot
}

// publish posts v to the one-slot mailbox if it differs from the last
// published value, overwriting an unread older value.
func (b *Bridge) publish(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v == b.available {
		return
	}
	b.available = v
	b.flips.Add(1)
	select {
	case <-b.slot:
		b.dropped.Add(1)
	default:
	}
	b.slot <- v
}

// Stats returns a snapshot of the counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Writes:  b.writes.Load(),
		Hits:    b.hits.Load(),
		Clears:  b.clears.Load(),
		Flips:   b.flips.Load(),
		Dropped: b.dropped.Load(),
	}
}
