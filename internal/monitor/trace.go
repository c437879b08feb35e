// Package monitor records per-frame hit-test results for tuning and renders
// them as PNG plots and an HTML scatter view.
package monitor

import (
	"sync"
	"time"

	"github.com/banshee-data/anchorpoint/internal/spatial"
)

// Sample is one polled frame.
type Sample struct {
	T    time.Duration
	Pose spatial.Pose
	Hit  bool
}

// TraceRecorder keeps the most recent frames in a fixed-size ring. Observe
// matches placement.FrameObserver.
type TraceRecorder struct {
	mu      sync.Mutex
	samples []Sample
	next    int
	full    bool
	hits    int
	total   int
}

// NewTraceRecorder keeps up to max samples; max <= 0 means 600.
func NewTraceRecorder(max int) *TraceRecorder {
	if max <= 0 {
		max = 600
	}
	return &TraceRecorder{samples: make([]Sample, max)}
}

// Observe records one frame.
func (r *TraceRecorder) Observe(t time.Duration, pose spatial.Pose, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[r.next] = Sample{T: t, Pose: pose, Hit: ok}
	r.next = (r.next + 1) % len(r.samples)
	if r.next == 0 {
		r.full = true
	}
	r.total++
	if ok {
		r.hits++
	}
}

// Samples returns retained samples, oldest first.
func (r *TraceRecorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Sample(nil), r.samples[:r.next]...)
	}
	out := make([]Sample, 0, len(r.samples))
	out = append(out, r.samples[r.next:]...)
	return append(out, r.samples[:r.next]...)
}

// HitRate is the fraction of all observed frames that had a hit.
func (r *TraceRecorder) HitRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.total == 0 {
		return 0
	}
	return float64(r.hits) / float64(r.total)
}

// Reset drops everything recorded so far.
func (r *TraceRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next, r.full, r.hits, r.total = 0, false, 0, 0
}
