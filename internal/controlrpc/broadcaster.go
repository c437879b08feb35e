package controlrpc

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/anchorpoint/internal/monitoring"
	"github.com/banshee-data/anchorpoint/internal/placement"
	"github.com/banshee-data/anchorpoint/internal/session"
	"github.com/banshee-data/anchorpoint/internal/spatial"
)

// watchBuffer is the per-client event queue depth.
const watchBuffer = 32

// Broadcaster fans placement events out to Watch streams. It implements
// placement.Sink and never blocks the controller: a client whose queue is
// full misses the event.
type Broadcaster struct {
	clientsMu sync.RWMutex
	clients   map[string]*watchClient

	stopOnce sync.Once
	stopCh   chan struct{}

	published atomic.Uint64
	dropped   atomic.Uint64
}

type watchClient struct {
	id     string
	events chan *structpb.Struct
	done   chan struct{}
}

var _ placement.Sink = (*Broadcaster)(nil)

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*watchClient),
		stopCh:  make(chan struct{}),
	}
}

// StateChanged implements placement.Sink.
func (b *Broadcaster) StateChanged(t placement.Transition) {
	fields := t.Fields()
	fields["event"] = "state_changed"
	b.publish(fields)
}

// AnchorPlaced implements placement.Sink.
func (b *Broadcaster) AnchorPlaced(a spatial.Anchor) {
	b.publish(map[string]interface{}{
		"event":  "anchor_placed",
		"anchor": placement.AnchorFields(a),
	})
}

// SessionEnded implements placement.Sink.
func (b *Broadcaster) SessionEnded(r session.Report) {
	fields := map[string]interface{}{
		"event":      "session_ended",
		"session_id": r.SessionID,
		"reason":     r.Reason.String(),
		"was_active": r.WasActive,
	}
	if r.Err != nil {
		fields["category"] = r.Err.Category.String()
		fields["stage"] = string(r.Err.Stage)
		fields["message"] = r.Message()
	}
	b.publish(fields)
}

func (b *Broadcaster) publish(fields map[string]interface{}) {
	select {
	case <-b.stopCh:
		return
	default:
	}
	ev, err := structpb.NewStruct(fields)
	if err != nil {
		monitoring.Logf("[controlrpc] dropping %v event: %v", fields["event"], err)
		return
	}
	b.published.Add(1)

	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	for _, c := range b.clients {
		select {
		case c.events <- ev:
		default:
			n := b.dropped.Add(1)
			monitoring.Logf("[controlrpc] watch %s is slow, dropped %v (total dropped: %d)", c.id, fields["event"], n)
		}
	}
}

func (b *Broadcaster) add() *watchClient {
	c := &watchClient{
		id:     uuid.NewString(),
		events: make(chan *structpb.Struct, watchBuffer),
		done:   make(chan struct{}),
	}
	b.clientsMu.Lock()
	b.clients[c.id] = c
	n := len(b.clients)
	b.clientsMu.Unlock()
	monitoring.Logf("[controlrpc] watch client connected: %s (total: %d)", c.id, n)
	return c
}

func (b *Broadcaster) remove(id string) {
	b.clientsMu.Lock()
	c, ok := b.clients[id]
	if ok {
		close(c.done)
		delete(b.clients, id)
	}
	n := len(b.clients)
	b.clientsMu.Unlock()
	if ok {
		monitoring.Logf("[controlrpc] watch client disconnected: %s (remaining: %d)", id, n)
	}
}

// Close ends every Watch stream. Later events are discarded.
func (b *Broadcaster) Close() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// BroadcastStats counts events and watchers.
type BroadcastStats struct {
	Published uint64
	Dropped   uint64
	Clients   int
}

// Stats returns current broadcaster statistics.
func (b *Broadcaster) Stats() BroadcastStats {
	b.clientsMu.RLock()
	n := len(b.clients)
	b.clientsMu.RUnlock()
	return BroadcastStats{
		Published: b.published.Load(),
		Dropped:   b.dropped.Load(),
		Clients:   n,
	}
}
