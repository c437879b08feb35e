package placement

import (
	"github.com/banshee-data/anchorpoint/internal/session"
	"github.com/banshee-data/anchorpoint/internal/spatial"
)

// MultiSink forwards every event to each sink in order. Nil entries are
// skipped.
type MultiSink []Sink

// Sinks builds a MultiSink, dropping nil sinks.
func Sinks(sinks ...Sink) MultiSink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m MultiSink) StateChanged(t Transition) {
	for _, s := range m {
		s.StateChanged(t)
	}
}

func (m MultiSink) AnchorPlaced(a spatial.Anchor) {
	for _, s := range m {
		s.AnchorPlaced(a)
	}
}

func (m MultiSink) SessionEnded(r session.Report) {
	for _, s := range m {
		s.SessionEnded(r)
	}
}
