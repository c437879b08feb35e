// Package placement drives the scan, preview and confirm protocol that
// produces the single anchor content is rooted at, and exposes the core
// facade the render loop and UI talk to.
package placement

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/anchorpoint/internal/spatial"
)

// State is the placement protocol state. The zero value is Ended: no
// session, equivalent to the subsystem being absent.
type State int

const (
	StateEnded State = iota
	StateScanning
	StatePreviewing
	StateConfirmed
)

func (s State) String() string {
	switch s {
	case StateEnded:
		return "ended"
	case StateScanning:
		return "scanning"
	case StatePreviewing:
		return "previewing"
	case StateConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Polling reports whether hit-testing runs in s.
func (s State) Polling() bool { return s == StateScanning }

// Action names the input that produced a transition.
type Action int

const (
	ActionStart Action = iota
	ActionConfirm
	ActionReplace
	ActionEnd
)

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionConfirm:
		return "confirm"
	case ActionReplace:
		return "replace"
	case ActionEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Transition is the outcome of one input. From == To means nothing changed.
type Transition struct {
	SessionID string
	From      State
	To        State
	Action    Action
	// Anchor is set only on the transition into Confirmed.
	Anchor *spatial.Anchor
}

// Changed reports whether the input moved the machine.
func (t Transition) Changed() bool { return t.From != t.To }

// MachineConfig configures a Machine.
type MachineConfig struct {
	// Preview inserts Previewing between Scanning and Confirmed.
	Preview bool
	// Scale is the content scale frozen into every anchor. Zero means 1.
	Scale r3.Vec
	// Now stamps anchors. Defaults to time.Now.
	Now func() time.Time
}

// Machine is the pure placement protocol. It performs no I/O and is not
// safe for concurrent use; Controller serializes access to it.
type Machine struct {
	cfg MachineConfig

	state     State
	sessionID string
	captured  spatial.Pose
	anchor    *spatial.Anchor
}

// NewMachine returns a machine in StateEnded.
func NewMachine(cfg MachineConfig) *Machine {
	if cfg.Scale == (r3.Vec{}) {
		cfg.Scale = spatial.UniformScale(1)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Machine{cfg: cfg}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Anchor returns the confirmed anchor, if any.
func (m *Machine) Anchor() (spatial.Anchor, bool) {
	if m.anchor == nil {
		return spatial.Anchor{}, false
	}
	return *m.anchor, true
}

// Captured returns the pose held while Previewing.
func (m *Machine) Captured() (spatial.Pose, bool) {
	if m.state != StatePreviewing {
		return spatial.Pose{}, false
	}
	return m.captured, true
}

// Start enters Scanning for sessionID from any state, discarding any
// previous capture or anchor.
func (m *Machine) Start(sessionID string) Transition {
	t := Transition{SessionID: sessionID, From: m.state, To: StateScanning, Action: ActionStart}
	m.reset(StateScanning)
	m.sessionID = sessionID
	return t
}

// Confirm acts on latest, which must be the value read from the bridge at
// the instant of the user action. In Scanning with no hit it is a no-op.
// In Previewing it commits the pose captured on entry and ignores latest.
func (m *Machine) Confirm(latest spatial.Pose, ok bool) Transition {
	t := Transition{SessionID: m.sessionID, From: m.state, To: m.state, Action: ActionConfirm}
	switch m.state {
	case StateScanning:
		if !ok {
			return t
		}
		if m.cfg.Preview {
			m.captured = latest
			m.state = StatePreviewing
		} else {
			m.commit(latest)
		}
	case StatePreviewing:
		m.commit(m.captured)
	default:
		return t
	}
	t.To = m.state
	t.Anchor = m.anchor
	return t
}

// Replace returns to Scanning from Previewing or Confirmed, discarding the
// capture and the anchor.
func (m *Machine) Replace() Transition {
	t := Transition{SessionID: m.sessionID, From: m.state, To: m.state, Action: ActionReplace}
	if m.state != StatePreviewing && m.state != StateConfirmed {
		return t
	}
	m.reset(StateScanning)
	t.To = m.state
	return t
}

// End moves to Ended from any state.
func (m *Machine) End() Transition {
	t := Transition{SessionID: m.sessionID, From: m.state, To: StateEnded, Action: ActionEnd}
	m.reset(StateEnded)
	m.sessionID = ""
	return t
}

func (m *Machine) commit(p spatial.Pose) {
	a := spatial.NewAnchor(p, m.cfg.Scale, m.sessionID, m.cfg.Now())
	m.anchor = &a
	m.captured = spatial.Pose{}
	m.state = StateConfirmed
}

func (m *Machine) reset(to State) {
	m.state = to
	m.captured = spatial.Pose{}
	m.anchor = nil
}
