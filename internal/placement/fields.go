package placement

import (
	"time"

	"github.com/banshee-data/anchorpoint/internal/spatial"
)

// Fields flattens the status into plain JSON-compatible values, shared by
// the debug HTTP API and the control RPC.
func (s Status) Fields() map[string]interface{} {
	out := map[string]interface{}{
		"state":      s.State.String(),
		"session_id": s.SessionID,
		"surface":    s.Surface,
	}
	if s.Anchor != nil {
		out["anchor"] = AnchorFields(*s.Anchor)
	}
	if s.LastError != nil {
		out["error"] = map[string]interface{}{
			"category":  s.LastError.Category.String(),
			"stage":     string(s.LastError.Stage),
			"retryable": s.LastError.Category.Retryable(),
			"message":   s.LastError.Message(),
		}
	}
	return out
}

// Fields flattens the transition.
func (t Transition) Fields() map[string]interface{} {
	out := map[string]interface{}{
		"session_id": t.SessionID,
		"action":     t.Action.String(),
		"from":       t.From.String(),
		"to":         t.To.String(),
		"changed":    t.Changed(),
	}
	if t.Anchor != nil {
		out["anchor"] = AnchorFields(*t.Anchor)
	}
	return out
}

// AnchorFields flattens an anchor: position, orientation quaternion
// (w, x, y, z), scale and the row-major model matrix.
func AnchorFields(a spatial.Anchor) map[string]interface{} {
	p, q := a.Pose.Position, a.Pose.Orientation
	m := a.Matrix()
	matrix := make([]interface{}, len(m))
	for i, v := range m {
		matrix[i] = v
	}
	return map[string]interface{}{
		"session_id":  a.SessionID,
		"position":    []interface{}{p.X, p.Y, p.Z},
		"orientation": []interface{}{q.Real, q.Imag, q.Jmag, q.Kmag},
		"scale":       []interface{}{a.Scale.X, a.Scale.Y, a.Scale.Z},
		"matrix":      matrix,
		"placed_at":   a.PlacedAt.UTC().Format(time.RFC3339Nano),
	}
}
