package spatial

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Anchor is the single user-confirmed placement. It is a value: once handed
// out it never changes, and a replacement produces a new Anchor.
type Anchor struct {
	Pose      Pose
	Scale     r3.Vec
	SessionID string
	PlacedAt  time.Time
}

// UniformScale returns a scale vector with s on every axis.
func UniformScale(s float64) r3.Vec {
	return r3.Vec{X: s, Y: s, Z: s}
}

// NewAnchor freezes p with the given content scale.
func NewAnchor(p Pose, scale r3.Vec, sessionID string, placedAt time.Time) Anchor {
	return Anchor{Pose: p, Scale: scale, SessionID: sessionID, PlacedAt: placedAt}
}

// Matrix returns the row-major model matrix T·S used to root content: the
// scale is applied in content space before the rigid placement.
func (a Anchor) Matrix() [16]float64 {
	m := a.Pose.Matrix()
	s := [3]float64{a.Scale.X, a.Scale.Y, a.Scale.Z}
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			m[row*4+col] *= s[col]
		}
	}
	return m
}
