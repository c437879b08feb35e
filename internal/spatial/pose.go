package spatial

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Validation tolerances.
const (
	// UnitQuaternionTolerance bounds |q|-1 for an orientation to count as a
	// proper rotation.
	UnitQuaternionTolerance = 1e-3
	// MatrixValidationTolerance is the tolerance for checking rotation matrix validity.
	MatrixValidationTolerance = 0.01
)

// ErrInvalidPose is wrapped by every Validate failure.
var ErrInvalidPose = errors.New("invalid pose")

// Pose is a rigid transform: orientation applied first, then translation.
type Pose struct {
	Position    r3.Vec
	Orientation quat.Number
}

// Identity returns the pose with no rotation at the origin.
func Identity() Pose {
	return Pose{Orientation: quat.Number{Real: 1}}
}

// NewPose builds a pose, normalising the orientation. A zero quaternion is
// replaced by the identity rotation.
func NewPose(position r3.Vec, orientation quat.Number) Pose {
	n := quat.Abs(orientation)
	if n == 0 {
		orientation = quat.Number{Real: 1}
	} else if n != 1 {
		orientation = quat.Scale(1/n, orientation)
	}
	return Pose{Position: position, Orientation: orientation}
}

// Translation returns an identity-rotation pose at p.
func Translation(p r3.Vec) Pose {
	return Pose{Position: p, Orientation: quat.Number{Real: 1}}
}

// Apply maps a point from the pose's local coordinates into its parent frame.
func (p Pose) Apply(v r3.Vec) r3.Vec {
	return r3.Add(r3.Rotation(p.Orientation).Rotate(v), p.Position)
}

// Rotate maps a direction (no translation).
func (p Pose) Rotate(v r3.Vec) r3.Vec {
	return r3.Rotation(p.Orientation).Rotate(v)
}

// Compose returns p∘q: q is applied first, then p. Used to re-express a pose
// given relative to frame B (q) in frame A, where p is B's pose in A.
func (p Pose) Compose(q Pose) Pose {
	return Pose{
		Position:    p.Apply(q.Position),
		Orientation: quat.Mul(p.Orientation, q.Orientation),
	}
}

// Inverse returns the transform undoing p. p must be a unit rotation.
func (p Pose) Inverse() Pose {
	inv := quat.Conj(p.Orientation)
	pos := r3.Rotation(inv).Rotate(r3.Scale(-1, p.Position))
	return Pose{Position: pos, Orientation: inv}
}

// Forward is the viewing direction (-Z) of the pose in its parent frame.
func (p Pose) Forward() r3.Vec {
	return p.Rotate(r3.Vec{Z: -1})
}

// Up is the +Y axis of the pose in its parent frame. For hit-test results
// this is the surface normal.
func (p Pose) Up() r3.Vec {
	return p.Rotate(r3.Vec{Y: 1})
}

// Matrix returns the row-major 4x4 homogeneous transform.
func (p Pose) Matrix() [16]float64 {
	w, x, y, z := p.Orientation.Real, p.Orientation.Imag, p.Orientation.Jmag, p.Orientation.Kmag
	return [16]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y), p.Position.X,
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x), p.Position.Y,
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y), p.Position.Z,
		0, 0, 0, 1,
	}
}

// FromMatrix converts a row-major rigid transform into a Pose.
func FromMatrix(T [16]float64) (Pose, error) {
	if !IsValidTransformMatrix(T) {
		return Pose{}, fmt.Errorf("%w: not a proper rigid transform", ErrInvalidPose)
	}
	r00, r01, r02 := T[0], T[1], T[2]
	r10, r11, r12 := T[4], T[5], T[6]
	r20, r21, r22 := T[8], T[9], T[10]

	var q quat.Number
	switch trace := r00 + r11 + r22; {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q = quat.Number{Real: 0.25 / s, Imag: (r21 - r12) * s, Jmag: (r02 - r20) * s, Kmag: (r10 - r01) * s}
	case r00 > r11 && r00 > r22:
		s := 2 * math.Sqrt(1+r00-r11-r22)
		q = quat.Number{Real: (r21 - r12) / s, Imag: 0.25 * s, Jmag: (r01 + r10) / s, Kmag: (r02 + r20) / s}
	case r11 > r22:
		s := 2 * math.Sqrt(1+r11-r00-r22)
		q = quat.Number{Real: (r02 - r20) / s, Imag: (r01 + r10) / s, Jmag: 0.25 * s, Kmag: (r12 + r21) / s}
	default:
		s := 2 * math.Sqrt(1+r22-r00-r11)
		q = quat.Number{Real: (r10 - r01) / s, Imag: (r02 + r20) / s, Jmag: (r12 + r21) / s, Kmag: 0.25 * s}
	}
	return NewPose(r3.Vec{X: T[3], Y: T[7], Z: T[11]}, q), nil
}

// Validate reports whether p is usable as a placement pose: finite position
// and a unit orientation.
func Validate(p Pose) error {
	for _, v := range [3]float64{p.Position.X, p.Position.Y, p.Position.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite position %v", ErrInvalidPose, p.Position)
		}
	}
	if quat.IsNaN(p.Orientation) || quat.IsInf(p.Orientation) {
		return fmt.Errorf("%w: non-finite orientation", ErrInvalidPose)
	}
	if n := quat.Abs(p.Orientation); math.Abs(n-1) > UnitQuaternionTolerance {
		return fmt.Errorf("%w: orientation norm %.4f", ErrInvalidPose, n)
	}
	return nil
}

// ApproxEqual compares two poses within tol on every component. q and -q
// describe the same rotation and compare equal.
func (p Pose) ApproxEqual(q Pose, tol float64) bool {
	if r3.Norm(r3.Sub(p.Position, q.Position)) > tol {
		return false
	}
	a, b := p.Orientation, q.Orientation
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	return math.Abs(math.Abs(dot)-1) <= tol
}

// String renders the pose compactly for logs.
func (p Pose) String() string {
	o := p.Orientation
	return fmt.Sprintf("pos=(%.3f,%.3f,%.3f) rot=(%.3f,%.3f,%.3f,%.3f)",
		p.Position.X, p.Position.Y, p.Position.Z, o.Real, o.Imag, o.Jmag, o.Kmag)
}
