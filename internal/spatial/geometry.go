package spatial

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Ray is a half-line from Origin along the unit vector Dir.
type Ray struct {
	Origin r3.Vec
	Dir    r3.Vec
}

// RayFrom returns the ray a viewer at p casts straight ahead.
func RayFrom(p Pose) Ray {
	return Ray{Origin: p.Position, Dir: r3.Unit(p.Forward())}
}

// Plane is a detected surface patch. Radius bounds the patch as a disc around
// Origin; zero means unbounded.
type Plane struct {
	Origin r3.Vec
	Normal r3.Vec
	Radius float64
}

// Horizontal returns an upward-facing plane at height y.
func Horizontal(y, radius float64) Plane {
	return Plane{Origin: r3.Vec{Y: y}, Normal: r3.Vec{Y: 1}, Radius: radius}
}

// Intersect returns the point where r meets the plane's front face and the
// distance along the ray. Hits on the back face, behind the origin, or
// outside Radius report false.
func (pl Plane) Intersect(r Ray) (r3.Vec, float64, bool) {
	n := r3.Unit(pl.Normal)
	denom := r3.Dot(n, r.Dir)
	if denom > -1e-9 {
		return r3.Vec{}, 0, false
	}
	t := r3.Dot(r3.Sub(pl.Origin, r.Origin), n) / denom
	if t <= 0 || math.IsInf(t, 0) || math.IsNaN(t) {
		return r3.Vec{}, 0, false
	}
	hit := r3.Add(r.Origin, r3.Scale(t, r.Dir))
	if pl.Radius > 0 && r3.Norm(r3.Sub(hit, pl.Origin)) > pl.Radius {
		return r3.Vec{}, 0, false
	}
	return hit, t, true
}

// SurfacePose returns the pose of a hit on the plane: positioned at the hit
// point with +Y along the surface normal.
func (pl Plane) SurfacePose(hit r3.Vec) Pose {
	return Pose{Position: hit, Orientation: FromTo(r3.Vec{Y: 1}, r3.Unit(pl.Normal))}
}

// FromTo returns the shortest rotation taking unit vector a onto unit vector b.
func FromTo(a, b r3.Vec) quat.Number {
	d := r3.Dot(a, b)
	switch {
	case d > 1-1e-9:
		return quat.Number{Real: 1}
	case d < -1+1e-9:
		// Opposite vectors: rotate half a turn about any axis orthogonal to a.
		axis := r3.Cross(r3.Vec{X: 1}, a)
		if r3.Norm(axis) < 1e-6 {
			axis = r3.Cross(r3.Vec{Y: 1}, a)
		}
		axis = r3.Unit(axis)
		return quat.Number{Imag: axis.X, Jmag: axis.Y, Kmag: axis.Z}
	}
	c := r3.Cross(a, b)
	q := quat.Number{Real: 1 + d, Imag: c.X, Jmag: c.Y, Kmag: c.Z}
	return quat.Scale(1/quat.Abs(q), q)
}

// AxisAngle returns the rotation of angle radians about axis.
func AxisAngle(axis r3.Vec, angle float64) quat.Number {
	return quat.Number(r3.NewRotation(angle, axis))
}
