// Package testutil provides shared test fixtures: a standard scene for the
// simulated platform and approximate pose comparison.
package testutil

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/anchorpoint/internal/spatial"
)

// PoseTolerance is the default absolute tolerance for pose comparisons.
const PoseTolerance = 1e-9

// ViewerHeight is the camera height used by LookingDown.
const ViewerHeight = 1.5

// Floor returns an unbounded floor at y=0.
func Floor() []spatial.Plane {
	return []spatial.Plane{spatial.Horizontal(0, 0)}
}

// LookingDown is a camera at (x, ViewerHeight, 0) pitched 45 degrees down,
// so its ray meets the floor at (x, 0, -ViewerHeight).
func LookingDown(x float64) spatial.Pose {
	return spatial.NewPose(r3.Vec{X: x, Y: ViewerHeight}, spatial.AxisAngle(r3.Vec{X: 1}, -math.Pi/4))
}

// PoseDiff returns a human-readable diff between want and got, treating
// components within tol as equal. An empty string means they match.
// Orientations are compared component-wise, so q and -q differ.
func PoseDiff(want, got spatial.Pose, tol float64) string {
	return cmp.Diff(want, got, cmpopts.EquateApprox(0, tol))
}

// AssertPoseNear fails t when got differs from want by more than tol.
func AssertPoseNear(t testing.TB, want, got spatial.Pose, tol float64) {
	t.Helper()
	if diff := PoseDiff(want, got, tol); diff != "" {
		t.Errorf("pose mismatch (-want +got):\n%s", diff)
	}
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}
