// Package spatial holds the rigid-transform value types shared by the
// placement core: Pose, Anchor, and the ray/plane geometry the simulated
// platform uses for hit-testing.
//
// Coordinate convention: right-handed, Y up, viewer looks down -Z. Matrices
// are [16]float64 row-major (m00,m01,m02,m03, m10,...), matching ApplyMatrix.
//
// No package in the placement core mutates a Pose in place; every frame
// produces a fresh value.
package spatial
