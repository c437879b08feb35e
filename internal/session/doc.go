// Package session owns the immersive tracking session: acquisition of the
// session, its viewer and local reference spaces and the hit-test source,
// the hand-off to the frame presenter, and the single teardown path every
// ending converges on.
//
// Acquisition order is fixed: session (with local and hit-test required),
// viewer space, local space, hit-test source on the viewer space, presenter
// attach. Each step honours the Start context and fails with its own
// xr.Stage so callers can tell the user what went wrong.
//
// Exactly one end observer is registered per session. Whether the app calls
// End, acquisition fails, or the platform drops the session on its own, the
// observer (or, if the platform stays silent past EndTimeout, a forced call
// to the same function) runs teardown once and emits one Report.
package session
