// Package sim provides a deterministic in-process tracking platform for
// tests, demos and the anchord daemon.
//
// The simulated environment is a set of planes. Each frame the hit-test
// source casts a ray from the live viewer pose and reports the nearest
// front-facing intersection. Failure injection covers every acquisition
// step, and any step can be held open to exercise cancellation. Resource
// counters let tests prove acquisitions and releases pair up 1:1.
package sim
