// Package anomaly detects sustained shifts in travel time with a
// leaky-bucket deviation integrator.
//
// Each observation's deviation from baseline, less a noise deadband, is
// integrated over elapsed time; the accumulator decays exponentially
// between observations so stale evidence is forgotten. An alert fires when
// the accumulated deviation crosses a threshold, at most once per calendar
// day. Evaluate is a pure function, state in and decision plus new state out,
// so the caller owns persistence and the tests own the clock.
package anomaly
