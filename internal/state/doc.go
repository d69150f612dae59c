// Package state persists the notification state shared by the anomaly
// integrator and the departure advisor.
//
// The state is one small JSON object loaded once at the start of a cycle
// and written back atomically at the end, only if a decision mutated it.
// A missing or corrupt file is the default state, never an error; losing
// the file costs at worst one duplicate notification.
package state
