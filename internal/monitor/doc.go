// Package monitor runs the decision cycle: measure the commute, maintain
// the sample history, compare against the time-of-day baseline, and drive
// the anomaly and departure decisions through to notification.
package monitor
