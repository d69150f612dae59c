// Package departure decides when to tell the user to leave.
//
// Advise works backwards from a target arrival instant using the live
// travel time, opens a notification window one lead time before the
// recommended departure, and re-notifies for the same target date only when
// the recommendation moves meaningfully earlier; urgency only ever
// increases. NextArrival resolves a fixed arrival time-of-day to its next
// weekday occurrence.
package departure
