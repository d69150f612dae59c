// Package baseline estimates the expected travel time for a time-of-day
// slot from historical weekday samples.
//
// Estimate buckets history by minutes-since-midnight, averages each
// calendar day's bucket, and smooths the most recent days with an
// exponential moving average. It never looks at samples dated on or after
// the target date. Median over the FilterRecentWeekdays window is the
// fallback when no bucketed history exists; TimeOfDayStats provides the
// coarser whole-window statistics for status reporting.
package baseline
