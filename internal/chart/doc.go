// Package chart renders the daily anomaly chart: today's traffic-aware
// travel time against the weekday baseline for the same times of day,
// with a one-standard-deviation band around the baseline mean.
package chart
