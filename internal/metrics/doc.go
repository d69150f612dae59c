// Package metrics exposes Prometheus instrumentation for the monitor:
// cycle outcomes, alert deliveries, and the latest measured and baseline
// travel times. The /metrics and /healthz endpoints are only served in
// watch mode.
package metrics
