package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "routepulse_"

	resultSuccess = "success"
	resultError   = "error"

	alertPattern   = "pattern"
	alertDeparture = "departure"
)

var (
	registerOnce sync.Once

	cyclesTotal  *prometheus.CounterVec
	cycleLatency prometheus.Histogram

	samplesTotal prometheus.Counter
	alertsTotal  *prometheus.CounterVec
	notifyErrors prometheus.Counter

	trafficMinutes  prometheus.Gauge
	baselineMinutes prometheus.Gauge
	integralHigh    prometheus.Gauge
	integralLow     prometheus.Gauge
)

// Init registers the monitor metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		cyclesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cycles_total",
				Help: "Total monitor cycles by result",
			},
			[]string{"result"},
		)
		cycleLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "cycle_latency_seconds",
				Help:    "Monitor cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)

		samplesTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "samples_appended_total",
				Help: "Total traffic samples appended to history",
			},
		)
		alertsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_total",
				Help: "Total alerts raised by kind",
			},
			[]string{"kind"},
		)
		notifyErrors = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "notify_errors_total",
				Help: "Total failed notification deliveries",
			},
		)

		trafficMinutes = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "traffic_duration_minutes",
				Help: "Latest traffic-aware travel time in minutes",
			},
		)
		baselineMinutes = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "baseline_duration_minutes",
				Help: "Latest baseline travel time in minutes",
			},
		)
		integralHigh = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "anomaly_integral_high",
				Help: "Accumulated slower-than-baseline deviation in deviation-minutes",
			},
		)
		integralLow = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "anomaly_integral_low",
				Help: "Accumulated faster-than-baseline deviation in deviation-minutes",
			},
		)

		prometheus.MustRegister(
			cyclesTotal,
			cycleLatency,
			samplesTotal,
			alertsTotal,
			notifyErrors,
			trafficMinutes,
			baselineMinutes,
			integralHigh,
			integralLow,
		)
	})
}

// ObserveCycle records one monitor cycle's result and duration.
func ObserveCycle(err error, duration time.Duration) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if cyclesTotal != nil {
		cyclesTotal.WithLabelValues(result).Inc()
	}
	if cycleLatency != nil {
		cycleLatency.Observe(duration.Seconds())
	}
}

// IncSampleAppended counts one sample written to history.
func IncSampleAppended() {
	if samplesTotal != nil {
		samplesTotal.Inc()
	}
}

// IncPatternAlert counts one anomaly pattern alert.
func IncPatternAlert() {
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(alertPattern).Inc()
	}
}

// IncDepartureAlert counts one departure advice notification.
func IncDepartureAlert() {
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(alertDeparture).Inc()
	}
}

// IncNotifyError counts one failed notification delivery.
func IncNotifyError() {
	if notifyErrors != nil {
		notifyErrors.Inc()
	}
}

// SetDurations publishes the latest measured and baseline travel times.
// A non-positive baseline clears the baseline gauge.
func SetDurations(traffic, baseline float64) {
	if trafficMinutes != nil {
		trafficMinutes.Set(traffic)
	}
	if baselineMinutes != nil {
		if baseline > 0 {
			baselineMinutes.Set(baseline)
		} else {
			baselineMinutes.Set(0)
		}
	}
}

// SetIntegrals publishes the anomaly integrator's accumulators.
func SetIntegrals(high, low float64) {
	if integralHigh != nil {
		integralHigh.Set(high)
	}
	if integralLow != nil {
		integralLow.Set(low)
	}
}

// Handler returns the HTTP handler serving /metrics and /healthz.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}
