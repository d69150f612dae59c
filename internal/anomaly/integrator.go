package anomaly

import (
	"fmt"
	"math"
	"time"

	"github.com/routepulse/routepulse/internal/sample"
)

// Default integrator tuning. With a 5-minute sample cadence a deviation of
// ten minutes over the 2-minute deadband crosses the 180 threshold on the
// fifth consecutive sample.
const (
	DefaultDeadbandMinutes        = 2.0
	DefaultIntegralThreshold      = 180.0
	DefaultDecayHalfLifeMinutes   = 240.0
	DefaultNominalIntervalMinutes = 5.0
	DefaultMaxGapMinutes          = 60.0
)

// epsilon is the magnitude below which an idle accumulator snaps to zero.
const epsilon = 1e-9

// DateLayout is the calendar-date form used for alert suppression keys.
const DateLayout = "2006-01-02"

// State is the persisted integrator state carried between cycles.
// At most one of IntegralHigh/IntegralLow is non-zero at any time.
type State struct {
	// IntegralHigh accumulates deviation-minutes while travel time runs
	// longer than baseline.
	IntegralHigh float64

	// IntegralLow accumulates deviation-minutes while travel time runs
	// shorter than baseline.
	IntegralLow float64

	// LastSample is when the integrator last observed a sample.
	// Zero means no prior observation.
	LastSample time.Time

	// LastAlertDate is the calendar date (DateLayout) of the most recent
	// pattern alert. Empty means never alerted.
	LastAlertDate string
}

// Params tunes the integrator. All values are in minutes except
// IntegralThreshold, which is in deviation-minutes.
type Params struct {
	// DeadbandMinutes is the tolerance band around baseline ignored as noise.
	DeadbandMinutes float64

	// IntegralThreshold is the accumulated deviation that triggers an alert.
	IntegralThreshold float64

	// DecayHalfLifeMinutes is the e-folding time of the accumulator decay.
	DecayHalfLifeMinutes float64

	// NominalIntervalMinutes stands in for elapsed time on the first
	// observation or after a clock anomaly.
	NominalIntervalMinutes float64

	// MaxGapMinutes caps elapsed time so a long outage cannot inject an
	// outsized decay or contribution in one step.
	MaxGapMinutes float64
}

// Decision is the outcome of one integrator evaluation.
type Decision struct {
	// Message is the alert text; empty when no alert fired.
	Message string

	// Alerted reports whether a pattern alert fired this observation.
	Alerted bool

	// State is the post-observation integrator state.
	State State

	// Changed reports whether State differs from the input state and should
	// be persisted. Decay alone counts as a change.
	Changed bool
}

// Evaluate folds one observation into the integrator.
//
// Weekend samples and absent or non-positive baselines produce no alert and
// no mutation. Otherwise both accumulators decay by exp(-elapsed/halfLife),
// the out-of-deadband deviation (if any) contributes deviation x elapsed to
// the active direction while zeroing the other, and an alert fires once the
// active integral reaches the threshold, at most once per calendar day in
// sampleTime's zone. Firing resets both accumulators.
func Evaluate(sampleTime time.Time, currentMinutes, baselineMinutes float64, st State, p Params) Decision {
	if baselineMinutes <= 0 || sample.IsWeekend(sampleTime) {
		return Decision{State: st}
	}

	elapsed := p.NominalIntervalMinutes
	if !st.LastSample.IsZero() {
		if d := sampleTime.Sub(st.LastSample).Minutes(); d > 0 {
			elapsed = d
		}
	}
	if elapsed > p.MaxGapMinutes {
		elapsed = p.MaxGapMinutes
	}

	next := st
	decay := math.Exp(-elapsed / p.DecayHalfLifeMinutes)
	next.IntegralHigh *= decay
	next.IntegralLow *= decay
	next.LastSample = sampleTime

	deviation := currentMinutes - baselineMinutes
	var active float64
	var direction string
	switch {
	case deviation > p.DeadbandMinutes:
		next.IntegralHigh += (deviation - p.DeadbandMinutes) * elapsed
		next.IntegralLow = 0
		active = next.IntegralHigh
		direction = "longer"
	case deviation < -p.DeadbandMinutes:
		next.IntegralLow += (-deviation - p.DeadbandMinutes) * elapsed
		next.IntegralHigh = 0
		active = next.IntegralLow
		direction = "shorter"
	default:
		if next.IntegralHigh < epsilon {
			next.IntegralHigh = 0
		}
		if next.IntegralLow < epsilon {
			next.IntegralLow = 0
		}
		return Decision{State: next, Changed: next != st}
	}

	if active < p.IntegralThreshold {
		return Decision{State: next, Changed: next != st}
	}

	today := sampleTime.Format(DateLayout)
	if next.LastAlertDate == today {
		// Already alerted today; keep accumulating silently.
		return Decision{State: next, Changed: next != st}
	}

	msg := fmt.Sprintf(
		"Traffic pattern changed: %.1f mins %s than normal (baseline %.1f mins).",
		math.Abs(deviation), direction, baselineMinutes,
	)
	next.IntegralHigh = 0
	next.IntegralLow = 0
	next.LastAlertDate = today
	return Decision{Message: msg, Alerted: true, State: next, Changed: true}
}
