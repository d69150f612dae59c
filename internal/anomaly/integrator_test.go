package anomaly

import (
	"math"
	"strings"
	"testing"
	"time"
)

// baseTime is a Thursday so weekday gating does not interfere.
var baseTime = time.Date(2024, 10, 10, 7, 30, 0, 0, time.UTC)

// tick returns baseTime advanced by n minutes.
func tick(n int) time.Time {
	return baseTime.Add(time.Duration(n) * time.Minute)
}

var params = Params{
	DeadbandMinutes:        2,
	IntegralThreshold:      180,
	DecayHalfLifeMinutes:   240,
	NominalIntervalMinutes: 5,
	MaxGapMinutes:          60,
}

func TestEvaluate_SingleSpikeDoesNotAlert(t *testing.T) {
	d := Evaluate(tick(0), 60, 50, State{}, params)

	if d.Alerted {
		t.Fatalf("single sample alerted: %q", d.Message)
	}
	if !d.Changed {
		t.Error("contribution did not mark state changed")
	}
	// First observation defaults elapsed to the nominal interval:
	// (10 - 2) * 5 = 40 deviation-minutes.
	if !almostEqual(d.State.IntegralHigh, 40, 1e-9) {
		t.Errorf("IntegralHigh = %.4f, want 40", d.State.IntegralHigh)
	}
}

func TestEvaluate_SustainedDeviationAlertsOnFifthSample(t *testing.T) {
	st := State{}
	for i := 0; i < 4; i++ {
		d := Evaluate(tick(i*5), 60, 50, st, params)
		if d.Alerted {
			t.Fatalf("sample %d alerted early (integral %.1f)", i+1, d.State.IntegralHigh)
		}
		st = d.State
	}

	d := Evaluate(tick(20), 60, 50, st, params)
	if !d.Alerted {
		t.Fatalf("fifth sample did not alert (integral %.1f)", d.State.IntegralHigh)
	}
	if !strings.Contains(d.Message, "longer") {
		t.Errorf("message = %q, want direction %q named", d.Message, "longer")
	}
	if d.State.IntegralHigh != 0 || d.State.IntegralLow != 0 {
		t.Errorf("integrals not reset after alert: high=%.2f low=%.2f",
			d.State.IntegralHigh, d.State.IntegralLow)
	}
	if d.State.LastAlertDate != baseTime.Format(DateLayout) {
		t.Errorf("LastAlertDate = %q, want %q", d.State.LastAlertDate, baseTime.Format(DateLayout))
	}
}

func TestEvaluate_AtMostOneAlertPerDay(t *testing.T) {
	st := State{}
	alerts := 0
	// Three hours of a badly degraded commute, every 5 minutes.
	for i := 0; i < 36; i++ {
		d := Evaluate(tick(i*5), 70, 50, st, params)
		if d.Alerted {
			alerts++
		}
		st = d.State
	}
	if alerts != 1 {
		t.Fatalf("alerts on one day = %d, want 1", alerts)
	}

	// The next day the suppression window is over.
	nextDay := baseTime.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ {
		d := Evaluate(nextDay.Add(time.Duration(i*5)*time.Minute), 70, 50, st, params)
		if d.Alerted {
			alerts++
			break
		}
		st = d.State
	}
	if alerts != 2 {
		t.Errorf("no alert on the following day")
	}
}

func TestEvaluate_DirectionsAreMutuallyExclusive(t *testing.T) {
	st := State{}
	d := Evaluate(tick(0), 60, 50, st, params) // longer
	if d.State.IntegralHigh <= 0 || d.State.IntegralLow != 0 {
		t.Fatalf("after longer: high=%.2f low=%.2f", d.State.IntegralHigh, d.State.IntegralLow)
	}

	d = Evaluate(tick(5), 40, 50, d.State, params) // shorter
	if d.State.IntegralHigh != 0 {
		t.Errorf("entering shorter direction left IntegralHigh = %.2f, want 0", d.State.IntegralHigh)
	}
	if d.State.IntegralLow <= 0 {
		t.Errorf("IntegralLow = %.2f, want > 0", d.State.IntegralLow)
	}
}

func TestEvaluate_DecayIsMonotonicTowardsZero(t *testing.T) {
	st := Evaluate(tick(0), 60, 50, State{}, params).State
	prev := st.IntegralHigh
	// Samples back inside the deadband: no contribution, only decay.
	for i := 1; i <= 12; i++ {
		d := Evaluate(tick(i*5), 50, 50, st, params)
		if !d.Changed {
			t.Fatalf("step %d: decay not recorded as a mutation", i)
		}
		if d.State.IntegralHigh > prev {
			t.Fatalf("step %d: integral grew from %.4f to %.4f without contribution",
				i, prev, d.State.IntegralHigh)
		}
		prev = d.State.IntegralHigh
		st = d.State
	}
	if prev >= 40 {
		t.Errorf("integral after an hour of decay = %.4f, want well below 40", prev)
	}
}

func TestEvaluate_TinyIntegralSnapsToZero(t *testing.T) {
	st := State{IntegralHigh: 1e-12, LastSample: tick(0)}
	d := Evaluate(tick(5), 50, 50, st, params)
	if d.State.IntegralHigh != 0 {
		t.Errorf("IntegralHigh = %v, want exactly 0", d.State.IntegralHigh)
	}
}

func TestEvaluate_WeekendProducesNoMutation(t *testing.T) {
	saturday := time.Date(2024, 10, 12, 7, 30, 0, 0, time.UTC)
	st := State{IntegralHigh: 100, LastSample: saturday.Add(-5 * time.Minute)}

	d := Evaluate(saturday, 90, 50, st, params)
	if d.Alerted || d.Changed || d.State != st {
		t.Errorf("weekend sample mutated state: %+v", d)
	}
}

func TestEvaluate_MissingBaselineProducesNoMutation(t *testing.T) {
	st := State{IntegralHigh: 100, LastSample: tick(0)}
	for _, baseline := range []float64{0, -3} {
		d := Evaluate(tick(5), 60, baseline, st, params)
		if d.Alerted || d.Changed || d.State != st {
			t.Errorf("baseline %.0f mutated state: %+v", baseline, d)
		}
	}
}

func TestEvaluate_ElapsedIsClampedToMaxGap(t *testing.T) {
	st := State{LastSample: tick(0)}
	// Ten hours of outage, then one bad sample. Elapsed must clamp to 60.
	d := Evaluate(tick(600), 60, 50, st, params)
	want := (10.0 - 2.0) * params.MaxGapMinutes
	if !almostEqual(d.State.IntegralHigh, want, 1e-9) {
		t.Errorf("IntegralHigh = %.2f, want %.2f (elapsed clamped)", d.State.IntegralHigh, want)
	}
}

func TestEvaluate_OutOfOrderSampleUsesNominalInterval(t *testing.T) {
	st := State{LastSample: tick(10)}
	d := Evaluate(tick(5), 60, 50, st, params) // clock went backwards
	want := (10.0 - 2.0) * params.NominalIntervalMinutes
	if !almostEqual(d.State.IntegralHigh, want, 1e-9) {
		t.Errorf("IntegralHigh = %.2f, want %.2f (nominal elapsed)", d.State.IntegralHigh, want)
	}
}

func TestEvaluate_ShorterDirectionMessage(t *testing.T) {
	st := State{IntegralLow: 500, LastSample: tick(0)}
	d := Evaluate(tick(5), 30, 50, st, params)
	if !d.Alerted {
		t.Fatal("expected alert in shorter direction")
	}
	if !strings.Contains(d.Message, "shorter") || !strings.Contains(d.Message, "50.0") {
		t.Errorf("message = %q, want direction and baseline named", d.Message)
	}
}

func almostEqual(a, b, tol float64) bool { return math.Abs(a-b) <= tol }
