package departure

import (
	"fmt"
	"time"

	"github.com/routepulse/routepulse/internal/anomaly"
	"github.com/routepulse/routepulse/internal/sample"
)

// resendTolerance is how much earlier (in minutes) a new recommendation must
// be before it is worth re-alerting. Filters floating-point churn.
const resendTolerance = 0.1

// clockLayout renders instants as wall-clock times in messages.
const clockLayout = "15:04"

// State is the persisted record of the most urgent departure already
// communicated for a target arrival date.
type State struct {
	// NotifiedDate is the target arrival date (anomaly.DateLayout) the last
	// notice was sent for. Empty means never notified.
	NotifiedDate string

	// NotifiedMinutes is the recommended-departure minutes-since-midnight
	// communicated for NotifiedDate.
	NotifiedMinutes float64
}

// Decision is a departure recommendation ready to send.
type Decision struct {
	// Message is the notification text.
	Message string

	// DepartureMinutes is the recommended departure as minutes since
	// midnight on the target date.
	DepartureMinutes float64

	// State is the post-decision advisor state.
	State State
}

// Advise decides whether to recommend a departure time now.
//
// No recommendation is made for weekend targets, recommendations that have
// already passed, or instants earlier than lead time before the recommended
// departure. A repeat notice for the same target date is only produced when
// the new recommendation is more than resendTolerance minutes earlier than
// the one already sent. ok is false when nothing should be sent.
func Advise(now, targetArrival time.Time, currentMinutes, baselineMinutes float64, lead time.Duration, st State) (Decision, bool) {
	if sample.IsWeekend(targetArrival) {
		return Decision{}, false
	}

	recommended := targetArrival.Add(-minutesDuration(currentMinutes))
	if !recommended.After(now) {
		// Too late for the notice to be useful.
		return Decision{}, false
	}
	if now.Before(recommended.Add(-lead)) {
		// Too early; a later cycle will catch the window.
		return Decision{}, false
	}

	targetDate := targetArrival.Format(anomaly.DateLayout)
	recommendedMinutes := sample.MinutesSinceMidnight(recommended)
	if st.NotifiedDate == targetDate && recommendedMinutes >= st.NotifiedMinutes-resendTolerance {
		// Already told the user to leave this early or earlier.
		return Decision{}, false
	}

	baselineDeparture := targetArrival.Add(-minutesDuration(baselineMinutes))
	delta := currentMinutes - baselineMinutes
	var deltaText string
	if delta >= 0 {
		deltaText = fmt.Sprintf("+%.1f mins vs typical", delta)
	} else {
		deltaText = fmt.Sprintf("%.1f mins faster than typical", -delta)
	}

	msg := fmt.Sprintf("Leave by %s to arrive for %s (baseline %s, %s).",
		recommended.Format(clockLayout),
		targetArrival.Format(clockLayout),
		baselineDeparture.Format(clockLayout),
		deltaText,
	)
	return Decision{
		Message:          msg,
		DepartureMinutes: recommendedMinutes,
		State: State{
			NotifiedDate:    targetDate,
			NotifiedMinutes: recommendedMinutes,
		},
	}, true
}

// NextArrival resolves the next occurrence of the fixed arrival time of day
// (hour, minute) in loc, moving to the next day when today's occurrence has
// passed and skipping weekend days entirely.
func NextArrival(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if local.After(candidate) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	for sample.IsWeekend(candidate) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func minutesDuration(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}
