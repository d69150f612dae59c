package departure

import (
	"math"
	"strings"
	"testing"
	"time"
)

// arrival is a Thursday 08:20 target, mirroring the school-run schedule.
var arrival = time.Date(2024, 10, 10, 8, 20, 0, 0, time.UTC)

const lead = 30 * time.Minute

func at(hour, minute int) time.Time {
	return time.Date(2024, 10, 10, hour, minute, 0, 0, time.UTC)
}

func TestAdvise_TriggersInsideLeadWindow(t *testing.T) {
	// Current 60 mins: leave by 07:20, notify from 06:50. Now is 07:05.
	d, ok := Advise(at(7, 5), arrival, 60, 50, lead, State{})
	if !ok {
		t.Fatal("Advise returned no decision, want notification")
	}
	if !strings.Contains(d.Message, "Leave by 07:20") {
		t.Errorf("message = %q, want recommended departure 07:20", d.Message)
	}
	if !strings.Contains(d.Message, "arrive for 08:20") {
		t.Errorf("message = %q, want arrival time named", d.Message)
	}
	if !strings.Contains(d.Message, "+10.0 mins vs typical") {
		t.Errorf("message = %q, want signed delta vs baseline", d.Message)
	}
	if math.Abs(d.DepartureMinutes-440) > 1e-9 {
		t.Errorf("DepartureMinutes = %.2f, want 440", d.DepartureMinutes)
	}
	if d.State.NotifiedDate != "2024-10-10" || d.State.NotifiedMinutes != d.DepartureMinutes {
		t.Errorf("post-decision state = %+v", d.State)
	}
}

func TestAdvise_TooEarlyBeforeLeadWindow(t *testing.T) {
	if _, ok := Advise(at(6, 30), arrival, 60, 50, lead, State{}); ok {
		t.Error("Advise before notify_at returned a decision")
	}
}

func TestAdvise_NeverRecommendsAPastDeparture(t *testing.T) {
	// At 07:30 a 60-minute drive means the 07:20 departure has passed.
	if _, ok := Advise(at(7, 30), arrival, 60, 50, lead, State{}); ok {
		t.Error("Advise recommended a departure that has already passed")
	}
}

func TestAdvise_RejectsWeekendTarget(t *testing.T) {
	saturdayArrival := time.Date(2024, 10, 12, 8, 20, 0, 0, time.UTC)
	if _, ok := Advise(saturdayArrival.Add(-time.Hour), saturdayArrival, 60, 50, lead, State{}); ok {
		t.Error("Advise produced a recommendation for a weekend target")
	}
}

func TestAdvise_ResendsOnlyWhenEarlier(t *testing.T) {
	first, ok := Advise(at(7, 5), arrival, 60, 50, lead, State{})
	if !ok {
		t.Fatal("initial notification missing")
	}

	// Traffic eased: leave by 07:40 is later than 07:20, so stay quiet.
	if _, ok := Advise(at(7, 10), arrival, 40, 50, lead, first.State); ok {
		t.Error("later recommendation on the same date was not suppressed")
	}

	// Traffic worsened: leave by 07:10 is earlier, so re-notify.
	d, ok := Advise(at(7, 6), arrival, 70, 50, lead, first.State)
	if !ok {
		t.Fatal("earlier recommendation was suppressed")
	}
	if d.DepartureMinutes >= first.DepartureMinutes {
		t.Errorf("resent DepartureMinutes = %.1f, want earlier than %.1f",
			d.DepartureMinutes, first.DepartureMinutes)
	}
}

func TestAdvise_ToleranceFiltersNoise(t *testing.T) {
	st := State{NotifiedDate: "2024-10-10", NotifiedMinutes: 440}
	// 60.05 mins puts the recommendation 0.05 min earlier, inside tolerance.
	if _, ok := Advise(at(7, 5), arrival, 60.05, 50, lead, st); ok {
		t.Error("recommendation within tolerance was resent")
	}
}

func TestAdvise_PriorDateDoesNotSuppress(t *testing.T) {
	st := State{NotifiedDate: "2024-10-09", NotifiedMinutes: 400}
	if _, ok := Advise(at(7, 5), arrival, 60, 50, lead, st); !ok {
		t.Error("notification keyed to a previous date suppressed today's notice")
	}
}

func TestAdvise_FasterThanTypicalMessage(t *testing.T) {
	d, ok := Advise(at(7, 35), arrival, 40, 50, lead, State{})
	if !ok {
		t.Fatal("expected decision")
	}
	if !strings.Contains(d.Message, "10.0 mins faster than typical") {
		t.Errorf("message = %q, want faster-than-typical delta", d.Message)
	}
}

func TestNextArrival(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before todays occurrence",
			now:  time.Date(2024, 10, 10, 6, 0, 0, 0, loc),
			want: time.Date(2024, 10, 10, 8, 20, 0, 0, loc),
		},
		{
			name: "after todays occurrence",
			now:  time.Date(2024, 10, 10, 9, 0, 0, 0, loc),
			want: time.Date(2024, 10, 11, 8, 20, 0, 0, loc),
		},
		{
			name: "friday evening skips to monday",
			now:  time.Date(2024, 10, 11, 9, 0, 0, 0, loc),
			want: time.Date(2024, 10, 14, 8, 20, 0, 0, loc),
		},
		{
			name: "saturday skips to monday",
			now:  time.Date(2024, 10, 12, 6, 0, 0, 0, loc),
			want: time.Date(2024, 10, 14, 8, 20, 0, 0, loc),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NextArrival(tc.now, 8, 20, loc)
			if !got.Equal(tc.want) {
				t.Errorf("NextArrival = %v, want %v", got, tc.want)
			}
		})
	}
}
