package baseline

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/routepulse/routepulse/internal/sample"
)

// Default knobs applied by config when the file omits them.
const (
	DefaultMaxWeekdays   = 5
	DefaultBucketMinutes = 5
	DefaultSmoothingSpan = 5
)

// Options controls the bucket EMA estimator. All fields must be positive.
type Options struct {
	// MaxWeekdays is how many of the most recent qualifying days feed the EMA.
	MaxWeekdays int

	// BucketMinutes is the width of a time-of-day bucket.
	BucketMinutes int

	// SmoothingSpan sets the EMA smoothing factor alpha = 2/(span+1).
	SmoothingSpan int
}

func (o Options) validate() error {
	if o.MaxWeekdays <= 0 {
		return fmt.Errorf("baseline: max_weekdays must be positive, got %d", o.MaxWeekdays)
	}
	if o.BucketMinutes <= 0 {
		return fmt.Errorf("baseline: bucket_minutes must be positive, got %d", o.BucketMinutes)
	}
	if o.SmoothingSpan <= 0 {
		return fmt.Errorf("baseline: smoothing_span must be positive, got %d", o.SmoothingSpan)
	}
	return nil
}

// Estimate computes the expected traffic duration for targetDeparture's
// time-of-day bucket from historical weekday samples.
//
// Only weekday samples whose departure date falls strictly before the target
// date participate; same-day and future samples never leak into the
// baseline. Samples on the same calendar day are averaged before smoothing.
// ok is false when no qualifying day exists; the caller picks a fallback.
func Estimate(history []sample.Sample, targetDeparture time.Time, opts Options) (value float64, ok bool, err error) {
	if err := opts.validate(); err != nil {
		return 0, false, err
	}

	loc := targetDeparture.Location()
	targetBucket := bucketIndex(targetDeparture, opts.BucketMinutes)
	targetDate := dateKey(targetDeparture)

	byDay := make(map[int][]float64)
	for _, s := range history {
		departure := s.DepartureTime.In(loc)
		if sample.IsWeekend(departure) {
			continue
		}
		day := dateKey(departure)
		if day >= targetDate {
			continue
		}
		if bucketIndex(departure, opts.BucketMinutes) != targetBucket {
			continue
		}
		byDay[day] = append(byDay[day], s.TrafficMinutes)
	}
	if len(byDay) == 0 {
		return 0, false, nil
	}

	days := make([]int, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Ints(days)
	if len(days) > opts.MaxWeekdays {
		days = days[len(days)-opts.MaxWeekdays:]
	}

	values := make([]float64, len(days))
	for i, day := range days {
		values[i] = mean(byDay[day])
	}
	return ema(values, opts.SmoothingSpan), true, nil
}

// Median returns the median traffic duration across samples.
// ok is false for an empty slice.
func Median(samples []sample.Sample) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	durations := make([]float64, len(samples))
	for i, s := range samples {
		durations[i] = s.TrafficMinutes
	}
	sort.Float64s(durations)
	mid := len(durations) / 2
	if len(durations)%2 == 1 {
		return durations[mid], true
	}
	return (durations[mid-1] + durations[mid]) / 2, true
}

// FilterRecentWeekdays keeps weekday samples whose query time is within the
// trailing window of the given number of weeks before reference.
func FilterRecentWeekdays(samples []sample.Sample, reference time.Time, weeks int) []sample.Sample {
	cutoff := reference.Add(-time.Duration(weeks) * 7 * 24 * time.Hour)
	var out []sample.Sample
	for _, s := range samples {
		if s.QueryTime.Before(cutoff) {
			continue
		}
		if sample.IsWeekend(s.DepartureTime) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// TimeOfDayStats returns the mean and population standard deviation of
// traffic durations for samples departing within toleranceMinutes of
// targetMinutes (minutes since midnight). ok is false when fewer than two
// samples match or the deviation is zero, too little signal for a
// meaningful band.
func TimeOfDayStats(samples []sample.Sample, targetMinutes, toleranceMinutes float64) (avg, stdev float64, ok bool) {
	var values []float64
	for _, s := range samples {
		if math.Abs(sample.MinutesSinceMidnight(s.DepartureTime)-targetMinutes) <= toleranceMinutes {
			values = append(values, s.TrafficMinutes)
		}
	}
	if len(values) < 2 {
		return 0, 0, false
	}
	m := mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	sd := math.Sqrt(sumSq / float64(len(values)))
	if sd == 0 {
		return 0, 0, false
	}
	return m, sd, true
}

// bucketIndex maps a departure instant to its time-of-day bucket.
func bucketIndex(t time.Time, bucketMinutes int) int {
	return int(sample.MinutesSinceMidnight(t)) / bucketMinutes
}

// dateKey flattens a calendar date to a sortable int (YYYYMMDD).
func dateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

func mean(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// ema smooths values in order. The first value seeds the average; a single
// value is returned unchanged regardless of span.
func ema(values []float64, span int) float64 {
	if len(values) == 1 {
		return values[0]
	}
	alpha := 2.0 / (float64(span) + 1.0)
	smoothed := values[0]
	for _, v := range values[1:] {
		smoothed = alpha*v + (1-alpha)*smoothed
	}
	return smoothed
}
