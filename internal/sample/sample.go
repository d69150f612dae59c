package sample

import (
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp layouts accepted for query_time / departure_time. Legacy records
// were written without a UTC offset; those are interpreted in the caller's
// fallback zone.
var tsLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// Sample is one travel-time observation for an origin/destination pair.
// Samples are immutable once written. The JSONL wire format is owned by
// record; Sample itself is never marshalled directly.
type Sample struct {
	// QueryTime is when the routing provider was asked. Ordering key.
	QueryTime time.Time

	// DepartureTime is the departure instant the durations were computed for.
	DepartureTime time.Time

	Origin      string
	Destination string

	// ClearMinutes is the free-flow travel time in minutes.
	ClearMinutes float64

	// TrafficMinutes is the live (traffic-aware) travel time in minutes.
	TrafficMinutes float64
}

// MarshalLine renders the sample as a single JSONL record.
func (s Sample) MarshalLine() ([]byte, error) {
	return json.Marshal(record{
		QueryTime:      s.QueryTime.Format(time.RFC3339),
		DepartureTime:  s.DepartureTime.Format(time.RFC3339),
		Origin:         s.Origin,
		Destination:    s.Destination,
		ClearMinutes:   &s.ClearMinutes,
		TrafficMinutes: &s.TrafficMinutes,
	})
}

// record is the wire form of Sample. Pointer fields distinguish
// missing from zero so the validating parser can reject incomplete lines.
type record struct {
	QueryTime      string   `json:"query_time"`
	DepartureTime  string   `json:"departure_time"`
	Origin         string   `json:"origin"`
	Destination    string   `json:"destination"`
	ClearMinutes   *float64 `json:"clear_duration_mins,omitempty"`
	TrafficMinutes *float64 `json:"traffic_duration_mins,omitempty"`
}

// ParseLine parses one JSONL record into a Sample. Timestamps without an
// offset are interpreted in fallback. An error means the line should be
// skipped; it is a data-quality problem, never fatal to the series.
func ParseLine(line []byte, fallback *time.Location) (Sample, error) {
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Sample{}, fmt.Errorf("sample: decode line: %w", err)
	}
	if rec.QueryTime == "" || rec.DepartureTime == "" ||
		rec.Origin == "" || rec.Destination == "" || rec.TrafficMinutes == nil {
		return Sample{}, fmt.Errorf("sample: record missing required fields")
	}
	query, err := parseTimestamp(rec.QueryTime, fallback)
	if err != nil {
		return Sample{}, err
	}
	departure, err := parseTimestamp(rec.DepartureTime, fallback)
	if err != nil {
		return Sample{}, err
	}
	s := Sample{
		QueryTime:      query,
		DepartureTime:  departure,
		Origin:         rec.Origin,
		Destination:    rec.Destination,
		TrafficMinutes: *rec.TrafficMinutes,
	}
	if rec.ClearMinutes != nil {
		s.ClearMinutes = *rec.ClearMinutes
	}
	return s, nil
}

func parseTimestamp(value string, fallback *time.Location) (time.Time, error) {
	if fallback == nil {
		fallback = time.UTC
	}
	for _, layout := range tsLayouts {
		if t, err := time.ParseInLocation(layout, value, fallback); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("sample: unparseable timestamp %q", value)
}

// IsWeekend reports whether t falls on Saturday or Sunday.
// Baseline and alerting computations only consider weekday samples.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// MinutesSinceMidnight returns t's offset from its own local midnight in
// fractional minutes.
func MinutesSinceMidnight(t time.Time) float64 {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return t.Sub(midnight).Minutes()
}
