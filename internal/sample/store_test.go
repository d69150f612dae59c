package sample

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeSeries(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "series.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const (
	olderLine = `{"query_time":"2024-10-10T07:55:00+00:00","departure_time":"2024-10-10T08:00:00+00:00","origin":"Origin","destination":"Destination","clear_duration_mins":14,"traffic_duration_mins":17}`
	newerLine = `{"query_time":"2024-10-11T07:55:00+00:00","departure_time":"2024-10-11T08:00:00+00:00","origin":"Origin","destination":"Destination","clear_duration_mins":15,"traffic_duration_mins":18}`
)

func TestLoad_SortsByQueryTime(t *testing.T) {
	st := NewStore(writeSeries(t, newerLine, olderLine), time.UTC)

	samples, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("len = %d, want 2", len(samples))
	}
	if !samples[0].QueryTime.Before(samples[1].QueryTime) {
		t.Errorf("samples not sorted: %v then %v", samples[0].QueryTime, samples[1].QueryTime)
	}
	if samples[0].TrafficMinutes != 17 {
		t.Errorf("first sample TrafficMinutes = %.1f, want 17", samples[0].TrafficMinutes)
	}
}

func TestLoad_SkipsBlankMalformedAndIncomplete(t *testing.T) {
	missingDeparture := `{"query_time":"2024-10-10T07:55:00+00:00","origin":"Origin","destination":"Destination","traffic_duration_mins":18}`
	st := NewStore(writeSeries(t, "", missingDeparture, "{bad json", newerLine), time.UTC)

	samples, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("len = %d, want 1 (only the valid line)", len(samples))
	}
}

func TestLoad_MissingFileIsEmptySeries(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "absent.jsonl"), time.UTC)
	samples, err := st.Load()
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("len = %d, want 0", len(samples))
	}
}

func TestLoad_NaiveTimestampsUseFallbackZone(t *testing.T) {
	zone := time.FixedZone("BST", 3600)
	naive := `{"query_time":"2024-10-10T07:55:00","departure_time":"2024-10-10T08:00:00","origin":"O","destination":"D","traffic_duration_mins":18}`
	st := NewStore(writeSeries(t, naive, newerLine), zone)

	samples, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("len = %d, want 2", len(samples))
	}
	_, offset := samples[0].QueryTime.Zone()
	if offset != 3600 {
		t.Errorf("naive timestamp offset = %d, want 3600", offset)
	}
}

func TestLoad_DuplicateTimestampsRetained(t *testing.T) {
	st := NewStore(writeSeries(t, olderLine, olderLine), time.UTC)
	samples, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(samples) != 2 {
		t.Errorf("len = %d, want 2 (duplicates kept)", len(samples))
	}
}

func TestAppend_RoundTrips(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "nested", "series.jsonl"), time.UTC)
	s := Sample{
		QueryTime:      time.Date(2024, 10, 10, 7, 55, 0, 0, time.UTC),
		DepartureTime:  time.Date(2024, 10, 10, 8, 0, 0, 0, time.UTC),
		Origin:         "Origin",
		Destination:    "Destination",
		ClearMinutes:   14,
		TrafficMinutes: 17,
	}
	if err := st.Append(s); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := st.Append(s); err != nil {
		t.Fatalf("second Append: %v", err)
	}

	samples, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("len = %d, want 2", len(samples))
	}
	if !samples[0].QueryTime.Equal(s.QueryTime) || samples[0].TrafficMinutes != 17 {
		t.Errorf("round-tripped sample = %+v", samples[0])
	}
}

func TestMarshalLine_WireFieldNames(t *testing.T) {
	s := Sample{
		QueryTime:      time.Date(2024, 10, 10, 7, 55, 0, 0, time.UTC),
		DepartureTime:  time.Date(2024, 10, 10, 8, 0, 0, 0, time.UTC),
		Origin:         "Origin",
		Destination:    "Destination",
		ClearMinutes:   14,
		TrafficMinutes: 17,
	}
	line, err := s.MarshalLine()
	if err != nil {
		t.Fatalf("MarshalLine: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(line, &fields); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	for _, key := range []string{
		"query_time", "departure_time", "origin", "destination",
		"clear_duration_mins", "traffic_duration_mins",
	} {
		if _, ok := fields[key]; !ok {
			t.Errorf("wire record missing field %q: %s", key, line)
		}
	}
	if len(fields) != 6 {
		t.Errorf("wire record has %d fields, want 6: %s", len(fields), line)
	}
}

func TestPrune_RemovesOnlyRecordsBeforeCutoff(t *testing.T) {
	older := `{"query_time":"2024-09-20T07:55:00+00:00","departure_time":"2024-09-20T08:00:00+00:00","origin":"Origin","destination":"Destination","traffic_duration_mins":18}`
	path := writeSeries(t, older, newerLine)
	st := NewStore(path, time.UTC)

	removed, err := st.Prune(time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Surviving lines must be byte-identical to the input.
	if string(data) != newerLine+"\n" {
		t.Errorf("surviving content = %q, want %q", data, newerLine+"\n")
	}
}

func TestPrune_KeepsMalformedLinesVerbatim(t *testing.T) {
	older := `{"query_time":"2024-09-20T07:55:00+00:00","departure_time":"2024-09-20T08:00:00+00:00","origin":"O","destination":"D","traffic_duration_mins":18}`
	malformed := `{this line is not json`
	path := writeSeries(t, malformed, older, newerLine)
	st := NewStore(path, time.UTC)

	removed, err := st.Prune(time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := malformed + "\n" + newerLine + "\n"
	if string(data) != want {
		t.Errorf("content = %q, want %q", data, want)
	}
}

func TestPrune_KeepsBlankLinesVerbatim(t *testing.T) {
	older := `{"query_time":"2024-09-20T07:55:00+00:00","departure_time":"2024-09-20T08:00:00+00:00","origin":"O","destination":"D","traffic_duration_mins":18}`
	path := writeSeries(t, older, "", newerLine)
	st := NewStore(path, time.UTC)

	removed, err := st.Prune(time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "\n" + newerLine + "\n"
	if string(data) != want {
		t.Errorf("content = %q, want %q", data, want)
	}
}

func TestPrune_NothingToRemoveLeavesFileUntouched(t *testing.T) {
	path := writeSeries(t, newerLine)
	before, _ := os.Stat(path)
	st := NewStore(path, time.UTC)

	removed, err := st.Prune(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
	after, _ := os.Stat(path)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Errorf("file rewritten despite no removals")
	}
}

func TestPrune_MissingFile(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "absent.jsonl"), time.UTC)
	removed, err := st.Prune(time.Now())
	if err != nil || removed != 0 {
		t.Errorf("Prune on missing file = (%d, %v), want (0, nil)", removed, err)
	}
}

func TestIsWeekend(t *testing.T) {
	tests := []struct {
		day  time.Time
		want bool
	}{
		{time.Date(2024, 10, 7, 8, 0, 0, 0, time.UTC), false},  // Monday
		{time.Date(2024, 10, 11, 8, 0, 0, 0, time.UTC), false}, // Friday
		{time.Date(2024, 10, 12, 8, 0, 0, 0, time.UTC), true},  // Saturday
		{time.Date(2024, 10, 13, 8, 0, 0, 0, time.UTC), true},  // Sunday
	}
	for _, tc := range tests {
		if got := IsWeekend(tc.day); got != tc.want {
			t.Errorf("IsWeekend(%s) = %v, want %v", tc.day.Weekday(), got, tc.want)
		}
	}
}

func TestMinutesSinceMidnight(t *testing.T) {
	at := time.Date(2024, 10, 10, 7, 30, 30, 0, time.UTC)
	if got := MinutesSinceMidnight(at); got != 450.5 {
		t.Errorf("MinutesSinceMidnight = %v, want 450.5", got)
	}
}
