package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/routepulse/routepulse/internal/anomaly"
	"github.com/routepulse/routepulse/internal/departure"
)

// Notification is the union of the two decision components' persisted
// state. The zero value is the state of a system that has never alerted.
type Notification struct {
	Departure  departure.State
	Integrator anomaly.State
}

// wire is the on-disk JSON form. Zero-valued fields are omitted so the file
// stays minimal; absent fields read back as defaults.
type wire struct {
	DepartureDate     string   `json:"departure_date,omitempty"`
	DepartureMinutes  *float64 `json:"departure_minutes,omitempty"`
	PatternAlertDate  string   `json:"pattern_alert_date,omitempty"`
	IntegralHigh      float64  `json:"anomaly_integral_high,omitempty"`
	IntegralLow       float64  `json:"anomaly_integral_low,omitempty"`
	AnomalyLastSample string   `json:"anomaly_last_timestamp,omitempty"`
}

// Load reads the notification state at path. A missing or unparseable file
// yields the default state; persisted-state corruption is recoverable by
// definition, never fatal.
func Load(path string) Notification {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("state: unreadable file — using defaults", "path", path, "err", err)
		}
		return Notification{}
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		slog.Warn("state: corrupt file — using defaults", "path", path, "err", err)
		return Notification{}
	}

	var n Notification
	n.Departure.NotifiedDate = w.DepartureDate
	if w.DepartureMinutes != nil {
		n.Departure.NotifiedMinutes = *w.DepartureMinutes
	}
	n.Integrator.LastAlertDate = w.PatternAlertDate
	n.Integrator.IntegralHigh = w.IntegralHigh
	n.Integrator.IntegralLow = w.IntegralLow
	if w.AnomalyLastSample != "" {
		if ts, err := time.Parse(time.RFC3339Nano, w.AnomalyLastSample); err == nil {
			n.Integrator.LastSample = ts
		} else {
			slog.Warn("state: unparseable anomaly_last_timestamp — ignoring",
				"value", w.AnomalyLastSample)
		}
	}
	return n
}

// Save writes n to path via a temp file and rename so a crash mid-write
// cannot leave a truncated state file.
func Save(path string, n Notification) error {
	w := wire{
		DepartureDate:    n.Departure.NotifiedDate,
		PatternAlertDate: n.Integrator.LastAlertDate,
		IntegralHigh:     n.Integrator.IntegralHigh,
		IntegralLow:      n.Integrator.IntegralLow,
	}
	if n.Departure.NotifiedDate != "" {
		minutes := n.Departure.NotifiedMinutes
		w.DepartureMinutes = &minutes
	}
	if !n.Integrator.LastSample.IsZero() {
		w.AnomalyLastSample = n.Integrator.LastSample.Format(time.RFC3339Nano)
	}

	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("state: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("state: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: replace file: %w", err)
	}
	return nil
}
