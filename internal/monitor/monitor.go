package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/routepulse/routepulse/internal/anomaly"
	"github.com/routepulse/routepulse/internal/baseline"
	"github.com/routepulse/routepulse/internal/chart"
	"github.com/routepulse/routepulse/internal/config"
	"github.com/routepulse/routepulse/internal/departure"
	"github.com/routepulse/routepulse/internal/metrics"
	"github.com/routepulse/routepulse/internal/notify"
	"github.com/routepulse/routepulse/internal/sample"
	"github.com/routepulse/routepulse/internal/state"
)

// Fetcher measures current conditions on the monitored route.
type Fetcher interface {
	Fetch(ctx context.Context, departAt time.Time) (sample.Sample, error)
}

// Monitor owns one commute's decision cycle.
type Monitor struct {
	cfg      *config.Config
	fetcher  Fetcher
	notifier notify.Notifier
	store    *sample.Store
	loc      *time.Location
	now      func() time.Time
}

// New wires a Monitor from validated configuration. now supplies the cycle
// clock and may be nil for the wall clock.
func New(cfg *config.Config, fetcher Fetcher, notifier notify.Notifier, now func() time.Time) (*Monitor, error) {
	loc, err := cfg.Monitor.Location()
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		cfg:      cfg,
		fetcher:  fetcher,
		notifier: notifier,
		store:    sample.NewStore(cfg.Monitor.HistoryPath, loc),
		loc:      loc,
		now:      now,
	}, nil
}

// RunCycle executes one measurement and decision pass. Notification
// delivery and housekeeping are best effort; their failures are logged,
// not returned.
func (m *Monitor) RunCycle(ctx context.Context) (err error) {
	start := m.now()
	defer func() {
		metrics.ObserveCycle(err, time.Since(start))
	}()

	s, err := m.fetcher.Fetch(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("monitor: fetch sample: %w", err)
	}
	if err = m.store.Append(s); err != nil {
		return fmt.Errorf("monitor: append sample: %w", err)
	}
	metrics.IncSampleAppended()

	history, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("monitor: load history: %w", err)
	}

	now := m.now().In(m.loc)
	baselineVal, ok, err := m.estimateBaseline(history, s)
	if err != nil {
		return err
	}
	if !ok {
		// No qualifying bucket history: fall back to the median of the
		// recent weekday window, then to the live sample itself so the
		// integrator sees zero deviation.
		recent := baseline.FilterRecentWeekdays(history, now, m.cfg.Baseline.MedianWindowWeeks)
		if med, medOK := baseline.Median(recent); medOK {
			baselineVal = med
			slog.Debug("monitor: no bucket baseline, using recent weekday median", "minutes", baselineVal)
		} else {
			baselineVal = s.TrafficMinutes
			slog.Debug("monitor: no baseline yet, using live duration", "minutes", baselineVal)
		}
	}
	metrics.SetDurations(s.TrafficMinutes, baselineVal)

	st := state.Load(m.cfg.Monitor.StatePath)
	changed := false

	anomalyDec := anomaly.Evaluate(s.QueryTime.In(m.loc), s.TrafficMinutes, baselineVal, st.Integrator, m.cfg.Anomaly.Params())
	st.Integrator = anomalyDec.State
	changed = changed || anomalyDec.Changed
	metrics.SetIntegrals(anomalyDec.State.IntegralHigh, anomalyDec.State.IntegralLow)

	hour, minute, err := m.cfg.Monitor.ArrivalClock()
	if err != nil {
		return err
	}
	target := departure.NextArrival(now, hour, minute, m.loc)
	departureDec, advise := departure.Advise(now, target, s.TrafficMinutes, baselineVal, m.cfg.Monitor.LeadTime, st.Departure)
	if advise {
		st.Departure = departureDec.State
		changed = true
	}

	if changed {
		if err = state.Save(m.cfg.Monitor.StatePath, st); err != nil {
			return fmt.Errorf("monitor: save state: %w", err)
		}
	}

	if anomalyDec.Alerted {
		metrics.IncPatternAlert()
		m.send(anomalyDec.Message)
	}
	if advise {
		metrics.IncDepartureAlert()
		m.send(departureDec.Message)
	}

	m.housekeep(history, now)

	slog.Info("monitor: cycle complete",
		"traffic_mins", s.TrafficMinutes,
		"clear_mins", s.ClearMinutes,
		"baseline_mins", baselineVal,
		"pattern_alert", anomalyDec.Alerted,
		"departure_advice", advise,
	)
	return nil
}

// estimateBaseline computes the bucket EMA baseline for the sample's
// departure time.
func (m *Monitor) estimateBaseline(history []sample.Sample, s sample.Sample) (float64, bool, error) {
	value, ok, err := baseline.Estimate(history, s.DepartureTime.In(m.loc), m.cfg.Baseline.Options())
	if err != nil {
		return 0, false, fmt.Errorf("monitor: estimate baseline: %w", err)
	}
	return value, ok, nil
}

// send delivers one message, swallowing failures: a dropped notification
// must not poison the persisted decision state.
func (m *Monitor) send(message string) {
	if m.notifier == nil || message == "" {
		return
	}
	if err := m.notifier.Send(message); err != nil {
		metrics.IncNotifyError()
		slog.Error("monitor: notification failed", "err", err)
	}
}

// housekeep prunes expired history and refreshes the anomaly chart.
func (m *Monitor) housekeep(history []sample.Sample, now time.Time) {
	cutoff := now.AddDate(0, 0, -7*m.cfg.Monitor.RetentionWeeks)
	if removed, err := m.store.Prune(cutoff); err != nil {
		slog.Warn("monitor: prune history", "err", err)
	} else if removed > 0 {
		slog.Info("monitor: pruned history", "removed", removed, "cutoff", cutoff)
	}

	if m.cfg.Monitor.ChartPath == "" {
		return
	}
	if err := chart.Render(history, m.cfg.Monitor.ChartPath, m.loc, m.cfg.Baseline.BucketMinutes); err != nil {
		slog.Debug("monitor: chart not rendered", "err", err)
	}
}
