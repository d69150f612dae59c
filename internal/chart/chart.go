package chart

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/routepulse/routepulse/internal/sample"
)

// bucketStats accumulates the traffic durations observed in one
// time-of-day bucket.
type bucketStats struct {
	values []float64
}

func (b *bucketStats) mean() float64 {
	var sum float64
	for _, v := range b.values {
		sum += v
	}
	return sum / float64(len(b.values))
}

func (b *bucketStats) stdev() float64 {
	if len(b.values) < 2 {
		return 0
	}
	m := b.mean()
	var sum float64
	for _, v := range b.values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(b.values)))
}

// Render draws today's traffic durations against the weekday baseline and
// writes the chart as a PNG to path. "Today" is the latest calendar date in
// the history, resolved in loc. The baseline aggregates weekday samples
// from earlier dates into bucketMinutes-wide time-of-day buckets.
func Render(samples []sample.Sample, path string, loc *time.Location, bucketMinutes int) error {
	if len(samples) == 0 {
		return errors.New("chart: no samples to plot")
	}
	if bucketMinutes <= 0 {
		return fmt.Errorf("chart: bucket minutes must be positive, got %d", bucketMinutes)
	}

	today := ""
	for _, s := range samples {
		if d := s.QueryTime.In(loc).Format("2006-01-02"); d > today {
			today = d
		}
	}

	baseline := map[int]*bucketStats{}
	todays := map[int]*bucketStats{}
	for _, s := range samples {
		local := s.QueryTime.In(loc)
		date := local.Format("2006-01-02")
		bucket := (local.Hour()*60 + local.Minute()) / bucketMinutes
		switch {
		case date == today:
			addValue(todays, bucket, s.TrafficMinutes)
		case date < today && !sample.IsWeekend(local):
			addValue(baseline, bucket, s.TrafficMinutes)
		}
	}

	midnight, err := time.ParseInLocation("2006-01-02", today, loc)
	if err != nil {
		return fmt.Errorf("chart: resolve plot date: %w", err)
	}

	todayLine := seriesOf(todays, midnight, bucketMinutes, (*bucketStats).mean)
	meanLine := seriesOf(baseline, midnight, bucketMinutes, (*bucketStats).mean)
	upperLine := seriesOf(baseline, midnight, bucketMinutes, func(b *bucketStats) float64 { return b.mean() + b.stdev() })
	lowerLine := seriesOf(baseline, midnight, bucketMinutes, func(b *bucketStats) float64 { return b.mean() - b.stdev() })

	var series []chart.Series
	bandStyle := chart.Style{
		StrokeColor:     drawing.ColorFromHex("9e9e9e"),
		StrokeWidth:     1,
		StrokeDashArray: []float64{2, 4},
	}
	if len(upperLine.XValues) >= 2 {
		upperLine.Name = "weekday +1 sd"
		upperLine.Style = bandStyle
		series = append(series, upperLine)
	}
	if len(lowerLine.XValues) >= 2 {
		lowerLine.Name = "weekday -1 sd"
		lowerLine.Style = bandStyle
		series = append(series, lowerLine)
	}
	if len(meanLine.XValues) >= 2 {
		meanLine.Name = "weekday baseline mean"
		meanLine.Style = chart.Style{
			StrokeColor:     drawing.ColorFromHex("1f77b4"),
			StrokeWidth:     2,
			StrokeDashArray: []float64{5, 5},
		}
		series = append(series, meanLine)
	}
	if len(todayLine.XValues) >= 2 {
		todayLine.Name = "today (mins)"
		todayLine.Style = chart.Style{
			StrokeColor: drawing.ColorFromHex("d62728"),
			StrokeWidth: 2,
		}
		series = append(series, todayLine)
	}
	if len(series) == 0 {
		return errors.New("chart: not enough samples to plot")
	}

	graph := chart.Chart{
		Title:  "Travel time for " + midnight.Weekday().String(),
		Width:  1100,
		Height: 500,
		XAxis: chart.XAxis{
			Name:           "time of day",
			ValueFormatter: chart.TimeValueFormatterWithFormat("15:04"),
		},
		YAxis: chart.YAxis{
			Name: "minutes",
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("chart: create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("chart: create output file: %w", err)
	}
	if err := graph.Render(chart.PNG, f); err != nil {
		f.Close()
		return fmt.Errorf("chart: render: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("chart: close output file: %w", err)
	}
	return nil
}

func addValue(stats map[int]*bucketStats, bucket int, value float64) {
	b, ok := stats[bucket]
	if !ok {
		b = &bucketStats{}
		stats[bucket] = b
	}
	b.values = append(b.values, value)
}

// seriesOf projects per-bucket statistics onto the plot date's timeline.
func seriesOf(stats map[int]*bucketStats, midnight time.Time, bucketMinutes int, value func(*bucketStats) float64) chart.TimeSeries {
	buckets := make([]int, 0, len(stats))
	for b := range stats {
		buckets = append(buckets, b)
	}
	sort.Ints(buckets)

	ts := chart.TimeSeries{}
	for _, b := range buckets {
		ts.XValues = append(ts.XValues, midnight.Add(time.Duration(b*bucketMinutes)*time.Minute))
		ts.YValues = append(ts.YValues, value(stats[b]))
	}
	return ts
}
