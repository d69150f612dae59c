package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/routepulse/routepulse/internal/sample"
)

// AnchorCache persists the waypoint anchors for one route so every poll
// measures the same road, not whatever detour the provider prefers today.
type AnchorCache struct {
	path string
}

// NewAnchorCache returns a cache backed by the JSON file at path.
func NewAnchorCache(path string) *AnchorCache {
	return &AnchorCache{path: path}
}

type anchorRecord struct {
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	Waypoints   []LatLng `json:"waypoints"`
	GeneratedAt string   `json:"generated_at"`
}

// Load returns the cached anchors for the given route, or nil when the
// cache is missing, unreadable, or recorded for a different route.
func (c *AnchorCache) Load(origin, destination string) []LatLng {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("anchor cache unreadable, recomputing", "path", c.path, "err", err)
		}
		return nil
	}
	var rec anchorRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Warn("anchor cache corrupt, recomputing", "path", c.path, "err", err)
		return nil
	}
	if rec.Origin != origin || rec.Destination != destination {
		return nil
	}
	if len(rec.Waypoints) == 0 {
		return nil
	}
	return rec.Waypoints
}

// Save writes the anchors for the given route, replacing any prior record.
func (c *AnchorCache) Save(origin, destination string, anchors []LatLng, now time.Time) error {
	rec := anchorRecord{
		Origin:      origin,
		Destination: destination,
		Waypoints:   anchors,
		GeneratedAt: now.Format(time.RFC3339Nano),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode anchor cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		return fmt.Errorf("create anchor cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".anchors-*")
	if err != nil {
		return fmt.Errorf("write anchor cache: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write anchor cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write anchor cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write anchor cache: %w", err)
	}
	return nil
}

// sampleAnchors picks up to count interior points of a route trace, evenly
// spaced. Endpoints are never anchors; pinning them is redundant.
func sampleAnchors(points []LatLng, count int) []LatLng {
	if len(points) <= 2 || count <= 0 {
		return nil
	}
	middle := points[1 : len(points)-1]
	step := len(points) / (count + 1)
	if step < 1 {
		step = 1
	}
	anchors := make([]LatLng, 0, count)
	for i := 0; i < len(middle) && len(anchors) < count; i += step {
		anchors = append(anchors, middle[i])
	}
	return anchors
}

// Fetcher measures one route through a Provider, pinning it through
// waypoint anchors so successive samples are comparable.
type Fetcher struct {
	provider    Provider
	anchors     *AnchorCache
	origin      string
	destination string
	anchorCount int
	now         func() time.Time

	resolved []LatLng
}

// NewFetcher wires a Fetcher for the given route. now supplies query
// timestamps and may be nil for the wall clock.
func NewFetcher(provider Provider, anchors *AnchorCache, origin, destination string, anchorCount int, now func() time.Time) *Fetcher {
	if now == nil {
		now = time.Now
	}
	return &Fetcher{
		provider:    provider,
		anchors:     anchors,
		origin:      origin,
		destination: destination,
		anchorCount: anchorCount,
		now:         now,
	}
}

// Fetch queries the provider for current conditions on the route and
// returns the measurement as a sample. A zero departAt means "now".
func (f *Fetcher) Fetch(ctx context.Context, departAt time.Time) (sample.Sample, error) {
	via, err := f.resolveAnchors(ctx)
	if err != nil {
		return sample.Sample{}, err
	}
	res, err := f.provider.Directions(ctx, f.origin, f.destination, departAt, via)
	if err != nil {
		return sample.Sample{}, err
	}
	queryTime := f.now()
	departureTime := departAt
	if departureTime.IsZero() {
		departureTime = queryTime
	}
	origin := res.ResolvedOrigin
	if origin == "" {
		origin = f.origin
	}
	destination := res.ResolvedDestination
	if destination == "" {
		destination = f.destination
	}
	return sample.Sample{
		QueryTime:      queryTime,
		DepartureTime:  departureTime,
		Origin:         origin,
		Destination:    destination,
		ClearMinutes:   res.ClearMinutes,
		TrafficMinutes: res.TrafficMinutes,
	}, nil
}

// resolveAnchors returns the waypoint anchors for the route, computing and
// persisting them from a reference query on first use.
func (f *Fetcher) resolveAnchors(ctx context.Context) ([]LatLng, error) {
	if f.resolved != nil {
		return f.resolved, nil
	}
	if f.anchorCount <= 0 {
		f.resolved = []LatLng{}
		return f.resolved, nil
	}
	if cached := f.anchors.Load(f.origin, f.destination); cached != nil {
		f.resolved = cached
		return cached, nil
	}
	res, err := f.provider.Directions(ctx, f.origin, f.destination, time.Time{}, nil)
	if err != nil {
		return nil, fmt.Errorf("compute route anchors: %w", err)
	}
	if len(res.Overview) == 0 {
		return nil, errors.New("routing: reference route has no geometry for anchor calculation")
	}
	anchors := sampleAnchors(res.Overview, f.anchorCount)
	if anchors == nil {
		anchors = []LatLng{}
	}
	if err := f.anchors.Save(f.origin, f.destination, anchors, f.now()); err != nil {
		slog.Warn("could not persist route anchors", "err", err)
	}
	f.resolved = anchors
	slog.Info("computed route anchors", "count", len(anchors))
	return anchors, nil
}
