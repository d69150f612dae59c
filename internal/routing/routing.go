package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/routepulse/routepulse/internal/config"
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Result is the normalized outcome of one routing query.
type Result struct {
	// ResolvedOrigin and ResolvedDestination are the provider's canonical
	// forms of the requested addresses, when it reports them.
	ResolvedOrigin      string
	ResolvedDestination string

	// ClearMinutes is the free-flow travel time; TrafficMinutes is the
	// traffic-aware travel time for the requested departure.
	ClearMinutes   float64
	TrafficMinutes float64

	// Overview traces the returned route, used to derive waypoint anchors.
	// May be empty when the provider omits geometry.
	Overview []LatLng
}

// Provider answers travel-time queries for one routing backend.
type Provider interface {
	// Directions computes a driving route from origin to destination
	// departing at departAt, optionally pinned through via points.
	Directions(ctx context.Context, origin, destination string, departAt time.Time, via []LatLng) (*Result, error)
}

// New builds the Provider selected by cfg.
func New(cfg config.ProviderConfig) (Provider, error) {
	if cfg.APIKey() == "" {
		return nil, fmt.Errorf("routing: provider API key is not set (env %q)", cfg.APIKeyEnv)
	}
	client := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Type {
	case "google":
		return newGoogleProvider(cfg, client), nil
	case "tomtom":
		return newTomTomProvider(cfg, client), nil
	default:
		return nil, fmt.Errorf("routing: unsupported provider type %q", cfg.Type)
	}
}

// getJSON performs a GET with jittered-backoff retries on transport errors,
// rate limiting and server errors, and decodes the response body into out.
// Client errors (4xx other than 429) fail immediately; retrying a bad
// request only burns quota.
func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("build request: %w", err))
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("http get: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				return retry.Unrecoverable(fmt.Errorf("HTTP %d", resp.StatusCode))
			}
			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("routing: retrying request", "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("routing: fetch: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("routing: decode response: %w", err)
	}
	return nil
}
