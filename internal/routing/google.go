package routing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/twpayne/go-polyline"

	"github.com/routepulse/routepulse/internal/config"
)

const googleBaseURL = "https://maps.googleapis.com/maps/api/directions/json"

// googleProvider queries the Google Directions API with the pessimistic
// traffic model so advice errs toward leaving early.
type googleProvider struct {
	key     string
	client  *http.Client
	baseURL string
}

func newGoogleProvider(cfg config.ProviderConfig, client *http.Client) *googleProvider {
	return &googleProvider{key: cfg.APIKey(), client: client, baseURL: googleBaseURL}
}

type googleResponse struct {
	Status string `json:"status"`
	Routes []struct {
		Legs []struct {
			StartAddress      string         `json:"start_address"`
			EndAddress        string         `json:"end_address"`
			Duration          googleDuration `json:"duration"`
			DurationInTraffic googleDuration `json:"duration_in_traffic"`
		} `json:"legs"`
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
	} `json:"routes"`
}

type googleDuration struct {
	Value float64 `json:"value"`
}

func (g *googleProvider) Directions(ctx context.Context, origin, destination string, departAt time.Time, via []LatLng) (*Result, error) {
	q := url.Values{}
	q.Set("origin", origin)
	q.Set("destination", destination)
	q.Set("mode", "driving")
	q.Set("traffic_model", "pessimistic")
	q.Set("alternatives", "false")
	if departAt.IsZero() {
		q.Set("departure_time", "now")
	} else {
		q.Set("departure_time", strconv.FormatInt(departAt.Unix(), 10))
	}
	if len(via) > 0 {
		parts := make([]string, len(via))
		for i, pt := range via {
			parts[i] = fmt.Sprintf("via:%.6f,%.6f", pt.Lat, pt.Lng)
		}
		q.Set("waypoints", strings.Join(parts, "|"))
	}
	q.Set("key", g.key)

	var payload googleResponse
	if err := getJSON(ctx, g.client, g.baseURL+"?"+q.Encode(), &payload); err != nil {
		return nil, err
	}
	if payload.Status != "OK" {
		return nil, fmt.Errorf("routing: google status %q", payload.Status)
	}
	if len(payload.Routes) == 0 {
		return nil, fmt.Errorf("routing: google response missing routes")
	}
	route := payload.Routes[0]
	if len(route.Legs) == 0 {
		return nil, fmt.Errorf("routing: google route missing legs")
	}

	res := &Result{
		ResolvedOrigin:      route.Legs[0].StartAddress,
		ResolvedDestination: route.Legs[len(route.Legs)-1].EndAddress,
	}
	var clearSecs, trafficSecs float64
	for _, leg := range route.Legs {
		clearSecs += leg.Duration.Value
		traffic := leg.DurationInTraffic.Value
		if traffic <= 0 {
			traffic = leg.Duration.Value
		}
		trafficSecs += traffic
	}
	res.ClearMinutes = clearSecs / 60
	res.TrafficMinutes = trafficSecs / 60

	if encoded := route.OverviewPolyline.Points; encoded != "" {
		coords, _, err := polyline.DecodeCoords([]byte(encoded))
		if err != nil {
			return nil, fmt.Errorf("routing: decode overview polyline: %w", err)
		}
		res.Overview = make([]LatLng, len(coords))
		for i, c := range coords {
			res.Overview[i] = LatLng{Lat: c[0], Lng: c[1]}
		}
	}
	return res, nil
}
