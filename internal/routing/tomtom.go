package routing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/routepulse/routepulse/internal/config"
)

const (
	tomtomRouteURL   = "https://api.tomtom.com/routing/1/calculateRoute"
	tomtomGeocodeURL = "https://api.tomtom.com/search/2/geocode"

	geocodeCacheSize = 256
	geocodeCacheTTL  = 24 * time.Hour
)

// tomtomProvider queries the TomTom routing API. Addresses are geocoded
// first; results are cached so steady-state polling costs one routing call.
type tomtomProvider struct {
	key        string
	client     *http.Client
	routeURL   string
	geocodeURL string
	geocodes   otter.Cache[string, LatLng]
}

func newTomTomProvider(cfg config.ProviderConfig, client *http.Client) *tomtomProvider {
	cache := otter.Must(&otter.Options[string, LatLng]{
		MaximumSize:      geocodeCacheSize,
		ExpiryCalculator: otter.ExpiryWriting[string, LatLng](geocodeCacheTTL),
	})
	return &tomtomProvider{
		key:        cfg.APIKey(),
		client:     client,
		routeURL:   tomtomRouteURL,
		geocodeURL: tomtomGeocodeURL,
		geocodes:   *cache,
	}
}

type tomtomRouteResponse struct {
	Routes []struct {
		Summary struct {
			TravelTimeSecs      float64  `json:"travelTimeInSeconds"`
			NoTrafficTravelSecs *float64 `json:"noTrafficTravelTimeInSeconds"`
			TrafficDelaySecs    float64  `json:"trafficDelayInSeconds"`
		} `json:"summary"`
		Legs []struct {
			Points []struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"points"`
		} `json:"legs"`
	} `json:"routes"`
}

type tomtomGeocodeResponse struct {
	Results []struct {
		Address struct {
			FreeformAddress string `json:"freeformAddress"`
		} `json:"address"`
		Position struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"position"`
	} `json:"results"`
}

func (t *tomtomProvider) Directions(ctx context.Context, origin, destination string, departAt time.Time, via []LatLng) (*Result, error) {
	originPt, err := t.geocode(ctx, origin)
	if err != nil {
		return nil, err
	}
	destPt, err := t.geocode(ctx, destination)
	if err != nil {
		return nil, err
	}

	locs := make([]string, 0, len(via)+2)
	locs = append(locs, formatCoords(originPt))
	for _, pt := range via {
		locs = append(locs, formatCoords(pt))
	}
	locs = append(locs, formatCoords(destPt))

	if departAt.IsZero() {
		departAt = time.Now()
	}
	q := url.Values{}
	q.Set("key", t.key)
	q.Set("traffic", "true")
	q.Set("travelMode", "car")
	q.Set("computeBestOrder", "false")
	q.Set("departAt", departAt.Format("2006-01-02T15:04:05-07:00"))

	reqURL := fmt.Sprintf("%s/%s/json?%s", t.routeURL, url.PathEscape(strings.Join(locs, ":")), q.Encode())

	var payload tomtomRouteResponse
	if err := getJSON(ctx, t.client, reqURL, &payload); err != nil {
		return nil, err
	}
	if len(payload.Routes) == 0 {
		return nil, fmt.Errorf("routing: tomtom response missing routes")
	}
	route := payload.Routes[0]
	travelSecs := route.Summary.TravelTimeSecs
	if travelSecs <= 0 {
		return nil, fmt.Errorf("routing: tomtom route missing travel time")
	}
	clearSecs := travelSecs - route.Summary.TrafficDelaySecs
	if route.Summary.NoTrafficTravelSecs != nil {
		clearSecs = *route.Summary.NoTrafficTravelSecs
	}
	if clearSecs < 0 {
		clearSecs = 0
	}

	res := &Result{
		ResolvedOrigin:      origin,
		ResolvedDestination: destination,
		ClearMinutes:        clearSecs / 60,
		TrafficMinutes:      travelSecs / 60,
	}
	for _, leg := range route.Legs {
		for _, pt := range leg.Points {
			res.Overview = append(res.Overview, LatLng{Lat: pt.Latitude, Lng: pt.Longitude})
		}
	}
	return res, nil
}

func (t *tomtomProvider) geocode(ctx context.Context, address string) (LatLng, error) {
	if pt, ok := t.geocodes.GetIfPresent(address); ok {
		return pt, nil
	}
	q := url.Values{}
	q.Set("key", t.key)
	q.Set("limit", "1")
	reqURL := fmt.Sprintf("%s/%s.json?%s", t.geocodeURL, url.PathEscape(address), q.Encode())

	var payload tomtomGeocodeResponse
	if err := getJSON(ctx, t.client, reqURL, &payload); err != nil {
		return LatLng{}, err
	}
	if len(payload.Results) == 0 {
		return LatLng{}, fmt.Errorf("routing: tomtom geocode returned no results for %q", address)
	}
	pt := LatLng{Lat: payload.Results[0].Position.Lat, Lng: payload.Results[0].Position.Lon}
	t.geocodes.Set(address, pt)
	return pt, nil
}

func formatCoords(pt LatLng) string {
	return fmt.Sprintf("%.6f,%.6f", pt.Lat, pt.Lng)
}
