package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/routepulse/routepulse/internal/anomaly"
	"github.com/routepulse/routepulse/internal/baseline"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultInterval       = 5 * time.Minute
	DefaultLeadTime       = 30 * time.Minute
	DefaultTimezone       = "Europe/London"
	DefaultArrivalTime    = "08:20"
	DefaultRetentionWeeks = 12
	DefaultMedianWeeks    = 4
	DefaultWaypointCount  = 3
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultHistoryPath    = "traffic_report.jsonl"
	DefaultStatePath      = "traffic_notification_state.json"
	DefaultChartPath      = "traffic_report_anomaly.png"
	DefaultRouteCachePath = "traffic_route_baseline.json"
)

// Config is the top-level configuration tree.
type Config struct {
	Monitor  MonitorConfig  `yaml:"monitor"`
	Baseline BaselineConfig `yaml:"baseline"`
	Anomaly  AnomalyConfig  `yaml:"anomaly"`
	Provider ProviderConfig `yaml:"provider"`
	Notify   NotifyConfig   `yaml:"notify"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// MonitorConfig holds the commute being watched and the cycle cadence.
type MonitorConfig struct {
	// Origin and Destination are free-form addresses handed to the
	// routing provider.
	Origin      string `yaml:"origin"`
	Destination string `yaml:"destination"`

	// Timezone is the IANA zone all calendar-date decisions are made in.
	Timezone string `yaml:"timezone"`

	// Interval is the sampling cadence in watch mode.
	Interval time.Duration `yaml:"interval"`

	// ArrivalTime is the fixed target arrival time of day ("HH:MM").
	ArrivalTime string `yaml:"arrival_time"`

	// LeadTime is how far before the recommended departure the user is told.
	LeadTime time.Duration `yaml:"lead_time"`

	// RetentionWeeks is how much sample history survives pruning.
	RetentionWeeks int `yaml:"retention_weeks"`

	// HistoryPath, StatePath and ChartPath locate the persisted files.
	HistoryPath string `yaml:"history_path"`
	StatePath   string `yaml:"state_path"`
	ChartPath   string `yaml:"chart_path"`
}

// Location resolves the configured time zone.
func (m MonitorConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: bad timezone %q: %w", m.Timezone, err)
	}
	return loc, nil
}

// ArrivalClock parses ArrivalTime into an hour and minute.
func (m MonitorConfig) ArrivalClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", m.ArrivalTime)
	if err != nil {
		return 0, 0, fmt.Errorf("config: bad arrival_time %q: %w", m.ArrivalTime, err)
	}
	return t.Hour(), t.Minute(), nil
}

// BaselineConfig tunes the time-of-day baseline estimator.
type BaselineConfig struct {
	// BucketMinutes is the time-of-day bucket width.
	BucketMinutes int `yaml:"bucket_minutes"`

	// SmoothingSpan sets the EMA alpha = 2/(span+1).
	SmoothingSpan int `yaml:"smoothing_span"`

	// MaxWeekdays is how many recent qualifying days feed the EMA.
	MaxWeekdays int `yaml:"max_weekdays"`

	// MedianWindowWeeks bounds the recency window for the median fallback
	// and the chart statistics.
	MedianWindowWeeks int `yaml:"median_window_weeks"`
}

// Options converts the config into estimator options.
func (b BaselineConfig) Options() baseline.Options {
	return baseline.Options{
		MaxWeekdays:   b.MaxWeekdays,
		BucketMinutes: b.BucketMinutes,
		SmoothingSpan: b.SmoothingSpan,
	}
}

// AnomalyConfig tunes the leaky-bucket integrator. All values in minutes
// except IntegralThreshold (deviation-minutes).
type AnomalyConfig struct {
	DeadbandMinutes        float64 `yaml:"deadband_minutes"`
	IntegralThreshold      float64 `yaml:"integral_threshold"`
	DecayHalfLifeMinutes   float64 `yaml:"decay_half_life_minutes"`
	NominalIntervalMinutes float64 `yaml:"nominal_interval_minutes"`
	MaxGapMinutes          float64 `yaml:"max_gap_minutes"`
}

// Params converts the config into integrator parameters.
func (a AnomalyConfig) Params() anomaly.Params {
	return anomaly.Params{
		DeadbandMinutes:        a.DeadbandMinutes,
		IntegralThreshold:      a.IntegralThreshold,
		DecayHalfLifeMinutes:   a.DecayHalfLifeMinutes,
		NominalIntervalMinutes: a.NominalIntervalMinutes,
		MaxGapMinutes:          a.MaxGapMinutes,
	}
}

// ProviderConfig selects and configures the routing provider.
type ProviderConfig struct {
	// Type is one of: google | tomtom.
	Type string `yaml:"type"`

	// APIKeyEnv names the environment variable holding the provider key.
	APIKeyEnv string `yaml:"api_key_env"`

	// WaypointCount is how many interior route anchors pin the sampled route.
	WaypointCount int `yaml:"waypoint_count"`

	// RouteCachePath is the JSON file caching the computed waypoints.
	RouteCachePath string `yaml:"route_cache_path"`

	// Timeout bounds each HTTP call to the provider.
	Timeout time.Duration `yaml:"timeout"`
}

// APIKey returns the provider API key resolved from the environment.
// Returns empty string if APIKeyEnv is unset or the variable is not found.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// NotifyConfig holds the outbound notification targets.
type NotifyConfig struct {
	// Topic is the ntfy.sh topic messages are posted to. Empty disables ntfy.
	Topic string `yaml:"topic"`

	// Webhooks are additional delivery targets.
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | http.
	Type string `yaml:"type"`

	// URLEnv names the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// MetricsConfig configures the watch-mode metrics listener.
type MetricsConfig struct {
	// Listen is the address /metrics and /healthz are served on.
	// Empty disables the listener.
	Listen string `yaml:"listen"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Monitor: MonitorConfig{
			Timezone:       DefaultTimezone,
			Interval:       DefaultInterval,
			ArrivalTime:    DefaultArrivalTime,
			LeadTime:       DefaultLeadTime,
			RetentionWeeks: DefaultRetentionWeeks,
			HistoryPath:    DefaultHistoryPath,
			StatePath:      DefaultStatePath,
			ChartPath:      DefaultChartPath,
		},
		Baseline: BaselineConfig{
			BucketMinutes:     baseline.DefaultBucketMinutes,
			SmoothingSpan:     baseline.DefaultSmoothingSpan,
			MaxWeekdays:       baseline.DefaultMaxWeekdays,
			MedianWindowWeeks: DefaultMedianWeeks,
		},
		Anomaly: AnomalyConfig{
			DeadbandMinutes:        anomaly.DefaultDeadbandMinutes,
			IntegralThreshold:      anomaly.DefaultIntegralThreshold,
			DecayHalfLifeMinutes:   anomaly.DefaultDecayHalfLifeMinutes,
			NominalIntervalMinutes: anomaly.DefaultNominalIntervalMinutes,
			MaxGapMinutes:          anomaly.DefaultMaxGapMinutes,
		},
		Provider: ProviderConfig{
			Type:           "google",
			WaypointCount:  DefaultWaypointCount,
			RouteCachePath: DefaultRouteCachePath,
			Timeout:        DefaultHTTPTimeout,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Monitor.Origin == "" {
		return fmt.Errorf("monitor.origin is required")
	}
	if cfg.Monitor.Destination == "" {
		return fmt.Errorf("monitor.destination is required")
	}
	if _, err := cfg.Monitor.Location(); err != nil {
		return err
	}
	if _, _, err := cfg.Monitor.ArrivalClock(); err != nil {
		return err
	}
	if cfg.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	if cfg.Monitor.LeadTime <= 0 {
		return fmt.Errorf("monitor.lead_time must be positive")
	}
	if cfg.Monitor.RetentionWeeks <= 0 {
		return fmt.Errorf("monitor.retention_weeks must be positive")
	}
	if cfg.Baseline.BucketMinutes <= 0 {
		return fmt.Errorf("baseline.bucket_minutes must be positive")
	}
	if cfg.Baseline.SmoothingSpan <= 0 {
		return fmt.Errorf("baseline.smoothing_span must be positive")
	}
	if cfg.Baseline.MaxWeekdays <= 0 {
		return fmt.Errorf("baseline.max_weekdays must be positive")
	}
	if cfg.Baseline.MedianWindowWeeks <= 0 {
		return fmt.Errorf("baseline.median_window_weeks must be positive")
	}
	if cfg.Anomaly.DeadbandMinutes < 0 {
		return fmt.Errorf("anomaly.deadband_minutes must not be negative")
	}
	if cfg.Anomaly.IntegralThreshold <= 0 {
		return fmt.Errorf("anomaly.integral_threshold must be positive")
	}
	if cfg.Anomaly.DecayHalfLifeMinutes <= 0 {
		return fmt.Errorf("anomaly.decay_half_life_minutes must be positive")
	}
	if cfg.Anomaly.NominalIntervalMinutes <= 0 {
		return fmt.Errorf("anomaly.nominal_interval_minutes must be positive")
	}
	if cfg.Anomaly.MaxGapMinutes <= 0 {
		return fmt.Errorf("anomaly.max_gap_minutes must be positive")
	}
	switch cfg.Provider.Type {
	case "google", "tomtom":
	default:
		return fmt.Errorf("provider.type: unknown type %q", cfg.Provider.Type)
	}
	if cfg.Provider.WaypointCount < 0 {
		return fmt.Errorf("provider.waypoint_count must not be negative")
	}
	for i, wh := range cfg.Notify.Webhooks {
		switch wh.Type {
		case "slack", "http":
		default:
			return fmt.Errorf("notify.webhooks[%d]: unknown type %q", i, wh.Type)
		}
	}
	return nil
}
