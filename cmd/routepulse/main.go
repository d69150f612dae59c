package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/routepulse/routepulse/internal/baseline"
	"github.com/routepulse/routepulse/internal/config"
	"github.com/routepulse/routepulse/internal/metrics"
	"github.com/routepulse/routepulse/internal/monitor"
	"github.com/routepulse/routepulse/internal/notify"
	"github.com/routepulse/routepulse/internal/routing"
	"github.com/routepulse/routepulse/internal/sample"
	"github.com/routepulse/routepulse/internal/state"
)

func main() {
	configPath := flag.String("config", "routepulse.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single decision cycle and exit")
	watch := flag.Bool("watch", false, "run cycles on the configured interval until interrupted")
	status := flag.Bool("status", false, "print the latest sample and decision state without fetching")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Secrets (provider keys, webhook URLs) come from the environment;
	// a local .env is a convenience, not a requirement.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env", "err", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"origin", cfg.Monitor.Origin,
		"destination", cfg.Monitor.Destination,
		"provider", cfg.Provider.Type,
		"interval", cfg.Monitor.Interval,
	)

	switch {
	case *status:
		if err := printStatus(cfg); err != nil {
			slog.Error("status failed", "err", err)
			os.Exit(1)
		}
	case *once:
		m, err := buildMonitor(cfg)
		if err != nil {
			slog.Error("failed to build monitor", "err", err)
			os.Exit(1)
		}
		metrics.Init()
		if err := m.RunCycle(context.Background()); err != nil {
			slog.Error("cycle failed", "err", err)
			os.Exit(1)
		}
	case *watch:
		if err := runWatch(cfg, *configPath); err != nil {
			slog.Error("watch mode failed", "err", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "routepulse: one of -once, -watch or -status is required")
		flag.Usage()
		os.Exit(2)
	}
}

func buildMonitor(cfg *config.Config) (*monitor.Monitor, error) {
	provider, err := routing.New(cfg.Provider)
	if err != nil {
		return nil, err
	}
	fetcher := routing.NewFetcher(
		provider,
		routing.NewAnchorCache(cfg.Provider.RouteCachePath),
		cfg.Monitor.Origin,
		cfg.Monitor.Destination,
		cfg.Provider.WaypointCount,
		nil,
	)
	return monitor.New(cfg, fetcher, notify.New(cfg.Notify), nil)
}

// runWatch runs the cycle on the configured interval until interrupted,
// serving metrics and hot-reloading the config file.
func runWatch(cfg *config.Config, configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics.Init()
	if cfg.Metrics.Listen != "" {
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			slog.Info("metrics listener starting", "addr", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics listener stopped", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	var mu sync.Mutex
	m, err := buildMonitor(cfg)
	if err != nil {
		return err
	}
	interval := cfg.Monitor.Interval

	// Hot-reload rebuilds the monitor; a changed interval takes effect on
	// the next restart.
	go func() {
		if err := config.Watch(ctx, configPath, func(updated *config.Config) {
			rebuilt, err := buildMonitor(updated)
			if err != nil {
				slog.Error("config reloaded but monitor rebuild failed, keeping previous", "err", err)
				return
			}
			mu.Lock()
			m = rebuilt
			mu.Unlock()
			slog.Info("config hot-reloaded",
				"origin", updated.Monitor.Origin,
				"destination", updated.Monitor.Destination,
				"provider", updated.Provider.Type,
			)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	runCycle := func() {
		mu.Lock()
		current := m
		mu.Unlock()
		if err := current.RunCycle(ctx); err != nil {
			slog.Error("cycle failed", "err", err)
		}
	}

	runCycle()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("routepulse shutting down")
			return nil
		case <-ticker.C:
			runCycle()
		}
	}
}

// printStatus summarizes the persisted files without touching the network.
func printStatus(cfg *config.Config) error {
	loc, err := cfg.Monitor.Location()
	if err != nil {
		return err
	}
	history, err := sample.NewStore(cfg.Monitor.HistoryPath, loc).Load()
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	bold.Printf("%s -> %s\n", cfg.Monitor.Origin, cfg.Monitor.Destination)

	if len(history) == 0 {
		yellow.Println("no samples recorded yet")
		return nil
	}
	latest := history[len(history)-1]
	fmt.Printf("latest sample   %s\n", latest.QueryTime.In(loc).Format("2006-01-02 15:04"))
	fmt.Printf("traffic         %.1f mins (clear %.1f mins)\n", latest.TrafficMinutes, latest.ClearMinutes)

	value, ok, err := baseline.Estimate(history, latest.DepartureTime.In(loc), cfg.Baseline.Options())
	if err != nil {
		return err
	}
	if !ok {
		yellow.Println("baseline        not enough history")
	} else {
		fmt.Printf("baseline        %.1f mins\n", value)
		delta := latest.TrafficMinutes - value
		switch {
		case delta > cfg.Anomaly.DeadbandMinutes:
			red.Printf("deviation       +%.1f mins\n", delta)
		case delta < -cfg.Anomaly.DeadbandMinutes:
			green.Printf("deviation       %.1f mins\n", delta)
		default:
			green.Printf("deviation       %+.1f mins (within deadband)\n", delta)
		}
	}

	recent := baseline.FilterRecentWeekdays(history, latest.QueryTime.In(loc), cfg.Baseline.MedianWindowWeeks)
	target := sample.MinutesSinceMidnight(latest.DepartureTime.In(loc))
	if mean, stdev, ok := baseline.TimeOfDayStats(recent, target, 10); ok {
		fmt.Printf("typical         %.1f +/- %.1f mins for this time of day\n", mean, stdev)
	}

	st := state.Load(cfg.Monitor.StatePath)
	fmt.Printf("integral high   %.1f / %.0f\n", st.Integrator.IntegralHigh, cfg.Anomaly.IntegralThreshold)
	fmt.Printf("integral low    %.1f / %.0f\n", st.Integrator.IntegralLow, cfg.Anomaly.IntegralThreshold)
	if st.Integrator.LastAlertDate != "" {
		fmt.Printf("last alert      %s\n", st.Integrator.LastAlertDate)
	}
	if st.Departure.NotifiedDate != "" {
		mins := int(st.Departure.NotifiedMinutes)
		fmt.Printf("last advice     leave by %02d:%02d on %s\n", mins/60, mins%60, st.Departure.NotifiedDate)
	}
	return nil
}
