package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/cptspacemanspiff/power-analytics/internal/admin"
	"github.com/cptspacemanspiff/power-analytics/internal/analytics"
	"github.com/cptspacemanspiff/power-analytics/internal/collector"
	"github.com/cptspacemanspiff/power-analytics/internal/config"
	dbussvc "github.com/cptspacemanspiff/power-analytics/internal/dbus"
	"github.com/cptspacemanspiff/power-analytics/internal/event"
	"github.com/cptspacemanspiff/power-analytics/internal/lifecycle"
	"github.com/cptspacemanspiff/power-analytics/internal/metrics"
	"github.com/cptspacemanspiff/power-analytics/internal/powerstats"
	"github.com/cptspacemanspiff/power-analytics/internal/storage"
)

const defaultConfigPath = "/etc/power-analytics/config.toml"

// wallClockJump is the tick gap that indicates the machine was asleep.
const wallClockJump = 3

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the TOML config file")
	verbose := flag.BoolP("verbose", "v", false, "enable all verbose logging (equivalent to --log=all)")
	logFlag := flag.String("log", "", "comma-separated log topics: battery,power,analytics,hardware,lifecycle,admin (or 'all')")
	resetDB := flag.Bool("reset-db", false, "delete stored data and start fresh, keeping the client id")
	resetAll := flag.Bool("reset-all", false, "like --reset-db, but also clear prefs and the client id")
	sessionBus := flag.Bool("session-bus", false, "export the D-Bus API on the session bus")
	writeConfig := flag.Bool("write-config", false, "write the effective config to --config and exit")
	flag.Parse()

	logger := slog.New(newTopicHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		*verbose, *logFlag,
	))

	cfg, err := loadConfig(logger, *configPath)
	if err != nil {
		logger.Error("load config", "path", *configPath, "err", err)
		os.Exit(1)
	}

	if *writeConfig {
		if err := config.Save(*configPath, cfg); err != nil {
			logger.Error("write config", "path", *configPath, "err", err)
			os.Exit(1)
		}
		logger.Info("config written", "path", *configPath)
		return
	}

	dbPath := cfg.Storage.DBPath
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("create data dir", "err", err)
		os.Exit(1)
	}

	if *resetDB || *resetAll {
		if err := resetDatabase(dbPath, *resetAll); err != nil {
			logger.Error("reset database", "err", err)
			os.Exit(1)
		}
		logger.Info("database reset", "path", dbPath, "prefs_cleared", *resetAll)
		return
	}

	if err := run(logger, cfg, *sessionBus); err != nil {
		logger.Error("daemon exited", "err", err)
		os.Exit(1)
	}
}

func resetDatabase(path string, includePrefs bool) error {
	store, err := storage.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Reset(includePrefs)
}

func loadConfig(logger *slog.Logger, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	logger.Info("config file not found, using defaults", "path", path)
	return config.NormalizeAndValidate(config.DefaultConfig())
}

func run(logger *slog.Logger, cfg *config.Config, sessionBus bool) error {
	batteryLog := logger.With("topic", "battery")
	powerLog := logger.With("topic", "power")
	analyticsLog := logger.With("topic", "analytics")
	hardwareLog := logger.With("topic", "hardware")
	lifecycleLog := logger.With("topic", "lifecycle")
	adminLog := logger.With("topic", "admin")

	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	clientID, err := analytics.ClientID(store)
	if err != nil {
		return fmt.Errorf("client id: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	queue := analytics.NewQueue(analyticsLog, store, analytics.QueueConfig{
		Size:          cfg.Analytics.QueueSize,
		SamplePercent: cfg.Analytics.SamplePercent,
	}, m)

	hc := &http.Client{Timeout: 30 * time.Second}
	var hits, logs analytics.Sender
	if cfg.Analytics.TrackingID != "" {
		hits = analytics.NewGAClient(cfg.Analytics.Endpoint, cfg.Analytics.TrackingID, clientID, dimensions(cfg.Analytics.Device), hc)
	} else {
		analyticsLog.Warn("no tracking_id configured, hits stay in the outbox")
	}
	if cfg.Analytics.LogServerURL != "" {
		logs = analytics.NewLogClient(cfg.Analytics.LogServerURL, clientID, hc)
	}
	flusher := analytics.NewFlusher(analyticsLog, store, hits, logs, cfg.Analytics.BatchSize, m)

	est := powerstats.NewEstimator(powerstats.Config{
		MinInterval: cfg.PowerStats.MinInterval(),
		Window:      cfg.PowerStats.ReferenceWindow(),
	})
	tracker := powerstats.NewTracker(powerLog, est, queue, store, m)

	var hardware lifecycle.HardwareSource
	if cfg.Hardware.Enabled {
		hardware = collector.NewHardwareCollector(hardwareLog)
	}
	svc := lifecycle.NewService(lifecycleLog, lifecycle.Config{
		Enabled:         cfg.Analytics.Enabled,
		HardwareEnabled: cfg.Hardware.Enabled,
		QueueSize:       cfg.Analytics.QueueSize,
	}, store, queue, tracker, flusher, hardware, m)

	dbusSvc := dbussvc.NewService(logger.With("topic", "dbus"), svc, store, est, float64(cfg.PowerStats.MinBatteryPercentage))
	conn, err := dbusSvc.Export(sessionBus)
	if err != nil {
		return fmt.Errorf("export dbus service: %w", err)
	}
	defer conn.Close()
	logger.Info("D-Bus service registered", "name", dbussvc.BusName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return queue.Run(ctx) })
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return flusher.Schedule(ctx, cfg.Analytics.FlushSchedule) })
	g.Go(func() error { return scheduleCleanup(ctx, powerLog, store, cfg.Cleanup) })
	if cfg.Admin.ListenAddr != "" {
		srv := admin.NewServer(adminLog, store, registry)
		g.Go(func() error {
			// The admin endpoint is optional; losing it must not stop collection.
			if err := srv.ListenAndServe(ctx, cfg.Admin.ListenAddr); err != nil {
				adminLog.Warn("admin server stopped", "err", err)
			}
			return nil
		})
	}

	newBoot, err := lifecycle.IsNewBoot(ctx, store, collector.BootTime)
	if err != nil {
		lifecycleLog.Warn("boot detection failed", "err", err)
	} else if newBoot {
		svc.Emit(event.Event{Kind: event.BootCompleted, Time: time.Now()})
	}

	// logind supplies sleep and shutdown; its wake channel triggers an
	// immediate poll so short sleeps are not missed.
	var wakeCh <-chan struct{}
	if mon, err := collector.NewLogindMonitor(lifecycleLog, svc); err != nil {
		lifecycleLog.Warn("logind monitor unavailable", "err", err)
	} else {
		wakeCh = mon.Wake()
		defer mon.Close()
	}

	spoolCh, err := collector.WatchSpool(ctx, lifecycleLog, cfg.Storage.SpoolPath)
	if err != nil {
		lifecycleLog.Warn("spool watcher unavailable, polling only", "err", err)
	}

	watcher := collector.NewTransitionWatcher(batteryLog, svc)
	g.Go(func() error {
		return pollLoop(ctx, lifecycleLog, cfg, watcher, svc, wakeCh, spoolCh)
	})

	logger.Info("power-analyticsd started", "interval_secs", cfg.Collection.IntervalSeconds)
	err = g.Wait()
	logger.Info("shutting down")
	return err
}

// pollLoop drives the transition watcher and drains the event spool.
// A nil spoolCh leaves spool pickup to wake-ups and clock jumps.
func pollLoop(ctx context.Context, logger *slog.Logger, cfg *config.Config, watcher *collector.TransitionWatcher, sink event.Sink, wakeCh, spoolCh <-chan struct{}) error {
	interval := time.Duration(cfg.Collection.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	consumeSpool(logger, cfg.Storage.SpoolPath, sink)
	watcher.Poll(time.Now())

	lastTick := time.Now().Round(0) // Strip monotonic so Sub uses wall clock across suspend
	for {
		select {
		case <-ticker.C:
			now := time.Now().Round(0)
			if gap := now.Sub(lastTick); gap > wallClockJump*interval {
				logger.Info("wall-clock jump detected, re-reading spool", "gap_secs", int(gap.Seconds()))
				consumeSpool(logger, cfg.Storage.SpoolPath, sink)
			}
			lastTick = now
			watcher.Poll(now)
		case <-wakeCh:
			logger.Info("wake signal received, re-reading spool")
			consumeSpool(logger, cfg.Storage.SpoolPath, sink)
			watcher.Poll(time.Now())
			lastTick = time.Now().Round(0)
		case _, ok := <-spoolCh:
			if !ok {
				spoolCh = nil
				continue
			}
			consumeSpool(logger, cfg.Storage.SpoolPath, sink)
		case <-ctx.Done():
			return nil
		}
	}
}

func consumeSpool(logger *slog.Logger, path string, sink event.Sink) {
	events := collector.ReadAndConsumeSpool(logger, time.Now(), path)
	if len(events) == 0 {
		logger.Debug("no new events in spool")
		return
	}
	for _, e := range events {
		logger.Info("imported spool event", "kind", e.Kind, "time", e.Time)
		sink.Emit(e)
	}
}

// scheduleCleanup prunes expired rows on the configured interval.
func scheduleCleanup(ctx context.Context, logger *slog.Logger, store *storage.DB, cfg config.CleanupConfig) error {
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %dh", cfg.IntervalHours), func() {
		cutoff := time.Now().Add(-retention).Unix()
		n, err := store.DeleteOlderThan(cutoff)
		if err != nil {
			logger.Warn("cleanup failed", "err", err)
			return
		}
		logger.Info("cleanup done", "rows", n, "cutoff", cutoff)
	})
	if err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func dimensions(d config.DeviceConfig) analytics.Dimensions {
	return analytics.Dimensions{
		BuildType:    d.BuildType,
		BuildFlavor:  d.BuildFlavor,
		Device:       d.Device,
		Model:        d.Model,
		BuildVersion: d.BuildVersion,
		Resolution:   d.Resolution,
		Density:      d.Density,
	}
}
