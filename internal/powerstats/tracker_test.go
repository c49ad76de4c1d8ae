package powerstats

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cptspacemanspiff/power-analytics/internal/analytics"
	"github.com/cptspacemanspiff/power-analytics/internal/collector"
	"github.com/cptspacemanspiff/power-analytics/internal/metrics"
	"github.com/cptspacemanspiff/power-analytics/internal/storage"
)

type fakeClock struct {
	elapsed time.Duration
}

func (c *fakeClock) Elapsed() time.Duration { return c.elapsed }
func (c *fakeClock) Awake() time.Duration   { return c.elapsed }

type recordingReporter struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recordingReporter) Report(_ context.Context, e analytics.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type trackerFixture struct {
	tracker  *Tracker
	clock    *fakeClock
	reporter *recordingReporter
	db       *storage.DB
	metrics  *metrics.Metrics

	battery  *collector.BatteryState
	batErr   error
	screenOn bool
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &trackerFixture{
		clock:    &fakeClock{},
		reporter: &recordingReporter{},
		db:       db,
		metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
		battery:  &collector.BatteryState{Status: collector.StatusDischarging, Level: 80, Scale: 100, Present: true},
		screenOn: true,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.tracker = NewTracker(logger, NewEstimator(DefaultConfig()), f.reporter, db, f.metrics)
	f.tracker.clock = f.clock
	f.tracker.battery = func() (*collector.BatteryState, error) {
		if f.batErr != nil {
			return nil, f.batErr
		}
		b := *f.battery
		return &b, nil
	}
	f.tracker.screenOn = func() bool { return f.screenOn }
	f.tracker.now = func() time.Time { return time.Unix(1000, 0).Add(f.clock.elapsed) }
	return f
}

func TestTracker_ScreenTransitionReports(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.tracker.OnScreenOn(ctx)
	f.clock.elapsed = time.Hour
	f.battery.Level = 70
	f.tracker.OnScreenOff(ctx)

	if len(f.reporter.events) != 1 {
		t.Fatalf("reported %d events, want 1", len(f.reporter.events))
	}
	got := f.reporter.events[0]
	if got.Type != analytics.HitEvent || got.Category != "power_usage" || got.Action != "discharge_screen_on" {
		t.Fatalf("event = %#v, want power_usage/discharge_screen_on", got)
	}
	if got.Label != "100" || got.Value == nil || *got.Value != 100 || !got.Sampled {
		t.Fatalf("event = %#v, want sampled label/value 100", got)
	}

	records, err := f.db.DischargeEventsInRange(0, 1<<40)
	if err != nil {
		t.Fatalf("DischargeEventsInRange() error = %v", err)
	}
	if len(records) != 1 || records[0].Rate != 100 || records[0].IntervalSecs != 3600 || !records[0].PriorScreenOn {
		t.Fatalf("records = %#v, want one 100 rate over 3600s", records)
	}
	obs, err := f.db.ObservationsInRange(0, 1<<40)
	if err != nil {
		t.Fatalf("ObservationsInRange() error = %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("observations = %d, want 2", len(obs))
	}
	if got := testutil.ToFloat64(f.metrics.LastDischargeRate.WithLabelValues("discharge_screen_on")); got != 100 {
		t.Fatalf("LastDischargeRate = %v, want 100", got)
	}
}

func TestTracker_DuplicateStateNotRecorded(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.tracker.OnScreenOn(ctx)
	f.battery.Level = 70
	f.tracker.OnScreenOn(ctx)

	obs, err := f.db.ObservationsInRange(0, 1<<40)
	if err != nil {
		t.Fatalf("ObservationsInRange() error = %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("observations = %d, want 1", len(obs))
	}
	if got := testutil.ToFloat64(f.metrics.Observations); got != 1 {
		t.Fatalf("Observations = %v, want 1", got)
	}
	if last, _ := f.tracker.Estimator().Last(); last.Percentage == 70 {
		t.Fatalf("Last() = %#v, duplicate replaced the baseline", last)
	}
}

func TestTracker_PowerTriggersUseScreenReader(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.screenOn = false
	f.tracker.OnPowerDisconnected(ctx)
	last, ok := f.tracker.Estimator().Last()
	if !ok || last.ScreenOn || last.Charging {
		t.Fatalf("Last() = %#v, want screen off, not charging", last)
	}

	// Status says discharging but the trigger wins.
	f.clock.elapsed = 2 * time.Hour
	f.battery.Level = 76
	f.tracker.OnPowerConnected(ctx)
	last, _ = f.tracker.Estimator().Last()
	if !last.Charging {
		t.Fatalf("Last() = %#v, want charging", last)
	}
	if len(f.reporter.events) != 1 || f.reporter.events[0].Action != "discharge_screen_off" || *f.reporter.events[0].Value != 20 {
		t.Fatalf("events = %#v, want one discharge_screen_off rate 20", f.reporter.events)
	}
}

func TestTracker_ScreenTriggerUsesBatteryCharging(t *testing.T) {
	f := newTrackerFixture(t)
	f.battery.Plugged = true

	f.tracker.OnScreenOff(context.Background())
	last, _ := f.tracker.Estimator().Last()
	if !last.Charging || last.ScreenOn {
		t.Fatalf("Last() = %#v, want screen off while charging", last)
	}
}

func TestTracker_UnavailableOrInvalidBatterySkips(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.batErr = collector.ErrUnavailable
	f.tracker.OnScreenOn(ctx)
	if _, ok := f.tracker.Estimator().Last(); ok {
		t.Fatal("baseline set with no battery")
	}

	f.batErr = nil
	f.battery.Level = -1
	f.tracker.OnScreenOn(ctx)
	if _, ok := f.tracker.Estimator().Last(); ok {
		t.Fatal("baseline set from unreadable level")
	}
	if got := testutil.ToFloat64(f.metrics.Observations); got != 0 {
		t.Fatalf("Observations = %v, want 0", got)
	}
}

func TestSnapshot(t *testing.T) {
	clock := &fakeClock{elapsed: 42 * time.Second}
	bat := &collector.BatteryState{Level: 3, Scale: 4}

	got := Snapshot(clock, bat, true, false)
	want := Sample{ScreenOn: true, Timestamp: 42 * time.Second, Percentage: 75}
	if got != want {
		t.Fatalf("Snapshot() = %#v, want %#v", got, want)
	}
}
