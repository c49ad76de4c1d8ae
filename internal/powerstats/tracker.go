package powerstats

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/cptspacemanspiff/power-analytics/internal/analytics"
	"github.com/cptspacemanspiff/power-analytics/internal/collector"
	"github.com/cptspacemanspiff/power-analytics/internal/metrics"
	"github.com/cptspacemanspiff/power-analytics/internal/storage"
)

// Category is the analytics category of discharge reports.
const Category = "power_usage"

// Recorder persists observations and emitted events.
type Recorder interface {
	InsertObservation(o storage.Observation) error
	InsertDischargeEvent(r storage.DischargeRecord) error
}

// Snapshot stamps a battery reading with the boot clock.
func Snapshot(clock collector.Clock, bat *collector.BatteryState, screenOn, charging bool) Sample {
	return Sample{
		ScreenOn:   screenOn,
		Charging:   charging,
		Timestamp:  clock.Elapsed(),
		Percentage: bat.Percentage(),
	}
}

// Tracker feeds the estimator from lifecycle triggers and reports the
// resulting discharge rates. Its methods may be called from any goroutine.
type Tracker struct {
	est      *Estimator
	reporter analytics.Reporter
	recorder Recorder
	metrics  *metrics.Metrics
	log      *slog.Logger

	clock    collector.Clock
	battery  func() (*collector.BatteryState, error)
	screenOn func() bool
	now      func() time.Time
}

// NewTracker creates a tracker reading the platform battery and backlight.
// recorder may be nil.
func NewTracker(logger *slog.Logger, est *Estimator, reporter analytics.Reporter, recorder Recorder, m *metrics.Metrics) *Tracker {
	return &Tracker{
		est:      est,
		reporter: reporter,
		recorder: recorder,
		metrics:  m,
		log:      logger,
		clock:    collector.BootClock{},
		battery:  collector.CollectBattery,
		screenOn: collector.IsScreenOn,
		now:      time.Now,
	}
}

// OnScreenOn observes a screen-on transition.
func (t *Tracker) OnScreenOn(ctx context.Context) {
	t.onScreen(ctx, true)
}

// OnScreenOff observes a screen-off transition.
func (t *Tracker) OnScreenOff(ctx context.Context) {
	t.onScreen(ctx, false)
}

// OnPowerConnected observes the charger being plugged in.
func (t *Tracker) OnPowerConnected(ctx context.Context) {
	t.onPower(ctx, true)
}

// OnPowerDisconnected observes the charger being unplugged.
func (t *Tracker) OnPowerDisconnected(ctx context.Context) {
	t.onPower(ctx, false)
}

// Estimator returns the underlying estimator.
func (t *Tracker) Estimator() *Estimator {
	return t.est
}

func (t *Tracker) onScreen(ctx context.Context, on bool) {
	bat, ok := t.readBattery()
	if !ok {
		return
	}
	t.observe(ctx, Snapshot(t.clock, bat, on, bat.IsCharging()))
}

func (t *Tracker) onPower(ctx context.Context, charging bool) {
	bat, ok := t.readBattery()
	if !ok {
		return
	}
	t.observe(ctx, Snapshot(t.clock, bat, t.screenOn(), charging))
}

func (t *Tracker) readBattery() (*collector.BatteryState, bool) {
	bat, err := t.battery()
	if err != nil {
		t.log.Debug("battery unavailable", "err", err)
		return nil, false
	}
	return bat, true
}

func (t *Tracker) observe(ctx context.Context, s Sample) {
	if !s.Valid() {
		t.log.Debug("skip sample with unreadable level")
		return
	}

	ev, ok, accepted := t.est.observe(s)
	if !accepted {
		t.log.Debug("duplicate state, sample discarded", "screen_on", s.ScreenOn, "charging", s.Charging)
		return
	}
	t.metrics.Observations.Inc()
	t.log.Debug("observed", "screen_on", s.ScreenOn, "charging", s.Charging, "percentage", s.Percentage, "elapsed", s.Timestamp)

	now := t.now().Unix()
	if t.recorder != nil {
		err := t.recorder.InsertObservation(storage.Observation{
			Timestamp:  now,
			ElapsedMs:  s.Timestamp.Milliseconds(),
			Percentage: s.Percentage,
			ScreenOn:   s.ScreenOn,
			Charging:   s.Charging,
		})
		if err != nil {
			t.log.Warn("store observation", "err", err)
		}
	}
	if !ok {
		return
	}

	action := ev.Action()
	t.metrics.DischargeEvents.WithLabelValues(action).Inc()
	t.metrics.LastDischargeRate.WithLabelValues(action).Set(float64(ev.Rate))
	t.log.Info("discharge rate", "action", action, "rate", ev.Rate, "interval", ev.Interval, "drop", ev.Drop)

	if t.recorder != nil {
		err := t.recorder.InsertDischargeEvent(storage.DischargeRecord{
			Timestamp:     now,
			Action:        action,
			Rate:          ev.Rate,
			IntervalSecs:  int64(ev.Interval / time.Second),
			Drop:          ev.Drop,
			PriorScreenOn: ev.PriorScreenOn,
		})
		if err != nil {
			t.log.Warn("store discharge event", "err", err)
		}
	}

	err := t.reporter.Report(ctx, analytics.Event{
		Type:     analytics.HitEvent,
		Category: Category,
		Action:   action,
		Label:    strconv.FormatInt(ev.Rate, 10),
		Value:    analytics.Int64(ev.Rate),
		Sampled:  true,
	})
	if err != nil {
		t.log.Warn("report discharge rate", "err", err)
	}
}
