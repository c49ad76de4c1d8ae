// Package lifecycle turns device lifecycle triggers and client requests into
// analytics hits and discharge-rate observations.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cptspacemanspiff/power-analytics/internal/analytics"
	"github.com/cptspacemanspiff/power-analytics/internal/collector"
	"github.com/cptspacemanspiff/power-analytics/internal/event"
	"github.com/cptspacemanspiff/power-analytics/internal/metrics"
	"github.com/cptspacemanspiff/power-analytics/internal/storage"
)

// Analytics categories.
const (
	CategoryPower    = "power"
	CategoryHardware = "system:hardware_info"
)

// Power event actions.
const (
	ActionBootCompleted = "boot_completed"
	ActionShutdown      = "shutdown"
	ActionScreenOn      = "screen_on"
	ActionScreenOff     = "screen_off"
	ActionHasBattery    = "has_battery"
)

const (
	mainThread             = "main"
	maxExceptionDescLength = 4 * 1024
)

// PowerTracker receives the transitions that feed the discharge estimator.
type PowerTracker interface {
	OnScreenOn(ctx context.Context)
	OnScreenOff(ctx context.Context)
	OnPowerConnected(ctx context.Context)
	OnPowerDisconnected(ctx context.Context)
}

// Flusher uploads the outbox.
type Flusher interface {
	Flush(ctx context.Context) error
}

// HardwareSource collects static hardware facts.
type HardwareSource interface {
	Collect(ctx context.Context) collector.HardwareReport
}

// Store is the persistent state used by the service.
type Store interface {
	PrefInt(key string) (int64, bool, error)
	SetPrefInt(key string, value int64) error
	DeletePref(key string) error
	HardwareInfo(key string) (string, bool, error)
	SetHardwareInfo(key, value string, at int64) error
}

// Config toggles parts of the service.
type Config struct {
	// Enabled is the usage statistics switch. When false every event is
	// ignored.
	Enabled bool
	// HardwareEnabled runs hardware collection on boot.
	HardwareEnabled bool
	// QueueSize bounds events buffered by Emit.
	QueueSize int
}

// Service handles lifecycle events. Handle may be called concurrently;
// Emit queues events for Run.
type Service struct {
	cfg      Config
	store    Store
	reporter analytics.Reporter
	tracker  PowerTracker
	flusher  Flusher
	hardware HardwareSource
	metrics  *metrics.Metrics
	log      *slog.Logger

	clock collector.Clock
	now   func() time.Time

	// screenMu guards the screen change time pref and screen.
	screenMu sync.Mutex
	// screen is the last reported screen state. Several trigger sources
	// report the same transition; only the first one counts.
	screen screenState
	queue    chan event.Event
}

type screenState int

const (
	screenUnknown screenState = iota
	screenOn
	screenOff
)

// NewService wires a service. flusher and hardware may be nil.
func NewService(logger *slog.Logger, cfg Config, store Store, reporter analytics.Reporter, tracker PowerTracker, flusher Flusher, hardware HardwareSource, m *metrics.Metrics) *Service {
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		reporter: reporter,
		tracker:  tracker,
		flusher:  flusher,
		hardware: hardware,
		metrics:  m,
		log:      logger,
		clock:    collector.BootClock{},
		now:      time.Now,
		queue:    make(chan event.Event, size),
	}
}

// Emit queues e for Run. Events are dropped when the queue is full.
func (s *Service) Emit(e event.Event) {
	select {
	case s.queue <- e:
	default:
		s.log.Warn("event queue full, dropping", "kind", e.Kind)
	}
}

// Run handles queued events until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case e := <-s.queue:
			if err := s.Handle(ctx, e); err != nil {
				s.log.Warn("handle event", "kind", e.Kind, "err", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Handle processes one event. Errors are returned only for malformed client
// requests and failed flushes.
func (s *Service) Handle(ctx context.Context, e event.Event) error {
	if !s.cfg.Enabled {
		s.log.Debug("usage statistics disabled", "kind", e.Kind)
		return nil
	}
	if e.Time.IsZero() {
		e.Time = s.now()
	}
	s.metrics.LifecycleEvents.WithLabelValues(e.Kind.String()).Inc()
	s.log.Debug("handle event", "kind", e.Kind)

	switch e.Kind {
	case event.BootCompleted:
		s.onBootCompleted(ctx, e)
	case event.Shutdown:
		s.onShutdown(ctx, e)
	case event.ScreenOn:
		if !s.setScreen(true) {
			s.log.Debug("screen already on, ignoring")
			return nil
		}
		s.onScreenChange(ctx, e, ActionScreenOn)
		s.tracker.OnScreenOn(ctx)
	case event.ScreenOff:
		if !s.setScreen(false) {
			s.log.Debug("screen already off, ignoring")
			return nil
		}
		s.onScreenChange(ctx, e, ActionScreenOff)
		s.tracker.OnScreenOff(ctx)
	case event.PowerConnected:
		s.tracker.OnPowerConnected(ctx)
	case event.PowerDisconnected:
		s.tracker.OnPowerDisconnected(ctx)
	case event.HitScreen:
		return s.onHitScreen(ctx, e)
	case event.Exception:
		return s.onException(ctx, e)
	case event.CustomEvent:
		return s.onCustomEvent(ctx, e)
	case event.GeneralLog:
		return s.onGeneralLog(ctx, e)
	case event.SendLogs:
		if s.flusher == nil {
			return nil
		}
		return s.flusher.Flush(ctx)
	default:
		return fmt.Errorf("unknown event kind %v", e.Kind)
	}
	return nil
}

func (s *Service) report(ctx context.Context, e analytics.Event) error {
	err := s.reporter.Report(ctx, e)
	if err != nil {
		s.log.Warn("report", "category", e.Category, "action", e.Action, "err", err)
	}
	return err
}

// setScreen records the screen state and reports whether it changed.
func (s *Service) setScreen(on bool) bool {
	next := screenOff
	if on {
		next = screenOn
	}
	s.screenMu.Lock()
	defer s.screenMu.Unlock()
	if s.screen == next {
		return false
	}
	s.screen = next
	return true
}

func (s *Service) onBootCompleted(ctx context.Context, e event.Event) {
	s.screenMu.Lock()
	s.screen = screenOn
	if err := s.store.SetPrefInt(storage.PrefScreenChangeTime, e.Time.Unix()); err != nil {
		s.log.Warn("store screen change time", "err", err)
	}
	s.screenMu.Unlock()

	s.report(ctx, analytics.Event{
		Type:     analytics.HitEvent,
		Time:     e.Time,
		Category: CategoryPower,
		Action:   ActionBootCompleted,
		Value:    analytics.Int64(int64(s.clock.Elapsed() / time.Second)),
	})

	if s.cfg.HardwareEnabled && s.hardware != nil {
		s.uploadHardwareInfo(ctx, e.Time)
	}
	s.tracker.OnScreenOn(ctx)
}

func (s *Service) onShutdown(ctx context.Context, e event.Event) {
	s.report(ctx, analytics.Event{
		Type:     analytics.HitEvent,
		Time:     e.Time,
		Category: CategoryPower,
		Action:   ActionShutdown,
		Value:    analytics.Int64(int64(s.clock.Elapsed() / time.Second)),
		Metrics: map[int]int64{
			analytics.MetricPowerOnNotIncludingSleep: int64(s.clock.Awake() / time.Second),
		},
	})

	// One extra screen off closes the last screen-on period, unless it was
	// already closed.
	if s.setScreen(false) {
		s.onScreenChange(ctx, e, ActionScreenOff)
	}
	s.screenMu.Lock()
	if err := s.store.DeletePref(storage.PrefScreenChangeTime); err != nil {
		s.log.Warn("clear screen change time", "err", err)
	}
	s.screenMu.Unlock()

	s.tracker.OnScreenOff(ctx)
}

// onScreenChange reports the length of the period that just ended and
// starts a new one.
func (s *Service) onScreenChange(ctx context.Context, e event.Event, action string) {
	s.screenMu.Lock()
	nowSecs := e.Time.Unix()
	last, ok, err := s.store.PrefInt(storage.PrefScreenChangeTime)
	if err != nil {
		s.log.Warn("read screen change time", "err", err)
	}
	if err := s.store.SetPrefInt(storage.PrefScreenChangeTime, nowSecs); err != nil {
		s.log.Warn("store screen change time", "err", err)
	}
	s.screenMu.Unlock()

	hit := analytics.Event{
		Type:     analytics.HitEvent,
		Time:     e.Time,
		Category: CategoryPower,
		Action:   action,
	}
	if ok {
		hit.Value = analytics.Int64(nowSecs - last)
	}
	s.report(ctx, hit)
}

func (s *Service) onHitScreen(ctx context.Context, e event.Event) error {
	pkg, class, err := splitComponent(e.Component)
	if err != nil {
		return err
	}
	return s.report(ctx, analytics.Event{
		Type:       analytics.HitScreenView,
		Time:       e.Time,
		Package:    pkg,
		ScreenName: class,
	})
}

func (s *Service) onException(ctx context.Context, e event.Event) error {
	if e.Description == "" {
		return errors.New("exception without description")
	}
	desc := e.Description
	if e.Thread != "" && e.Thread != mainThread {
		desc = "Thread: " + e.Thread + " " + desc
	}
	return s.report(ctx, analytics.Event{
		Type:        analytics.HitException,
		Time:        e.Time,
		Package:     e.Package,
		Description: TruncateDescription(desc, maxExceptionDescLength),
		Fatal:       true,
	})
}

func (s *Service) onCustomEvent(ctx context.Context, e event.Event) error {
	if e.Category == "" || e.Action == "" {
		return errors.New("custom event needs category and action")
	}
	return s.report(ctx, analytics.Event{
		Type:     analytics.HitEvent,
		Time:     e.Time,
		Category: e.Category,
		Action:   e.Action,
		Label:    e.Label,
		Value:    e.Value,
		Package:  e.Package,
		Sampled:  e.Sampled,
	})
}

func (s *Service) onGeneralLog(ctx context.Context, e event.Event) error {
	if len(e.Logs) == 0 {
		return errors.New("general log without entries")
	}
	return s.report(ctx, analytics.Event{
		Type:    analytics.HitLog,
		Time:    e.Time,
		Package: e.Package,
		Logs:    e.Logs,
	})
}

// uploadHardwareInfo reports each fact whose value changed since it was last
// reported. Battery presence is always reported.
func (s *Service) uploadHardwareInfo(ctx context.Context, at time.Time) {
	report := s.hardware.Collect(ctx)

	for _, fact := range report.Facts {
		last, ok, err := s.store.HardwareInfo(fact.Key)
		if err != nil {
			s.log.Warn("read hardware info", "key", fact.Key, "err", err)
		}
		if ok && last == fact.Value {
			continue
		}
		err = s.report(ctx, analytics.Event{
			Type:     analytics.HitEvent,
			Time:     at,
			Category: CategoryHardware,
			Action:   fact.Key,
			Label:    fact.Value,
		})
		if err != nil {
			continue
		}
		if err := s.store.SetHardwareInfo(fact.Key, fact.Value, at.Unix()); err != nil {
			s.log.Warn("store hardware info", "key", fact.Key, "err", err)
		}
	}

	label := "no_battery"
	if report.HasBattery {
		label = "battery"
	}
	s.report(ctx, analytics.Event{
		Type:     analytics.HitEvent,
		Time:     at,
		Category: CategoryHardware,
		Action:   ActionHasBattery,
		Label:    label,
		Sampled:  true,
	})
}

// splitComponent parses "package/class". A class starting with "." is
// relative to the package.
func splitComponent(s string) (pkg, class string, err error) {
	pkg, class, ok := strings.Cut(s, "/")
	if !ok || pkg == "" || class == "" {
		return "", "", fmt.Errorf("invalid component name %q", s)
	}
	if strings.HasPrefix(class, ".") {
		class = pkg + class
	}
	return pkg, class, nil
}

// TruncateDescription cuts s to at most max bytes, ending in "..." when cut.
// The cut never splits a UTF-8 sequence.
func TruncateDescription(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
