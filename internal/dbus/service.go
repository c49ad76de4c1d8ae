package dbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/cptspacemanspiff/power-analytics/internal/collector"
	"github.com/cptspacemanspiff/power-analytics/internal/event"
	"github.com/cptspacemanspiff/power-analytics/internal/powerstats"
	"github.com/cptspacemanspiff/power-analytics/internal/storage"
)

const (
	BusName   = "io.github.cptspacemanspiff.PowerAnalytics"
	ObjPath   = "/io/github/cptspacemanspiff/PowerAnalytics"
	IfaceName = "io.github.cptspacemanspiff.PowerAnalytics"
)

const maxQueryRange = 365 * 24 * 60 * 60

// handleTimeout bounds a single client request.
const handleTimeout = 10 * time.Second

const introspectXML = `
<node>
  <interface name="` + IfaceName + `">
    <method name="SendEvent">
      <arg direction="in" type="s" name="category"/>
      <arg direction="in" type="s" name="action"/>
      <arg direction="in" type="s" name="label"/>
      <arg direction="in" type="x" name="value"/>
      <arg direction="in" type="b" name="has_value"/>
      <arg direction="in" type="s" name="package"/>
      <arg direction="in" type="b" name="sampled"/>
    </method>
    <method name="HitScreen">
      <arg direction="in" type="s" name="component"/>
    </method>
    <method name="CaptureException">
      <arg direction="in" type="s" name="description"/>
      <arg direction="in" type="s" name="thread"/>
      <arg direction="in" type="s" name="package"/>
    </method>
    <method name="UploadLog">
      <arg direction="in" type="s" name="package"/>
      <arg direction="in" type="a{ss}" name="logs"/>
    </method>
    <method name="SendLogs"/>
    <method name="GetCurrentStats">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetDischargeHistory">
      <arg direction="in" type="x" name="from_epoch"/>
      <arg direction="in" type="x" name="to_epoch"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetHardwareInfo">
      <arg direction="out" type="s" name="json"/>
    </method>
  </interface>
` + introspect.IntrospectDataString + `
</node>`

// Handler processes client events.
type Handler interface {
	Handle(ctx context.Context, e event.Event) error
}

// Store is the read side used by the query methods.
type Store interface {
	LatestObservation() (*storage.Observation, error)
	DischargeEventsInRange(from, to int64) ([]storage.DischargeRecord, error)
	AllHardwareInfo() ([]storage.HardwareRecord, error)
	PendingCount() (int, error)
}

// CurrentStats is the GetCurrentStats payload.
type CurrentStats struct {
	Battery         *collector.BatteryState `json:"battery"`
	Percentage      float64                 `json:"percentage"`
	PowerSufficient bool                    `json:"power_sufficient"`
	ScreenOn        bool                    `json:"screen_on"`
	Baseline        *Baseline               `json:"baseline"`
	LastObservation *storage.Observation    `json:"last_observation"`
	PendingHits     int                     `json:"pending_hits"`
}

// Baseline is the estimator's current reference sample.
type Baseline struct {
	ScreenOn   bool    `json:"screen_on"`
	Charging   bool    `json:"charging"`
	ElapsedMs  int64   `json:"elapsed_ms"`
	Percentage float64 `json:"percentage"`
}

// Service exposes the analytics daemon over D-Bus.
type Service struct {
	handler   Handler
	store     Store
	estimator *powerstats.Estimator
	minPower  float64
	log       *slog.Logger

	battery  func() (*collector.BatteryState, error)
	screenOn func() bool
}

// NewService creates a new D-Bus service. minPower is the battery percentage
// below which power is reported insufficient.
func NewService(logger *slog.Logger, handler Handler, store Store, est *powerstats.Estimator, minPower float64) *Service {
	return &Service{
		handler:   handler,
		store:     store,
		estimator: est,
		minPower:  minPower,
		log:       logger,
		battery:   collector.CollectBattery,
		screenOn:  collector.IsScreenOn,
	}
}

// Export registers the service on the system bus, or the session bus when
// session is set.
func (s *Service) Export(session bool) (*godbus.Conn, error) {
	connect := godbus.SystemBus
	if session {
		connect = godbus.SessionBus
	}
	conn, err := connect()
	if err != nil {
		return nil, fmt.Errorf("connect bus: %w", err)
	}

	if err := conn.Export(s, ObjPath, IfaceName); err != nil {
		return nil, fmt.Errorf("export service: %w", err)
	}
	if err := conn.Export(introspect.Introspectable(introspectXML), ObjPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(BusName, godbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("request name: %w", err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("name %s already taken", BusName)
	}

	return conn, nil
}

func (s *Service) handle(e event.Event) *godbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	if err := s.handler.Handle(ctx, e); err != nil {
		s.log.Debug("client request rejected", "kind", e.Kind, "err", err)
		return godbus.MakeFailedError(err)
	}
	return nil
}

// SendEvent records a custom event.
func (s *Service) SendEvent(category, action, label string, value int64, hasValue bool, pkg string, sampled bool) *godbus.Error {
	e := event.Event{
		Kind:     event.CustomEvent,
		Category: category,
		Action:   action,
		Label:    label,
		Package:  pkg,
		Sampled:  sampled,
	}
	if hasValue {
		e.Value = &value
	}
	return s.handle(e)
}

// HitScreen records a screen view of component ("package/class").
func (s *Service) HitScreen(component string) *godbus.Error {
	return s.handle(event.Event{Kind: event.HitScreen, Component: component})
}

// CaptureException records a crash report.
func (s *Service) CaptureException(description, thread, pkg string) *godbus.Error {
	return s.handle(event.Event{
		Kind:        event.Exception,
		Description: description,
		Thread:      thread,
		Package:     pkg,
	})
}

// UploadLog queues key/value logs for the log server.
func (s *Service) UploadLog(pkg string, logs map[string]string) *godbus.Error {
	return s.handle(event.Event{Kind: event.GeneralLog, Package: pkg, Logs: logs})
}

// SendLogs uploads the outbox now.
func (s *Service) SendLogs() *godbus.Error {
	return s.handle(event.Event{Kind: event.SendLogs})
}

// GetCurrentStats returns the live battery state and estimator baseline as JSON.
func (s *Service) GetCurrentStats() (string, *godbus.Error) {
	stats := CurrentStats{Percentage: -1, ScreenOn: s.screenOn()}
	if bat, err := s.battery(); err == nil {
		stats.Battery = bat
		stats.Percentage = bat.Percentage()
		stats.PowerSufficient = bat.IsPowerSufficient(s.minPower)
	}
	if last, ok := s.estimator.Last(); ok {
		stats.Baseline = &Baseline{
			ScreenOn:   last.ScreenOn,
			Charging:   last.Charging,
			ElapsedMs:  last.Timestamp.Milliseconds(),
			Percentage: last.Percentage,
		}
	}
	stats.LastObservation, _ = s.store.LatestObservation()
	stats.PendingHits, _ = s.store.PendingCount()

	data, err := json.Marshal(stats)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

// GetDischargeHistory returns discharge events in a time range as JSON.
func (s *Service) GetDischargeHistory(fromEpoch, toEpoch int64) (string, *godbus.Error) {
	if err := validateRange(fromEpoch, toEpoch); err != nil {
		return "", godbus.MakeFailedError(err)
	}
	events, err := s.store.DischargeEventsInRange(fromEpoch, toEpoch)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	if events == nil {
		events = []storage.DischargeRecord{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

// GetHardwareInfo returns the last reported hardware facts as JSON.
func (s *Service) GetHardwareInfo() (string, *godbus.Error) {
	facts, err := s.store.AllHardwareInfo()
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	result := make(map[string]string, len(facts))
	for _, f := range facts {
		result[f.Key] = f.Value
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

func validateRange(from, to int64) error {
	if from < 0 {
		return fmt.Errorf("from_epoch must not be negative")
	}
	if to < from {
		return fmt.Errorf("to_epoch must not be before from_epoch")
	}
	if to-from > maxQueryRange {
		return fmt.Errorf("range exceeds %d seconds", maxQueryRange)
	}
	return nil
}
