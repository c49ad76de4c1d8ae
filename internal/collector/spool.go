package collector

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/cptspacemanspiff/power-analytics/internal/event"
)

// spoolEntry is one line of the event spool written by system hooks and
// helper scripts.
type spoolEntry struct {
	Ts          int64             `json:"ts"`
	Event       string            `json:"event"`
	Component   string            `json:"component,omitempty"`
	Package     string            `json:"package,omitempty"`
	Description string            `json:"description,omitempty"`
	Thread      string            `json:"thread,omitempty"`
	Category    string            `json:"category,omitempty"`
	Action      string            `json:"action,omitempty"`
	Label       string            `json:"label,omitempty"`
	Value       *int64            `json:"value,omitempty"`
	Sampled     *bool             `json:"sampled,omitempty"`
	Logs        map[string]string `json:"logs,omitempty"`
}

// ReadAndConsumeSpool atomically takes the spool file and returns its events
// in file order. Malformed lines and unknown event names are skipped. Entries
// without a timestamp get now.
func ReadAndConsumeSpool(logger *slog.Logger, now time.Time, spoolPath string) []event.Event {
	processingPath := spoolPath + ".processing"

	// Rename first so writers start a fresh file.
	if err := os.Rename(spoolPath, processingPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		logger.Error("rename failed", "err", err)
		return nil
	}

	f, err := os.Open(processingPath)
	if err != nil {
		logger.Error("open processing file", "err", err)
		return nil
	}
	defer f.Close()
	defer os.Remove(processingPath)

	var events []event.Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e spoolEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			logger.Warn("skip malformed line", "err", err)
			continue
		}
		evt, err := e.toEvent(now)
		if err != nil {
			logger.Warn("skip entry", "err", err)
			continue
		}
		events = append(events, evt)
	}
	return events
}

func (e spoolEntry) toEvent(now time.Time) (event.Event, error) {
	kind, err := event.ParseKind(e.Event)
	if err != nil {
		return event.Event{}, err
	}
	ts := now
	if e.Ts > 0 {
		ts = time.Unix(e.Ts, 0)
	}
	// Custom events are sampled unless the writer says otherwise.
	sampled := true
	if e.Sampled != nil {
		sampled = *e.Sampled
	}
	return event.Event{
		Kind:        kind,
		Time:        ts,
		Component:   e.Component,
		Description: e.Description,
		Thread:      e.Thread,
		Package:     e.Package,
		Category:    e.Category,
		Action:      e.Action,
		Label:       e.Label,
		Value:       e.Value,
		Sampled:     sampled,
		Logs:        e.Logs,
	}, nil
}
