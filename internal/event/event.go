// Package event defines the closed set of lifecycle and client events the
// daemon reacts to.
package event

import (
	"fmt"
	"time"
)

// Kind identifies an event. The set is closed; handlers switch over it.
type Kind int

const (
	BootCompleted Kind = iota + 1
	Shutdown
	ScreenOn
	ScreenOff
	PowerConnected
	PowerDisconnected
	HitScreen
	Exception
	CustomEvent
	GeneralLog
	SendLogs
)

var kindNames = map[Kind]string{
	BootCompleted:     "boot_completed",
	Shutdown:          "shutdown",
	ScreenOn:          "screen_on",
	ScreenOff:         "screen_off",
	PowerConnected:    "power_connected",
	PowerDisconnected: "power_disconnected",
	HitScreen:         "hit_screen",
	Exception:         "exception",
	CustomEvent:       "custom_event",
	GeneralLog:        "general",
	SendLogs:          "send_logs",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a wire name back to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event %q", s)
}

// Event is one trigger delivered to the lifecycle service. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind Kind
	Time time.Time

	// HitScreen: "package/class".
	Component string

	// Exception.
	Description string
	Thread      string

	// CustomEvent, Exception: the sending package.
	Package string

	// CustomEvent.
	Category string
	Action   string
	Label    string
	Value    *int64
	Sampled  bool

	// GeneralLog.
	Logs map[string]string
}

// Sink accepts events from a trigger source. Implementations must not block
// for long; sources call Emit from their own goroutines.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }
