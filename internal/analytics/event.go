// Package analytics queues telemetry hits in a local outbox and uploads them
// to a Google Analytics collection endpoint and the device log server.
package analytics

import (
	"errors"
	"time"
)

// ErrQueueFull is returned by Report when the hit was dropped because the
// worker has fallen behind.
var ErrQueueFull = errors.New("report queue full")

// HitType selects how an Event is encoded and where it is uploaded.
type HitType string

const (
	HitEvent      HitType = "event"
	HitScreenView HitType = "screenview"
	HitException  HitType = "exception"
	// HitLog entries go to the log server, not Google Analytics.
	HitLog HitType = "log"
)

// Event is one analytics hit.
type Event struct {
	Type     HitType   `json:"type"`
	Time     time.Time `json:"time"`
	Category string    `json:"category,omitempty"`
	Action   string    `json:"action,omitempty"`
	Label    string    `json:"label,omitempty"`
	Value    *int64    `json:"value,omitempty"`

	// Package is the originating application, sent as the app name.
	Package     string `json:"package,omitempty"`
	ScreenName  string `json:"screen_name,omitempty"`
	Description string `json:"description,omitempty"`
	Fatal       bool   `json:"fatal,omitempty"`

	// Metrics maps custom metric index to value.
	Metrics map[int]int64     `json:"metrics,omitempty"`
	Logs    map[string]string `json:"logs,omitempty"`

	// Sampled hits are kept with probability sample_percent/100.
	Sampled bool `json:"sampled,omitempty"`
}

// Int64 returns a pointer to v, for Event.Value.
func Int64(v int64) *int64 {
	return &v
}

// Custom metric indexes.
const (
	MetricPowerOnNotIncludingSleep = 1
)

// Dimensions are the per-device custom dimensions attached to every hit.
type Dimensions struct {
	BuildType    string `toml:"build_type"`
	BuildFlavor  string `toml:"build_flavor"`
	Device       string `toml:"device"`
	Model        string `toml:"model"`
	BuildVersion string `toml:"build_version"`
	Resolution   string `toml:"resolution"`
	Density      string `toml:"density"`
}

// indexed returns the dimensions keyed by their custom dimension index.
func (d Dimensions) indexed() []struct {
	index int
	value string
} {
	return []struct {
		index int
		value string
	}{
		{1, d.BuildType},
		{2, d.BuildFlavor},
		{3, d.Device},
		{4, d.Model},
		{5, d.BuildVersion},
		{12, d.Resolution},
		{13, d.Density},
	}
}
