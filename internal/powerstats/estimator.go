// Package powerstats estimates the battery discharge rate between
// screen and charging transitions.
package powerstats

import (
	"sync"
	"time"
)

// Defaults for Config.
const (
	DefaultMinInterval = 15 * time.Minute
	DefaultWindow      = 10 * time.Hour
)

// Sample is one battery reading tagged with the screen and charging state at
// the time of a transition.
type Sample struct {
	ScreenOn bool
	Charging bool
	// Timestamp is time since boot including sleep.
	Timestamp time.Duration
	// Percentage is in [0,100], or negative when the level was unreadable.
	Percentage float64
}

// Valid reports whether the sample carries a usable percentage.
func (s Sample) Valid() bool {
	return s.Percentage >= 0
}

// DischargeEvent is an estimated discharge rate over the interval between two
// accepted samples.
type DischargeEvent struct {
	PriorScreenOn bool
	// Rate is the percentage drop normalised to the reference window,
	// truncated toward zero.
	Rate     int64
	Interval time.Duration
	Drop     float64
}

// Action is the analytics action for the event.
func (e DischargeEvent) Action() string {
	if e.PriorScreenOn {
		return "discharge_screen_on"
	}
	return "discharge_screen_off"
}

// Config holds the estimator thresholds.
type Config struct {
	// MinInterval is the exclusive lower bound on the interval of an
	// emitted event.
	MinInterval time.Duration
	// Window is the reference period rates are normalised to.
	Window time.Duration
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{MinInterval: DefaultMinInterval, Window: DefaultWindow}
}

// Estimator keeps the last accepted sample. All methods are safe for
// concurrent use; observations are totally ordered by lock acquisition.
type Estimator struct {
	cfg Config

	mu   sync.Mutex
	last *Sample
}

// NewEstimator creates an estimator with no baseline. Zero fields in cfg take
// the defaults.
func NewEstimator(cfg Config) *Estimator {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Estimator{cfg: cfg}
}

// Observe feeds a sample. A sample whose screen and charging flags match the
// baseline is discarded without touching state; any other valid sample
// becomes the new baseline. The event is reported only when the previous
// sample was discharging, the interval exceeds MinInterval and the level did
// not rise.
func (e *Estimator) Observe(s Sample) (DischargeEvent, bool) {
	ev, emitted, _ := e.observe(s)
	return ev, emitted
}

// observe is Observe that also reports whether s became the baseline.
func (e *Estimator) observe(s Sample) (ev DischargeEvent, emitted, accepted bool) {
	if !s.Valid() {
		return DischargeEvent{}, false, false
	}

	e.mu.Lock()
	prev := e.last
	if prev != nil && prev.ScreenOn == s.ScreenOn && prev.Charging == s.Charging {
		e.mu.Unlock()
		return DischargeEvent{}, false, false
	}
	next := s
	e.last = &next
	e.mu.Unlock()

	if prev == nil {
		return DischargeEvent{}, false, true
	}

	interval := s.Timestamp - prev.Timestamp
	drop := prev.Percentage - s.Percentage
	if interval <= e.cfg.MinInterval || drop < 0 || prev.Charging {
		return DischargeEvent{}, false, true
	}

	return DischargeEvent{
		PriorScreenOn: prev.ScreenOn,
		Rate:          int64(drop * float64(e.cfg.Window) / float64(interval)),
		Interval:      interval,
		Drop:          drop,
	}, true, true
}

// Last returns the current baseline.
func (e *Estimator) Last() (Sample, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Sample{}, false
	}
	return *e.last, true
}
