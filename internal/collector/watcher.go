package collector

import (
	"log/slog"
	"time"

	"github.com/cptspacemanspiff/power-analytics/internal/event"
)

// TransitionWatcher polls the backlight and external supplies and emits an
// event whenever the screen or plug state flips. It is driven from a single
// goroutine and is not safe for concurrent Poll calls.
type TransitionWatcher struct {
	sink event.Sink
	log  *slog.Logger

	primed  bool
	screen  bool
	plugged bool

	screenState func() (bool, error)
	plugState   func() bool
}

// NewTransitionWatcher creates a watcher backed by sysfs.
func NewTransitionWatcher(logger *slog.Logger, sink event.Sink) *TransitionWatcher {
	return &TransitionWatcher{
		sink: sink,
		log:  logger,
		screenState: func() (bool, error) {
			s, err := CollectScreen()
			if err != nil {
				return false, err
			}
			return s.On, nil
		},
		plugState: isACOnline,
	}
}

// Poll reads the current state and emits events for changes since the last
// poll. The first poll only records the state.
func (w *TransitionWatcher) Poll(now time.Time) {
	plugged := w.plugState()
	screen, err := w.screenState()
	hasScreen := err == nil
	if !hasScreen {
		w.log.Debug("screen state unavailable", "err", err)
		screen = w.screen
	}

	if !w.primed {
		w.primed = true
		w.screen, w.plugged = screen, plugged
		w.log.Debug("initial state", "screen_on", screen, "plugged", plugged)
		return
	}

	if hasScreen && screen != w.screen {
		w.screen = screen
		kind := event.ScreenOff
		if screen {
			kind = event.ScreenOn
		}
		w.log.Info("screen changed", "screen_on", screen)
		w.sink.Emit(event.Event{Kind: kind, Time: now})
	}
	if plugged != w.plugged {
		w.plugged = plugged
		kind := event.PowerDisconnected
		if plugged {
			kind = event.PowerConnected
		}
		w.log.Info("power supply changed", "plugged", plugged)
		w.sink.Emit(event.Event{Kind: kind, Time: now})
	}
}
