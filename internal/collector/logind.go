package collector

import (
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/power-analytics/internal/event"
)

// LogindMonitor turns systemd-logind PrepareForSleep/PrepareForShutdown
// signals into lifecycle events. Going to sleep blanks the screen, waking
// turns it back on.
type LogindMonitor struct {
	conn *dbus.Conn
	sink event.Sink
	done chan struct{}
	wake chan struct{}
	log  *slog.Logger
}

// NewLogindMonitor subscribes to logind on the system bus.
func NewLogindMonitor(logger *slog.Logger, sink event.Sink) (*LogindMonitor, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}

	for _, member := range []string{"PrepareForSleep", "PrepareForShutdown"} {
		err = conn.AddMatchSignal(
			dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
			dbus.WithMatchMember(member),
		)
		if err != nil {
			return nil, err
		}
	}

	m := &LogindMonitor{
		conn: conn,
		sink: sink,
		done: make(chan struct{}),
		wake: make(chan struct{}, 1),
		log:  logger,
	}
	go m.listen()
	return m, nil
}

// Wake returns a channel that receives a value each time the system wakes.
func (m *LogindMonitor) Wake() <-chan struct{} {
	return m.wake
}

// Close stops the monitor.
func (m *LogindMonitor) Close() {
	close(m.done)
}

func (m *LogindMonitor) listen() {
	ch := make(chan *dbus.Signal, 16)
	m.conn.Signal(ch)
	defer m.conn.RemoveSignal(ch)

	for {
		select {
		case sig := <-ch:
			m.handle(sig)
		case <-m.done:
			return
		}
	}
}

func (m *LogindMonitor) handle(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) < 1 {
		return
	}
	active, ok := sig.Body[0].(bool)
	if !ok {
		return
	}

	now := time.Now()
	switch sig.Name {
	case "org.freedesktop.login1.Manager.PrepareForShutdown":
		if active {
			m.log.Info("system preparing for shutdown")
			m.sink.Emit(event.Event{Kind: event.Shutdown, Time: now})
		}
	case "org.freedesktop.login1.Manager.PrepareForSleep":
		if active {
			m.log.Info("system going to sleep")
			m.sink.Emit(event.Event{Kind: event.ScreenOff, Time: now})
			return
		}
		m.log.Info("system woke up")
		m.sink.Emit(event.Event{Kind: event.ScreenOn, Time: now})
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
}
