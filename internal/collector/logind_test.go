package collector

import (
	"reflect"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/power-analytics/internal/event"
)

func TestLogindMonitor_Handle(t *testing.T) {
	sink := &recordingSink{}
	m := &LogindMonitor{sink: sink, wake: make(chan struct{}, 1), log: discardLogger()}

	m.handle(&dbus.Signal{Name: "org.freedesktop.login1.Manager.PrepareForSleep", Body: []interface{}{true}})
	m.handle(&dbus.Signal{Name: "org.freedesktop.login1.Manager.PrepareForSleep", Body: []interface{}{false}})
	m.handle(&dbus.Signal{Name: "org.freedesktop.login1.Manager.PrepareForShutdown", Body: []interface{}{false}})
	m.handle(&dbus.Signal{Name: "org.freedesktop.login1.Manager.PrepareForShutdown", Body: []interface{}{true}})
	m.handle(&dbus.Signal{Name: "org.freedesktop.login1.Manager.PrepareForSleep", Body: []interface{}{"bogus"}})
	m.handle(&dbus.Signal{Name: "org.freedesktop.login1.Manager.PrepareForSleep"})

	want := []event.Kind{event.ScreenOff, event.ScreenOn, event.Shutdown}
	if !reflect.DeepEqual(sink.kinds, want) {
		t.Fatalf("events = %v, want %v", sink.kinds, want)
	}

	select {
	case <-m.Wake():
	default:
		t.Fatal("wake channel empty after resume")
	}
}
