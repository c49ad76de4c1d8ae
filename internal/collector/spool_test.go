package collector

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cptspacemanspiff/power-analytics/internal/event"
)

func TestReadAndConsumeSpool(t *testing.T) {
	logger := discardLogger()
	now := time.Unix(500, 0)

	t.Run("missing file returns nil", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "events.jsonl")
		if got := ReadAndConsumeSpool(logger, now, path); len(got) != 0 {
			t.Fatalf("len(events) = %d, want 0", len(got))
		}
	})

	t.Run("malformed and unknown lines are skipped and file consumed", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "events.jsonl")
		content := "{not json}\n" +
			`{"ts":100,"event":"screen_off"}` + "\n" +
			`{"ts":101,"event":"reboot"}` + "\n" +
			`{"event":"custom_event","package":"org.example","category":"ui","action":"tap","value":3,"sampled":false}` + "\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write spool: %v", err)
		}

		got := ReadAndConsumeSpool(logger, now, path)
		if len(got) != 2 {
			t.Fatalf("len(events) = %d, want 2: %#v", len(got), got)
		}
		if got[0].Kind != event.ScreenOff || !got[0].Time.Equal(time.Unix(100, 0)) {
			t.Fatalf("events[0] = %#v, want screen_off at 100", got[0])
		}
		custom := got[1]
		if custom.Kind != event.CustomEvent || custom.Package != "org.example" || custom.Action != "tap" {
			t.Fatalf("events[1] = %#v, want custom event", custom)
		}
		if custom.Value == nil || *custom.Value != 3 {
			t.Fatalf("events[1].Value = %v, want 3", custom.Value)
		}
		if custom.Sampled {
			t.Fatal("events[1].Sampled = true, want false")
		}
		if !custom.Time.Equal(now) {
			t.Fatalf("events[1].Time = %v, want now", custom.Time)
		}

		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("spool file should be consumed, stat err = %v", err)
		}
		if _, err := os.Stat(path + ".processing"); !os.IsNotExist(err) {
			t.Fatalf("processing file should be removed, stat err = %v", err)
		}
	})
}
