package collector

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestCollectScreen_ParsesValues(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/backlight/intel_backlight")
	writeTestFile(t, filepath.Join(dir, "brightness"), "123\n")
	writeTestFile(t, filepath.Join(dir, "max_brightness"), "456\n")

	s, err := CollectScreen()
	if err != nil {
		t.Fatalf("CollectScreen() error = %v", err)
	}
	if !s.On {
		t.Fatal("On = false, want true")
	}
	if s.Brightness != 123 || s.MaxBrightness != 456 {
		t.Fatalf("Brightness = %d/%d, want 123/456", s.Brightness, s.MaxBrightness)
	}
}

func TestCollectScreen_BlankedPanelIsOff(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/backlight/intel_backlight")
	writeTestFile(t, filepath.Join(dir, "brightness"), "123\n")
	writeTestFile(t, filepath.Join(dir, "max_brightness"), "456\n")
	writeTestFile(t, filepath.Join(dir, "bl_power"), "4\n")

	s, err := CollectScreen()
	if err != nil {
		t.Fatalf("CollectScreen() error = %v", err)
	}
	if s.On {
		t.Fatal("On = true, want false for bl_power=4")
	}
}

func TestCollectScreen_ZeroBrightnessIsOff(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/backlight/acpi_video0")
	writeTestFile(t, filepath.Join(dir, "brightness"), "0\n")
	writeTestFile(t, filepath.Join(dir, "max_brightness"), "10\n")

	if IsScreenOn() {
		t.Fatal("IsScreenOn() = true, want false")
	}
}

func TestCollectScreen_NoBacklightFound(t *testing.T) {
	_ = setTestSysfsRoot(t)

	_, err := CollectScreen()
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("CollectScreen() error = %v, want ErrUnavailable", err)
	}
	if !IsScreenOn() {
		t.Fatal("IsScreenOn() = false, want true without a backlight")
	}
}

func TestCollectScreen_InvalidBrightnessValue(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/backlight/intel_backlight")
	writeTestFile(t, filepath.Join(dir, "brightness"), "not-a-number\n")
	writeTestFile(t, filepath.Join(dir, "max_brightness"), "456\n")

	_, err := CollectScreen()
	if err == nil {
		t.Fatal("CollectScreen() error = nil, want parse error")
	}
	if !strings.Contains(err.Error(), "read brightness") {
		t.Fatalf("CollectScreen() error = %q, want contains %q", err.Error(), "read brightness")
	}
}
