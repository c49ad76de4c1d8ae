package collector

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setTestSysfsRoot(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	oldRoot := sysfsRoot
	sysfsRoot = root
	t.Cleanup(func() {
		sysfsRoot = oldRoot
	})

	return root
}

func setTestProcRoot(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	oldRoot := procRoot
	procRoot = root
	t.Cleanup(func() {
		procRoot = oldRoot
	})

	return root
}

func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeBattery(t *testing.T, root string, lines ...string) {
	t.Helper()
	writeTestFile(t, filepath.Join(root, "class/power_supply/BAT0/type"), "Battery\n")
	writeTestFile(t, filepath.Join(root, "class/power_supply/BAT0/uevent"), strings.Join(append(lines, ""), "\n"))
}

func TestCollectBattery_CapacityPercentage(t *testing.T) {
	root := setTestSysfsRoot(t)
	writeBattery(t, root,
		"POWER_SUPPLY_STATUS=Discharging",
		"POWER_SUPPLY_PRESENT=1",
		"POWER_SUPPLY_CAPACITY=61",
	)

	s, err := CollectBattery()
	if err != nil {
		t.Fatalf("CollectBattery() error = %v", err)
	}
	if s.Status != StatusDischarging {
		t.Fatalf("Status = %v, want Discharging", s.Status)
	}
	if s.Level != 61 || s.Scale != 100 {
		t.Fatalf("Level/Scale = %d/%d, want 61/100", s.Level, s.Scale)
	}
	if got := s.Percentage(); got != 61 {
		t.Fatalf("Percentage() = %v, want 61", got)
	}
	if !s.Present {
		t.Fatal("Present = false, want true")
	}
	if s.IsCharging() {
		t.Fatal("IsCharging() = true, want false")
	}
}

func TestCollectBattery_PrefersChargeCounters(t *testing.T) {
	root := setTestSysfsRoot(t)
	writeBattery(t, root,
		"POWER_SUPPLY_STATUS=Discharging",
		"POWER_SUPPLY_CHARGE_NOW=2500000",
		"POWER_SUPPLY_CHARGE_FULL=5000000",
		"POWER_SUPPLY_CAPACITY=49",
	)

	s, err := CollectBattery()
	if err != nil {
		t.Fatalf("CollectBattery() error = %v", err)
	}
	if got := s.Percentage(); got != 50 {
		t.Fatalf("Percentage() = %v, want 50", got)
	}
}

func TestCollectBattery_OverfullChargeClamped(t *testing.T) {
	root := setTestSysfsRoot(t)
	writeBattery(t, root,
		"POWER_SUPPLY_STATUS=Full",
		"POWER_SUPPLY_CHARGE_NOW=5200000",
		"POWER_SUPPLY_CHARGE_FULL=5000000",
	)

	s, err := CollectBattery()
	if err != nil {
		t.Fatalf("CollectBattery() error = %v", err)
	}
	if got := s.Percentage(); got != 100 {
		t.Fatalf("Percentage() = %v, want 100", got)
	}
}

func TestCollectBattery_MissingLevelIsInvalid(t *testing.T) {
	root := setTestSysfsRoot(t)
	writeBattery(t, root, "POWER_SUPPLY_STATUS=Unknown")

	s, err := CollectBattery()
	if err != nil {
		t.Fatalf("CollectBattery() error = %v", err)
	}
	if got := s.Percentage(); got != -1 {
		t.Fatalf("Percentage() = %v, want -1", got)
	}
}

func TestCollectBattery_PluggedCountsAsCharging(t *testing.T) {
	root := setTestSysfsRoot(t)
	writeBattery(t, root,
		"POWER_SUPPLY_STATUS=Discharging",
		"POWER_SUPPLY_CAPACITY=100",
	)
	writeTestFile(t, filepath.Join(root, "class/power_supply/AC0/type"), "Mains\n")
	writeTestFile(t, filepath.Join(root, "class/power_supply/AC0/online"), "1\n")

	s, err := CollectBattery()
	if err != nil {
		t.Fatalf("CollectBattery() error = %v", err)
	}
	if !s.Plugged {
		t.Fatal("Plugged = false, want true")
	}
	if !s.IsCharging() {
		t.Fatal("IsCharging() = false, want true when plugged")
	}
}

func TestCollectBattery_NoBatteryFound(t *testing.T) {
	root := setTestSysfsRoot(t)
	writeTestFile(t, filepath.Join(root, "class/power_supply/AC0/type"), "Mains\n")

	_, err := CollectBattery()
	if err == nil {
		t.Fatal("CollectBattery() error = nil, want no battery found error")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("CollectBattery() error = %v, want ErrUnavailable", err)
	}
}

func TestCollectBattery_UeventReadError(t *testing.T) {
	root := setTestSysfsRoot(t)
	writeTestFile(t, filepath.Join(root, "class/power_supply/BAT0/type"), "Battery\n")

	_, err := CollectBattery()
	if err == nil {
		t.Fatal("CollectBattery() error = nil, want read uevent error")
	}
	if !strings.Contains(err.Error(), "read uevent") {
		t.Fatalf("CollectBattery() error = %q, want contains %q", err.Error(), "read uevent")
	}
}

func TestIsCharging(t *testing.T) {
	tests := []struct {
		status  BatteryStatus
		plugged bool
		want    bool
	}{
		{StatusCharging, false, true},
		{StatusFull, false, true},
		{StatusDischarging, true, true},
		{StatusDischarging, false, false},
		{StatusNotCharging, false, false},
		{StatusUnknown, false, false},
	}
	for _, tt := range tests {
		if got := IsCharging(tt.status, tt.plugged); got != tt.want {
			t.Errorf("IsCharging(%v, %v) = %v, want %v", tt.status, tt.plugged, got, tt.want)
		}
	}
}

func TestIsPowerSufficient(t *testing.T) {
	low := &BatteryState{Status: StatusDischarging, Level: 4, Scale: 100}
	if low.IsPowerSufficient(DefaultMinBatteryPercentage) {
		t.Fatal("4% discharging should not be sufficient")
	}
	low.Plugged = true
	if !low.IsPowerSufficient(DefaultMinBatteryPercentage) {
		t.Fatal("4% plugged should be sufficient")
	}
	ok := &BatteryState{Status: StatusDischarging, Level: 6, Scale: 100}
	if !ok.IsPowerSufficient(DefaultMinBatteryPercentage) {
		t.Fatal("6% discharging should be sufficient")
	}
}
