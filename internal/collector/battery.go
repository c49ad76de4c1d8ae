package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultMinBatteryPercentage is the level below which heavy work should wait
// for a charger.
const DefaultMinBatteryPercentage = 5

// CollectBattery reads the first battery under /sys/class/power_supply.
// It returns ErrUnavailable when no battery supply exists.
func CollectBattery() (*BatteryState, error) {
	dir, err := findBattery()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, "uevent"))
	if err != nil {
		return nil, fmt.Errorf("read uevent: %w", err)
	}

	props := parseUevent(string(data))
	s := &BatteryState{
		Status:  parseStatus(props["POWER_SUPPLY_STATUS"]),
		Level:   -1,
		Scale:   -1,
		Present: props["POWER_SUPPLY_PRESENT"] != "0",
		Plugged: isACOnline(),
	}

	// Prefer the raw charge counters; capacity is already a percentage.
	chargeNow, errNow := strconv.ParseInt(props["POWER_SUPPLY_CHARGE_NOW"], 10, 64)
	chargeFull, errFull := strconv.ParseInt(props["POWER_SUPPLY_CHARGE_FULL"], 10, 64)
	if errNow == nil && errFull == nil && chargeFull > 0 {
		s.Level, s.Scale = chargeNow, chargeFull
	} else if capacity, err := strconv.ParseInt(props["POWER_SUPPLY_CAPACITY"], 10, 64); err == nil {
		s.Level, s.Scale = capacity, 100
	}

	return s, nil
}

// Percentage returns the charge level in [0,100], or -1 when level or scale
// could not be read. Some firmware reports charge_now above charge_full;
// that reads as 100.
func (s *BatteryState) Percentage() float64 {
	if s == nil || s.Level < 0 || s.Scale <= 0 {
		return -1
	}
	return min(100*float64(s.Level)/float64(s.Scale), 100)
}

// IsCharging reports whether the battery is taking charge.
func (s *BatteryState) IsCharging() bool {
	return IsCharging(s.Status, s.Plugged)
}

// IsPowerSufficient reports whether there is enough power for heavy tasks.
func (s *BatteryState) IsPowerSufficient(minPercentage float64) bool {
	return s.IsCharging() || s.Percentage() > minPercentage
}

// IsCharging treats a plugged supply as charging even when the status says
// Discharging; some firmware keeps reporting that after booting on AC.
func IsCharging(status BatteryStatus, plugged bool) bool {
	return status == StatusCharging || status == StatusFull || plugged
}

func findBattery() (string, error) {
	base := filepath.Join(sysfsRoot, "class/power_supply")
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no battery found: %w", ErrUnavailable)
		}
		return "", fmt.Errorf("read power_supply: %w", err)
	}
	var fallback string
	for _, e := range entries {
		dir := filepath.Join(base, e.Name())
		if typ, err := readStringFile(filepath.Join(dir, "type")); err == nil {
			if typ == "Battery" {
				return dir, nil
			}
			continue
		}
		if fallback == "" && strings.HasPrefix(e.Name(), "BAT") {
			fallback = dir
		}
	}
	if fallback == "" {
		return "", fmt.Errorf("no battery found: %w", ErrUnavailable)
	}
	return fallback, nil
}

// isACOnline checks if any external supply is online.
func isACOnline() bool {
	base := filepath.Join(sysfsRoot, "class/power_supply")
	entries, err := os.ReadDir(base)
	if err != nil {
		return false
	}
	for _, e := range entries {
		dir := filepath.Join(base, e.Name())
		typ, _ := readStringFile(filepath.Join(dir, "type"))
		if typ == "Battery" || (typ == "" && strings.HasPrefix(e.Name(), "BAT")) {
			continue
		}
		if online, err := readStringFile(filepath.Join(dir, "online")); err == nil && online == "1" {
			return true
		}
	}
	return false
}

func parseStatus(s string) BatteryStatus {
	switch s {
	case "Charging":
		return StatusCharging
	case "Discharging":
		return StatusDischarging
	case "Not charging":
		return StatusNotCharging
	case "Full":
		return StatusFull
	default:
		return StatusUnknown
	}
}

func parseUevent(data string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			props[k] = v
		}
	}
	return props
}

func readStringFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readIntFile(path string) (int64, error) {
	s, err := readStringFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, 64)
}
