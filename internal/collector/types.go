package collector

import "errors"

// ErrUnavailable is returned when the platform cannot supply a reading at all,
// as opposed to returning a zero-valued one.
var ErrUnavailable = errors.New("not available")

// sysfsRoot is the mount point of sysfs. Tests point it at a temp dir.
var sysfsRoot = "/sys"

// procRoot is the mount point of procfs.
var procRoot = "/proc"

// BatteryStatus mirrors the status codes of Android's BatteryManager.
type BatteryStatus int

const (
	StatusUnknown BatteryStatus = iota + 1
	StatusCharging
	StatusDischarging
	StatusNotCharging
	StatusFull
)

func (s BatteryStatus) String() string {
	switch s {
	case StatusCharging:
		return "Charging"
	case StatusDischarging:
		return "Discharging"
	case StatusNotCharging:
		return "Not charging"
	case StatusFull:
		return "Full"
	default:
		return "Unknown"
	}
}

// BatteryState is one reading of the battery power supply.
type BatteryState struct {
	Status  BatteryStatus `json:"status"`
	Plugged bool          `json:"plugged"`
	Level   int64         `json:"level"` // -1 when unreadable
	Scale   int64         `json:"scale"` // -1 when unreadable
	Present bool          `json:"present"`
}

// ScreenState is the display power state derived from the backlight.
type ScreenState struct {
	On            bool  `json:"on"`
	Brightness    int64 `json:"brightness"`
	MaxBrightness int64 `json:"max_brightness"`
}

// HardwareFact is one static hardware property reported once per change.
type HardwareFact struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
