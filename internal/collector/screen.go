package collector

import (
	"fmt"
	"path/filepath"
)

// CollectScreen reads the display state from /sys/class/backlight/*.
// The panel counts as on when bl_power is FB_BLANK_UNBLANK (0) and the
// brightness is above zero.
func CollectScreen() (*ScreenState, error) {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/backlight/*"))
	if err != nil {
		return nil, fmt.Errorf("glob backlight: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no backlight found: %w", ErrUnavailable)
	}

	dir := matches[0]
	brightness, err := readIntFile(filepath.Join(dir, "brightness"))
	if err != nil {
		return nil, fmt.Errorf("read brightness: %w", err)
	}
	maxBrightness, err := readIntFile(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return nil, fmt.Errorf("read max_brightness: %w", err)
	}
	// bl_power is optional; older drivers don't expose it.
	blPower, err := readIntFile(filepath.Join(dir, "bl_power"))
	if err != nil {
		blPower = 0
	}

	return &ScreenState{
		On:            blPower == 0 && brightness > 0,
		Brightness:    brightness,
		MaxBrightness: maxBrightness,
	}, nil
}

// IsScreenOn returns the current screen state. Headless machines without a
// backlight are reported as screen on.
func IsScreenOn() bool {
	s, err := CollectScreen()
	if err != nil {
		return true
	}
	return s.On
}
