//go:build linux

package collector

import (
	"time"

	"golang.org/x/sys/unix"
)

// Elapsed reads CLOCK_BOOTTIME.
func (BootClock) Elapsed() time.Duration {
	return clockNow(unix.CLOCK_BOOTTIME)
}

// Awake reads CLOCK_MONOTONIC, which stops while suspended.
func (BootClock) Awake() time.Duration {
	return clockNow(unix.CLOCK_MONOTONIC)
}

func clockNow(id int32) time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(id, &ts); err != nil {
		return 0
	}
	return time.Duration(ts.Nano())
}
