//go:build !linux

package collector

import "time"

var processStart = time.Now()

// Elapsed falls back to the process-relative monotonic clock.
func (BootClock) Elapsed() time.Duration {
	return time.Since(processStart)
}

// Awake is the same as Elapsed off Linux.
func (BootClock) Awake() time.Duration {
	return time.Since(processStart)
}
