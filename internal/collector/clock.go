package collector

import "time"

// Clock reads time elapsed since boot. Elapsed includes time spent in
// suspend and is unaffected by wall-clock changes; Awake excludes suspend.
type Clock interface {
	Elapsed() time.Duration
	Awake() time.Duration
}

// BootClock is the kernel's boot-relative clock.
type BootClock struct{}
