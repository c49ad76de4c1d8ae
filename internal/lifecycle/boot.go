package lifecycle

import (
	"context"
	"fmt"

	"github.com/cptspacemanspiff/power-analytics/internal/storage"
)

// BootStore persists the last seen boot time.
type BootStore interface {
	PrefInt(key string) (int64, bool, error)
	SetPrefInt(key string, value int64) error
}

// IsNewBoot compares the host boot time with the stored one and records the
// current value. It reports true once per boot.
func IsNewBoot(ctx context.Context, store BootStore, bootTime func(context.Context) (int64, error)) (bool, error) {
	current, err := bootTime(ctx)
	if err != nil {
		return false, fmt.Errorf("read boot time: %w", err)
	}
	last, ok, err := store.PrefInt(storage.PrefBootTime)
	if err != nil {
		return false, fmt.Errorf("read stored boot time: %w", err)
	}
	// Boot time is derived from uptime and can wobble by a second.
	if ok && abs(current-last) <= 1 {
		return false, nil
	}
	if err := store.SetPrefInt(storage.PrefBootTime, current); err != nil {
		return false, fmt.Errorf("store boot time: %w", err)
	}
	return true, nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
