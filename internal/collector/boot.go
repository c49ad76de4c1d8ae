package collector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/host"
)

// BootTime returns the unix time the host booted.
func BootTime(ctx context.Context) (int64, error) {
	bt, err := host.BootTimeWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("read boot time: %w", err)
	}
	return int64(bt), nil
}
