package reclaimer

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"
)

// GopsutilLister lists processes through gopsutil.
type GopsutilLister struct{}

func (GopsutilLister) Pids(ctx context.Context) ([]int32, error) {
	return process.PidsWithContext(ctx)
}
