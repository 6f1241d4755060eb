package metrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Source reads raw counters from the operating system.
type Source interface {
	// VirtualMemory returns total and available physical memory in bytes.
	VirtualMemory(ctx context.Context) (total, available uint64, err error)

	// CPUPercent returns machine-wide utilisation since the previous call.
	CPUPercent(ctx context.Context) (float64, error)

	// DiskUsage returns used and total bytes of the volume holding path.
	DiskUsage(ctx context.Context, path string) (used, total uint64, err error)

	// ProcessCount returns the number of running processes.
	ProcessCount(ctx context.Context) (int, error)
}

// GopsutilSource is the live Source.
type GopsutilSource struct{}

var _ Source = GopsutilSource{}

var errNoCPUSample = errors.New("cpu: no sample")

func (GopsutilSource) VirtualMemory(ctx context.Context) (uint64, uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("reading virtual memory: %w", err)
	}
	return vm.Total, vm.Available, nil
}

// CPUPercent uses a zero interval, so the first call after start-up
// compares against boot and later calls against the previous call.
func (GopsutilSource) CPUPercent(ctx context.Context) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("reading cpu: %w", err)
	}
	if len(pct) == 0 {
		return 0, errNoCPUSample
	}
	return pct[0], nil
}

func (GopsutilSource) DiskUsage(ctx context.Context, path string) (uint64, uint64, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, 0, fmt.Errorf("reading disk usage of %s: %w", path, err)
	}
	return u.Used, u.Total, nil
}

func (GopsutilSource) ProcessCount(ctx context.Context) (int, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing processes: %w", err)
	}
	return len(pids), nil
}
