// Package metrics samples CPU, memory, system-drive usage and process
// count. Reads never fail: when the operating system cannot be queried the
// sampler answers with the last good value or a conservative default.
package metrics

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/jamesainslie/wintools/pkg/wintools/logging"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// Fallbacks used before any successful read.
const (
	FallbackTotal     = 16 * uint64(types.GiB)
	FallbackAvailable = 10 * uint64(types.GiB)

	// Roughly 212.5 of 476.1 GiB, a common 512 GB system drive.
	FallbackDiskUsed  = 2125 * uint64(types.GiB) / 10
	FallbackDiskTotal = 4761 * uint64(types.GiB) / 10

	// minEstimate is the floor for the substituted available value.
	minEstimate = uint64(types.GiB)
)

var errZeroTotal = errors.New("memory: total reported as zero")

// DiskUsage is used and total bytes of one volume.
type DiskUsage struct {
	Used  uint64 `json:"used"`
	Total uint64 `json:"total"`
}

// UsedPercent returns Used/Total as a percentage.
func (d DiskUsage) UsedPercent() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Used) / float64(d.Total) * 100
}

// Snapshot combines every reading taken in one pass.
type Snapshot struct {
	Memory     types.MemorySnapshot `json:"memory"`
	CPUPercent float64              `json:"cpu_percent"`
	Disk       DiskUsage            `json:"disk"`
	Processes  int                  `json:"processes"`
	TakenAt    time.Time            `json:"taken_at"`
}

// Sampler reads counters from a Source. Its only state is the last good
// reading of each counter.
type Sampler struct {
	src      Source
	diskPath string
	now      func() time.Time
	log      *logging.Logger

	mu       sync.Mutex
	lastMem  *types.MemorySnapshot
	lastCPU  float64
	lastDisk *DiskUsage
	lastProc int
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithDiskPath sets the volume reported by Disk.
func WithDiskPath(path string) Option {
	return func(s *Sampler) { s.diskPath = path }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// NewSampler returns a Sampler over src. A nil src selects GopsutilSource.
func NewSampler(src Source, opts ...Option) *Sampler {
	if src == nil {
		src = GopsutilSource{}
	}
	s := &Sampler{
		src:      src,
		diskPath: DefaultDiskPath(),
		now:      time.Now,
		log:      logging.Get(logging.ComponentSampler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultDiskPath is the system drive.
func DefaultDiskPath() string {
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}

// Memory returns a validated memory snapshot.
func (s *Sampler) Memory(ctx context.Context) types.MemorySnapshot {
	total, avail, err := s.src.VirtualMemory(ctx)
	if err == nil && total == 0 {
		err = errZeroTotal
	}
	if err != nil {
		s.log.Debug("memory read failed, using fallback", "error", err)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.lastMem != nil {
			return *s.lastMem
		}
		return types.NewMemorySnapshot(FallbackTotal, FallbackAvailable, s.now())
	}

	snap := types.NewMemorySnapshot(total, validateAvailable(total, avail), s.now())
	s.mu.Lock()
	s.lastMem = &snap
	s.mu.Unlock()
	return snap
}

// MemoryStrict is Memory without the fallback. The reclaimer uses it so
// that a failed before/after reading is reported instead of masked.
func (s *Sampler) MemoryStrict(ctx context.Context) (types.MemorySnapshot, error) {
	total, avail, err := s.src.VirtualMemory(ctx)
	if err != nil {
		return types.MemorySnapshot{}, err
	}
	if total == 0 {
		return types.MemorySnapshot{}, errZeroTotal
	}
	return types.NewMemorySnapshot(total, validateAvailable(total, avail), s.now()), nil
}

// validateAvailable replaces implausible readings, zero or more than twice
// the total, with max(60% of total, 1 GiB).
func validateAvailable(total, avail uint64) uint64 {
	if avail == 0 || avail > 2*total {
		est := total / 10 * 6
		if est < minEstimate {
			est = minEstimate
		}
		avail = est
	}
	return min(avail, total)
}

// CPU returns utilisation in percent, clamped to [0, 100].
func (s *Sampler) CPU(ctx context.Context) float64 {
	pct, err := s.src.CPUPercent(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.log.Debug("cpu read failed", "error", err)
		return s.lastCPU
	}
	pct = max(0, min(pct, 100))
	s.lastCPU = pct
	return pct
}

// Disk returns usage of the configured volume.
func (s *Sampler) Disk(ctx context.Context) DiskUsage {
	used, total, err := s.src.DiskUsage(ctx, s.diskPath)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil || total == 0 {
		s.log.Debug("disk read failed", "path", s.diskPath, "error", err)
		if s.lastDisk != nil {
			return *s.lastDisk
		}
		return DiskUsage{Used: FallbackDiskUsed, Total: FallbackDiskTotal}
	}
	d := DiskUsage{Used: min(used, total), Total: total}
	s.lastDisk = &d
	return d
}

// Processes returns the running process count.
func (s *Sampler) Processes(ctx context.Context) int {
	n, err := s.src.ProcessCount(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.log.Debug("process count failed", "error", err)
		return s.lastProc
	}
	s.lastProc = n
	return n
}

// Sample reads every counter.
func (s *Sampler) Sample(ctx context.Context) Snapshot {
	return Snapshot{
		Memory:     s.Memory(ctx),
		CPUPercent: s.CPU(ctx),
		Disk:       s.Disk(ctx),
		Processes:  s.Processes(ctx),
		TakenAt:    s.now(),
	}
}
