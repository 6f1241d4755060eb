package metrics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

var errDenied = errors.New("access denied")

type fakeSource struct {
	mu        sync.Mutex
	total     uint64
	available uint64
	memErr    error
	cpu       float64
	cpuErr    error
	diskUsed  uint64
	diskTotal uint64
	diskErr   error
	procs     int
	procErr   error
	delay     time.Duration
	calls     atomic.Int64
}

func (f *fakeSource) VirtualMemory(context.Context) (uint64, uint64, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total, f.available, f.memErr
}

func (f *fakeSource) CPUPercent(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cpu, f.cpuErr
}

func (f *fakeSource) DiskUsage(context.Context, string) (uint64, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.diskUsed, f.diskTotal, f.diskErr
}

func (f *fakeSource) ProcessCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.procs, f.procErr
}

func (f *fakeSource) set(fn func(*fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

const gib = uint64(types.GiB)

func TestSampler_MemoryValidation(t *testing.T) {
	tests := []struct {
		name      string
		total     uint64
		available uint64
		wantAvail uint64
	}{
		{"plausible", 16 * gib, 6 * gib, 6 * gib},
		{"zero available", 16 * gib, 0, 16 * gib / 10 * 6},
		{"more than twice total", 8 * gib, 17 * gib, 8 * gib / 10 * 6},
		{"between total and twice total clamps", 8 * gib, 12 * gib, 8 * gib},
		{"small machine uses floor", gib, 0, gib},
		{"tiny machine floor clamps to total", gib / 2, 0, gib / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSampler(&fakeSource{total: tt.total, available: tt.available})
			snap := s.Memory(context.Background())
			assert.Equal(t, tt.total, snap.Total)
			assert.Equal(t, tt.wantAvail, snap.Available)
			assert.LessOrEqual(t, snap.Used, snap.Total)
			assert.Equal(t, snap.Total-snap.Used, snap.Available)
		})
	}
}

func TestSampler_MemoryFallbacks(t *testing.T) {
	src := &fakeSource{memErr: errDenied}
	s := NewSampler(src)

	snap := s.Memory(context.Background())
	assert.Equal(t, 16*gib, snap.Total)
	assert.Equal(t, 10*gib, snap.Available)
	assert.Equal(t, 6*gib, snap.Used)

	src.set(func(f *fakeSource) { f.memErr, f.total, f.available = nil, 32*gib, 20*gib })
	good := s.Memory(context.Background())
	assert.Equal(t, 20*gib, good.Available)

	src.set(func(f *fakeSource) { f.memErr = errDenied })
	assert.Equal(t, good, s.Memory(context.Background()), "last good value is reused")

	src.set(func(f *fakeSource) { f.memErr, f.total = nil, 0 })
	assert.Equal(t, good, s.Memory(context.Background()), "zero total counts as a failure")
}

func TestSampler_MemoryStrict(t *testing.T) {
	s := NewSampler(&fakeSource{memErr: errDenied})
	_, err := s.MemoryStrict(context.Background())
	assert.ErrorIs(t, err, errDenied)

	s = NewSampler(&fakeSource{})
	_, err = s.MemoryStrict(context.Background())
	assert.ErrorIs(t, err, errZeroTotal)
}

func TestSampler_ScalarFallbacks(t *testing.T) {
	src := &fakeSource{cpuErr: errDenied, diskErr: errDenied, procErr: errDenied}
	s := NewSampler(src, WithDiskPath("/data"))
	ctx := context.Background()

	assert.Zero(t, s.CPU(ctx))
	assert.Equal(t, DiskUsage{Used: FallbackDiskUsed, Total: FallbackDiskTotal}, s.Disk(ctx))
	assert.Zero(t, s.Processes(ctx))

	src.set(func(f *fakeSource) {
		f.cpuErr, f.diskErr, f.procErr = nil, nil, nil
		f.cpu, f.diskUsed, f.diskTotal, f.procs = 140, 300, 200, 212
	})
	assert.InDelta(t, 100.0, s.CPU(ctx), 0.001, "cpu is clamped")
	assert.Equal(t, DiskUsage{Used: 200, Total: 200}, s.Disk(ctx), "used is clamped to total")
	assert.Equal(t, 212, s.Processes(ctx))

	src.set(func(f *fakeSource) { f.cpuErr, f.diskErr, f.procErr = errDenied, errDenied, errDenied })
	assert.InDelta(t, 100.0, s.CPU(ctx), 0.001)
	assert.Equal(t, uint64(200), s.Disk(ctx).Total)
	assert.Equal(t, 212, s.Processes(ctx))
}

func TestSampler_Sample(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSampler(&fakeSource{
		total: 16 * gib, available: 4 * gib, cpu: 12.5,
		diskUsed: 100, diskTotal: 400, procs: 97,
	}, WithClock(func() time.Time { return at }))

	snap := s.Sample(context.Background())
	assert.Equal(t, 12*gib, snap.Memory.Used)
	assert.InDelta(t, 12.5, snap.CPUPercent, 0.001)
	assert.InDelta(t, 25.0, snap.Disk.UsedPercent(), 0.001)
	assert.Equal(t, 97, snap.Processes)
	assert.Equal(t, at, snap.TakenAt)
}

func TestMonitor_DeliversSamples(t *testing.T) {
	s := NewSampler(&fakeSource{total: 8 * gib, available: 2 * gib})

	var got atomic.Int64
	m := NewMonitor(s, 5*time.Millisecond, ObserverFunc(func(Snapshot) { got.Add(1) }))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	err := m.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.GreaterOrEqual(t, got.Load(), int64(3))
	assert.Equal(t, got.Load(), m.Samples())
}

func TestMonitor_SkipsTicksWhenSampleOverruns(t *testing.T) {
	src := &fakeSource{total: 8 * gib, available: 2 * gib, delay: 30 * time.Millisecond}
	s := NewSampler(src)
	m := NewMonitor(s, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = m.Run(ctx)

	// Each sample spans about three intervals; without skipping the loop
	// would sample back to back and never drop a tick.
	assert.Positive(t, m.Skipped())
	assert.LessOrEqual(t, m.Samples(), int64(8))
}
