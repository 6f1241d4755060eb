package metrics

import (
	"context"
	"sync/atomic"
	"time"
)

// Default cadences.
const (
	DashboardInterval = time.Second
	WidgetInterval    = 2 * time.Second
)

// Observer receives every snapshot taken by a Monitor.
type Observer interface {
	Observe(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

func (f ObserverFunc) Observe(s Snapshot) { f(s) }

// Monitor samples on a fixed interval. A tick that arrives while a sample
// is still running is dropped, so a slow counter source never builds a
// backlog.
type Monitor struct {
	sampler   *Sampler
	interval  time.Duration
	observers []Observer

	samples atomic.Int64
	skipped atomic.Int64
}

// NewMonitor creates a Monitor. A non-positive interval selects
// DashboardInterval.
func NewMonitor(s *Sampler, interval time.Duration, observers ...Observer) *Monitor {
	if interval <= 0 {
		interval = DashboardInterval
	}
	return &Monitor{sampler: s, interval: interval, observers: observers}
}

// Run samples immediately and then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.tick(ctx, ticker)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx, ticker)
		}
	}
}

func (m *Monitor) tick(ctx context.Context, ticker *time.Ticker) {
	start := time.Now()
	snap := m.sampler.Sample(ctx)
	m.samples.Add(1)
	for _, o := range m.observers {
		o.Observe(snap)
	}

	if time.Since(start) < m.interval {
		return
	}
	// The ticker buffers one pending tick; discard it.
	select {
	case <-ticker.C:
		m.skipped.Add(1)
	default:
	}
}

// Samples returns the number of completed samples.
func (m *Monitor) Samples() int64 { return m.samples.Load() }

// Skipped returns the number of ticks dropped because a sample overran.
func (m *Monitor) Skipped() int64 { return m.skipped.Load() }
