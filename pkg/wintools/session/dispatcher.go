package session

import (
	"context"
	"sync"
)

// Dispatcher is a callback queue. Workers post to it; the owning loop runs
// the callbacks, so observers are never invoked on a worker goroutine.
type Dispatcher struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
}

// NewDispatcher returns an empty queue.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{wake: make(chan struct{}, 1)}
}

// Post queues fn. It never blocks.
func (d *Dispatcher) Post(fn func()) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.pending = append(d.pending, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Drain runs everything queued so far on the calling goroutine and returns
// how many callbacks ran.
func (d *Dispatcher) Drain() int {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Ready is signalled when callbacks are waiting. Loops that already select
// on other channels, such as the dashboard, use it with Drain.
func (d *Dispatcher) Ready() <-chan struct{} {
	return d.wake
}

// Run drains the queue until ctx is done. Callbacks queued at cancellation
// are run before returning.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.Drain()
			return
		case <-d.wake:
			d.Drain()
		}
	}
}
