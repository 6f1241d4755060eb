package logging

import "sync"

// DefaultRingSize is the number of entries kept for the dashboard.
const DefaultRingSize = 200

// Ring keeps the most recent entries, overwriting the oldest when full.
type Ring struct {
	mu   sync.RWMutex
	buf  []Entry
	next int
	full bool
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{buf: make([]Entry, size)}
}

func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Last returns up to n entries, oldest first.
func (r *Ring) Last(n int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := r.next
	if r.full {
		count = len(r.buf)
	}
	if n > count || n < 0 {
		n = count
	}
	out := make([]Entry, n)
	start := r.next - n
	if start < 0 {
		start += len(r.buf)
	}
	for i := range n {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// All returns every stored entry, oldest first.
func (r *Ring) All() []Entry {
	return r.Last(-1)
}
