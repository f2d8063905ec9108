package telemetry

import (
	"sync"

	"github.com/sentinel-ir/core/pkg/ports"
)

// RingBuffer is Detection's bounded per-signal working set (spec §4.5:
// "Bounded memory: per-signal ring buffer with explicit eviction"). Once
// full, the oldest signal is evicted to admit the newest.
type RingBuffer struct {
	mu      sync.Mutex
	cap     int
	buf     []ports.Signal
	evicted int64
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{cap: capacity, buf: make([]ports.Signal, 0, capacity)}
}

// Push admits sig, evicting the oldest entry if the buffer is already at
// capacity. Returns the evicted signal, if any.
func (r *RingBuffer) Push(sig ports.Signal) (evicted *ports.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buf) >= r.cap {
		old := r.buf[0]
		r.buf = append(r.buf[:0], r.buf[1:]...)
		r.evicted++
		evicted = &old
	}
	r.buf = append(r.buf, sig)
	return evicted
}

// Snapshot returns a copy of the currently held signals, oldest first.
func (r *RingBuffer) Snapshot() []ports.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ports.Signal, len(r.buf))
	copy(out, r.buf)
	return out
}

// Evicted reports the cumulative number of signals evicted to make room.
func (r *RingBuffer) Evicted() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evicted
}
