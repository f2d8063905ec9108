package telemetry

import (
	"sort"
	"sync"
	"time"

	"github.com/sentinel-ir/core/pkg/ports"
)

// ReplayBuffer tolerates out-of-order signal arrival within a fixed window
// (spec §6: "out-of-order arrival tolerated within a replay window") by
// holding signals until they age past the window, then releasing them in
// timestamp order.
type ReplayBuffer struct {
	mu      sync.Mutex
	window  time.Duration
	pending []ports.Signal
	now     func() time.Time
}

func NewReplayBuffer(window time.Duration) *ReplayBuffer {
	return &ReplayBuffer{window: window, now: time.Now}
}

// Add buffers sig for later Drain.
func (b *ReplayBuffer) Add(sig ports.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, sig)
}

// Drain releases every buffered signal whose timestamp has aged past the
// replay window (no further out-of-order correction is expected for it),
// sorted ascending by timestamp.
func (b *ReplayBuffer) Drain() []ports.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.window)
	var ready, keep []ports.Signal
	for _, s := range b.pending {
		if s.Timestamp.After(cutoff) {
			keep = append(keep, s)
			continue
		}
		ready = append(ready, s)
	}
	b.pending = keep

	sort.Slice(ready, func(i, j int) bool { return ready[i].Timestamp.Before(ready[j].Timestamp) })
	return ready
}

// Pending reports how many signals are still waiting out the window.
func (b *ReplayBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
