package telemetry

import (
	"math/rand"

	"github.com/sentinel-ir/core/pkg/ports"
)

// ReservoirSampler implements Algorithm R so an alert storm can be sampled
// down to a fixed working set without ever materializing the full storm
// (spec §4.5: "under alert storm, applies reservoir sampling"; §5
// backpressure: "alert-storm shedding uses the reservoir-sampling path").
type ReservoirSampler struct {
	k   int
	rng *rand.Rand
}

// NewReservoirSampler builds a sampler selecting at most k signals. seed
// makes sample selection reproducible in tests; production callers should
// seed from a real entropy source.
func NewReservoirSampler(k int, seed int64) *ReservoirSampler {
	return &ReservoirSampler{k: k, rng: rand.New(rand.NewSource(seed))}
}

// Sample returns a uniform sample of at most k signals from signals. If
// len(signals) <= k, every signal is returned unchanged.
func (r *ReservoirSampler) Sample(signals []ports.Signal) []ports.Signal {
	if r.k <= 0 || len(signals) <= r.k {
		out := make([]ports.Signal, len(signals))
		copy(out, signals)
		return out
	}

	reservoir := make([]ports.Signal, r.k)
	copy(reservoir, signals[:r.k])
	for i := r.k; i < len(signals); i++ {
		j := r.rng.Intn(i + 1)
		if j < r.k {
			reservoir[j] = signals[i]
		}
	}
	return reservoir
}
