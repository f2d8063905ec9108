// Package telemetry implements the inbound TelemetrySource-side ingestion
// pipeline (spec §6, §4.5, §5): per-signal_id idempotency, replay-window
// tolerance for out-of-order arrival, a bounded ring buffer with explicit
// eviction, and reservoir-sampling alert-storm shedding.
package telemetry

import (
	"context"
	"time"

	"github.com/sentinel-ir/core/pkg/ports"
)

// StormSummary describes an alert storm that triggered reservoir sampling,
// so the eventual recommendation/decision can reflect the storm rather than
// just the sampled subset (spec §5: "emits a summary event so the decision
// reflects the storm").
type StormSummary struct {
	TotalSignals   int
	SampledSignals int
	WindowStart    time.Time
	WindowEnd      time.Time
}

// IngestConfig configures one Ingestor.
type IngestConfig struct {
	DedupTTL       time.Duration
	ReplayWindow   time.Duration
	RingCapacity   int
	StormThreshold int // batch size above which reservoir sampling engages; <=0 disables it
	SampleSize     int
}

// Ingestor is the per-source ingestion pipeline: dedup -> storm shedding ->
// bounded ring -> replay-window release.
type Ingestor struct {
	dedup   Deduper
	ring    *RingBuffer
	replay  *ReplayBuffer
	sampler *ReservoirSampler
	cfg     IngestConfig
}

func NewIngestor(dedup Deduper, cfg IngestConfig, seed int64) *Ingestor {
	return &Ingestor{
		dedup:   dedup,
		ring:    NewRingBuffer(cfg.RingCapacity),
		replay:  NewReplayBuffer(cfg.ReplayWindow),
		sampler: NewReservoirSampler(cfg.SampleSize, seed),
		cfg:     cfg,
	}
}

// Ingest processes one inbound batch: deduplicates by signal_id (P8),
// reservoir-samples it down if it constitutes an alert storm, admits the
// survivors into the bounded ring buffer and the replay window, and returns
// whatever has now aged past the replay window ready for Detection.
func (in *Ingestor) Ingest(ctx context.Context, batch []ports.Signal) ([]ports.Signal, *StormSummary, error) {
	deduped := make([]ports.Signal, 0, len(batch))
	for _, sig := range batch {
		firstSeen, err := in.dedup.CheckAndMark(ctx, sig.SignalID, in.cfg.DedupTTL)
		if err != nil {
			return nil, nil, err
		}
		if !firstSeen {
			continue
		}
		deduped = append(deduped, sig)
	}

	var summary *StormSummary
	admitted := deduped
	if in.cfg.StormThreshold > 0 && len(deduped) > in.cfg.StormThreshold {
		admitted = in.sampler.Sample(deduped)
		summary = &StormSummary{TotalSignals: len(deduped), SampledSignals: len(admitted)}
		if len(deduped) > 0 {
			summary.WindowStart = deduped[0].Timestamp
			summary.WindowEnd = deduped[len(deduped)-1].Timestamp
		}
	}

	for _, sig := range admitted {
		in.replay.Add(sig)
		in.ring.Push(sig)
	}

	return in.replay.Drain(), summary, nil
}

// Ring exposes the bounded working set for inspection (eviction counters,
// current snapshot).
func (in *Ingestor) Ring() *RingBuffer { return in.ring }
