package telemetry

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sentinel-ir/core/pkg/ports"
)

func TestTelemetry(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Telemetry Ingestion Suite")
}

func sig(id string, ts time.Time) ports.Signal {
	return ports.Signal{SignalID: id, Timestamp: ts, Source: "prom"}
}

var _ = Describe("MemoryDeduper", func() {
	It("reports first-seen exactly once within the ttl", func() {
		d := NewMemoryDeduper()
		first, err := d.CheckAndMark(context.Background(), "sig-1", time.Minute)
		Expect(err).ToNot(HaveOccurred())
		Expect(first).To(BeTrue())

		again, err := d.CheckAndMark(context.Background(), "sig-1", time.Minute)
		Expect(err).ToNot(HaveOccurred())
		Expect(again).To(BeFalse())
	})

	It("allows re-ingest once the ttl has elapsed", func() {
		d := NewMemoryDeduper()
		start := time.Now()
		d.now = func() time.Time { return start }
		_, _ = d.CheckAndMark(context.Background(), "sig-1", time.Minute)

		d.now = func() time.Time { return start.Add(2 * time.Minute) }
		first, err := d.CheckAndMark(context.Background(), "sig-1", time.Minute)
		Expect(err).ToNot(HaveOccurred())
		Expect(first).To(BeTrue())
	})
})

var _ = Describe("ReplayBuffer", func() {
	It("holds a signal until it ages past the window, then releases in order", func() {
		start := time.Now()
		b := NewReplayBuffer(time.Minute)
		b.now = func() time.Time { return start }

		b.Add(sig("b", start.Add(-10*time.Second)))
		b.Add(sig("a", start.Add(-20*time.Second)))
		Expect(b.Drain()).To(BeEmpty()) // still within the window

		b.now = func() time.Time { return start.Add(2 * time.Minute) }
		ready := b.Drain()
		Expect(ready).To(HaveLen(2))
		Expect(ready[0].SignalID).To(Equal("a"))
		Expect(ready[1].SignalID).To(Equal("b"))
	})
})

var _ = Describe("RingBuffer", func() {
	It("evicts the oldest entry once at capacity", func() {
		r := NewRingBuffer(2)
		now := time.Now()
		Expect(r.Push(sig("1", now))).To(BeNil())
		Expect(r.Push(sig("2", now))).To(BeNil())
		evicted := r.Push(sig("3", now))
		Expect(evicted).ToNot(BeNil())
		Expect(evicted.SignalID).To(Equal("1"))
		Expect(r.Evicted()).To(Equal(int64(1)))

		ids := []string{}
		for _, s := range r.Snapshot() {
			ids = append(ids, s.SignalID)
		}
		Expect(ids).To(Equal([]string{"2", "3"}))
	})
})

var _ = Describe("ReservoirSampler", func() {
	It("returns every signal unchanged when under the cap", func() {
		s := NewReservoirSampler(10, 1)
		in := []ports.Signal{sig("1", time.Now()), sig("2", time.Now())}
		Expect(s.Sample(in)).To(HaveLen(2))
	})

	It("caps the sample at k when over the threshold", func() {
		s := NewReservoirSampler(5, 42)
		in := make([]ports.Signal, 100)
		for i := range in {
			in[i] = sig(string(rune('a'+i%26)), time.Now())
		}
		out := s.Sample(in)
		Expect(out).To(HaveLen(5))
	})
})

var _ = Describe("Ingestor", func() {
	It("deduplicates, admits, and eventually drains a settled batch", func() {
		start := time.Now()
		ing := NewIngestor(NewMemoryDeduper(), IngestConfig{
			DedupTTL: time.Hour, ReplayWindow: time.Minute, RingCapacity: 10, StormThreshold: 0, SampleSize: 0,
		}, 1)

		batch := []ports.Signal{sig("s1", start.Add(-2 * time.Minute)), sig("s1", start.Add(-2 * time.Minute))}
		ready, summary, err := ing.Ingest(context.Background(), batch)
		Expect(err).ToNot(HaveOccurred())
		Expect(summary).To(BeNil())
		Expect(ready).To(HaveLen(1)) // the duplicate was dropped, and the original has already aged past the window
	})

	It("reservoir-samples and emits a storm summary over the threshold", func() {
		ing := NewIngestor(NewMemoryDeduper(), IngestConfig{
			DedupTTL: time.Hour, ReplayWindow: time.Hour, RingCapacity: 200, StormThreshold: 10, SampleSize: 5,
		}, 7)

		batch := make([]ports.Signal, 50)
		now := time.Now()
		for i := range batch {
			batch[i] = sig(string(rune('a'+i%26))+string(rune('A'+i/26)), now)
		}
		ready, summary, err := ing.Ingest(context.Background(), batch)
		Expect(err).ToNot(HaveOccurred())
		Expect(ready).To(BeEmpty()) // nothing has aged past a one-hour window yet
		Expect(summary).ToNot(BeNil())
		Expect(summary.TotalSignals).To(Equal(50))
		Expect(summary.SampledSignals).To(Equal(5))
		Expect(ing.Ring().Snapshot()).To(HaveLen(5))
	})
})
