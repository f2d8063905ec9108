package agents

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sentinel-ir/core/pkg/domain"
)

type fakeAppender struct {
	mu      sync.Mutex
	heads   map[string]uint64
	appends []domain.IncidentEvent
}

func newFakeAppender() *fakeAppender {
	return &fakeAppender{heads: make(map[string]uint64)}
}

func (f *fakeAppender) HeadVersion(incidentID string) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.heads[incidentID]
	return v, ok
}

func (f *fakeAppender) Append(ctx context.Context, incidentID string, expectedVersion uint64, kind domain.EventKind, payload []byte, producer string) (domain.IncidentEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heads[incidentID] = expectedVersion
	ev := domain.IncidentEvent{IncidentID: incidentID, Version: expectedVersion, Kind: kind, Payload: payload, Producer: producer}
	f.appends = append(f.appends, ev)
	return ev, nil
}

var _ = Describe("Checkpoint", func() {
	It("appends a REPUTATION_CHECKPOINT event with the current snapshot", func() {
		reg := NewRegistry(DefaultReputationConfig())
		reg.Join(domain.Agent{ID: "A"})
		sink := newFakeAppender()

		Expect(Checkpoint(context.Background(), reg, sink, "mhm")).To(Succeed())
		Expect(sink.appends).To(HaveLen(1))
		Expect(sink.appends[0].Kind).To(Equal(domain.EventReputationCheckpoint))
	})

	It("advances version on successive checkpoints", func() {
		reg := NewRegistry(DefaultReputationConfig())
		sink := newFakeAppender()

		Expect(Checkpoint(context.Background(), reg, sink, "mhm")).To(Succeed())
		Expect(Checkpoint(context.Background(), reg, sink, "mhm")).To(Succeed())

		Expect(sink.appends[0].Version).To(Equal(uint64(0)))
		Expect(sink.appends[1].Version).To(Equal(uint64(1)))
	})
})
