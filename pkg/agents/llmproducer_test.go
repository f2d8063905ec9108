package agents

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sentinel-ir/core/pkg/costrouter"
	"github.com/sentinel-ir/core/pkg/model"
	"github.com/sentinel-ir/core/pkg/ports"
)

type fakeMemory struct {
	hits []ports.MemoryHit
}

func (f fakeMemory) Search(ctx context.Context, query []byte, topK int, minSimilarity float64) ([]ports.MemoryHit, error) {
	return f.hits, nil
}

func newTestRouter() *costrouter.Router {
	hourly := costrouter.NewEnvelope(10, time.Hour)
	daily := costrouter.NewEnvelope(100, 24*time.Hour)
	return costrouter.NewRouter(costrouter.DefaultProfiles(), hourly, daily)
}

var _ = Describe("LLMProducer", func() {
	It("parses a structured model response into a Produced recommendation", func() {
		invoker := model.NewMockInvoker()
		invoker.Responses[ports.TierFastCheap] = []byte(`{"action_key":"scale_pool","steps":[{"name":"scale","kind":"scale_pool"}],"confidence":0.8,"reasoning":"pool saturation"}`)

		memory := fakeMemory{hits: []ports.MemoryHit{{EntryID: "mem-1", Similarity: 0.9}}}
		producer := NewLLMProducer(newTestRouter(), map[ports.ModelTier]ports.ModelInvoker{ports.TierFastCheap: invoker}, memory, func(job Job, hits []ports.MemoryHit) []byte {
			return []byte("prompt")
		}, 0.5)

		produced, err := producer.Produce(context.Background(), Job{IncidentID: "inc-1", Deadline: time.Now().Add(time.Second)})
		Expect(err).ToNot(HaveOccurred())
		Expect(produced.Action.Key).To(Equal("scale_pool"))
		Expect(produced.Confidence).To(Equal(0.8))
		Expect(produced.Evidence).To(HaveLen(1))
		Expect(produced.Evidence[0].ID).To(Equal("mem-1"))
	})

	It("degrades to a low-confidence placeholder on an unparseable response", func() {
		invoker := model.NewMockInvoker()
		invoker.Responses[ports.TierFastCheap] = []byte("not json")

		producer := NewLLMProducer(newTestRouter(), map[ports.ModelTier]ports.ModelInvoker{ports.TierFastCheap: invoker}, fakeMemory{}, func(job Job, hits []ports.MemoryHit) []byte {
			return []byte("prompt")
		}, 0.5)

		produced, err := producer.Produce(context.Background(), Job{IncidentID: "inc-1", Deadline: time.Now().Add(time.Second)})
		Expect(err).ToNot(HaveOccurred())
		Expect(produced.Action.Key).To(Equal("NO_OP"))
		Expect(produced.Confidence).To(Equal(0.2))
	})

	It("rolls back the budget reservation when no invoker is configured for the selected tier", func() {
		router := newTestRouter()
		producer := NewLLMProducer(router, map[ports.ModelTier]ports.ModelInvoker{}, fakeMemory{}, func(job Job, hits []ports.MemoryHit) []byte {
			return []byte("prompt")
		}, 0.5)

		_, err := producer.Produce(context.Background(), Job{IncidentID: "inc-1", Deadline: time.Now().Add(time.Second)})
		Expect(err).To(HaveOccurred())
		Expect(router.Hourly.Remaining()).To(BeNumerically("==", 10))
	})
})
