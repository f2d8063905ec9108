package agents

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sentinel-ir/core/pkg/model"
	"github.com/sentinel-ir/core/pkg/ports"
)

var _ = Describe("DiagnosisProducer", func() {
	It("attaches bounded causal-graph root causes as evidence", func() {
		invoker := model.NewMockInvoker()
		invoker.Responses[ports.TierFastCheap] = []byte(`{"action_key":"restart_pool","confidence":0.7,"reasoning":"pool saturation"}`)

		llm := NewLLMProducer(newTestRouter(), map[ports.ModelTier]ports.ModelInvoker{ports.TierFastCheap: invoker}, fakeMemory{}, func(job Job, hits []ports.MemoryHit) []byte {
			return []byte("prompt")
		}, 0.5)

		graph := NewCausalGraph(map[string][]string{
			"inc-1": {"resource_exhaustion"},
		})
		producer := NewDiagnosisProducer(graph, 3, 4, llm)

		produced, err := producer.Produce(context.Background(), Job{IncidentID: "inc-1", Input: []byte("inc-1"), Deadline: time.Now().Add(time.Second)})
		Expect(err).ToNot(HaveOccurred())
		Expect(produced.Evidence).To(HaveLen(1))
		Expect(produced.Evidence[0].Kind).To(Equal("causal_graph"))
		Expect(produced.Evidence[0].ID).To(Equal("resource_exhaustion"))
	})

	It("notes truncation in reasoning without mutating the shared LLMProducer", func() {
		invoker := model.NewMockInvoker()
		invoker.Responses[ports.TierFastCheap] = []byte(`{"action_key":"restart_pool","confidence":0.7,"reasoning":"pool saturation"}`)

		llm := NewLLMProducer(newTestRouter(), map[ports.ModelTier]ports.ModelInvoker{ports.TierFastCheap: invoker}, fakeMemory{}, func(job Job, hits []ports.MemoryHit) []byte {
			return []byte("prompt")
		}, 0.5)

		graph := NewCausalGraph(map[string][]string{"inc-1": {"a", "b", "c"}})
		producer := NewDiagnosisProducer(graph, 3, 1, llm)

		produced, err := producer.Produce(context.Background(), Job{IncidentID: "inc-1", Input: []byte("inc-1"), Deadline: time.Now().Add(time.Second)})
		Expect(err).ToNot(HaveOccurred())
		Expect(produced.Reasoning).To(ContainSubstring("truncated"))

		// The shared producer's own PromptBuilder must be untouched by the
		// per-job augmentation done on the shallow-copied wrapper.
		Expect(llm.PromptBuilder(Job{}, nil)).To(Equal([]byte("prompt")))
	})
})
