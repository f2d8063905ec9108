package agents

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sentinel-ir/core/pkg/model"
	"github.com/sentinel-ir/core/pkg/ports"
)

var _ = Describe("PredictionProducer", func() {
	It("raises a low-confidence model verdict to match a forecasted cascade", func() {
		invoker := model.NewMockInvoker()
		invoker.Responses[ports.TierFastCheap] = []byte(`{"action_key":"NO_OP","confidence":0.2,"reasoning":"no action proposed"}`)

		llm := NewLLMProducer(newTestRouter(), map[ports.ModelTier]ports.ModelInvoker{ports.TierFastCheap: invoker}, fakeMemory{}, func(job Job, hits []ports.MemoryHit) []byte {
			return []byte("prompt")
		}, 0.5)

		forecaster := NewCascadeForecaster(30, 5.0, 0.6)
		signals := func(job Job) []SignalSample {
			return []SignalSample{
				{MinutesAgo: 10, Intensity: 1.0},
				{MinutesAgo: 0, Intensity: 20.0},
			}
		}
		producer := NewPredictionProducer(forecaster, signals, llm)

		produced, err := producer.Produce(context.Background(), Job{IncidentID: "inc-1", Deadline: time.Now().Add(time.Second)})
		Expect(err).ToNot(HaveOccurred())
		Expect(produced.Confidence).To(BeNumerically(">=", 0.5))
		Expect(produced.Evidence).To(HaveLen(1))
		Expect(produced.Evidence[0].Kind).To(Equal("cascade_forecast"))
	})

	It("leaves a confident model verdict untouched when no cascade is forecast", func() {
		invoker := model.NewMockInvoker()
		invoker.Responses[ports.TierFastCheap] = []byte(`{"action_key":"NO_OP","confidence":0.9,"reasoning":"stable"}`)

		llm := NewLLMProducer(newTestRouter(), map[ports.ModelTier]ports.ModelInvoker{ports.TierFastCheap: invoker}, fakeMemory{}, func(job Job, hits []ports.MemoryHit) []byte {
			return []byte("prompt")
		}, 0.5)

		forecaster := NewCascadeForecaster(30, 5.0, 0.6)
		signals := func(job Job) []SignalSample {
			return []SignalSample{
				{MinutesAgo: 10, Intensity: 1.0},
				{MinutesAgo: 0, Intensity: 1.0},
			}
		}
		producer := NewPredictionProducer(forecaster, signals, llm)

		produced, err := producer.Produce(context.Background(), Job{IncidentID: "inc-1", Deadline: time.Now().Add(time.Second)})
		Expect(err).ToNot(HaveOccurred())
		Expect(produced.Confidence).To(Equal(0.9))
	})
})
