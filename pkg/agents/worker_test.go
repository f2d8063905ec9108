package agents

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sentinel-ir/core/pkg/breaker"
	"github.com/sentinel-ir/core/pkg/domain"
	"github.com/sentinel-ir/core/pkg/ratelimit"
)

type fakeProducer struct {
	result Produced
	err    error
}

func (f fakeProducer) Produce(ctx context.Context, job Job) (Produced, error) {
	return f.result, f.err
}

type fakeSigner struct{}

func (fakeSigner) Sign(agentID string, payload []byte) ([]byte, error) {
	return []byte("sig-for-" + agentID), nil
}

type collectingSubmitter struct {
	recs []domain.Recommendation
}

func (c *collectingSubmitter) Submit(ctx context.Context, rec domain.Recommendation) error {
	c.recs = append(c.recs, rec)
	return nil
}

func newTestWorker(agent domain.Agent, producer Producer, maxBytes int) *Worker {
	return NewWorker(
		agent,
		producer,
		fakeSigner{},
		breaker.NewRegistry(nil),
		breaker.DefaultConfig(),
		ratelimit.NewLimiter(ratelimit.Limits{RPS: 100, Burst: 100}),
		ratelimit.Limits{RPS: 100, Burst: 100},
		maxBytes,
	)
}

var _ = Describe("Worker", func() {
	agent := domain.Agent{ID: "DIAGNOSIS-1", Role: domain.RoleDiagnosis}

	It("signs and submits a successfully produced recommendation", func() {
		producer := fakeProducer{result: Produced{
			Action:     domain.ActionPlan{Key: "restart_pool"},
			Confidence: 0.8,
			Reasoning:  "pool exhaustion pattern matched",
		}}
		w := newTestWorker(agent, producer, 8192)
		rec, err := w.handle(context.Background(), Job{IncidentID: "inc-1", Round: 1, Deadline: time.Now().Add(time.Second)})

		Expect(err).ToNot(HaveOccurred())
		Expect(rec.Confidence).To(Equal(0.8))
		Expect(rec.Signature).ToNot(BeEmpty())
		Expect(rec.AgentID).To(Equal("DIAGNOSIS-1"))
	})

	It("degrades to a low-confidence placeholder when the producer fails", func() {
		producer := fakeProducer{err: errors.New("upstream down")}
		w := newTestWorker(agent, producer, 8192)
		rec, err := w.handle(context.Background(), Job{IncidentID: "inc-1", Round: 1, Deadline: time.Now().Add(time.Second)})

		Expect(err).ToNot(HaveOccurred())
		Expect(rec.Confidence).To(Equal(0.1))
		Expect(rec.Action.Key).To(Equal("NO_OP"))
	})

	It("rejects a recommendation that exceeds the size bound", func() {
		producer := fakeProducer{result: Produced{
			Action:     domain.ActionPlan{Key: "restart_pool"},
			Confidence: 0.8,
			Reasoning:  "x",
		}}
		w := newTestWorker(agent, producer, 1)
		_, err := w.handle(context.Background(), Job{IncidentID: "inc-1", Round: 1, Deadline: time.Now().Add(time.Second)})
		Expect(err).To(HaveOccurred())
	})

	It("round-trips signature verification", func() {
		producer := fakeProducer{result: Produced{
			Action:     domain.ActionPlan{Key: "restart_pool"},
			Confidence: 0.8,
			Reasoning:  "x",
		}}
		w := newTestWorker(agent, producer, 8192)
		rec, err := w.handle(context.Background(), Job{IncidentID: "inc-1", Round: 1, Deadline: time.Now().Add(time.Second)})
		Expect(err).ToNot(HaveOccurred())

		ok := VerifyRecommendation(rec, func(payload, sig []byte, at time.Time) bool {
			return string(sig) == "sig-for-DIAGNOSIS-1"
		})
		Expect(ok).To(BeTrue())
	})

	It("delivers recommendations to the submitter via Run", func() {
		producer := fakeProducer{result: Produced{Action: domain.ActionPlan{Key: "k"}, Confidence: 0.6}}
		w := newTestWorker(agent, producer, 8192)
		sub := &collectingSubmitter{}
		jobs := make(chan Job, 1)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			w.Run(ctx, jobs, sub)
			close(done)
		}()

		jobs <- Job{IncidentID: "inc-1", Round: 1, Deadline: time.Now().Add(time.Second)}
		Eventually(func() int { return len(sub.recs) }).Should(Equal(1))

		cancel()
		Eventually(done).Should(BeClosed())
	})
})
