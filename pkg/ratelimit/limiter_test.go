package ratelimit

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestRateLimit(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Rate Limiter Suite")
}

var _ = Describe("Limiter", func() {
	It("grants a request within burst capacity immediately", func() {
		l := NewLimiter(Limits{RPS: 10, Burst: 5})
		err := l.Acquire(context.Background(), "model-api", Limits{RPS: 10, Burst: 5}, 1, PriorityCritical, time.Now().Add(time.Second))
		Expect(err).ToNot(HaveOccurred())
	})

	It("sheds a normal-priority request when it would exceed its wait budget", func() {
		l := NewLimiter(Limits{RPS: 1, Burst: 1})
		limits := Limits{RPS: 1, Burst: 1}
		ctx := context.Background()

		// Exhaust the single burst token.
		Expect(l.Acquire(ctx, "model-api", limits, 1, PriorityCritical, time.Now().Add(time.Second))).To(Succeed())

		// A normal-priority call with a short deadline should be shed rather
		// than wait out the ~1s refill.
		err := l.Acquire(ctx, "model-api", limits, 1, PriorityNormal, time.Now().Add(50*time.Millisecond))
		Expect(err).To(HaveOccurred())
	})

	It("rejects a request asking for more tokens than the bucket can ever hold", func() {
		l := NewLimiter(Limits{RPS: 10, Burst: 2})
		err := l.Acquire(context.Background(), "model-api", Limits{RPS: 10, Burst: 2}, 100, PriorityCritical, time.Now().Add(time.Second))
		Expect(err).To(HaveOccurred())
	})

	It("keeps independent buckets per dependency", func() {
		l := NewLimiter(Limits{RPS: 1, Burst: 1})
		limits := Limits{RPS: 1, Burst: 1}
		ctx := context.Background()

		Expect(l.Acquire(ctx, "dep-a", limits, 1, PriorityCritical, time.Now().Add(time.Second))).To(Succeed())
		Expect(l.Acquire(ctx, "dep-b", limits, 1, PriorityCritical, time.Now().Add(time.Second))).To(Succeed())
	})
})
