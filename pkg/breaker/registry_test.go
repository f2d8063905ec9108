package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestBreaker(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Circuit Breaker Registry Suite")
}

var _ = Describe("Registry", func() {
	var (
		reg         *Registry
		transitions []Transition
		ctx         context.Context
	)

	BeforeEach(func() {
		transitions = nil
		reg = NewRegistry(func(t Transition) { transitions = append(transitions, t) })
		ctx = context.Background()
	})

	It("starts closed for an unregistered dependency", func() {
		Expect(reg.State("model-api")).To(Equal(StateClosed))
	})

	It("trips to open after the consecutive failure threshold", func() {
		cfg := Config{FailureThreshold: 3, FailureRate: 1, Window: time.Minute, Cooldown: time.Hour, HalfOpenProbes: 1}
		failing := errors.New("boom")

		for i := 0; i < 3; i++ {
			err := reg.Execute(ctx, "model-api", cfg, func(context.Context) error { return failing })
			Expect(err).To(HaveOccurred())
		}

		Expect(reg.State("model-api")).To(Equal(StateOpen))
	})

	It("fails fast without calling fn once open", func() {
		cfg := Config{FailureThreshold: 1, FailureRate: 1, Window: time.Minute, Cooldown: time.Hour, HalfOpenProbes: 1}
		calls := 0
		_ = reg.Execute(ctx, "model-api", cfg, func(context.Context) error {
			calls++
			return errors.New("boom")
		})
		Expect(reg.State("model-api")).To(Equal(StateOpen))

		err := reg.Execute(ctx, "model-api", cfg, func(context.Context) error {
			calls++
			return nil
		})
		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(1), "second call must fail fast without invoking fn")
	})

	It("records a CLOSED->OPEN transition", func() {
		cfg := Config{FailureThreshold: 1, FailureRate: 1, Window: time.Minute, Cooldown: time.Hour, HalfOpenProbes: 1}
		_ = reg.Execute(ctx, "model-api", cfg, func(context.Context) error { return errors.New("boom") })

		Expect(transitions).ToNot(BeEmpty())
		last := transitions[len(transitions)-1]
		Expect(last.From).To(Equal(StateClosed))
		Expect(last.To).To(Equal(StateOpen))
	})

	It("resets a breaker back to closed", func() {
		cfg := Config{FailureThreshold: 1, FailureRate: 1, Window: time.Minute, Cooldown: time.Hour, HalfOpenProbes: 1}
		_ = reg.Execute(ctx, "model-api", cfg, func(context.Context) error { return errors.New("boom") })
		Expect(reg.State("model-api")).To(Equal(StateOpen))

		reg.Reset("model-api")
		Expect(reg.State("model-api")).To(Equal(StateClosed))
	})
})
