package policy

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPolicy(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Executor Policy Gate Suite")
}

var _ = Describe("Gate", func() {
	It("allows a reversible step under the default module", func() {
		gate, err := NewGate(context.Background(), DefaultModule)
		Expect(err).ToNot(HaveOccurred())

		decision, err := gate.Evaluate(context.Background(), Input{
			IncidentID: "inc-1", ActionKey: "scale-pool", StepName: "step-1", Irreversible: false,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(decision.Allow).To(BeTrue())
	})

	It("denies an irreversible step under the default module", func() {
		gate, err := NewGate(context.Background(), DefaultModule)
		Expect(err).ToNot(HaveOccurred())

		decision, err := gate.Evaluate(context.Background(), Input{
			IncidentID: "inc-1", ActionKey: "drop-table", StepName: "step-1", Irreversible: true,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(decision.Allow).To(BeFalse())
		Expect(decision.Reason).To(ContainSubstring("override"))
	})

	It("rejects a module that fails to compile", func() {
		_, err := NewGate(context.Background(), "not valid rego")
		Expect(err).To(HaveOccurred())
	})

	It("honors a custom module's rules", func() {
		module := `
package sentinel.executor

default allow = false
default reason = "denied by custom policy"

allow {
	input.step_kind == "restart_pool"
}

reason = "custom: restart allowed" {
	input.step_kind == "restart_pool"
}
`
		gate, err := NewGate(context.Background(), module)
		Expect(err).ToNot(HaveOccurred())

		decision, err := gate.Evaluate(context.Background(), Input{StepKind: "restart_pool"})
		Expect(err).ToNot(HaveOccurred())
		Expect(decision.Allow).To(BeTrue())

		decision, err = gate.Evaluate(context.Background(), Input{StepKind: "drop_index"})
		Expect(err).ToNot(HaveOccurred())
		Expect(decision.Allow).To(BeFalse())
	})
})
