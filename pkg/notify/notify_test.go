package notify

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sentinel-ir/core/pkg/domain"
	"github.com/sentinel-ir/core/pkg/ports"
)

func TestNotify(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Notification Suite")
}

type fakeChannel struct {
	calls []string
}

func (f *fakeChannel) Notify(ctx context.Context, channelID string, payload []byte) (ports.DeliveryStatus, error) {
	f.calls = append(f.calls, string(payload))
	return ports.DeliveryStatus{Delivered: true}, nil
}

var _ = Describe("Deduper", func() {
	It("allows the first notification for a stage and suppresses repeats", func() {
		d := NewDeduper()
		Expect(d.ShouldSend("inc-1", StageResolved)).To(BeTrue())
		Expect(d.ShouldSend("inc-1", StageResolved)).To(BeFalse())
	})

	It("treats distinct stages of the same incident independently", func() {
		d := NewDeduper()
		Expect(d.ShouldSend("inc-1", StageDecisionCommitted)).To(BeTrue())
		Expect(d.ShouldSend("inc-1", StageResolved)).To(BeTrue())
	})
})

var _ = Describe("Notifier", func() {
	It("delivers a DECISION_COMMITTED notification exactly once", func() {
		ch := &fakeChannel{}
		n := NewNotifier(ch, "C123")
		decision := domain.CommittedDecision{IncidentID: "inc-1", Round: 1, Action: domain.ActionPlan{Key: "restart"}}

		_, sent, err := n.NotifyDecisionCommitted(context.Background(), decision)
		Expect(err).ToNot(HaveOccurred())
		Expect(sent).To(BeTrue())

		_, sent, err = n.NotifyDecisionCommitted(context.Background(), decision)
		Expect(err).ToNot(HaveOccurred())
		Expect(sent).To(BeFalse())
		Expect(ch.calls).To(HaveLen(1))
	})

	It("delivers a RESOLVED notification independent of DECISION_COMMITTED", func() {
		ch := &fakeChannel{}
		n := NewNotifier(ch, "C123")
		incident := domain.Incident{ID: "inc-1", Severity: domain.SeverityHigh, Tier: domain.Tier1}

		_, sent, err := n.NotifyResolved(context.Background(), incident)
		Expect(err).ToNot(HaveOccurred())
		Expect(sent).To(BeTrue())
		Expect(ch.calls).To(HaveLen(1))
	})
})
