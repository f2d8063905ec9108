package consensus

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/agents"
	"github.com/sentinel-ir/core/pkg/domain"
)

func TestConsensus(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Consensus Engine Suite")
}

type fakeVerifier struct {
	revoked map[string]bool
	invalid map[string]bool
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{revoked: make(map[string]bool), invalid: make(map[string]bool)}
}

func (f *fakeVerifier) Verify(agentID string, payload, sig []byte, claimedAt time.Time) bool {
	return !f.invalid[agentID]
}

func (f *fakeVerifier) IsRevoked(agentID string) bool { return f.revoked[agentID] }

type fakeSigner struct{}

func (fakeSigner) Sign(agentID string, payload []byte) ([]byte, error) {
	return []byte("sig-" + agentID), nil
}

type alwaysResolves struct{}

func (alwaysResolves) Resolves(ctx context.Context, ref domain.EvidenceRef) bool { return true }

func newTestEngine(reg *agents.Registry, verifier Verifier) *Engine {
	return NewEngine(DefaultConfig(), verifier, reg, alwaysResolves{}, fakeSigner{}, DefaultHasher)
}

func signedRec(incidentID string, round uint64, agentID string, role domain.Role, confidence float64, actionKey string) domain.Recommendation {
	rec := domain.Recommendation{
		IncidentID: incidentID,
		Round:      round,
		AgentID:    agentID,
		Role:       role,
		Confidence: confidence,
		Action:     domain.ActionPlan{Key: actionKey},
		Timestamp:  time.Now(),
	}
	digest, _ := agents.RecommendationDigest(rec)
	rec.Signature = []byte("sig-over-" + string(digest[:4]))
	return rec
}

var _ = Describe("Engine", func() {
	var (
		reg      *agents.Registry
		verifier *fakeVerifier
		engine   *Engine
		ctx      context.Context
	)

	BeforeEach(func() {
		reg = agents.NewRegistry(agents.DefaultReputationConfig())
		for _, id := range []string{"A", "B", "C", "D"} {
			reg.Join(domain.Agent{ID: id, Role: domain.RoleDiagnosis})
		}
		verifier = newFakeVerifier()
		engine = newTestEngine(reg, verifier)
		ctx = context.Background()
	})

	It("commits the highest-weighted action with 4 honest agents (n=4, f=1, quorum=3)", func() {
		for _, id := range []string{"A", "B", "C"} {
			Expect(engine.Submit(ctx, signedRec("inc-1", 1, id, domain.RoleDiagnosis, 0.8, "restart_pool"))).To(Succeed())
		}
		Expect(engine.Submit(ctx, signedRec("inc-1", 1, "D", domain.RoleDiagnosis, 0.9, "scale_up"))).To(Succeed())

		decision, err := engine.Resolve(ctx, "inc-1", 1, 4)
		Expect(err).ToNot(HaveOccurred())
		Expect(decision.Action.Key).To(Equal("restart_pool"))
		Expect(decision.QuorumProof.Size()).To(BeNumerically(">=", 3))
		Expect(decision.Dissenting).To(HaveLen(1))
	})

	It("returns INSUFFICIENT_QUORUM when fewer than 2f+1 agents contribute", func() {
		Expect(engine.Submit(ctx, signedRec("inc-2", 1, "A", domain.RoleDiagnosis, 0.8, "restart_pool"))).To(Succeed())

		_, err := engine.Resolve(ctx, "inc-2", 1, 4)
		Expect(err).To(HaveOccurred())
		Expect(apperrors.Is(err, apperrors.ErrorTypeQuorum)).To(BeTrue())
	})

	It("rejects messages from a quarantined agent at ingress", func() {
		reg.Quarantine("D")
		for _, id := range []string{"A", "B", "C"} {
			Expect(engine.Submit(ctx, signedRec("inc-3", 1, id, domain.RoleDiagnosis, 0.8, "restart_pool"))).To(Succeed())
		}
		Expect(engine.Submit(ctx, signedRec("inc-3", 1, "D", domain.RoleDiagnosis, 0.99, "malicious_action"))).To(Succeed())

		decision, err := engine.Resolve(ctx, "inc-3", 1, 4)
		Expect(err).ToNot(HaveOccurred())
		Expect(decision.Action.Key).To(Equal("restart_pool"))
		for _, r := range decision.Contributing {
			Expect(r.AgentID).ToNot(Equal("D"))
		}
	})

	It("flags and excludes an impossible-confidence recommendation, penalizing the agent", func() {
		for _, id := range []string{"A", "B", "C"} {
			Expect(engine.Submit(ctx, signedRec("inc-4", 1, id, domain.RoleDiagnosis, 0.8, "restart_pool"))).To(Succeed())
		}
		Expect(engine.Submit(ctx, signedRec("inc-4", 1, "D", domain.RoleDiagnosis, 1.5, "scale_up"))).To(Succeed())

		_, err := engine.Resolve(ctx, "inc-4", 1, 4)
		Expect(err).ToNot(HaveOccurred())

		d, _ := reg.Get("D")
		Expect(d.Reputation).To(BeNumerically("<", 0.5))
	})

	It("flags an invalid signature", func() {
		verifier.invalid["D"] = true
		for _, id := range []string{"A", "B", "C"} {
			Expect(engine.Submit(ctx, signedRec("inc-5", 1, id, domain.RoleDiagnosis, 0.8, "restart_pool"))).To(Succeed())
		}
		Expect(engine.Submit(ctx, signedRec("inc-5", 1, "D", domain.RoleDiagnosis, 0.8, "scale_up"))).To(Succeed())

		decision, err := engine.Resolve(ctx, "inc-5", 1, 4)
		Expect(err).ToNot(HaveOccurred())
		for _, r := range decision.Contributing {
			Expect(r.AgentID).ToNot(Equal("D"))
		}
	})

	It("flags a revoked identity", func() {
		verifier.revoked["D"] = true
		for _, id := range []string{"A", "B", "C"} {
			Expect(engine.Submit(ctx, signedRec("inc-6", 1, id, domain.RoleDiagnosis, 0.8, "restart_pool"))).To(Succeed())
		}
		Expect(engine.Submit(ctx, signedRec("inc-6", 1, "D", domain.RoleDiagnosis, 0.8, "scale_up"))).To(Succeed())

		_, err := engine.Resolve(ctx, "inc-6", 1, 4)
		Expect(err).ToNot(HaveOccurred())
		d, _ := reg.Get("D")
		Expect(d.Reputation).To(BeNumerically("<", 0.5))
	})

	It("flags conflicting messages from the same agent in one round", func() {
		Expect(engine.Submit(ctx, signedRec("inc-7", 1, "A", domain.RoleDiagnosis, 0.8, "restart_pool"))).To(Succeed())
		Expect(engine.Submit(ctx, signedRec("inc-7", 1, "A", domain.RoleDiagnosis, 0.8, "scale_up"))).To(Succeed())
		Expect(engine.Submit(ctx, signedRec("inc-7", 1, "B", domain.RoleDiagnosis, 0.8, "restart_pool"))).To(Succeed())
		Expect(engine.Submit(ctx, signedRec("inc-7", 1, "C", domain.RoleDiagnosis, 0.8, "restart_pool"))).To(Succeed())

		_, _ = engine.Resolve(ctx, "inc-7", 1, 4)
		a, _ := reg.Get("A")
		Expect(a.Reputation).To(BeNumerically("<", 0.5))
	})

	It("rewards every contributing agent on a committed decision", func() {
		for _, id := range []string{"A", "B", "C"} {
			Expect(engine.Submit(ctx, signedRec("inc-8", 1, id, domain.RoleDiagnosis, 0.8, "restart_pool"))).To(Succeed())
		}
		_, err := engine.Resolve(ctx, "inc-8", 1, 3)
		Expect(err).ToNot(HaveOccurred())

		a, _ := reg.Get("A")
		Expect(a.Reputation).To(BeNumerically(">", 0.5))
	})
})

var _ = Describe("ViewTracker and Primary", func() {
	It("rotates primary to the next non-quarantined agent on view advance", func() {
		candidates := []domain.Agent{{ID: "A"}, {ID: "B"}, {ID: "C"}}
		p0, ok := Primary(0, candidates)
		Expect(ok).To(BeTrue())
		Expect(p0.ID).To(Equal("A"))

		vt := NewViewTracker()
		v := vt.AdvanceView("inc-1", 1)
		Expect(v).To(Equal(uint64(1)))

		p1, _ := Primary(v, candidates)
		Expect(p1.ID).To(Equal("B"))
	})

	It("reports false with no candidates", func() {
		_, ok := Primary(0, nil)
		Expect(ok).To(BeFalse())
	})
})
