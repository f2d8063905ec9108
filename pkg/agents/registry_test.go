package agents

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sentinel-ir/core/pkg/domain"
)

func TestAgents(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Agent Runtime Suite")
}

var _ = Describe("Registry", func() {
	var reg *Registry

	BeforeEach(func() {
		reg = NewRegistry(DefaultReputationConfig())
	})

	It("defaults a joined agent to reputation 0.5 and HEALTHY", func() {
		a := reg.Join(domain.Agent{ID: "DIAGNOSIS-1", Role: domain.RoleDiagnosis})
		Expect(a.Reputation).To(Equal(0.5))
		Expect(a.State).To(Equal(domain.AgentHealthy))
	})

	It("rewards a majority-aligned agent", func() {
		reg.Join(domain.Agent{ID: "A"})
		a := reg.Reward("A")
		Expect(a.Reputation).To(BeNumerically(">", 0.5))
	})

	It("moves a penalized agent to PROBATION once reputation drops below threshold", func() {
		reg.Join(domain.Agent{ID: "A"})
		for i := 0; i < 3; i++ {
			reg.Penalize("A")
		}
		a, _ := reg.Get("A")
		Expect(a.State).To(Equal(domain.AgentProbation))
	})

	It("never auto-escalates a penalized agent to QUARANTINED", func() {
		reg.Join(domain.Agent{ID: "A"})
		for i := 0; i < 20; i++ {
			reg.Penalize("A")
		}
		a, _ := reg.Get("A")
		Expect(a.State).ToNot(Equal(domain.AgentQuarantined))
	})

	It("quarantines durably on explicit corroboration", func() {
		reg.Join(domain.Agent{ID: "A"})
		a := reg.Quarantine("A")
		Expect(a.State).To(Equal(domain.AgentQuarantined))
	})

	It("excludes quarantined agents from NonQuarantined", func() {
		reg.Join(domain.Agent{ID: "A"})
		reg.Join(domain.Agent{ID: "B"})
		reg.Quarantine("A")

		ids := []string{}
		for _, a := range reg.NonQuarantined() {
			ids = append(ids, a.ID)
		}
		Expect(ids).To(Equal([]string{"B"}))
	})

	It("revives a quarantined agent back to HEALTHY", func() {
		reg.Join(domain.Agent{ID: "A"})
		reg.Quarantine("A")
		a := reg.Revive("A")
		Expect(a.State).To(Equal(domain.AgentHealthy))
		Expect(a.Reputation).To(Equal(0.5))
	})

	It("lists All agents ID-ordered", func() {
		reg.Join(domain.Agent{ID: "C"})
		reg.Join(domain.Agent{ID: "A"})
		reg.Join(domain.Agent{ID: "B"})
		ids := []string{}
		for _, a := range reg.All() {
			ids = append(ids, a.ID)
		}
		Expect(ids).To(Equal([]string{"A", "B", "C"}))
	})
})
