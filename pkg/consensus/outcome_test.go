package consensus

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sentinel-ir/core/pkg/domain"
)

var _ = Describe("weightedTally", func() {
	reputation := map[string]float64{"A": 0.6, "B": 0.6, "C": 0.6}
	reputationOf := func(id string) float64 { return reputation[id] }

	It("breaks a weight tie by the lower agent id of the highest-weight contributor", func() {
		recs := []domain.Recommendation{
			{AgentID: "B", Confidence: 0.5, Action: domain.ActionPlan{Key: "plan_x"}},
			{AgentID: "A", Confidence: 0.5, Action: domain.ActionPlan{Key: "plan_y"}},
		}
		plan, weight, contributing, dissenting := weightedTally(recs, reputationOf)
		Expect(weight).To(BeNumerically("~", 0.3, 1e-9))
		Expect(plan.Key).To(Equal("plan_y"))
		Expect(contributing).To(HaveLen(1))
		Expect(dissenting).To(HaveLen(1))
	})

	It("picks the highest aggregate weight across multiple contributors to one plan", func() {
		recs := []domain.Recommendation{
			{AgentID: "A", Confidence: 0.9, Action: domain.ActionPlan{Key: "plan_x"}},
			{AgentID: "B", Confidence: 0.9, Action: domain.ActionPlan{Key: "plan_x"}},
			{AgentID: "C", Confidence: 0.95, Action: domain.ActionPlan{Key: "plan_y"}},
		}
		plan, _, contributing, _ := weightedTally(recs, reputationOf)
		Expect(plan.Key).To(Equal("plan_x"))
		Expect(contributing).To(HaveLen(2))
	})

	It("returns the zero plan for an empty input", func() {
		plan, weight, contributing, dissenting := weightedTally(nil, reputationOf)
		Expect(plan.Key).To(Equal(""))
		Expect(weight).To(Equal(0.0))
		Expect(contributing).To(BeEmpty())
		Expect(dissenting).To(BeEmpty())
	})
})
