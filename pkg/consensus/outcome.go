package consensus

import (
	"sort"

	"github.com/sentinel-ir/core/pkg/domain"
)

// weightedTally aggregates weight(a) = reputation(a) * confidence(a.rec) per
// distinct ActionPlan.Key, then picks the key with the highest aggregate
// weight (spec §4.6(4): "weighted vote... ties broken by lower agent id of
// highest-weight contributor"). Input recs are assumed already filtered to
// non-Byzantine, non-quarantined contributors.
func weightedTally(recs []domain.Recommendation, reputationOf func(agentID string) float64) (domain.ActionPlan, float64, []domain.Recommendation, []domain.Recommendation) {
	type tally struct {
		weight          float64
		topAgentID      string
		topAgentWeight  float64
		plan            domain.ActionPlan
		contributors    []domain.Recommendation
	}
	byKey := make(map[string]*tally)

	for _, r := range recs {
		w := reputationOf(r.AgentID) * r.Confidence
		t, ok := byKey[r.Action.Key]
		if !ok {
			t = &tally{plan: r.Action}
			byKey[r.Action.Key] = t
		}
		t.weight += w
		t.contributors = append(t.contributors, r)
		if w > t.topAgentWeight || (w == t.topAgentWeight && (t.topAgentID == "" || r.AgentID < t.topAgentID)) {
			t.topAgentWeight = w
			t.topAgentID = r.AgentID
		}
	}

	var keys []string
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var winner *tally
	for _, k := range keys {
		t := byKey[k]
		if winner == nil ||
			t.weight > winner.weight ||
			(t.weight == winner.weight && t.topAgentID < winner.topAgentID) {
			winner = t
		}
	}

	if winner == nil {
		return domain.ActionPlan{}, 0, nil, nil
	}

	var dissenting []domain.Recommendation
	for _, r := range recs {
		if r.Action.Key != winner.plan.Key {
			dissenting = append(dissenting, r)
		}
	}

	return winner.plan, winner.weight, winner.contributors, dissenting
}
