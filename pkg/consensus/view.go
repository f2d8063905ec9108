package consensus

import "github.com/sentinel-ir/core/pkg/domain"

// ViewTracker holds the current view per (incident, round), advancing on
// phase timeout (spec §4.6: "On phase timeout, an agent multicasts
// VIEW_CHANGE(new_view = view+1); when ≥ 2f+1 view-change messages agree, a
// new primary... takes over and replays the round"). Since every agent
// shares this one process, reaching that agreement is simulated as a single
// authoritative advance rather than counting multicast votes.
type ViewTracker struct {
	views map[roundKey]uint64
}

func NewViewTracker() *ViewTracker {
	return &ViewTracker{views: make(map[roundKey]uint64)}
}

func (vt *ViewTracker) View(incidentID string, round uint64) uint64 {
	return vt.views[roundKey{IncidentID: incidentID, Round: round}]
}

// AdvanceView increments the view for (incidentID, round) and returns the
// new view.
func (vt *ViewTracker) AdvanceView(incidentID string, round uint64) uint64 {
	k := roundKey{IncidentID: incidentID, Round: round}
	vt.views[k]++
	return vt.views[k]
}

// Primary selects the primary agent for a given view over nonQuarantined, a
// stable-ordered (by agent id) slice of candidates (spec §4.6(1): "chosen by
// view mod n of non-quarantined agents, stable-ordered by agent id").
// Returns the zero Agent and false if nonQuarantined is empty.
func Primary(view uint64, nonQuarantined []domain.Agent) (domain.Agent, bool) {
	n := len(nonQuarantined)
	if n == 0 {
		return domain.Agent{}, false
	}
	return nonQuarantined[int(view)%n], true
}
