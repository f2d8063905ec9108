package notify

import (
	"fmt"

	"github.com/sentinel-ir/core/pkg/domain"
)

// FormatDecisionCommitted renders a stakeholder-ready payload for a
// DECISION_COMMITTED event (spec §4.5: "formats stakeholder-ready
// payloads").
func FormatDecisionCommitted(decision domain.CommittedDecision) []byte {
	return []byte(fmt.Sprintf(
		"Incident %s round %d: committed action %q (weight %.2f, %d of %d agents contributing)",
		decision.IncidentID, decision.Round, decision.Action.Key,
		decision.AggregateWeight, len(decision.Contributing), len(decision.Contributing)+len(decision.Dissenting),
	))
}

// FormatResolved renders a stakeholder-ready payload for a RESOLVED event.
func FormatResolved(incident domain.Incident) []byte {
	return []byte(fmt.Sprintf("Incident %s resolved (severity was %s, tier %d)", incident.ID, incident.Severity, incident.Tier))
}
