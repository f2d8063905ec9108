// Package orchestrator implements the Incident Orchestrator (spec §4.9):
// the top-level per-incident state machine, driven exclusively by committed
// events and recoverable by replaying them (§9: "avoid any state that
// cannot be rebuilt from the event log").
package orchestrator

import (
	"encoding/json"

	"github.com/sentinel-ir/core/pkg/domain"
)

type createdPayload struct {
	Severity       domain.Severity `json:"severity"`
	Tier           domain.Tier     `json:"tier"`
	ParentIncident string          `json:"parent_incident,omitempty"`
	MetaDepth      int             `json:"meta_depth"`
}

type decisionCommittedPayload struct {
	Round           uint64  `json:"round"`
	ActionKey       string  `json:"action_key"`
	AggregateWeight float64 `json:"aggregate_weight"`
}

type resolvedPayload struct {
	Summary string `json:"summary"`
}

type insufficientQuorumPayload struct {
	Round uint64 `json:"round"`
}

type humanTakeoverPayload struct {
	Reason string `json:"reason"`
}

type metaIncidentPayload struct {
	MetaIncidentID string `json:"meta_incident_id"`
}

type degradedPayload struct {
	Dependency string `json:"dependency"`
	Detail     string `json:"detail"`
}

// Apply folds one committed event onto incident, advancing Version/Status
// per the top-level diagram (spec §4.9):
//
//	OPEN -> ANALYZING -> CONSENSUS -> EXECUTING -> RESOLVED
//	                  \-> META   \-> FAILED
//
// ANALYZING begins immediately once CREATED is applied — the orchestrator
// fans out Detection/Diagnosis/Prediction on incident creation, so there is
// no separate "entered ANALYZING" event to wait on (SPEC_FULL §3 resolves
// the otherwise-implicit transition this way). CONSENSUS_PHASE marks the
// handoff from analysis to the consensus round.
func Apply(incident domain.Incident, event domain.IncidentEvent) domain.Incident {
	incident.Version = event.Version
	incident.UpdatedAt = event.Timestamp

	switch event.Kind {
	case domain.EventCreated:
		var p createdPayload
		_ = json.Unmarshal(event.Payload, &p)
		incident.ID = event.IncidentID
		incident.Severity = p.Severity
		incident.Tier = p.Tier
		incident.ParentIncident = p.ParentIncident
		incident.MetaDepth = p.MetaDepth
		incident.CreatedAt = event.Timestamp
		incident.Status = domain.StatusAnalyzing
	case domain.EventConsensusPhase:
		incident.Status = domain.StatusConsensus
	case domain.EventDecisionCommitted:
		incident.Status = domain.StatusExecuting
	case domain.EventResolved:
		incident.Status = domain.StatusResolved
	case domain.EventInsufficientQuorum:
		incident.Status = domain.StatusMeta
	case domain.EventHumanTakeoverNeeded:
		incident.Status = domain.StatusFailed
	case domain.EventMetaIncident:
		// Informational marker on the parent's stream; status is unaffected.
	case domain.EventDegraded:
		// Informational marker; status is unaffected.
	}
	return incident
}

// Rebuild replays events from scratch into a derived Incident projection.
func Rebuild(events []domain.IncidentEvent) domain.Incident {
	var incident domain.Incident
	for _, e := range events {
		incident = Apply(incident, e)
	}
	return incident
}
