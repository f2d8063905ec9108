package domain

import "time"

// EventKind enumerates the IncidentEvent variants named in spec §3. Kinds
// added by this expansion (§SPEC_FULL.md §3) are marked accordingly.
type EventKind string

const (
	EventCreated                 EventKind = "CREATED"
	EventAgentJoined             EventKind = "AGENT_JOINED"
	EventRecommendationSubmitted EventKind = "RECOMMENDATION_SUBMITTED"
	EventConsensusPhase          EventKind = "CONSENSUS_PHASE"
	EventDecisionCommitted       EventKind = "DECISION_COMMITTED"
	EventActionExecuted          EventKind = "ACTION_EXECUTED"
	EventRollback                EventKind = "ROLLBACK"
	EventResolved                EventKind = "RESOLVED"
	EventMetaIncident            EventKind = "META_INCIDENT"

	// Supplemented kinds (SPEC_FULL.md §3), not part of spec.md's explicit
	// consensus-relevant list but required by §7's error-handling design.
	EventBudgetDenied         EventKind = "BUDGET_DENIED"
	EventSandboxRejected      EventKind = "SANDBOX_REJECTED"
	EventDegraded             EventKind = "DEGRADED"
	EventTimeout              EventKind = "TIMEOUT"
	EventCancelled            EventKind = "CANCELLED"
	EventInsufficientQuorum   EventKind = "INSUFFICIENT_QUORUM"
	EventHumanTakeoverNeeded  EventKind = "HUMAN_TAKEOVER_REQUIRED"
	EventReputationCheckpoint EventKind = "REPUTATION_CHECKPOINT"
)

// IncidentEvent is one immutable, hash-chained, signed record in an
// incident's append-only log (spec §3, §4.1).
type IncidentEvent struct {
	IncidentID string
	Version    uint64 // strictly increasing from 0, no gaps (I1)
	Kind       EventKind
	Payload    []byte // canonically serialized, kind-specific
	Timestamp  time.Time
	Producer   string // agent/component identity that appended this event

	ContentHash [32]byte // H(payload_canonical_bytes)
	ChainHash   [32]byte // H(prev_chain_hash || content_hash)
	Signature   []byte
}
