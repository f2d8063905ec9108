package domain

import "time"

// ActionStep is one reversible step of a proposed remediation (spec §4.5,
// Resolution agent). Reversal is itself an ActionStep the executor runs in
// the opposite order on rollback (spec §4.8).
type ActionStep struct {
	Name        string
	Kind        string // e.g. "kill_query", "scale_pool" — domain-defined, not enumerated by the core
	Params      map[string]string
	Reversal    *ActionStep // nil when the step has no reversal; executor rollback treats it like an Irreversible step (DESIGN.md, Open Question decisions)
	Irreversible bool
}

// EvidenceRef points at a fact a recommendation is grounded on — a prior
// event, a vector-memory hit, or a raw telemetry signal — so Byzantine
// detection rule (d) in spec §4.6 can check refs resolve to real records.
type EvidenceRef struct {
	Kind string // "event" | "memory" | "telemetry" | "causal_graph" | "cascade_forecast"
	ID   string
}

// Recommendation is one agent's signed proposal for a given (incident,
// round) (spec §3).
type Recommendation struct {
	IncidentID string
	Round      uint64
	AgentID    string
	Role       Role
	Confidence float64 // must be in [0,1]; outside is Byzantine indicator (a)
	Action     ActionPlan
	Evidence   []EvidenceRef
	Reasoning  string
	Timestamp  time.Time
	Signature  []byte
}

// ActionPlan is the action a recommendation proposes. Key identifies the
// plan for weighted-vote tallying (spec §4.6 outcome selection) —
// recommendations proposing the "same" remediation must produce the same
// Key so their weights aggregate.
type ActionPlan struct {
	Key   string
	Steps []ActionStep
}

// CommittedDecision is the single per-(incident,round) outcome of a
// consensus round (spec §3).
type CommittedDecision struct {
	IncidentID      string
	Round           uint64
	Action          ActionPlan
	AggregateWeight float64
	Contributing    []Recommendation
	Dissenting      []Recommendation
	QuorumProof     QuorumProof
	CommittedAt     time.Time
}

// QuorumProof is the set of signed commit messages backing a
// CommittedDecision (spec §3, invariant I2/P3).
type QuorumProof struct {
	View            uint64
	CommitSignature map[string][]byte // agent id -> signature over the commit message
}

// Size returns the number of distinct signatures in the proof.
func (p QuorumProof) Size() int { return len(p.CommitSignature) }
