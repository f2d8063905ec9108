// Package domain holds the core data-model types shared across every
// component: Incident, IncidentEvent, Agent, Recommendation,
// CommittedDecision, and the enums that constrain them.
// These are tagged-sum style records (fixed fields per kind) rather than
// dict-shaped payloads, per the spec's re-architecting notes (§9): dynamic
// typing is replaced with fixed records and canonical serialization.
package domain

import "time"

// Severity classifies an incident's urgency.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Tier drives cost-per-minute accounting; higher tiers escalate budget and
// staffing urgency upstream of this core.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

// Status is the incident's top-level lifecycle state (spec §4.9 diagram).
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusAnalyzing Status = "ANALYZING"
	StatusConsensus Status = "CONSENSUS"
	StatusExecuting Status = "EXECUTING"
	StatusResolved  Status = "RESOLVED"
	StatusFailed    Status = "FAILED"
	StatusMeta      Status = "META"
)

// Terminal reports whether status ends the incident's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusFailed
}

// Incident is the mutable projection derived by replaying an incident's
// event stream. IO never mutates fields directly outside of event
// application — see pkg/orchestrator.
type Incident struct {
	ID             string
	Severity       Severity
	Tier           Tier
	Status         Status
	Version        uint64 // monotonic, matches the last applied event's version
	CreatedAt      time.Time
	UpdatedAt      time.Time
	MetaDepth      int    // 0 for a normal incident; >0 for a meta-incident, bounded by mhm.max_meta_depth
	ParentIncident string // set when MetaDepth > 0
}

// Clone returns a deep-enough copy for safe handoff across goroutine
// boundaries (the struct has no nested mutable collections today).
func (i Incident) Clone() Incident { return i }
