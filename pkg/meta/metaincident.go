package meta

import (
	"sync"
	"time"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/domain"
)

// RestrictedAction enumerates the self-healing actions a meta-incident's
// Resolution Executor may run (spec §4.7: "may execute a restricted set of
// self-healing actions").
type RestrictedAction string

const (
	ActionAgentRestart      RestrictedAction = "agent_restart"
	ActionBreakerReset      RestrictedAction = "breaker_reset"
	ActionQuorumReduction   RestrictedAction = "quorum_reduction_request"
)

// RestrictedActions is the fixed, closed set (spec §4.7).
var RestrictedActions = []RestrictedAction{ActionAgentRestart, ActionBreakerReset, ActionQuorumReduction}

func IsRestrictedAction(a string) bool {
	for _, r := range RestrictedActions {
		if string(r) == a {
			return true
		}
	}
	return false
}

// Factory generates meta-incidents on critical MHM assessments, bounding
// recursion so a meta-incident's own MHM-detected degradation cannot spawn
// meta-incidents without limit (SPEC_FULL §3: "mhm.max_meta_depth").
type Factory struct {
	MaxDepth int
	now      func() time.Time
	idgen    func() string
}

func NewFactory(maxDepth int, idgen func() string) *Factory {
	return &Factory{MaxDepth: maxDepth, now: time.Now, idgen: idgen}
}

// Generate produces a new meta-incident for parent, or an
// *errors.AppError(ErrorTypeValidation) if parent is already at MaxDepth —
// the bounded-recursion invariant (SPEC_FULL §3).
func (f *Factory) Generate(parent domain.Incident) (domain.Incident, error) {
	if parent.MetaDepth >= f.MaxDepth {
		return domain.Incident{}, apperrors.Newf(apperrors.ErrorTypeValidation,
			"meta-incident recursion depth %d exceeds max %d", parent.MetaDepth+1, f.MaxDepth)
	}
	now := f.now()
	return domain.Incident{
		ID:             f.idgen(),
		Severity:       domain.SeverityCritical,
		Tier:           domain.Tier1,
		Status:         domain.StatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
		MetaDepth:      parent.MetaDepth + 1,
		ParentIncident: parent.ID,
	}, nil
}

// EscalationTracker watches how long a meta-incident has remained
// unresolved since it first went CRITICAL, firing HUMAN_TAKEOVER_REQUIRED
// once it exceeds Tesc (spec §4.7).
type EscalationTracker struct {
	mu        sync.Mutex
	firstSeen map[string]time.Time
	timeout   time.Duration
	now       func() time.Time
}

func NewEscalationTracker(timeout time.Duration) *EscalationTracker {
	return &EscalationTracker{firstSeen: make(map[string]time.Time), timeout: timeout, now: time.Now}
}

// Observe records that incidentID is still unresolved at this tick and
// reports whether it has now exceeded the escalation timeout. The first
// Observe for an incident always returns false — the clock starts there.
func (t *EscalationTracker) Observe(incidentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	first, ok := t.firstSeen[incidentID]
	if !ok {
		t.firstSeen[incidentID] = now
		return false
	}
	return now.Sub(first) > t.timeout
}

// Clear removes incidentID's tracking state, e.g. once it resolves.
func (t *EscalationTracker) Clear(incidentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.firstSeen, incidentID)
}
