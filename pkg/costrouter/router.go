package costrouter

import (
	"sort"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/ports"
)

// TierProfile describes one declared model tier's cost and expected quality
// (spec §4.4: "{fast_cheap, balanced, slow_accurate}").
type TierProfile struct {
	Tier               ports.ModelTier
	ExpectedConfidence float64 // observed/calibrated confidence this tier tends to produce
	CostPerInvocation  float64
}

// DefaultProfiles is the teacher-default tier ladder, cheapest first.
func DefaultProfiles() []TierProfile {
	return []TierProfile{
		{Tier: ports.TierFastCheap, ExpectedConfidence: 0.55, CostPerInvocation: 0.002},
		{Tier: ports.TierBalanced, ExpectedConfidence: 0.75, CostPerInvocation: 0.02},
		{Tier: ports.TierSlowAccurate, ExpectedConfidence: 0.92, CostPerInvocation: 0.12},
	}
}

// Router selects a model tier against an hourly and a daily Envelope (spec
// §3: budgets are tracked per window, and an invocation must clear both).
type Router struct {
	Profiles []TierProfile
	Hourly   *Envelope
	Daily    *Envelope
}

func NewRouter(profiles []TierProfile, hourly, daily *Envelope) *Router {
	p := make([]TierProfile, len(profiles))
	copy(p, profiles)
	sort.Slice(p, func(i, j int) bool { return p[i].CostPerInvocation < p[j].CostPerInvocation })
	return &Router{Profiles: p, Hourly: hourly, Daily: daily}
}

// Selection is the outcome of a successful Select call: the chosen tier plus
// the reservations the caller must later Commit or Rollback on both windows.
type Selection struct {
	Tier           ports.ModelTier
	ReservedHourly float64
	ReservedDaily  float64
}

// Select picks the cheapest tier whose ExpectedConfidence meets
// requiredConfidence and for which both the hourly and daily budget accept a
// reservation (spec §4.4: "pick the cheapest tier whose expected confidence
// >= threshold, subject to budget.try_reserve(estimated_cost) succeeding").
// complexity scales the reserved cost upward for harder tasks; 1.0 is
// baseline.
//
// On exhaustion of every tier that meets the confidence bar, Select returns
// a *errors.AppError of type ErrorTypeBudget (spec: "On budget exhaustion,
// emit BUDGET_DENIED and downgrade to cached/placeholder responses" — the
// emission and downgrade are the caller's responsibility).
func (r *Router) Select(requiredConfidence, complexity float64) (Selection, error) {
	if complexity <= 0 {
		complexity = 1
	}

	var lastDenyCost, lastDenyRemaining float64
	attempted := false

	for _, p := range r.Profiles {
		if p.ExpectedConfidence < requiredConfidence {
			continue
		}
		cost := p.CostPerInvocation * complexity
		attempted = true

		if !r.Hourly.TryReserve(cost) {
			lastDenyCost, lastDenyRemaining = cost, r.Hourly.Remaining()
			continue
		}
		if !r.Daily.TryReserve(cost) {
			r.Hourly.Rollback(cost)
			lastDenyCost, lastDenyRemaining = cost, r.Daily.Remaining()
			continue
		}

		return Selection{Tier: p.Tier, ReservedHourly: cost, ReservedDaily: cost}, nil
	}

	if !attempted {
		return Selection{}, apperrors.Newf(apperrors.ErrorTypeValidation,
			"no declared tier meets required confidence %.2f", requiredConfidence)
	}
	return Selection{}, apperrors.NewBudgetError("hourly_or_daily", lastDenyCost, lastDenyRemaining)
}

// Commit reports the actual cost incurred for a prior Selection once the
// invocation completes, converting both reservations to spend.
func (r *Router) Commit(sel Selection, actualCost float64) {
	r.Hourly.Commit(sel.ReservedHourly, actualCost)
	r.Daily.Commit(sel.ReservedDaily, actualCost)
}

// Rollback releases a prior Selection's reservations when the invocation
// never happened or failed before incurring cost.
func (r *Router) Rollback(sel Selection) {
	r.Hourly.Rollback(sel.ReservedHourly)
	r.Daily.Rollback(sel.ReservedDaily)
}
