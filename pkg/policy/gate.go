// Package policy wraps Open Policy Agent's Rego evaluator as the Resolution
// Executor's pre-production policy gate (SPEC_FULL §2: "policy evaluation
// for the guarded executor"), grounded on the teacher's own
// pkg/aianalysis/rego approval-policy evaluator (compiled module, typed
// input, Allow/Reason result).
package policy

import (
	"context"

	"github.com/open-policy-agent/opa/rego"

	apperrors "github.com/sentinel-ir/core/internal/errors"
)

// Input is the fact the gate decides on for one production step.
type Input struct {
	IncidentID     string
	ActionKey      string
	StepName       string
	StepKind       string
	Irreversible   bool
	SandboxMetrics map[string]float64
}

// Decision is the gate's verdict.
type Decision struct {
	Allow  bool
	Reason string
}

// DefaultModule denies irreversible steps outright and otherwise defers to
// the sandbox's own success gate — a conservative baseline callers
// typically replace with a deployment-specific module.
const DefaultModule = `
package sentinel.executor

default allow = false
default reason = "no matching rule"

allow {
	not input.irreversible
}

reason = "irreversible steps require an explicit policy override" {
	input.irreversible
}

reason = "allowed: reversible step" {
	not input.irreversible
}
`

// Gate evaluates a compiled Rego module against Input, once per production
// step (spec §4.8(3): "per-step verification").
type Gate struct {
	query rego.PreparedEvalQuery
}

// NewGate compiles module (full Rego source, package sentinel.executor,
// exposing allow/reason rules) into a prepared query.
func NewGate(ctx context.Context, module string) (*Gate, error) {
	r := rego.New(
		rego.Query("allow = data.sentinel.executor.allow; reason = data.sentinel.executor.reason"),
		rego.Module("executor_policy.rego", module),
	)
	pq, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "policy module failed to compile")
	}
	return &Gate{query: pq}, nil
}

// Evaluate runs the prepared query against input and returns its verdict.
func (g *Gate) Evaluate(ctx context.Context, input Input) (Decision, error) {
	rs, err := g.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"incident_id":     input.IncidentID,
		"action_key":      input.ActionKey,
		"step_name":       input.StepName,
		"step_kind":       input.StepKind,
		"irreversible":    input.Irreversible,
		"sandbox_metrics": input.SandboxMetrics,
	}))
	if err != nil {
		return Decision{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "policy evaluation failed")
	}
	if len(rs) == 0 {
		return Decision{Allow: false, Reason: "policy produced no result"}, nil
	}

	allow, _ := rs[0].Bindings["allow"].(bool)
	reason, _ := rs[0].Bindings["reason"].(string)
	return Decision{Allow: allow, Reason: reason}, nil
}
