// Package executor implements the Resolution Executor (RE, spec §4.8):
// sandbox-then-production execution of a committed action plan, gated by a
// safety comparison against declared success criteria, with reversal on
// regression. Every operation runs under a just-in-time credential scoped
// to the plan (spec §4.8: "limited to the declared action; credentials
// expire at the observation-window boundary").
package executor

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/domain"
	"github.com/sentinel-ir/core/pkg/policy"
	"github.com/sentinel-ir/core/pkg/ports"
)

// Appender is the subset of eventstore.Store the executor needs, declared
// locally so this package doesn't depend on eventstore's concrete type.
type Appender interface {
	Append(ctx context.Context, incidentID string, expectedVersion uint64, kind domain.EventKind, payload []byte, producer string) (domain.IncidentEvent, error)
	HeadVersion(incidentID string) (uint64, bool)
}

// SuccessCriteria maps a sandbox-observed metric name to the minimum value
// it must reach to pass the safety gate (spec §4.8(2)).
type SuccessCriteria map[string]float64

// RegressionConfig maps a post-execution metric name to the minimum
// acceptable value during the observation window; falling below it is a
// regression (spec §4.8(4)).
type RegressionConfig map[string]float64

// MetricsProbe samples the regression-watch metrics for incidentID at
// observation time.
type MetricsProbe func(ctx context.Context, incidentID string) (map[string]float64, error)

// Executor runs the sandbox/safety-gate/production/regression-watch
// pipeline against a ports.ExecutorBackend.
type Executor struct {
	Backend  ports.ExecutorBackend
	Sink     Appender
	Producer string
	Policy   *policy.Gate // nil means no policy gate is applied
	now      func() time.Time
}

func NewExecutor(backend ports.ExecutorBackend, sink Appender, producer string) *Executor {
	return &Executor{Backend: backend, Sink: sink, Producer: producer, now: time.Now}
}

func toView(step domain.ActionStep) ports.ActionStepView {
	return ports.ActionStepView{Name: step.Name, Kind: step.Kind, Params: step.Params}
}

func (e *Executor) appendNext(ctx context.Context, incidentID string, kind domain.EventKind, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "event payload encode failed")
	}
	version, has := e.Sink.HeadVersion(incidentID)
	var expected uint64
	if has {
		expected = version + 1
	}
	_, err = e.Sink.Append(ctx, incidentID, expected, kind, b, e.Producer)
	return err
}

type sandboxRejectedPayload struct {
	PlanKey string             `json:"plan_key"`
	Metrics map[string]float64 `json:"metrics"`
	Reason  string             `json:"reason"`
}

type actionExecutedPayload struct {
	Step    string `json:"step"`
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

type rollbackPayload struct {
	Step    string `json:"step"`
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

// Outcome is the result of a completed Execute call: the steps actually
// applied to production (in application order) plus the credential scope
// Observe must reuse for any later rollback.
type Outcome struct {
	Applied    []domain.ActionStep
	Credential ports.CredentialHandle
}

// Execute runs the sandbox phase, the safety gate, and (on pass) the
// production phase for decision.Action, in that order (spec §4.8(1)-(3)).
// window bounds the JIT credential's TTL; the caller passes the same window
// into Observe for the regression watch.
func (e *Executor) Execute(ctx context.Context, incidentID string, decision domain.CommittedDecision, criteria SuccessCriteria, window time.Duration) (Outcome, error) {
	cred, err := e.Backend.IssueScope(ctx, decision.Action.Key, window)
	if err != nil {
		return Outcome{}, apperrors.Wrap(err, apperrors.ErrorTypeAuth, "failed to issue executor credential")
	}

	metrics := make(map[string]float64)
	for _, step := range decision.Action.Steps {
		m, err := e.Backend.ExecSandbox(ctx, toView(step), cred)
		if err != nil {
			_ = e.appendNext(ctx, incidentID, domain.EventSandboxRejected, sandboxRejectedPayload{
				PlanKey: decision.Action.Key, Reason: err.Error(),
			})
			return Outcome{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "sandbox execution failed")
		}
		for k, v := range m {
			metrics[k] = v
		}
	}

	for name, min := range criteria {
		if metrics[name] < min {
			_ = e.appendNext(ctx, incidentID, domain.EventSandboxRejected, sandboxRejectedPayload{
				PlanKey: decision.Action.Key, Metrics: metrics,
				Reason: "success criterion not met: " + name,
			})
			return Outcome{}, apperrors.Newf(apperrors.ErrorTypeValidation, "sandbox metrics failed success criterion %s", name)
		}
	}

	var applied []domain.ActionStep
	for _, step := range decision.Action.Steps {
		if e.Policy != nil {
			verdict, err := e.Policy.Evaluate(ctx, policy.Input{
				IncidentID: incidentID, ActionKey: decision.Action.Key,
				StepName: step.Name, StepKind: step.Kind, Irreversible: step.Irreversible,
				SandboxMetrics: metrics,
			})
			if err != nil {
				return Outcome{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "policy gate evaluation failed")
			}
			if !verdict.Allow {
				_ = e.appendNext(ctx, incidentID, domain.EventSandboxRejected, sandboxRejectedPayload{
					PlanKey: decision.Action.Key, Metrics: metrics,
					Reason: "policy denied step " + step.Name + ": " + verdict.Reason,
				})
				rollbackErr := e.rollback(ctx, incidentID, applied, cred)
				if rollbackErr != nil {
					return Outcome{}, apperrors.Wrap(rollbackErr, apperrors.ErrorTypeInternal, "rollback failed after policy denial")
				}
				return Outcome{}, apperrors.Newf(apperrors.ErrorTypeValidation, "policy denied step %s: %s", step.Name, verdict.Reason)
			}
		}

		res, err := e.Backend.ExecProduction(ctx, toView(step), cred)
		success := err == nil && res.Success
		_ = e.appendNext(ctx, incidentID, domain.EventActionExecuted, actionExecutedPayload{
			Step: step.Name, Success: success, Detail: res.Detail,
		})
		if !success {
			rollbackErr := e.rollback(ctx, incidentID, applied, cred)
			if err == nil {
				err = apperrors.Newf(apperrors.ErrorTypeInternal, "production step %s reported failure", step.Name)
			}
			if rollbackErr != nil {
				return Outcome{}, apperrors.Wrap(rollbackErr, apperrors.ErrorTypeInternal, "rollback failed after production step error")
			}
			return Outcome{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "production execution failed")
		}
		applied = append(applied, step)
	}

	return Outcome{Applied: applied, Credential: cred}, nil
}

// Observe samples probe once, and if any RegressionConfig indicator falls
// below its floor, reverses every applied step in reverse order and emits
// ROLLBACK events (spec §4.8(4)). Returns a non-nil error only if the
// rollback itself failed — the human-takeover condition the orchestrator
// must transition the incident to FAILED on.
func (e *Executor) Observe(ctx context.Context, incidentID string, applied []domain.ActionStep, cred ports.CredentialHandle, probe MetricsProbe, regression RegressionConfig) error {
	metrics, err := probe(ctx, incidentID)
	if err != nil {
		return nil // probe failure is not itself a regression signal
	}

	regressed := false
	for name, min := range regression {
		if metrics[name] < min {
			regressed = true
			break
		}
	}
	if !regressed {
		return nil
	}

	return e.rollback(ctx, incidentID, applied, cred)
}

// rollback reverses applied in reverse order (spec §4.8(4): "executes the
// reversal of each applied step in reverse order"). A step marked
// Irreversible or with no Reversal is not reversed and a failed ROLLBACK is
// recorded for it (DESIGN.md, Open Question decisions). rollback returns a
// non-nil error if any step could not be reversed: it had no reversal, or
// its reversal failed.
func (e *Executor) rollback(ctx context.Context, incidentID string, applied []domain.ActionStep, cred ports.CredentialHandle) error {
	var firstErr error
	for i := len(applied) - 1; i >= 0; i-- {
		step := applied[i]
		if step.Irreversible || step.Reversal == nil {
			_ = e.appendNext(ctx, incidentID, domain.EventRollback, rollbackPayload{
				Step: step.Name, Success: false, Detail: "irreversible step",
			})
			if firstErr == nil {
				firstErr = apperrors.Newf(apperrors.ErrorTypeInternal, "step %s is irreversible", step.Name)
			}
			continue
		}

		res, err := e.Backend.Reverse(ctx, toView(*step.Reversal), cred)
		success := err == nil && res.Success
		_ = e.appendNext(ctx, incidentID, domain.EventRollback, rollbackPayload{
			Step: step.Name, Success: success, Detail: res.Detail,
		})
		if !success && firstErr == nil {
			if err == nil {
				err = apperrors.Newf(apperrors.ErrorTypeInternal, "reversal of %s reported failure", step.Name)
			}
			firstErr = err
		}
	}
	return firstErr
}
