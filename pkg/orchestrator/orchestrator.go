package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/agents"
	"github.com/sentinel-ir/core/pkg/consensus"
	"github.com/sentinel-ir/core/pkg/domain"
	"github.com/sentinel-ir/core/pkg/executor"
	"github.com/sentinel-ir/core/pkg/meta"
	"github.com/sentinel-ir/core/pkg/notify"
)

// Appender is the subset of eventstore.Store the orchestrator needs.
type Appender interface {
	Append(ctx context.Context, incidentID string, expectedVersion uint64, kind domain.EventKind, payload []byte, producer string) (domain.IncidentEvent, error)
	Read(ctx context.Context, incidentID string, fromVersion, toVersion uint64) ([]domain.IncidentEvent, error)
	HeadVersion(incidentID string) (uint64, bool)
}

// Orchestrator drives one incident through the top-level state machine
// (spec §4.9), wiring the Agent Runtime, Consensus Engine, Resolution
// Executor, Meta-Health Monitor, and Communication notifier together. It
// holds no state of its own beyond what the event log records — every
// method either appends a committed event or reads committed state back
// (§9: orchestrator recoverable by replay).
type Orchestrator struct {
	Sink        Appender
	Runtime     *agents.Runtime
	Endpoints   map[string]chan<- agents.Job
	Consensus   *consensus.Engine
	Executor    *executor.Executor
	Notifier    *notify.Notifier
	MetaFactory *meta.Factory
	Producer    string
	now         func() time.Time
	idgen       func() string

	// MetaDriver, if set, is launched in its own goroutine against every
	// newly raised meta-incident (spec §4.7: "follows the same pipeline").
	// The orchestrator itself only creates the meta-incident's CREATED
	// event; driving it through analysis/consensus/execution is the
	// composition root's concern.
	MetaDriver func(ctx context.Context, metaIncidentID string)
}

func NewOrchestrator(sink Appender, runtime *agents.Runtime, endpoints map[string]chan<- agents.Job, ce *consensus.Engine, ex *executor.Executor, notifier *notify.Notifier, metaFactory *meta.Factory, producer string, idgen func() string) *Orchestrator {
	return &Orchestrator{
		Sink: sink, Runtime: runtime, Endpoints: endpoints, Consensus: ce, Executor: ex,
		Notifier: notifier, MetaFactory: metaFactory, Producer: producer, now: time.Now, idgen: idgen,
	}
}

func (o *Orchestrator) appendNext(ctx context.Context, incidentID string, kind domain.EventKind, payload interface{}) (domain.IncidentEvent, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return domain.IncidentEvent{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "event payload encode failed")
	}
	version, has := o.Sink.HeadVersion(incidentID)
	var expected uint64
	if has {
		expected = version + 1
	}
	return o.Sink.Append(ctx, incidentID, expected, kind, b, o.Producer)
}

// Open creates a new incident (spec §3: "created by IO on telemetry
// ingest"), appending its CREATED event and entering ANALYZING.
func (o *Orchestrator) Open(ctx context.Context, severity domain.Severity, tier domain.Tier, parent string, metaDepth int) (domain.Incident, error) {
	incidentID := o.idgen()
	_, err := o.Sink.Append(ctx, incidentID, 0, domain.EventCreated, mustJSON(createdPayload{
		Severity: severity, Tier: tier, ParentIncident: parent, MetaDepth: metaDepth,
	}), o.Producer)
	if err != nil {
		return domain.Incident{}, err
	}
	return o.Current(ctx, incidentID)
}

// Current rebuilds the incident's projection by replaying its full event
// stream (spec §9: orchestrator state is always reconstructible).
func (o *Orchestrator) Current(ctx context.Context, incidentID string) (domain.Incident, error) {
	events, err := o.Sink.Read(ctx, incidentID, 0, 0)
	if err != nil {
		return domain.Incident{}, err
	}
	return Rebuild(events), nil
}

// RunAnalysis fans job out to every registered agent of each role in roles
// (spec §4.9: "fans out Detection/Diagnosis/Prediction agents concurrently
// on ANALYZING entry"), waits up to window for them to submit
// recommendations to the Consensus Engine, then records the handoff to
// CONSENSUS. Cancellation stops the wait early without appending a partial
// event (spec §5).
func (o *Orchestrator) RunAnalysis(ctx context.Context, incidentID string, round uint64, roles []domain.Role, input []byte, window time.Duration) error {
	deadline := o.now().Add(window)
	job := agents.Job{IncidentID: incidentID, Round: round, Deadline: deadline, Input: input}

	dispatched := false
	for _, role := range roles {
		for _, agentID := range o.Runtime.ByRole(role) {
			ch, ok := o.Endpoints[agentID]
			if !ok {
				continue
			}
			select {
			case ch <- job:
				dispatched = true
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if !dispatched {
		return apperrors.New(apperrors.ErrorTypeValidation, "no agents registered for requested roles")
	}

	timer := time.NewTimer(window)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	_, err := o.appendNext(ctx, incidentID, domain.EventConsensusPhase, struct{}{})
	return err
}

// RunConsensus resolves the pending round. On success it appends
// DECISION_COMMITTED, notifies stakeholders, and enters EXECUTING. On
// insufficient quorum it appends INSUFFICIENT_QUORUM and, if a MetaFactory
// is configured, generates a bounded-depth meta-incident instead of simply
// failing (spec §4.9 diagram: CONSENSUS -> META).
func (o *Orchestrator) RunConsensus(ctx context.Context, incidentID string, round uint64, n int) (domain.CommittedDecision, error) {
	decision, err := o.Consensus.Resolve(ctx, incidentID, round, n)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeQuorum) {
			_, appendErr := o.appendNext(ctx, incidentID, domain.EventInsufficientQuorum, insufficientQuorumPayload{Round: round})
			if appendErr != nil {
				return domain.CommittedDecision{}, appendErr
			}
			if o.MetaFactory != nil {
				if raiseErr := o.RaiseMetaIncident(ctx, incidentID); raiseErr != nil {
					return domain.CommittedDecision{}, raiseErr
				}
			}
		}
		return domain.CommittedDecision{}, err
	}

	if _, appendErr := o.appendNext(ctx, incidentID, domain.EventDecisionCommitted, decisionCommittedPayload{
		Round: decision.Round, ActionKey: decision.Action.Key, AggregateWeight: decision.AggregateWeight,
	}); appendErr != nil {
		return domain.CommittedDecision{}, appendErr
	}

	if o.Notifier != nil {
		_, _, _ = o.Notifier.NotifyDecisionCommitted(ctx, decision)
	}
	return decision, nil
}

// RaiseMetaIncident generates a bounded-depth meta-incident for parentID,
// gives it its own genuine CREATED event, and records the handoff on
// parentID's stream (spec §4.7: "follows the same pipeline"). If the
// recursion-depth bound is already exhausted, it appends
// HUMAN_TAKEOVER_REQUIRED to parentID instead of silently doing nothing.
func (o *Orchestrator) RaiseMetaIncident(ctx context.Context, parentID string) error {
	if o.MetaFactory == nil {
		return nil
	}
	parent, err := o.Current(ctx, parentID)
	if err != nil {
		return err
	}

	metaIncident, genErr := o.MetaFactory.Generate(parent)
	if genErr != nil {
		_, appendErr := o.appendNext(ctx, parentID, domain.EventHumanTakeoverNeeded, humanTakeoverPayload{Reason: genErr.Error()})
		return appendErr
	}

	if _, err := o.Sink.Append(ctx, metaIncident.ID, 0, domain.EventCreated, mustJSON(createdPayload{
		Severity:       metaIncident.Severity,
		Tier:           metaIncident.Tier,
		ParentIncident: metaIncident.ParentIncident,
		MetaDepth:      metaIncident.MetaDepth,
	}), o.Producer); err != nil {
		return err
	}

	if _, err := o.appendNext(ctx, parentID, domain.EventMetaIncident, metaIncidentPayload{MetaIncidentID: metaIncident.ID}); err != nil {
		return err
	}

	if o.MetaDriver != nil {
		go o.MetaDriver(context.Background(), metaIncident.ID)
	}
	return nil
}

// AppendDegraded records a transient, non-critical dependency fault against
// incidentID without changing its status (spec §4.7), distinct from the
// CRITICAL path that raises a meta-incident.
func (o *Orchestrator) AppendDegraded(ctx context.Context, incidentID, dependency, detail string) error {
	_, err := o.appendNext(ctx, incidentID, domain.EventDegraded, degradedPayload{Dependency: dependency, Detail: detail})
	return err
}

// Fail transitions incidentID to FAILED (spec §4.9), the terminal outcome
// when a bounded retry budget is exhausted without a clean resolution.
func (o *Orchestrator) Fail(ctx context.Context, incidentID, reason string) error {
	_, err := o.appendNext(ctx, incidentID, domain.EventHumanTakeoverNeeded, humanTakeoverPayload{Reason: reason})
	return err
}

// RunExecution runs the Resolution Executor's sandbox/production pipeline
// for decision, then its regression watch, appending RESOLVED on a clean
// run or HUMAN_TAKEOVER_REQUIRED if a regression rollback itself fails
// (spec §4.8, §4.9).
func (o *Orchestrator) RunExecution(ctx context.Context, incidentID string, decision domain.CommittedDecision, criteria executor.SuccessCriteria, window time.Duration, probe executor.MetricsProbe, regression executor.RegressionConfig) error {
	outcome, err := o.Executor.Execute(ctx, incidentID, decision, criteria, window)
	if err != nil {
		return err
	}

	if probe != nil {
		if obsErr := o.Executor.Observe(ctx, incidentID, outcome.Applied, outcome.Credential, probe, regression); obsErr != nil {
			_, appendErr := o.appendNext(ctx, incidentID, domain.EventHumanTakeoverNeeded, humanTakeoverPayload{Reason: obsErr.Error()})
			if appendErr != nil {
				return appendErr
			}
			return obsErr
		}
	}

	if _, err := o.appendNext(ctx, incidentID, domain.EventResolved, resolvedPayload{Summary: "action " + decision.Action.Key + " completed cleanly"}); err != nil {
		return err
	}

	if o.Notifier != nil {
		incident, curErr := o.Current(ctx, incidentID)
		if curErr == nil {
			_, _, _ = o.Notifier.NotifyResolved(ctx, incident)
		}
	}
	return nil
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
