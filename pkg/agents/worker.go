package agents

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/breaker"
	"github.com/sentinel-ir/core/pkg/domain"
	"github.com/sentinel-ir/core/pkg/ratelimit"
)

// Job is one unit of work a Worker turns into a signed Recommendation.
type Job struct {
	IncidentID string
	Round      uint64
	Deadline   time.Time
	Input      []byte
}

// Produced is the substance of a recommendation a Producer computes for a
// Job, before this package signs and size-bounds it.
type Produced struct {
	Action     domain.ActionPlan
	Confidence float64
	Evidence   []domain.EvidenceRef
	Reasoning  string
}

// Producer computes the domain-specific analysis behind a recommendation —
// what "diagnosis" or "prediction" actually means for a given job — which is
// outside this package's scope (spec §4.5 names the five roles; their
// analysis logic is domain-defined).
type Producer interface {
	Produce(ctx context.Context, job Job) (Produced, error)
}

// Signer signs a payload as agentID. Satisfied by *identity.Service;
// declared locally so agents does not depend on identity's concrete type.
type Signer interface {
	Sign(agentID string, payload []byte) ([]byte, error)
}

// Submitter accepts a finished Recommendation, typically the Consensus
// Engine's ingress.
type Submitter interface {
	Submit(ctx context.Context, rec domain.Recommendation) error
}

// Worker runs one agent's role loop: wrap the call in the circuit breaker
// and rate limiter, produce, sign, size-bound, submit (spec §4.5).
type Worker struct {
	Agent      domain.Agent
	Signer     Signer
	Breaker    *breaker.Registry
	BreakerCfg breaker.Config
	Limiter    *ratelimit.Limiter
	Limits     ratelimit.Limits
	Priority   ratelimit.Priority
	MaxBytes   int // Nmax: reject recommendation payloads over this size (spec §4.5)
	now        func() time.Time

	producerMu sync.RWMutex
	producer   Producer

	faultMu        sync.RWMutex
	forgeSignature bool
}

func NewWorker(agent domain.Agent, producer Producer, signer Signer, br *breaker.Registry, brCfg breaker.Config, rl *ratelimit.Limiter, limits ratelimit.Limits, maxBytes int) *Worker {
	return &Worker{
		Agent:      agent,
		producer:   producer,
		Signer:     signer,
		Breaker:    br,
		BreakerCfg: brCfg,
		Limiter:    rl,
		Limits:     limits,
		Priority:   ratelimit.PriorityNormal,
		MaxBytes:   maxBytes,
		now:        time.Now,
	}
}

// SetProducer atomically swaps the worker's Producer. Used in steady-state
// operation only to re-point a worker at a chaos-testing double (spec §6:
// "inject a Byzantine fault for chaos testing") — never called from the
// analysis/consensus path itself.
func (w *Worker) SetProducer(p Producer) {
	w.producerMu.Lock()
	defer w.producerMu.Unlock()
	w.producer = p
}

func (w *Worker) currentProducer() Producer {
	w.producerMu.RLock()
	defer w.producerMu.RUnlock()
	return w.producer
}

// SetForgeSignature toggles whether this worker's future signatures are
// deliberately corrupted after signing, simulating spec §8 scenario 2 ("a
// signature forged against its own key").
func (w *Worker) SetForgeSignature(forge bool) {
	w.faultMu.Lock()
	defer w.faultMu.Unlock()
	w.forgeSignature = forge
}

func (w *Worker) shouldForgeSignature() bool {
	w.faultMu.RLock()
	defer w.faultMu.RUnlock()
	return w.forgeSignature
}

// Run consumes jobs until ctx is cancelled or jobs is closed, submitting
// each resulting recommendation through sub. A job that fails to produce a
// recommendation (breaker open, rate limited, producer error) degrades to a
// low-confidence placeholder rather than being dropped silently (spec §4.3:
// "callers fall back to cached responses or degrade gracefully, e.g.
// Detection Agent returns low-confidence placeholder").
func (w *Worker) Run(ctx context.Context, jobs <-chan Job, sub Submitter) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			rec, err := w.handle(ctx, job)
			if err != nil {
				continue
			}
			_ = sub.Submit(ctx, rec)
		}
	}
}

func (w *Worker) handle(ctx context.Context, job Job) (domain.Recommendation, error) {
	produced, err := w.produce(ctx, job)
	degraded := err != nil
	if degraded {
		produced = Produced{
			Action:     domain.ActionPlan{Key: "NO_OP"},
			Confidence: 0.1,
			Reasoning:  "degraded: " + err.Error(),
		}
	}

	rec := domain.Recommendation{
		IncidentID: job.IncidentID,
		Round:      job.Round,
		AgentID:    w.Agent.ID,
		Role:       w.Agent.Role,
		Confidence: produced.Confidence,
		Action:     produced.Action,
		Evidence:   produced.Evidence,
		Reasoning:  produced.Reasoning,
		Timestamp:  w.now(),
	}

	payload, sig, err := w.sign(rec)
	if err != nil {
		return domain.Recommendation{}, err
	}
	if len(payload) > w.MaxBytes {
		return domain.Recommendation{}, apperrors.Newf(apperrors.ErrorTypeValidation,
			"recommendation exceeds max size %d bytes", w.MaxBytes)
	}
	rec.Signature = sig
	return rec, nil
}

func (w *Worker) produce(ctx context.Context, job Job) (Produced, error) {
	if err := w.Limiter.Acquire(ctx, string(w.Agent.Role), w.Limits, 1, w.Priority, job.Deadline); err != nil {
		return Produced{}, err
	}

	var produced Produced
	err := w.Breaker.Execute(ctx, string(w.Agent.Role), w.BreakerCfg, func(ctx context.Context) error {
		p, perr := w.currentProducer().Produce(ctx, job)
		if perr != nil {
			return perr
		}
		produced = p
		return nil
	})
	return produced, err
}

// canonicalRecommendation is the fixed-field-order projection signed over;
// Signature itself is excluded since it is the output of signing, not part
// of the signed content.
type canonicalRecommendation struct {
	IncidentID string                `json:"incident_id"`
	Round      uint64                `json:"round"`
	AgentID    string                `json:"agent_id"`
	Role       domain.Role           `json:"role"`
	Confidence float64               `json:"confidence"`
	Action     domain.ActionPlan     `json:"action"`
	Evidence   []domain.EvidenceRef  `json:"evidence"`
	Reasoning  string                `json:"reasoning"`
	Timestamp  time.Time             `json:"timestamp"`
}

// CanonicalRecommendationBytes renders the fixed-field-order canonical bytes
// of rec (excluding its Signature, which is the output of signing, not part
// of the signed content). Exported so the Consensus Engine's ingress
// verification and size-bound check reproduce byte-for-byte the same bytes
// a Worker signed, without duplicating the canonicalization in a second
// place.
func CanonicalRecommendationBytes(rec domain.Recommendation) ([]byte, error) {
	c := canonicalRecommendation{
		IncidentID: rec.IncidentID,
		Round:      rec.Round,
		AgentID:    rec.AgentID,
		Role:       rec.Role,
		Confidence: rec.Confidence,
		Action:     rec.Action,
		Evidence:   rec.Evidence,
		Reasoning:  rec.Reasoning,
		Timestamp:  rec.Timestamp.UTC(),
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "recommendation encode failed")
	}
	return payload, nil
}

// RecommendationDigest is the SHA-256 digest of CanonicalRecommendationBytes,
// the bytes actually signed.
func RecommendationDigest(rec domain.Recommendation) ([32]byte, error) {
	payload, err := CanonicalRecommendationBytes(rec)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(payload), nil
}

func (w *Worker) sign(rec domain.Recommendation) ([]byte, []byte, error) {
	payload, err := CanonicalRecommendationBytes(rec)
	if err != nil {
		return nil, nil, err
	}
	digest := sha256.Sum256(payload)
	sig, err := w.Signer.Sign(rec.AgentID, digest[:])
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "recommendation signing failed")
	}
	if w.shouldForgeSignature() && len(sig) > 0 {
		forged := make([]byte, len(sig))
		copy(forged, sig)
		forged[0] ^= 0xFF
		sig = forged
	}
	return payload, sig, nil
}

// VerifyRecommendation recomputes the canonical digest and checks sig
// against it via verify, the ingress-side counterpart to Worker.sign.
func VerifyRecommendation(rec domain.Recommendation, verify func(payload, sig []byte, claimedAt time.Time) bool) bool {
	digest, err := RecommendationDigest(rec)
	if err != nil {
		return false
	}
	return verify(digest[:], rec.Signature, rec.Timestamp)
}
