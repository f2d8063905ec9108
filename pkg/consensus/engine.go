package consensus

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/domain"
)

type roundKey struct {
	IncidentID string
	Round      uint64
}

// ReputationSource is the subset of agents.Registry the engine needs:
// lookup, reward/penalize, and the non-quarantined candidate set for
// primary selection and the liveness floor.
type ReputationSource interface {
	Get(agentID string) (domain.Agent, bool)
	Reward(agentID string) domain.Agent
	Penalize(agentID string) domain.Agent
	NonQuarantined() []domain.Agent
}

// CommitSigner signs a digest on a contributing agent's behalf, simulating
// that agent's own commit broadcast (see package doc). Satisfied by
// *identity.Service.
type CommitSigner interface {
	Sign(agentID string, payload []byte) ([]byte, error)
}

// PayloadHasher recomputes the bytes a Recommendation's signature was taken
// over, mirroring agents.Worker.sign's canonicalization, without this
// package depending on pkg/agents.
type PayloadHasher func(rec domain.Recommendation) ([]byte, bool)

// Engine collects submitted recommendations per (incident, round) during the
// submission window and, once Resolve is called, runs Byzantine detection
// and weighted-vote outcome selection to produce a domain.CommittedDecision
// (spec §4.6).
type Engine struct {
	Config     Config
	Verifier   Verifier
	Reputation ReputationSource
	Evidence   EvidenceResolver
	Signer     CommitSigner
	Hasher     PayloadHasher
	Views      *ViewTracker
	now        func() time.Time

	mu      sync.Mutex
	buffers map[roundKey][]domain.Recommendation
}

func NewEngine(cfg Config, verifier Verifier, reputation ReputationSource, evidence EvidenceResolver, signer CommitSigner, hasher PayloadHasher) *Engine {
	return &Engine{
		Config:     cfg,
		Verifier:   verifier,
		Reputation: reputation,
		Evidence:   evidence,
		Signer:     signer,
		Hasher:     hasher,
		Views:      NewViewTracker(),
		now:        time.Now,
		buffers:    make(map[roundKey][]domain.Recommendation),
	}
}

// Submit buffers rec for its (incident, round), the engine's side of the
// pre-prepare phase: collecting submissions within Twin before a batch is
// hashed (spec §4.6(1)). Implements agents.Submitter.
func (e *Engine) Submit(ctx context.Context, rec domain.Recommendation) error {
	k := roundKey{IncidentID: rec.IncidentID, Round: rec.Round}
	e.mu.Lock()
	e.buffers[k] = append(e.buffers[k], rec)
	e.mu.Unlock()
	return nil
}

// Pending returns the recommendations buffered so far for (incidentID,
// round), without clearing them.
func (e *Engine) Pending(incidentID string, round uint64) []domain.Recommendation {
	k := roundKey{IncidentID: incidentID, Round: round}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Recommendation, len(e.buffers[k]))
	copy(out, e.buffers[k])
	return out
}

// Resolve runs prepare/commit and outcome selection over everything
// buffered for (incidentID, round), then clears the buffer. n is the total
// declared agent set size used to compute f and the 2f+1 quorum (spec
// §4.6). Returns an *errors.AppError of ErrorTypeQuorum
// (apperrors.NewQuorumError) if fewer than 2f+1 non-quarantined, non-flagged
// agents contributed a valid recommendation — the liveness floor (spec
// §4.6: "INSUFFICIENT_QUORUM... the incident transitions to META").
func (e *Engine) Resolve(ctx context.Context, incidentID string, round uint64, n int) (domain.CommittedDecision, error) {
	k := roundKey{IncidentID: incidentID, Round: round}
	e.mu.Lock()
	recs := e.buffers[k]
	delete(e.buffers, k)
	e.mu.Unlock()

	nonQuarantinedSet := make(map[string]bool)
	for _, a := range e.Reputation.NonQuarantined() {
		nonQuarantinedSet[a.ID] = true
	}

	// Ingress filter (spec §4.2, I3): a quarantined agent's messages are
	// rejected before they ever reach Byzantine detection or tallying.
	admitted := recs[:0:0]
	for _, r := range recs {
		if nonQuarantinedSet[r.AgentID] {
			admitted = append(admitted, r)
		}
	}

	flags := detect(ctx, admitted, e.Hasher, e.Verifier, e.Evidence, e.Config.OutlierK)
	flagged := make(map[string]bool, len(flags))
	for _, f := range flags {
		flagged[f.AgentID] = true
	}
	for id := range flagged {
		e.Reputation.Penalize(id)
	}

	var clean []domain.Recommendation
	for _, r := range admitted {
		if !flagged[r.AgentID] {
			clean = append(clean, r)
		}
	}

	quorum := Quorum(n)
	if len(clean) < quorum {
		return domain.CommittedDecision{}, apperrors.NewQuorumError(incidentID, round)
	}

	reputationOf := func(agentID string) float64 {
		a, ok := e.Reputation.Get(agentID)
		if !ok {
			return 0
		}
		return a.Reputation
	}
	plan, weight, contributing, dissenting := weightedTally(clean, reputationOf)

	proof, err := e.buildQuorumProof(incidentID, round, plan, contributing)
	if err != nil {
		return domain.CommittedDecision{}, err
	}
	if proof.Size() < quorum {
		return domain.CommittedDecision{}, apperrors.NewQuorumError(incidentID, round)
	}

	for _, r := range contributing {
		e.Reputation.Reward(r.AgentID)
	}

	return domain.CommittedDecision{
		IncidentID:      incidentID,
		Round:           round,
		Action:          plan,
		AggregateWeight: weight,
		Contributing:    contributing,
		Dissenting:      dissenting,
		QuorumProof:     proof,
		CommittedAt:     e.now(),
	}, nil
}

// buildQuorumProof has every contributing agent (the committed-local node's
// own vote plus every distinct peer backing the same outcome) sign the
// commit digest (spec §4.6(3): "committed-local when it holds >= 2f+1 commit
// messages... from distinct peers").
func (e *Engine) buildQuorumProof(incidentID string, round uint64, plan domain.ActionPlan, contributing []domain.Recommendation) (domain.QuorumProof, error) {
	digest, err := commitDigest(incidentID, round, plan)
	if err != nil {
		return domain.QuorumProof{}, err
	}

	sigs := make(map[string][]byte, len(contributing))
	for _, r := range contributing {
		sig, err := e.Signer.Sign(r.AgentID, digest[:])
		if err != nil {
			return domain.QuorumProof{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "commit signing failed")
		}
		sigs[r.AgentID] = sig
	}

	return domain.QuorumProof{View: e.Views.View(incidentID, round), CommitSignature: sigs}, nil
}

func commitDigest(incidentID string, round uint64, plan domain.ActionPlan) ([32]byte, error) {
	type commitRecord struct {
		IncidentID string            `json:"incident_id"`
		Round      uint64            `json:"round"`
		Plan       domain.ActionPlan `json:"plan"`
	}
	b, err := json.Marshal(commitRecord{IncidentID: incidentID, Round: round, Plan: plan})
	if err != nil {
		return [32]byte{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "commit digest encode failed")
	}
	return sha256.Sum256(b), nil
}
