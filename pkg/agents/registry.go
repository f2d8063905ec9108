// Package agents implements the Agent Runtime (AR, spec §4.5): five
// concurrent role workers, each wrapping its external calls with the
// Circuit Breaker Registry and rate limiter, producing signed, size-bounded
// Recommendations, and a reputation table with quarantine semantics (spec
// §3, §4.6) that the Consensus Engine consults at ingress.
package agents

import (
	"sort"
	"sync"

	"github.com/sentinel-ir/core/pkg/domain"
)

// ReputationConfig configures the reward/penalty deltas and state
// transition thresholds (spec §6: reputation.delta_reward,
// reputation.delta_penalty, reputation.quarantine_threshold).
type ReputationConfig struct {
	DeltaReward         float64
	DeltaPenalty        float64
	ProbationThreshold  float64 // reputation below this moves HEALTHY -> PROBATION
	QuarantineThreshold float64 // carried from config; no Registry method reads it, and Quarantine does not consult it
}

func DefaultReputationConfig() ReputationConfig {
	return ReputationConfig{
		DeltaReward:         0.05,
		DeltaPenalty:        0.15,
		ProbationThreshold:  0.35,
		QuarantineThreshold: 0.15,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Registry owns every agent's reputation and lifecycle state. Reputation is
// in-memory (spec §3: "reputation is in-memory with periodic durable
// checkpoints") — pkg/agents' checkpoint loop is what makes it durable.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*domain.Agent
	cfg    ReputationConfig
}

func NewRegistry(cfg ReputationConfig) *Registry {
	return &Registry{agents: make(map[string]*domain.Agent), cfg: cfg}
}

// Join registers agent at startup or on dynamic join (spec §3), defaulting
// reputation to 0.5 and state to HEALTHY when the caller leaves them zero.
func (r *Registry) Join(agent domain.Agent) domain.Agent {
	if agent.Reputation == 0 {
		agent.Reputation = 0.5
	}
	if agent.State == "" {
		agent.State = domain.AgentHealthy
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a := agent
	r.agents[agent.ID] = &a
	return a
}

func (r *Registry) Get(agentID string) (domain.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	if !ok {
		return domain.Agent{}, false
	}
	return *a, true
}

// All returns every registered agent, ordered by ID for determinism (spec
// §4.6: "primary chosen by view mod n of non-quarantined agents,
// stable-ordered by agent id").
func (r *Registry) All() []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NonQuarantined returns every registered agent not in QUARANTINED or DEAD
// state, ID-ordered (spec §4.6 liveness floor and primary selection).
func (r *Registry) NonQuarantined() []domain.Agent {
	all := r.All()
	out := make([]domain.Agent, 0, len(all))
	for _, a := range all {
		if a.State != domain.AgentQuarantined && a.State != domain.AgentDead {
			out = append(out, a)
		}
	}
	return out
}

func (r *Registry) transition(agentID string, mutate func(a *domain.Agent)) domain.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		a = &domain.Agent{ID: agentID, Reputation: 0.5, State: domain.AgentHealthy}
		r.agents[agentID] = a
	}
	mutate(a)
	return *a
}

// Reward applies +delta_reward for a majority-aligned recommendation with
// honest timing (spec §4.5), never promoting a PROBATION/QUARANTINED agent
// back to HEALTHY on its own — recovery from those states is an explicit
// operator/MHM decision (Revive), not an automatic side effect of one good
// round.
func (r *Registry) Reward(agentID string) domain.Agent {
	return r.transition(agentID, func(a *domain.Agent) {
		a.Reputation = clamp01(a.Reputation + r.cfg.DeltaReward)
	})
}

// Penalize applies -delta_penalty for a detected Byzantine indicator (spec
// §4.6) and, if reputation falls below ProbationThreshold, moves a HEALTHY
// agent to PROBATION. This is the "single-round suspicion... local to that
// round" effect (spec §4.6); it never by itself reaches QUARANTINED —
// durable quarantine requires Quarantine (MHM/CE corroboration).
func (r *Registry) Penalize(agentID string) domain.Agent {
	return r.transition(agentID, func(a *domain.Agent) {
		a.Reputation = clamp01(a.Reputation - r.cfg.DeltaPenalty)
		if a.State == domain.AgentHealthy && a.Reputation < r.cfg.ProbationThreshold {
			a.State = domain.AgentProbation
		}
	})
}

// Quarantine durably moves agentID to QUARANTINED, the cross-round effect
// spec §4.6 gates on MHM corroboration. Callers (the Meta-Health Monitor or
// Consensus Engine acting on its corroboration) are responsible for that
// gating; Registry itself just performs the transition and records it.
func (r *Registry) Quarantine(agentID string) domain.Agent {
	return r.transition(agentID, func(a *domain.Agent) {
		a.State = domain.AgentQuarantined
	})
}

// Revive restores agentID to HEALTHY with neutral reputation, the explicit
// recovery path out of PROBATION or QUARANTINED.
func (r *Registry) Revive(agentID string) domain.Agent {
	return r.transition(agentID, func(a *domain.Agent) {
		a.State = domain.AgentHealthy
		a.Reputation = 0.5
	})
}

// Snapshot returns a copy of the full reputation table, the shape the
// checkpoint loop serializes into a REPUTATION_CHECKPOINT event.
func (r *Registry) Snapshot() map[string]domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]domain.Agent, len(r.agents))
	for id, a := range r.agents {
		out[id] = *a
	}
	return out
}
