package agents

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/domain"
)

// Runtime hosts one Worker per registered agent and fans incoming jobs out
// to the worker matching the job's target role (spec §4.5: "five agent
// roles... as independent concurrent workers").
type Runtime struct {
	workers map[string]*Worker // agent id -> worker
}

func NewRuntime() *Runtime {
	return &Runtime{workers: make(map[string]*Worker)}
}

// Register adds a worker to the runtime, keyed by its agent's ID.
func (rt *Runtime) Register(w *Worker) {
	rt.workers[w.Agent.ID] = w
}

// Start launches every registered worker's Run loop against a dedicated job
// channel per worker, returning the map of agent id -> channel callers use
// to dispatch Jobs, and a WaitGroup callers can use to await shutdown once
// every channel is closed.
func (rt *Runtime) Start(ctx context.Context, sub Submitter) (map[string]chan<- Job, *sync.WaitGroup) {
	wg := &sync.WaitGroup{}
	chans := make(map[string]chan<- Job, len(rt.workers))
	for id, w := range rt.workers {
		jobs := make(chan Job, 16)
		chans[id] = jobs
		wg.Add(1)
		go func(w *Worker, jobs chan Job) {
			defer wg.Done()
			w.Run(ctx, jobs, sub)
		}(w, jobs)
	}
	return chans, wg
}

// ByRole returns the agent IDs of every registered worker for role,
// ID-ordered, so a dispatcher can fan a single job out to all instances of
// a role.
func (rt *Runtime) ByRole(role domain.Role) []string {
	var ids []string
	for id, w := range rt.workers {
		if w.Agent.Role == role {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// InjectFault re-points the named agent's worker at a ByzantineProducer
// wrapping its current output, and/or enables signature forging (spec §6
// control API: "inject a Byzantine fault for chaos testing"; spec §8
// scenario 2: "confidence=1.5 and a signature forged against its own
// key"). The fault persists until the process restarts. A later
// InjectFault call always replaces the signature-forging setting, but only
// replaces a confidence override when it carries its own
// OverrideConfidence; a call without one leaves an earlier override active.
func (rt *Runtime) InjectFault(agentID string, fault domain.ByzantineFault) error {
	w, ok := rt.workers[agentID]
	if !ok {
		return apperrors.Newf(apperrors.ErrorTypeNotFound, "agent %s not registered", agentID)
	}
	if fault.OverrideConfidence != nil {
		w.SetProducer(NewByzantineProducer(w.currentProducer(), fault))
	}
	w.SetForgeSignature(fault.ForgeSignature)
	return nil
}
