// Package sandbox implements an in-memory ports.ExecutorBackend: a fake
// isolated environment (spec §4.8: "read-only replicas, ephemeral
// namespaces") for tests and small deployments that don't have a real
// cluster/cloud backend wired in. Every call is keyed by ActionStepView.Name
// so tests can script specific steps to fail.
package sandbox

import (
	"context"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/ports"
)

// StepScript lets a test script one step's sandbox metrics and
// production/reversal outcomes.
type StepScript struct {
	SandboxMetrics  ports.ExecutorMetrics
	SandboxErr      error
	ProductionErr   error
	ProductionOK    bool
	ReverseErr      error
	ReverseOK       bool
}

// Backend is an in-memory ExecutorBackend. Safe for concurrent use.
type Backend struct {
	mu      sync.Mutex
	scripts map[string]StepScript
	calls   []string

	credSeq int
}

func NewBackend() *Backend {
	return &Backend{scripts: make(map[string]StepScript)}
}

// Script registers how stepName behaves under ExecSandbox/ExecProduction/Reverse.
func (b *Backend) Script(stepName string, s StepScript) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts[stepName] = s
}

func (b *Backend) recordCall(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

// Calls returns the ordered call log ("sandbox:name", "production:name",
// "reverse:name", "issue_scope:planKey"), for tests asserting pipeline
// ordering.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

func (b *Backend) script(name string) StepScript {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scripts[name]
}

func (b *Backend) ExecSandbox(ctx context.Context, step ports.ActionStepView, cred ports.CredentialHandle) (ports.ExecutorMetrics, error) {
	b.recordCall("sandbox:" + step.Name)
	s := b.script(step.Name)
	if s.SandboxErr != nil {
		return nil, s.SandboxErr
	}
	if s.SandboxMetrics == nil {
		return ports.ExecutorMetrics{"success": 1}, nil
	}
	return s.SandboxMetrics, nil
}

func (b *Backend) ExecProduction(ctx context.Context, step ports.ActionStepView, cred ports.CredentialHandle) (ports.StepResult, error) {
	b.recordCall("production:" + step.Name)
	b.mu.Lock()
	s, scripted := b.scripts[step.Name]
	b.mu.Unlock()
	if s.ProductionErr != nil {
		return ports.StepResult{}, s.ProductionErr
	}
	ok := s.ProductionOK
	if !scripted {
		ok = true // default: succeeds unless explicitly scripted otherwise
	}
	return ports.StepResult{Success: ok, Detail: step.Kind}, nil
}

func (b *Backend) Reverse(ctx context.Context, step ports.ActionStepView, cred ports.CredentialHandle) (ports.StepResult, error) {
	b.recordCall("reverse:" + step.Name)
	b.mu.Lock()
	s, scripted := b.scripts[step.Name]
	b.mu.Unlock()
	if s.ReverseErr != nil {
		return ports.StepResult{}, s.ReverseErr
	}
	ok := s.ReverseOK
	if !scripted {
		ok = true
	}
	return ports.StepResult{Success: ok, Detail: "reversed " + step.Kind}, nil
}

// IssueScope mints a just-in-time credential scoped to planKey, expiring
// after ttl (spec §4.8: "JIT credentials with TTL").
func (b *Backend) IssueScope(ctx context.Context, planKey string, ttl time.Duration) (ports.CredentialHandle, error) {
	b.mu.Lock()
	b.credSeq++
	seq := b.credSeq
	b.mu.Unlock()
	b.recordCall("issue_scope:" + planKey)
	if ttl <= 0 {
		return ports.CredentialHandle{}, apperrors.New(apperrors.ErrorTypeValidation, "credential ttl must be positive")
	}
	return ports.CredentialHandle{
		Token:     planKey + "-" + strconv.Itoa(seq),
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}
