package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sentinel-ir/core/pkg/ports"
)

// MockInvoker is a deterministic, in-memory ports.ModelInvoker for tests
// that exercise the cost router or agent runtime without a live provider.
type MockInvoker struct {
	mu        sync.Mutex
	Responses map[ports.ModelTier][]byte // canned response body per tier
	Err       error                       // if set, every Invoke fails with this
	calls     []ports.ModelTier
}

func NewMockInvoker() *MockInvoker {
	return &MockInvoker{Responses: make(map[ports.ModelTier][]byte)}
}

func (m *MockInvoker) Invoke(ctx context.Context, tier ports.ModelTier, prompt []byte, maxTokens int, deadline time.Time) (ports.InvocationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, tier)

	if m.Err != nil {
		return ports.InvocationResult{}, m.Err
	}

	body, ok := m.Responses[tier]
	if !ok {
		body = []byte(fmt.Sprintf("mock-response:%s", tier))
	}
	return ports.InvocationResult{
		Content:           body,
		PromptTokens:      len(prompt) / 4,
		CompletionTokens:  len(body) / 4,
		ProviderRequestID: fmt.Sprintf("mock-%d", len(m.calls)),
	}, nil
}

// Calls returns the tiers invoked so far, in order.
func (m *MockInvoker) Calls() []ports.ModelTier {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.ModelTier, len(m.calls))
	copy(out, m.calls)
	return out
}
