package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sentinel-ir/core/pkg/costrouter"
	"github.com/sentinel-ir/core/pkg/domain"
	"github.com/sentinel-ir/core/pkg/ports"
)

// llmResponse is the structured shape every agent role's prompt asks the
// model to return (spec §4.5's roles differ only in what prompt they send
// and how they read the result; the wire contract is shared).
type llmResponse struct {
	ActionKey  string               `json:"action_key"`
	Steps      []domain.ActionStep  `json:"steps"`
	Confidence float64              `json:"confidence"`
	Reasoning  string               `json:"reasoning"`
}

// LLMProducer implements Producer by routing one Job through the Cost
// Router (tier selection + budget reservation), a historical-pattern
// VectorMemory lookup for grounding evidence, and a ModelInvoker call.
// Router, missing-invoker and invocation errors are returned to the caller
// (the Worker turns them into its own degraded placeholder); a model
// response that does not parse degrades here to a low-confidence NO_OP
// placeholder instead of an error. This is the
// concrete analysis pkg/agents itself deliberately leaves undefined —
// Detection/Diagnosis/Prediction/Resolution/Communication differ only in
// PromptBuilder and RequiredConfidence.
type LLMProducer struct {
	Router             *costrouter.Router
	Invokers           map[ports.ModelTier]ports.ModelInvoker
	Memory             ports.VectorMemory
	PromptBuilder      func(job Job, memory []ports.MemoryHit) []byte
	RequiredConfidence float64
	Complexity         float64
	MaxTokens          int
	TopK               int
	MinSimilarity      float64
}

func NewLLMProducer(router *costrouter.Router, invokers map[ports.ModelTier]ports.ModelInvoker, memory ports.VectorMemory, promptBuilder func(job Job, memory []ports.MemoryHit) []byte, requiredConfidence float64) *LLMProducer {
	return &LLMProducer{
		Router:             router,
		Invokers:           invokers,
		Memory:             memory,
		PromptBuilder:      promptBuilder,
		RequiredConfidence: requiredConfidence,
		Complexity:         0.5,
		MaxTokens:          2048,
		TopK:               5,
		MinSimilarity:      0.6,
	}
}

func (p *LLMProducer) Produce(ctx context.Context, job Job) (Produced, error) {
	hits, _ := p.Memory.Search(ctx, job.Input, p.TopK, p.MinSimilarity)

	sel, err := p.Router.Select(p.RequiredConfidence, p.Complexity)
	if err != nil {
		return Produced{}, err
	}
	invoker, ok := p.Invokers[sel.Tier]
	if !ok {
		p.Router.Rollback(sel)
		return Produced{}, fmt.Errorf("no ModelInvoker configured for tier %s", sel.Tier)
	}

	prompt := p.PromptBuilder(job, hits)
	result, err := invoker.Invoke(ctx, sel.Tier, prompt, p.MaxTokens, job.Deadline)
	if err != nil {
		p.Router.Rollback(sel)
		return Produced{}, err
	}
	p.Router.Commit(sel, sel.ReservedHourly)

	var parsed llmResponse
	if jsonErr := json.Unmarshal(result.Content, &parsed); jsonErr != nil {
		return Produced{
			Action:     domain.ActionPlan{Key: "NO_OP"},
			Confidence: 0.2,
			Reasoning:  "model response did not parse as structured analysis",
		}, nil
	}

	evidence := make([]domain.EvidenceRef, 0, len(hits))
	for _, h := range hits {
		evidence = append(evidence, domain.EvidenceRef{Kind: "memory", ID: h.EntryID})
	}

	return Produced{
		Action:     domain.ActionPlan{Key: parsed.ActionKey, Steps: parsed.Steps},
		Confidence: parsed.Confidence,
		Evidence:   evidence,
		Reasoning:  parsed.Reasoning,
	}, nil
}
