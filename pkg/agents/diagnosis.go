package agents

import (
	"context"
	"fmt"

	"github.com/sentinel-ir/core/pkg/domain"
	"github.com/sentinel-ir/core/pkg/ports"
)

// DiagnosisProducer runs a bounded causal-graph walk before delegating to
// the shared LLM path, so the root-cause candidates a Diagnosis agent
// reports are never just whatever the model claims (spec §4.5).
type DiagnosisProducer struct {
	Graph     *CausalGraph
	MaxDepth  int
	MaxFanOut int
	LLM       *LLMProducer
}

func NewDiagnosisProducer(graph *CausalGraph, maxDepth, maxFanOut int, llm *LLMProducer) *DiagnosisProducer {
	return &DiagnosisProducer{Graph: graph, MaxDepth: maxDepth, MaxFanOut: maxFanOut, LLM: llm}
}

func (p *DiagnosisProducer) Produce(ctx context.Context, job Job) (Produced, error) {
	walk := p.Graph.Walk(string(job.Input), p.MaxDepth, p.MaxFanOut)

	// Shallow-copy the shared *LLMProducer: Produce has a pointer receiver,
	// but every field but PromptBuilder is read-only here, so copying the
	// struct value and overriding just that closure never mutates the
	// pointer every other role instance shares.
	llm := *p.LLM
	basePrompt := p.LLM.PromptBuilder
	llm.PromptBuilder = func(j Job, hits []ports.MemoryHit) []byte {
		prompt := basePrompt(j, hits)
		return append(prompt, []byte(fmt.Sprintf("graph_root_causes=%v\ngraph_truncated=%t\n", walk.RootCauses, walk.Truncated))...)
	}

	produced, err := (&llm).Produce(ctx, job)
	if err != nil {
		return Produced{}, err
	}

	for _, cause := range walk.RootCauses {
		produced.Evidence = append(produced.Evidence, domain.EvidenceRef{Kind: "causal_graph", ID: cause})
	}
	if walk.Truncated {
		produced.Reasoning += " (causal graph walk truncated at the configured depth/fan-out bound)"
	}
	return produced, nil
}
