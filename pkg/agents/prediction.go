package agents

import (
	"context"
	"fmt"

	"github.com/sentinel-ir/core/pkg/domain"
	"github.com/sentinel-ir/core/pkg/ports"
)

// PredictionProducer runs a thresholded cascade-probability forecast before
// delegating to the shared LLM path, so "will this cascade" is never just
// an LLM's bare claim (spec §4.5). Signals supplies the telemetry trend the
// forecast fits; the core ships no concrete sliding-window telemetry feed,
// so callers provide one appropriate to their deployment.
type PredictionProducer struct {
	Forecaster *CascadeForecaster
	Signals    func(job Job) []SignalSample
	LLM        *LLMProducer
}

func NewPredictionProducer(forecaster *CascadeForecaster, signals func(job Job) []SignalSample, llm *LLMProducer) *PredictionProducer {
	return &PredictionProducer{Forecaster: forecaster, Signals: signals, LLM: llm}
}

func (p *PredictionProducer) Produce(ctx context.Context, job Job) (Produced, error) {
	forecast := p.Forecaster.Forecast(p.Signals(job))

	llm := *p.LLM
	basePrompt := p.LLM.PromptBuilder
	llm.PromptBuilder = func(j Job, hits []ports.MemoryHit) []byte {
		prompt := basePrompt(j, hits)
		return append(prompt, []byte(fmt.Sprintf(
			"cascade_probability=%.4f\nwill_cascade=%t\nprojected_intensity=%.4f\n",
			forecast.CascadeProbability, forecast.WillCascade, forecast.ProjectedIntensity,
		))...)
	}

	produced, err := (&llm).Produce(ctx, job)
	if err != nil {
		return Produced{}, err
	}

	produced.Evidence = append(produced.Evidence, domain.EvidenceRef{
		Kind: "cascade_forecast",
		ID:   fmt.Sprintf("p=%.2f", forecast.CascadeProbability),
	})
	if forecast.WillCascade && produced.Confidence < 0.5 {
		produced.Confidence = 0.5
	}
	return produced, nil
}
