package agents

import (
	"context"

	"github.com/sentinel-ir/core/pkg/domain"
)

// ByzantineProducer wraps another Producer and overrides its confidence
// output, the chaos-testing double behind Runtime.InjectFault (spec §8
// scenario 2: "a mock that emits confidence=1.5").
type ByzantineProducer struct {
	inner Producer
	fault domain.ByzantineFault
}

func NewByzantineProducer(inner Producer, fault domain.ByzantineFault) *ByzantineProducer {
	return &ByzantineProducer{inner: inner, fault: fault}
}

func (p *ByzantineProducer) Produce(ctx context.Context, job Job) (Produced, error) {
	produced, err := p.inner.Produce(ctx, job)
	if err != nil {
		return Produced{}, err
	}
	if p.fault.OverrideConfidence != nil {
		produced.Confidence = *p.fault.OverrideConfidence
	}
	return produced, nil
}
