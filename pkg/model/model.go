// Package model adapts ports.ModelInvoker to concrete LLM providers (spec
// §6): Anthropic's API via anthropic-sdk-go, and Amazon Bedrock via
// aws-sdk-go-v2's bedrockruntime, the same two provider dependencies the
// teacher pins for exactly this role. A Mock adapter backs tests that
// exercise the cost router and agent runtime without a network call.
package model

import (
	"context"
	"time"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/ports"
)

// TierModel maps a ports.ModelTier to the concrete provider model identifier
// that tier should invoke (spec §6: tiers are declared, not hardcoded).
type TierModel map[ports.ModelTier]string

// DefaultAnthropicModels is the teacher-default mapping of declared tiers to
// Anthropic model IDs.
func DefaultAnthropicModels() TierModel {
	return TierModel{
		ports.TierFastCheap:    "claude-haiku-4-5",
		ports.TierBalanced:     "claude-sonnet-4-5",
		ports.TierSlowAccurate: "claude-opus-4-5",
	}
}

// DefaultBedrockModels is the teacher-default mapping of declared tiers to
// Bedrock model IDs.
func DefaultBedrockModels() TierModel {
	return TierModel{
		ports.TierFastCheap:    "anthropic.claude-haiku-4-5-20251001-v1:0",
		ports.TierBalanced:     "anthropic.claude-sonnet-4-5-20250929-v1:0",
		ports.TierSlowAccurate: "anthropic.claude-opus-4-5-20250805-v1:0",
	}
}

func modelFor(models TierModel, tier ports.ModelTier) (string, error) {
	id, ok := models[tier]
	if !ok {
		return "", apperrors.Newf(apperrors.ErrorTypeValidation, "no model configured for tier %s", tier)
	}
	return id, nil
}

// deadlineContext derives a context bounded by deadline, composed with ctx's
// own cancellation (spec §5: every blocking call is deadline- and
// context-bound).
func deadlineContext(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	return context.WithDeadline(ctx, deadline)
}
