package model

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/ports"
)

// AnthropicInvoker implements ports.ModelInvoker against the Anthropic
// Messages API.
type AnthropicInvoker struct {
	client anthropic.Client
	models TierModel
}

func NewAnthropicInvoker(apiKey string, models TierModel) *AnthropicInvoker {
	if models == nil {
		models = DefaultAnthropicModels()
	}
	return &AnthropicInvoker{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		models: models,
	}
}

func (a *AnthropicInvoker) Invoke(ctx context.Context, tier ports.ModelTier, prompt []byte, maxTokens int, deadline time.Time) (ports.InvocationResult, error) {
	id, err := modelFor(a.models, tier)
	if err != nil {
		return ports.InvocationResult{}, err
	}

	cctx, cancel := deadlineContext(ctx, deadline)
	defer cancel()

	msg, err := a.client.Messages.New(cctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(id),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(string(prompt))),
		},
	})
	if err != nil {
		return ports.InvocationResult{}, apperrors.Wrapf(err, apperrors.ErrorTypeNetwork, "anthropic invoke failed for tier %s", tier)
	}

	var content []byte
	for _, block := range msg.Content {
		if block.Type == "text" {
			content = append(content, []byte(block.Text)...)
		}
	}

	return ports.InvocationResult{
		Content:           content,
		PromptTokens:      int(msg.Usage.InputTokens),
		CompletionTokens:  int(msg.Usage.OutputTokens),
		ProviderRequestID: msg.ID,
	}, nil
}
