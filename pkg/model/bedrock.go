package model

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/ports"
)

// BedrockInvoker implements ports.ModelInvoker against Bedrock's
// InvokeModel API, speaking the Anthropic Messages wire format Bedrock
// accepts for anthropic.* model IDs.
type BedrockInvoker struct {
	client *bedrockruntime.Client
	models TierModel
}

func NewBedrockInvoker(ctx context.Context, region string, models TierModel) (*BedrockInvoker, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to load AWS config for bedrock")
	}
	if models == nil {
		models = DefaultBedrockModels()
	}
	return &BedrockInvoker{
		client: bedrockruntime.NewFromConfig(cfg),
		models: models,
	}, nil
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (b *BedrockInvoker) Invoke(ctx context.Context, tier ports.ModelTier, prompt []byte, maxTokens int, deadline time.Time) (ports.InvocationResult, error) {
	id, err := modelFor(b.models, tier)
	if err != nil {
		return ports.InvocationResult{}, err
	}

	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Messages:         []bedrockMessage{{Role: "user", Content: string(prompt)}},
	})
	if err != nil {
		return ports.InvocationResult{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to marshal bedrock request")
	}

	cctx, cancel := deadlineContext(ctx, deadline)
	defer cancel()

	out, err := b.client.InvokeModel(cctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(id),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return ports.InvocationResult{}, apperrors.Wrapf(err, apperrors.ErrorTypeNetwork, "bedrock invoke failed for tier %s", tier)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return ports.InvocationResult{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to unmarshal bedrock response")
	}

	var content []byte
	for _, block := range resp.Content {
		if block.Type == "text" {
			content = append(content, []byte(block.Text)...)
		}
	}

	return ports.InvocationResult{
		Content:           content,
		PromptTokens:      resp.Usage.InputTokens,
		CompletionTokens:  resp.Usage.OutputTokens,
		ProviderRequestID: resp.ID,
	}, nil
}
