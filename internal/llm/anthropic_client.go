// ABOUTME: Anthropic Messages API client for summarization completions
// ABOUTME: Also exposes the token counting endpoint for occupancy estimates
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/harper/sidekick-pipeline/internal/config"
	"github.com/harper/sidekick-pipeline/internal/models"
)

// DefaultAnthropicModel is used when neither the request nor the client names one
const DefaultAnthropicModel = config.DefaultAnthropicModel

// AnthropicClient adapts the Anthropic SDK to the completion collaborator
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a client. Extra options are passed to the SDK.
func NewAnthropicClient(apiKey, model string, opts ...option.RequestOption) *AnthropicClient {
	if model == "" {
		model = DefaultAnthropicModel
	}
	all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := anthropic.NewClient(all...)
	return &AnthropicClient{client: &client, model: model}
}

// Complete sends a system/user pair and concatenates the text blocks of the reply
func (c *AnthropicClient) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1400
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	var opts []option.RequestOption
	if req.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(req.Endpoint))
	}

	message, err := c.client.Messages.New(ctx, params, opts...)
	if err != nil {
		return "", translateAnthropicError(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	if text.Len() == 0 {
		return "", ErrNoChoices
	}
	return text.String(), nil
}

// CountTokens asks the API how many input tokens text would use
func (c *AnthropicClient) CountTokens(ctx context.Context, text string) (int, error) {
	resp, err := c.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.MessageParam{
			{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(text),
				},
			},
		},
	})
	if err != nil {
		return 0, translateAnthropicError(err)
	}
	return int(resp.InputTokens), nil
}

func translateAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return newCompletionError(apiErr.StatusCode, apiErr.Error(), err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return newCompletionError(0, "", err)
}
