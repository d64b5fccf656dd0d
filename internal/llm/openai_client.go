// ABOUTME: OpenAI-compatible client for summarization completions and embeddings
// ABOUTME: Works against OpenAI itself or local /v1 servers such as Ollama
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harper/sidekick-pipeline/internal/models"
	"github.com/harper/sidekick-pipeline/internal/util"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the default model for embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
)

// ClientConfig holds configuration for the OpenAI client
type ClientConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel openai.EmbeddingModel
	MaxRetries     int
	RetryDelay     time.Duration
	Timeout        time.Duration
}

// DefaultConfig returns the default client configuration
func DefaultConfig(apiKey, baseURL string) *ClientConfig {
	return &ClientConfig{
		APIKey:         apiKey,
		BaseURL:        baseURL,
		ChatModel:      "qwen3:8b",
		EmbeddingModel: DefaultEmbeddingModel,
		MaxRetries:     2,
		RetryDelay:     time.Second,
		Timeout:        60 * time.Second,
	}
}

// OpenAIClient wraps the OpenAI API client with retry logic.
// One underlying client is kept per endpoint.
type OpenAIClient struct {
	config *ClientConfig

	mu      sync.Mutex
	clients map[string]*openai.Client
}

// NewOpenAIClient creates a new OpenAI-compatible client.
// An API key is only required when talking to the default OpenAI endpoint.
func NewOpenAIClient(config *ClientConfig) (*OpenAIClient, error) {
	if config.APIKey == "" && config.BaseURL == "" {
		return nil, fmt.Errorf("OpenAI API key is required when no base URL is set")
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = DefaultEmbeddingModel
	}
	return &OpenAIClient{
		config:  config,
		clients: make(map[string]*openai.Client),
	}, nil
}

// clientFor returns the client bound to endpoint, or the configured base URL when empty
func (c *OpenAIClient) clientFor(endpoint string) *openai.Client {
	if endpoint == "" {
		endpoint = c.config.BaseURL
	}
	endpoint = strings.TrimRight(endpoint, "/")

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[endpoint]; ok {
		return client
	}
	cfg := openai.DefaultConfig(c.config.APIKey)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}
	client := openai.NewClientWithConfig(cfg)
	c.clients[endpoint] = client
	return client
}

// Complete sends a system/user pair and returns the first choice's text
func (c *OpenAIClient) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.config.ChatModel
	}
	client := c.clientFor(req.Endpoint)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := util.WaitBackoff(ctx, c.config.RetryDelay, attempt); err != nil {
				return "", err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		resp, err := client.CreateChatCompletion(attemptCtx, openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: req.System,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: req.User,
				},
			},
			Temperature: float32(req.Temperature),
			MaxTokens:   req.MaxTokens,
		})
		cancel()

		if err != nil {
			lastErr = translateOpenAIError(err)
			if !isRetryable(lastErr) || ctx.Err() != nil {
				return "", lastErr
			}
			continue
		}
		if len(resp.Choices) == 0 {
			return "", ErrNoChoices
		}
		return resp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("completion failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// Embed generates an embedding vector for text
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float64, error) {
	client := c.clientFor("")

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := util.WaitBackoff(ctx, c.config.RetryDelay, attempt); err != nil {
				return nil, err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		resp, err := client.CreateEmbeddings(attemptCtx, openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: c.config.EmbeddingModel,
		})
		cancel()

		if err != nil {
			lastErr = translateOpenAIError(err)
			if !isRetryable(lastErr) || ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("no embeddings returned")
		}

		// Convert []float32 to []float64
		embedding32 := resp.Data[0].Embedding
		embedding64 := make([]float64, len(embedding32))
		for i, v := range embedding32 {
			embedding64[i] = float64(v)
		}
		return embedding64, nil
	}

	return nil, fmt.Errorf("failed to generate embedding after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// translateOpenAIError maps SDK errors onto CompletionError
func translateOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return newCompletionError(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return newCompletionError(reqErr.HTTPStatusCode, body, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return newCompletionError(0, "", err)
}
