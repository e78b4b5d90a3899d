package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements TextGenerator and EmbeddingGenerator over the
// OpenAI API (or any compatible endpoint via BaseURL).
type OpenAIClient struct {
	client         *openai.Client
	circuitBreaker *CircuitBreaker
	model          string
	embeddingModel string
}

// OpenAIConfig holds OpenAI client configuration.
type OpenAIConfig struct {
	APIKey string

	// Model is the chat model (default: gpt-4o-mini).
	Model string

	// EmbeddingModel is the embedding model (default: text-embedding-3-small).
	EmbeddingModel string

	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string
}

// NewOpenAIClient creates an OpenAI client, applying defaults for any
// unset configuration values.
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = string(openai.SmallEmbedding3)
	}

	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(cfg),
		circuitBreaker: NewCircuitBreaker(),
		model:          config.Model,
		embeddingModel: config.EmbeddingModel,
	}
}

// Complete sends a single-turn chat completion and returns the text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("openai completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("openai returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Embed generates a vector embedding for the given text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedding failed: %w", err)
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("openai returned no embedding data")
		}
		return resp.Data[0].Embedding, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// GetModel returns the configured chat model name.
func (c *OpenAIClient) GetModel() string {
	return c.model
}
