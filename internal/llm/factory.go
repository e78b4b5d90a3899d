package llm

import (
	"fmt"
	"time"
)

// ProviderConfig selects and configures an LLM provider.
type ProviderConfig struct {
	Provider       string // "ollama", "openai", or "" (defaults to ollama)
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
}

// NewTextGenerator creates the TextGenerator for the configured provider.
func NewTextGenerator(cfg ProviderConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			BaseURL:        cfg.BaseURL,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator creates the EmbeddingGenerator for the configured
// provider. The embedding model may differ from the completion model.
func NewEmbeddingGenerator(cfg ProviderConfig) (EmbeddingGenerator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			BaseURL:        cfg.BaseURL,
		}), nil
	case "ollama", "":
		model := cfg.EmbeddingModel
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   model,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
