// Package llm talks to hosted text-generation models. Every provider exposes
// the same single-prompt, single-response Generator contract.
package llm

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/mood-o-meter/internal/config"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/resilience"
)

// Generator submits a prompt and returns the model's text completion.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Provider is a Generator that owns a connection pool.
type Provider interface {
	Generator
	GetPoolStats() map[string]interface{}
	Close() error
}

// New builds the provider selected by cfg.LLMProvider.
func New(ctx context.Context, cfg config.Config) (Provider, error) {
	pool := resilience.NewConnectionPool(resilience.DefaultPoolConfig(), resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{}))

	switch cfg.LLMProvider {
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.LLMModel,
			BaseURL: cfg.GeminiBaseURL,
		}, pool)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderOpenAI:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.LLMModel,
			BaseURL: cfg.OpenAIBaseURL,
		}, pool), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

func poolStats(pool *resilience.ConnectionPool) map[string]interface{} {
	if pool == nil {
		return map[string]interface{}{}
	}
	return pool.GetStats()
}

func closePool(pool *resilience.ConnectionPool) error {
	if pool == nil {
		return nil
	}
	return pool.Close()
}
