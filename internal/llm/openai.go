package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ZanzyTHEbar/mood-o-meter/internal/resilience"
)

// OpenAIConfig configures the chat completion client
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAIClient is a Generator backed by the chat completions API
type OpenAIClient struct {
	client *openai.Client
	model  string
	pool   *resilience.ConnectionPool
}

// NewOpenAIClient shares the pool's http.Client with the SDK
func NewOpenAIClient(config OpenAIConfig, pool *resilience.ConnectionPool) *OpenAIClient {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if pool != nil {
		clientConfig.HTTPClient = pool.Client()
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
		pool:   pool,
	}
}

// Name identifies the provider in logs
func (o *OpenAIClient) Name() string {
	return "openai"
}

// Generate sends the prompt as a single user message
func (o *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// GetPoolStats reports the shared connection pool
func (o *OpenAIClient) GetPoolStats() map[string]interface{} {
	return poolStats(o.pool)
}

// Close drops idle connections to the model endpoint
func (o *OpenAIClient) Close() error {
	return closePool(o.pool)
}
