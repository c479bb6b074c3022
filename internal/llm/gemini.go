package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ZanzyTHEbar/mood-o-meter/internal/resilience"
)

// geminiAPIVersion is appended to BaseURL by the SDK
const geminiAPIVersion = "v1beta"

// GeminiConfig configures the Gemini generateContent client
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL is the service root without the API version,
	// e.g. https://generativelanguage.googleapis.com
	BaseURL string
}

// GeminiClient is a Generator backed by the Gemini Developer API
type GeminiClient struct {
	client *genai.Client
	model  string
	pool   *resilience.ConnectionPool
}

// NewGeminiClient shares the pool's http.Client with the SDK
func NewGeminiClient(ctx context.Context, config GeminiConfig, pool *resilience.ConnectionPool) (*GeminiClient, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    strings.TrimRight(config.BaseURL, "/"),
			APIVersion: geminiAPIVersion,
		},
	}
	if pool != nil {
		clientConfig.HTTPClient = pool.Client()
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{client: client, model: config.Model, pool: pool}, nil
}

// Name identifies the provider in logs
func (g *GeminiClient) Name() string {
	return "gemini"
}

// Generate sends one generateContent request and returns the first
// candidate's text parts joined together.
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content failed: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("response contained no candidates")
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("candidate has no text (finish reason %q)", resp.Candidates[0].FinishReason)
	}

	return text, nil
}

// GetPoolStats reports the shared connection pool
func (g *GeminiClient) GetPoolStats() map[string]interface{} {
	return poolStats(g.pool)
}

// Close drops idle connections to the model endpoint
func (g *GeminiClient) Close() error {
	return closePool(g.pool)
}
