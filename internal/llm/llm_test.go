package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/mood-o-meter/internal/config"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/resilience"
)

func newPool() *resilience.ConnectionPool {
	return resilience.NewConnectionPool(resilience.DefaultPoolConfig(), nil)
}

func TestGeminiClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "gem-key", r.Header.Get("x-goog-api-key"))

		var req struct {
			Contents []struct {
				Role  string `json:"role"`
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "user", req.Contents[0].Role)
		assert.Equal(t, "hello model", req.Contents[0].Parts[0].Text)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"The user is "},{"text":"not likely depressed."}]},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	client, err := NewGeminiClient(context.Background(), GeminiConfig{
		APIKey:  "gem-key",
		Model:   "models/gemini-1.5-flash",
		BaseURL: server.URL + "/",
	}, newPool())
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), "hello model")
	require.NoError(t, err)
	assert.Equal(t, "The user is not likely depressed.", out)
	assert.Equal(t, "gemini", client.Name())
}

func TestGeminiClient_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"quota", http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota"}}`},
		{"bad key", http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid"}}`},
		{"blocked", http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`},
		{"no candidates", http.StatusOK, `{"candidates":[]}`},
		{"empty text", http.StatusOK, `{"candidates":[{"content":{"parts":[]},"finishReason":"MAX_TOKENS"}]}`},
		{"malformed", http.StatusOK, `{"candidates":[`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewGeminiClient(context.Background(), GeminiConfig{APIKey: "k", Model: "gemini-1.5-flash", BaseURL: server.URL}, newPool())
			require.NoError(t, err)

			out, err := client.Generate(context.Background(), "prompt")
			assert.Error(t, err)
			assert.Empty(t, out)
		})
	}
}

func TestOpenAIClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"The user is likely depressed."},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: server.URL + "/v1"}, newPool())

	out, err := client.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "The user is likely depressed.", out)
	assert.Equal(t, "openai", client.Name())
}

func TestOpenAIClient_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "nope", Model: "gpt-4o-mini", BaseURL: server.URL + "/v1"}, newPool())

	_, err := client.Generate(context.Background(), "prompt")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	gen, err := New(context.Background(), config.Config{LLMProvider: config.ProviderGemini, GeminiAPIKey: "k", LLMModel: "gemini-1.5-flash", GeminiBaseURL: config.DefaultGeminiBaseURL})
	require.NoError(t, err)
	assert.Equal(t, "gemini", gen.Name())
	assert.NoError(t, gen.Close())

	gen, err = New(context.Background(), config.Config{LLMProvider: config.ProviderOpenAI, OpenAIAPIKey: "k", LLMModel: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "openai", gen.Name())
	assert.NoError(t, gen.Close())

	_, err = New(context.Background(), config.Config{LLMProvider: "clippy"})
	assert.Error(t, err)
}

func TestProvider_PoolStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer server.Close()

	gen, err := New(context.Background(), config.Config{
		LLMProvider:   config.ProviderGemini,
		GeminiAPIKey:  "k",
		LLMModel:      "gemini-1.5-flash",
		GeminiBaseURL: server.URL,
	})
	require.NoError(t, err)
	defer gen.Close()

	_, err = gen.Generate(context.Background(), "prompt")
	require.NoError(t, err)

	stats := gen.GetPoolStats()
	assert.Equal(t, int64(1), stats["requests"])
	assert.Equal(t, "closed", stats["circuit_breaker_state"])
}

func TestGeminiClient_UpstreamErrorsTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute})
	pool := resilience.NewConnectionPool(resilience.DefaultPoolConfig(), cb)

	client, err := NewGeminiClient(context.Background(), GeminiConfig{APIKey: "k", Model: "gemini-1.5-flash", BaseURL: url}, pool)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Generate(context.Background(), "prompt")
	require.Error(t, err)

	_, err = client.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, "open", client.GetPoolStats()["circuit_breaker_state"])
}
