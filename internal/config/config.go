package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ZanzyTHEbar/mood-o-meter/internal/errors"
)

// LLM providers understood by llm.New.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

const (
	DefaultPort            = "3000"
	DefaultTwitterBaseURL  = "https://api.twitter.com/2"
	DefaultGeminiBaseURL   = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel     = "gemini-1.5-flash"
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultMaxInFlight     = 64
	DefaultRateLimitPerMin = 60
)

// Config is loaded once at startup and passed by value into every component that needs it.
type Config struct {
	Port string

	TwitterBearerToken string
	TwitterBaseURL     string

	LLMProvider   string
	LLMModel      string
	GeminiAPIKey  string
	GeminiBaseURL string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	RequestTimeout  time.Duration
	MaxInFlight     int
	RateLimitPerMin int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AllowedOrigins []string
	LogLevel       slog.Level
}

// LoadDotEnv copies an optional .env file into the process environment.
// Variables already set win.
func LoadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !os.IsNotExist(err) {
		return errors.NewConfigurationError("failed to read .env file", err)
	}
	return nil
}

// FromEnv builds a Config from a lookup function and validates it.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Port:               get("PORT", DefaultPort),
		TwitterBearerToken: get("TWITTER_BEARER_TOKEN", ""),
		TwitterBaseURL:     strings.TrimRight(get("TWITTER_API_BASE_URL", DefaultTwitterBaseURL), "/"),
		LLMProvider:        strings.ToLower(get("LLM_PROVIDER", ProviderGemini)),
		LLMModel:           get("LLM_MODEL", ""),
		GeminiAPIKey:       get("GEMINI_API_KEY", ""),
		GeminiBaseURL:      strings.TrimRight(get("GEMINI_API_BASE_URL", DefaultGeminiBaseURL), "/"),
		OpenAIAPIKey:       get("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      get("OPENAI_API_BASE_URL", ""),
		RedisAddr:          get("REDIS_ADDR", ""),
		RedisPassword:      get("REDIS_PASSWORD", ""),
		AllowedOrigins:     splitList(get("CORS_ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.RequestTimeout, err = time.ParseDuration(get("REQUEST_TIMEOUT", DefaultRequestTimeout.String())); err != nil {
		return Config{}, errors.NewConfigurationError("invalid REQUEST_TIMEOUT", err)
	}
	if cfg.MaxInFlight, err = strconv.Atoi(get("MAX_IN_FLIGHT", strconv.Itoa(DefaultMaxInFlight))); err != nil {
		return Config{}, errors.NewConfigurationError("invalid MAX_IN_FLIGHT", err)
	}
	if cfg.RateLimitPerMin, err = strconv.Atoi(get("RATE_LIMIT_PER_MIN", strconv.Itoa(DefaultRateLimitPerMin))); err != nil {
		return Config{}, errors.NewConfigurationError("invalid RATE_LIMIT_PER_MIN", err)
	}
	if cfg.RedisDB, err = strconv.Atoi(get("REDIS_DB", "0")); err != nil {
		return Config{}, errors.NewConfigurationError("invalid REDIS_DB", err)
	}
	if err = cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		return Config{}, errors.NewConfigurationError("invalid LOG_LEVEL", err)
	}

	if cfg.LLMModel == "" {
		cfg.LLMModel = DefaultGeminiModel
		if cfg.LLMProvider == ProviderOpenAI {
			cfg.LLMModel = DefaultOpenAIModel
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate reports every missing secret at once.
func (c Config) Validate() error {
	var missing []string

	if c.TwitterBearerToken == "" {
		missing = append(missing, "TWITTER_BEARER_TOKEN")
	}

	switch c.LLMProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	default:
		return errors.NewConfigurationError(fmt.Sprintf("unknown LLM_PROVIDER %q", c.LLMProvider), nil)
	}

	if len(missing) > 0 {
		return errors.NewConfigurationError("missing required environment variables: "+strings.Join(missing, ", "), nil)
	}

	if c.MaxInFlight <= 0 {
		return errors.NewConfigurationError("MAX_IN_FLIGHT must be positive", nil)
	}
	if c.RateLimitPerMin <= 0 {
		return errors.NewConfigurationError("RATE_LIMIT_PER_MIN must be positive", nil)
	}
	if c.RequestTimeout <= 0 {
		return errors.NewConfigurationError("REQUEST_TIMEOUT must be positive", nil)
	}
	if len(c.AllowedOrigins) == 0 {
		return errors.NewConfigurationError("CORS_ALLOWED_ORIGINS must name at least one origin", nil)
	}

	return nil
}

// LLMAPIKey returns the key of the selected provider.
func (c Config) LLMAPIKey() string {
	if c.LLMProvider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

// Preview masks a secret for startup logs.
func Preview(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
