package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ZanzyTHEbar/mood-o-meter/internal/adapters"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/config"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/llm"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/ratelimit"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/security"
)

var version = "1.0.0"

const shutdownTimeout = 30 * time.Second

// envFlags maps each non-secret setting to a CLI flag. Secrets are read from
// the environment only.
var envFlags = []struct {
	name  string
	env   string
	usage string
}{
	{"port", "PORT", "HTTP listen port (default 3000)"},
	{"llm-provider", "LLM_PROVIDER", "model backend: gemini or openai"},
	{"llm-model", "LLM_MODEL", "model name for the selected provider"},
	{"twitter-api-base-url", "TWITTER_API_BASE_URL", "X API v2 base URL"},
	{"gemini-api-base-url", "GEMINI_API_BASE_URL", "Gemini REST base URL"},
	{"openai-api-base-url", "OPENAI_API_BASE_URL", "OpenAI-compatible base URL"},
	{"request-timeout", "REQUEST_TIMEOUT", "per-request deadline, e.g. 30s"},
	{"max-in-flight", "MAX_IN_FLIGHT", "concurrent /analyze requests before 503"},
	{"rate-limit-per-min", "RATE_LIMIT_PER_MIN", "per-IP /analyze requests per minute"},
	{"redis-addr", "REDIS_ADDR", "Redis address for the shared rate limiter"},
	{"redis-db", "REDIS_DB", "Redis database number"},
	{"cors-allowed-origins", "CORS_ALLOWED_ORIGINS", "comma separated origins, * for any"},
	{"log-level", "LOG_LEVEL", "debug, info, warn or error"},
}

func main() {
	slog.SetDefault(slog.New(monitoring.NewHandler(os.Stdout, slog.LevelInfo)))

	// before flag parsing so EnvVars see .env values
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("Failed to load .env", "error", err)
		os.Exit(1)
	}

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	flags := make([]cli.Flag, 0, len(envFlags))
	for _, f := range envFlags {
		flags = append(flags, &cli.StringFlag{
			Name:    f.name,
			Usage:   f.usage,
			EnvVars: []string{f.env},
		})
	}

	return &cli.App{
		Name:    "mood-o-meter",
		Usage:   "HTTP API that classifies a user's recent posts for signs of depression",
		Version: version,
		Flags:   flags,
		Action:  run,
	}
}

// lookupFrom resolves a variable through its flag when one exists
func lookupFrom(c *cli.Context) func(string) string {
	byEnv := make(map[string]string, len(envFlags))
	for _, f := range envFlags {
		byEnv[f.env] = f.name
	}

	return func(key string) string {
		if name, ok := byEnv[key]; ok {
			return c.String(name)
		}
		return os.Getenv(key)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromEnv(lookupFrom(c))
	if err != nil {
		return errors.WrapError(err, "invalid configuration")
	}

	logger := monitoring.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger.Logger)

	slog.Info("Configuration loaded",
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
		"llm_model", cfg.LLMModel,
		"twitter_token", config.Preview(cfg.TwitterBearerToken),
		"llm_api_key", config.Preview(cfg.LLMAPIKey()),
		"request_timeout", cfg.RequestTimeout,
		"max_in_flight", cfg.MaxInFlight,
		"rate_limit_per_min", cfg.RateLimitPerMin,
	)

	xAdapter := adapters.NewXAdapter(adapters.XConfig{
		BearerToken: cfg.TwitterBearerToken,
		BaseURL:     cfg.TwitterBaseURL,
	})
	defer errors.SafeClose(xAdapter, "twitter connection pool")

	generator, err := llm.New(c.Context, cfg)
	if err != nil {
		return errors.WrapError(err, "failed to set up %s provider", cfg.LLMProvider)
	}
	defer errors.SafeClose(generator, "llm connection pool")
	analyzer := analysis.NewAnalyzer(generator)

	metrics := monitoring.NewMetrics()

	redisClient, err := ratelimit.NewRedisClient(c.Context, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Warn("Redis unavailable, rate limiting in memory", "error", err)
	}
	defer errors.SafeClose(redisClient, "redis client")

	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.Config{IPLimitPerMin: cfg.RateLimitPerMin}, metrics)
	defer limiter.Close()

	sec := security.NewSecurityMiddleware(security.SecurityConfig{
		RequestTimeout: cfg.RequestTimeout,
		MaxInFlight:    int64(cfg.MaxInFlight),
	}, metrics)

	r := newRouter(routerDeps{
		allowedOrigins: cfg.AllowedOrigins,
		fetcher:        xAdapter,
		analyzer:       analyzer,
		limiter:        limiter,
		security:       sec,
		metrics:        metrics,
		logger:         logger,
		stats: map[string]func() map[string]interface{}{
			"twitter_pool": xAdapter.GetPoolStats,
			"llm_pool":     generator.GetPoolStats,
			"rate_limiter": limiter.GetStats,
			"concurrency":  sec.GetStats,
		},
		healthChecks: healthChecks(redisClient),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "port", cfg.Port, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case <-quit:
	}
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server exited")
	return nil
}

// healthChecks lists the dependencies /health pings
func healthChecks(redisClient *ratelimit.RedisClient) map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if redisClient.IsEnabled() {
		checks["redis"] = redisClient.HealthCheck
	}
	return checks
}
