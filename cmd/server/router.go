package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ZanzyTHEbar/mood-o-meter/docs"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/adapters"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/middleware"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/ratelimit"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/security"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/types"
)

// sentimentAnalyzer is satisfied by *analysis.Analyzer
type sentimentAnalyzer interface {
	Analyze(ctx context.Context, tweets []string) (string, error)
	Provider() string
}

type routerDeps struct {
	allowedOrigins []string
	fetcher        adapters.PostFetcher
	analyzer       sentimentAnalyzer
	limiter        *ratelimit.RateLimiter
	security       *security.SecurityMiddleware
	metrics        *monitoring.Metrics
	logger         *monitoring.Logger
	// extra snapshots merged into /metrics
	stats map[string]func() map[string]interface{}
	// dependencies pinged by /health
	healthChecks map[string]func(context.Context) error
}

func newRouter(deps routerDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(monitoring.MonitoringMiddleware(deps.metrics, deps.logger))
	r.Use(errors.RecoveryHandler())
	r.Use(errors.ErrorHandler())
	r.Use(cors.New(corsConfig(deps.allowedOrigins)))
	r.Use(deps.security.SecurityHeaders)

	r.GET("/health", healthHandler(deps.healthChecks))
	r.GET("/metrics", metricsHandler(deps.metrics, deps.stats))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	analyze := r.Group("/analyze")
	if deps.limiter != nil {
		analyze.Use(deps.limiter.IPRateLimitMiddleware())
	}
	analyze.Use(deps.security.ConcurrencyLimit, deps.security.RequestTimeout)
	analyze.GET("", missingUsernameHandler)
	analyze.GET("/:username", analyzeHandler(deps.fetcher, deps.analyzer, deps.logger, deps.metrics))

	return r
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:        12 * time.Hour,
	}

	for _, origin := range origins {
		if origin == "*" {
			config.AllowAllOrigins = true
			return config
		}
	}
	config.AllowOrigins = origins

	return config
}

// normalizeUsername trims whitespace and one leading @
func normalizeUsername(raw string) string {
	username := strings.TrimSpace(raw)
	username = strings.TrimPrefix(username, "@")
	return strings.TrimSpace(username)
}

// analyzeHandler godoc
// @Summary      Analyze a user's recent posts
// @Description  Fetches the user's recent posts and asks the configured model whether they show signs of depression. The model text is returned verbatim.
// @Tags         analysis
// @Produce      json
// @Param        username  path      string  true  "X username, with or without a leading @"
// @Success      200       {object}  types.AnalyzeResponse
// @Failure      400       {object}  types.ErrorResponse
// @Failure      404       {object}  types.ErrorResponse
// @Failure      429       {object}  types.ErrorResponse
// @Failure      500       {object}  types.ErrorResponse
// @Failure      503       {object}  types.ErrorResponse
// @Router       /analyze/{username} [get]
func analyzeHandler(fetcher adapters.PostFetcher, analyzer sentimentAnalyzer, logger *monitoring.Logger, metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := normalizeUsername(c.Param("username"))
		if username == "" {
			errors.Respond(c, errors.NewValidationError(errors.MsgUsernameRequired))
			return
		}

		ctx := c.Request.Context()
		started := time.Now()

		fetchStart := time.Now()
		tweets, err := fetcher.FetchRecentTweets(ctx, username)
		logger.ExternalAPILogger(adapters.APIName, "search_recent", time.Since(fetchStart), err)
		metrics.RecordExternalAPIRequest(adapters.APIName, err == nil)
		if err != nil {
			errors.Respond(c, err)
			return
		}

		if len(tweets) == 0 {
			errors.Respond(c, errors.NewNotFoundError(nil))
			return
		}

		analyzeStart := time.Now()
		analysis, err := analyzer.Analyze(ctx, tweets)
		logger.ExternalAPILogger(analyzer.Provider(), "generate", time.Since(analyzeStart), err)
		metrics.RecordExternalAPIRequest(analyzer.Provider(), err == nil)
		if err != nil {
			errors.Respond(c, err)
			return
		}

		metrics.IncrementAnalyses()
		logger.AnalysisLogger(username, analyzer.Provider(), len(tweets), time.Since(started))

		c.JSON(http.StatusOK, types.AnalyzeResponse{
			Username: username,
			Analysis: analysis,
			Tweets:   tweets,
		})
	}
}

func missingUsernameHandler(c *gin.Context) {
	errors.Respond(c, errors.NewValidationError(errors.MsgUsernameRequired))
}

// healthCheckTimeout bounds each dependency ping
const healthCheckTimeout = 2 * time.Second

// healthHandler godoc
// @Summary      Liveness check
// @Description  Reports "degraded" when a backing dependency such as Redis does not answer. The status code stays 200 because the service still serves requests.
// @Tags         system
// @Produce      json
// @Success      200  {object}  types.HealthResponse
// @Router       /health [get]
func healthHandler(checks map[string]func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := types.HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Version:   version,
		}

		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
			for name, check := range checks {
				ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
				err := check(ctx)
				cancel()

				if err != nil {
					slog.Warn("Health check failed", "dependency", name, "error", err)
					resp.Checks[name] = err.Error()
					resp.Status = "degraded"
					continue
				}
				resp.Checks[name] = "ok"
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}

// metricsHandler godoc
// @Summary  Request and upstream call metrics
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]interface{}
// @Router   /metrics [get]
func metricsHandler(metrics *monitoring.Metrics, extra map[string]func() map[string]interface{}) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := metrics.GetStats()
		for name, snapshot := range extra {
			stats[name] = snapshot()
		}
		c.JSON(http.StatusOK, stats)
	}
}
