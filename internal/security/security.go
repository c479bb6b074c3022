package security

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/ZanzyTHEbar/mood-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/monitoring"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	RequestTimeout time.Duration `json:"request_timeout"`
	MaxInFlight    int64         `json:"max_in_flight"`
	EnableHSTS     bool          `json:"enable_hsts"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		RequestTimeout: 30 * time.Second,
		MaxInFlight:    64,
	}
}

// SecurityMiddleware bundles the hardening middleware for the API
type SecurityMiddleware struct {
	config   SecurityConfig
	inFlight *semaphore.Weighted
	active   int64
	metrics  *monitoring.Metrics
}

// NewSecurityMiddleware creates a new security middleware instance. metrics may be nil.
func NewSecurityMiddleware(config SecurityConfig, metrics *monitoring.Metrics) *SecurityMiddleware {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultSecurityConfig().RequestTimeout
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = DefaultSecurityConfig().MaxInFlight
	}

	return &SecurityMiddleware{
		config:   config,
		inFlight: semaphore.NewWeighted(config.MaxInFlight),
		metrics:  metrics,
	}
}

// SecurityHeaders adds security headers to responses
func (sm *SecurityMiddleware) SecurityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("X-XSS-Protection", "1; mode=block")
	c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

	// JSON only; swagger UI is served from its own route group
	if c.FullPath() != "/swagger/*any" {
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	}

	if sm.config.EnableHSTS || c.Request.TLS != nil {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	c.Next()
}

// RequestTimeout bounds the request context. Outbound calls made with it are
// cancelled when the deadline passes.
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// ConcurrencyLimit rejects requests with 503 once MaxInFlight are running
func (sm *SecurityMiddleware) ConcurrencyLimit(c *gin.Context) {
	if !sm.inFlight.TryAcquire(1) {
		if sm.metrics != nil {
			sm.metrics.IncrementConcurrencyReject()
		}
		errors.Respond(c, errors.NewUnavailableError(fmt.Errorf("%d requests in flight", sm.config.MaxInFlight)))
		return
	}

	atomic.AddInt64(&sm.active, 1)
	defer func() {
		atomic.AddInt64(&sm.active, -1)
		sm.inFlight.Release(1)
	}()

	c.Next()
}

// GetStats returns the concurrency gauge
func (sm *SecurityMiddleware) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"in_flight":       atomic.LoadInt64(&sm.active),
		"max_in_flight":   sm.config.MaxInFlight,
		"request_timeout": sm.config.RequestTimeout.String(),
	}
}
