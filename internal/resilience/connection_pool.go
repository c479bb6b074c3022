package resilience

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// PoolConfig sizes the shared transport of a ConnectionPool
type PoolConfig struct {
	MaxIdle     int
	MaxActive   int
	IdleTimeout time.Duration
	Timeout     time.Duration
}

// DefaultPoolConfig mirrors what one upstream API needs for this service
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdle:     10,
		MaxActive:   20,
		IdleTimeout: 30 * time.Second,
		Timeout:     30 * time.Second,
	}
}

// ConnectionPool is an HTTP client bound to one upstream, with keep-alive
// connection reuse and a circuit breaker around transport failures. Every
// request sent through Client or DoRequest passes the breaker.
type ConnectionPool struct {
	config         PoolConfig
	client         *http.Client
	transport      *http.Transport
	circuitBreaker *CircuitBreaker

	inFlight  int64
	requests  int64
	failures  int64
	rejected  int64
	cancelled int64
}

// NewConnectionPool creates a new connection pool with circuit breaker.
// config.Timeout bounds the wait for response headers; the overall deadline
// belongs to the request context.
func NewConnectionPool(config PoolConfig, cb *CircuitBreaker) *ConnectionPool {
	if cb == nil {
		cb = NewCircuitBreaker(CircuitBreakerConfig{})
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          config.MaxIdle,
		MaxConnsPerHost:       config.MaxActive,
		MaxIdleConnsPerHost:   config.MaxIdle,
		IdleConnTimeout:       config.IdleTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: config.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	cp := &ConnectionPool{
		config:         config,
		transport:      transport,
		circuitBreaker: cb,
	}
	cp.client = &http.Client{Transport: breakerTransport{pool: cp}}

	return cp
}

// Client exposes the pooled client for SDKs that take an *http.Client.
func (cp *ConnectionPool) Client() *http.Client {
	return cp.client
}

// DoRequest executes one HTTP request. Only transport errors count against the
// circuit breaker; any HTTP status is returned to the caller to interpret.
func (cp *ConnectionPool) DoRequest(ctx context.Context, method, url string, headers map[string]string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := cp.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

type breakerTransport struct {
	pool *ConnectionPool
}

func (t breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.pool.roundTrip(req)
}

func (cp *ConnectionPool) roundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response

	atomic.AddInt64(&cp.requests, 1)

	ctx := req.Context()
	called := false
	err := cp.circuitBreaker.CallContext(ctx, func() error {
		called = true

		atomic.AddInt64(&cp.inFlight, 1)
		defer atomic.AddInt64(&cp.inFlight, -1)

		start := time.Now()
		var err error
		resp, err = cp.transport.RoundTrip(req)
		duration := time.Since(start)

		if err != nil {
			slog.Warn("Request failed", "host", req.URL.Host, "error", err, "duration_ms", duration.Milliseconds())
			return err
		}

		slog.Debug("Request completed", "host", req.URL.Host, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())
		return nil
	})

	if err == nil {
		return resp, nil
	}

	switch {
	case !called:
		atomic.AddInt64(&cp.rejected, 1)
		// a RoundTripper owns the body even when it never sends it
		if req.Body != nil {
			_ = req.Body.Close()
		}
	case ctx.Err() != nil:
		atomic.AddInt64(&cp.cancelled, 1)
	default:
		atomic.AddInt64(&cp.failures, 1)
	}
	return nil, err
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"in_flight":             atomic.LoadInt64(&cp.inFlight),
		"requests":              atomic.LoadInt64(&cp.requests),
		"transport_failures":    atomic.LoadInt64(&cp.failures),
		"rejected_by_breaker":   atomic.LoadInt64(&cp.rejected),
		"cancelled_by_caller":   atomic.LoadInt64(&cp.cancelled),
		"max_idle":              cp.config.MaxIdle,
		"max_active":            cp.config.MaxActive,
		"idle_timeout_ms":       cp.config.IdleTimeout.Milliseconds(),
		"circuit_breaker_state": cp.circuitBreaker.State().String(),
	}
}

// Close drops idle keep-alive connections
func (cp *ConnectionPool) Close() error {
	cp.transport.CloseIdleConnections()
	slog.Info("Connection pool closed")
	return nil
}
