package resilience

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute})
	boom := fmt.Errorf("boom")

	assert.Equal(t, boom, cb.Call(func() error { return boom }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, boom, cb.Call(func() error { return boom }))
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(func() error { called = true; return nil })

	var cbErr *CircuitBreakerError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, StateOpen, cbErr.State)
	assert.False(t, called, "open breaker must not invoke the function")
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Second})
	cb.now = func() time.Time { return now }

	_ = cb.Call(func() error { return fmt.Errorf("down") })
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	assert.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Second})
	cb.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_ = cb.Call(func() error { return fmt.Errorf("down") })
	}
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	_ = cb.Call(func() error { return fmt.Errorf("still down") })
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_CallContextIgnoresCallerCancellation(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.CallContext(ctx, func() error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())

	err = cb.CallContext(context.Background(), func() error { return fmt.Errorf("down") })
	assert.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestConnectionPool_DoRequest(t *testing.T) {
	var gotAuth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	defer server.Close()

	pool := NewConnectionPool(DefaultPoolConfig(), nil)
	defer pool.Close()

	resp, err := pool.DoRequest(context.Background(), http.MethodPost, server.URL, map[string]string{
		"Authorization": "Bearer abc",
	}, strings.NewReader(`{"x":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTeapot, resp.StatusCode, "status codes are passed through untouched")
	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Equal(t, `{"x":1}`, gotBody)

	stats := pool.GetStats()
	assert.Equal(t, int64(1), stats["requests"])
	assert.Equal(t, "closed", stats["circuit_breaker_state"])
}

func TestConnectionPool_TransportFailuresTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute})
	pool := NewConnectionPool(DefaultPoolConfig(), cb)

	for i := 0; i < 3; i++ {
		_, err := pool.DoRequest(context.Background(), http.MethodGet, url, nil, nil)
		assert.Error(t, err)
	}

	stats := pool.GetStats()
	assert.Equal(t, int64(2), stats["transport_failures"])
	assert.Equal(t, int64(1), stats["rejected_by_breaker"])
	assert.Equal(t, "open", stats["circuit_breaker_state"])
}

func TestConnectionPool_CallerDeadlinesDoNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 5, RecoveryTimeout: time.Minute})
	pool := NewConnectionPool(DefaultPoolConfig(), cb)
	defer pool.Close()

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_, err := pool.DoRequest(ctx, http.MethodGet, server.URL, nil, nil)
		cancel()
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}

	resp, err := pool.DoRequest(context.Background(), http.MethodGet, server.URL, nil, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stats := pool.GetStats()
	assert.Equal(t, "closed", stats["circuit_breaker_state"])
	assert.Equal(t, int64(5), stats["cancelled_by_caller"])
	assert.Equal(t, int64(0), stats["transport_failures"])
	assert.Equal(t, int64(0), stats["rejected_by_breaker"])
}

func TestConnectionPool_ClientSharesBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute})
	pool := NewConnectionPool(DefaultPoolConfig(), cb)

	_, err := pool.Client().Get(url)
	require.Error(t, err)

	_, err = pool.Client().Post(url, "application/json", strings.NewReader(`{}`))
	var cbErr *CircuitBreakerError
	require.ErrorAs(t, err, &cbErr)

	stats := pool.GetStats()
	assert.Equal(t, int64(1), stats["transport_failures"])
	assert.Equal(t, int64(1), stats["rejected_by_breaker"])
}
