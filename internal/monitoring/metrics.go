package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// maxSamples bounds the latency window used for percentiles
const maxSamples = 1000

// Metrics holds application metrics
type Metrics struct {
	RequestCount        int64
	ErrorCount          int64
	AnalysesCompleted   int64
	RateLimitIPBlocks   int64
	ConcurrencyRejects  int64
	RateLimitRedisError int64
	StartTime           time.Time

	responseTimes      []time.Duration
	responseTimesMutex sync.RWMutex

	requestCountByStatus map[int]int64
	statusMutex          sync.RWMutex

	externalAPIRequests   map[string]int64
	externalAPIErrorCount map[string]int64
	externalAPIMutex      sync.RWMutex
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:             time.Now(),
		responseTimes:         make([]time.Duration, 0, maxSamples),
		requestCountByStatus:  make(map[int]int64),
		externalAPIRequests:   make(map[string]int64),
		externalAPIErrorCount: make(map[string]int64),
	}
}

// IncrementRequest increments the request count
func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

// IncrementError increments the error count
func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// IncrementAnalyses counts successful /analyze responses
func (m *Metrics) IncrementAnalyses() {
	atomic.AddInt64(&m.AnalysesCompleted, 1)
}

// IncrementRateLimitIPBlock increments IP-based rate limit blocks
func (m *Metrics) IncrementRateLimitIPBlock() {
	atomic.AddInt64(&m.RateLimitIPBlocks, 1)
}

// IncrementRateLimitRedisError counts limiter checks that fell back to memory
func (m *Metrics) IncrementRateLimitRedisError() {
	atomic.AddInt64(&m.RateLimitRedisError, 1)
}

// IncrementConcurrencyReject counts requests turned away by the in-flight cap
func (m *Metrics) IncrementConcurrencyReject() {
	atomic.AddInt64(&m.ConcurrencyRejects, 1)
}

// RecordResponseTime stores duration in a sliding window for percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	m.responseTimesMutex.Lock()
	defer m.responseTimesMutex.Unlock()

	m.responseTimes = append(m.responseTimes, duration)
	if len(m.responseTimes) > maxSamples {
		m.responseTimes = m.responseTimes[1:]
	}
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.statusMutex.Lock()
	defer m.statusMutex.Unlock()
	m.requestCountByStatus[statusCode]++
}

// RecordExternalAPIRequest records an outbound call to apiName
func (m *Metrics) RecordExternalAPIRequest(apiName string, success bool) {
	m.externalAPIMutex.Lock()
	defer m.externalAPIMutex.Unlock()

	m.externalAPIRequests[apiName]++
	if !success {
		m.externalAPIErrorCount[apiName]++
	}
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.responseTimesMutex.RLock()
	times := make([]time.Duration, len(m.responseTimes))
	copy(times, m.responseTimes)
	m.responseTimesMutex.RUnlock()

	if len(times) == 0 {
		return 0
	}

	sort.Slice(times, func(i, j int) bool {
		return times[i] < times[j]
	})

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}

	return times[index]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.statusMutex.RLock()
	defer m.statusMutex.RUnlock()

	distribution := make(map[int]int64, len(m.requestCountByStatus))
	for code, count := range m.requestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetExternalAPIStats returns external API statistics
func (m *Metrics) GetExternalAPIStats() map[string]interface{} {
	m.externalAPIMutex.RLock()
	defer m.externalAPIMutex.RUnlock()

	stats := make(map[string]interface{})
	for api, requests := range m.externalAPIRequests {
		errors := m.externalAPIErrorCount[api]
		errorRate := float64(0)
		if requests > 0 {
			errorRate = float64(errors) / float64(requests) * 100
		}

		stats[api] = map[string]interface{}{
			"requests":   requests,
			"errors":     errors,
			"error_rate": errorRate,
		}
	}
	return stats
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}

	return map[string]interface{}{
		"uptime_seconds":           time.Since(m.StartTime).Seconds(),
		"start_time":               m.StartTime.Format(time.RFC3339),
		"total_requests":           requests,
		"error_count":              errors,
		"error_rate_percent":       errorRate,
		"analyses_completed":       atomic.LoadInt64(&m.AnalysesCompleted),
		"rate_limit_ip_blocks":     atomic.LoadInt64(&m.RateLimitIPBlocks),
		"rate_limit_redis_errors":  atomic.LoadInt64(&m.RateLimitRedisError),
		"concurrency_rejects":      atomic.LoadInt64(&m.ConcurrencyRejects),
		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / float64(time.Millisecond),
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / float64(time.Millisecond),
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / float64(time.Millisecond),
		"status_code_distribution": m.GetStatusCodeDistribution(),
		"external_api_stats":       m.GetExternalAPIStats(),
	}
}
