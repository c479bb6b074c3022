package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Percentiles(t *testing.T) {
	m := NewMetrics()
	for i := 1; i <= 100; i++ {
		m.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}

	assert.Equal(t, 50*time.Millisecond, m.GetPercentileResponseTime(50))
	assert.Equal(t, 100*time.Millisecond, m.GetPercentileResponseTime(100))
	assert.Equal(t, time.Duration(0), NewMetrics().GetPercentileResponseTime(95))
}

func TestMetrics_ResponseWindowIsBounded(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < maxSamples+50; i++ {
		m.RecordResponseTime(time.Millisecond)
	}

	m.responseTimesMutex.RLock()
	defer m.responseTimesMutex.RUnlock()
	assert.Len(t, m.responseTimes, maxSamples)
}

func TestMetrics_ExternalAPIStats(t *testing.T) {
	m := NewMetrics()
	m.RecordExternalAPIRequest("twitter", true)
	m.RecordExternalAPIRequest("twitter", false)
	m.RecordExternalAPIRequest("gemini", true)

	stats := m.GetExternalAPIStats()
	twitter := stats["twitter"].(map[string]interface{})
	assert.Equal(t, int64(2), twitter["requests"])
	assert.Equal(t, int64(1), twitter["errors"])
	assert.InDelta(t, 50.0, twitter["error_rate"], 0.001)
	assert.Contains(t, stats, "gemini")
}

func TestMetrics_GetStats(t *testing.T) {
	m := NewMetrics()
	m.IncrementRequest()
	m.IncrementRequest()
	m.IncrementError()
	m.IncrementAnalyses()
	m.IncrementRateLimitIPBlock()
	m.IncrementConcurrencyReject()

	stats := m.GetStats()
	assert.Equal(t, int64(2), stats["total_requests"])
	assert.Equal(t, int64(1), stats["error_count"])
	assert.InDelta(t, 50.0, stats["error_rate_percent"], 0.001)
	assert.Equal(t, int64(1), stats["analyses_completed"])
	assert.Equal(t, int64(1), stats["rate_limit_ip_blocks"])
	assert.Equal(t, int64(1), stats["concurrency_rejects"])
}

func TestLogger_AnalysisLoggerOmitsContent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, slog.LevelInfo)

	logger.AnalysisLogger("jack", "gemini", 2, 150*time.Millisecond)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Analysis Completed", entry["msg"])
	assert.Equal(t, "jack", entry["username"])
	assert.Equal(t, float64(2), entry["tweet_count"])
	assert.Contains(t, entry, "timestamp")
	assert.NotContains(t, entry, "time")
}

func TestLogger_ExternalAPILoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, slog.LevelInfo)

	logger.ExternalAPILogger("twitter", "search_recent", time.Second, fmt.Errorf("boom"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, false, entry["success"])
	assert.Equal(t, "boom", entry["error"])
}

func TestMonitoringMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	metrics := NewMetrics()
	logger := NewLoggerWithWriter(&buf, slog.LevelInfo)

	router := gin.New()
	router.Use(MonitoringMiddleware(metrics, logger))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/ok", "/missing", "/ok"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, int64(3), metrics.RequestCount)
	assert.Equal(t, int64(1), metrics.ErrorCount)
	dist := metrics.GetStatusCodeDistribution()
	assert.Equal(t, int64(2), dist[http.StatusOK])
	assert.Equal(t, int64(1), dist[http.StatusNotFound])
	assert.Contains(t, buf.String(), `"path":"/missing"`)
}
