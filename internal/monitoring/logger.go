package monitoring

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger provides structured logging helpers for the request pipeline
type Logger struct {
	*slog.Logger
}

// NewHandler builds the JSON handler shared by the default logger and Logger
func NewHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})
}

// NewLogger creates a logger writing JSON to stdout
func NewLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(NewHandler(os.Stdout, level))}
}

// NewLoggerWithWriter is NewLogger with an explicit sink, used in tests
func NewLoggerWithWriter(w io.Writer, level slog.Level) *Logger {
	return &Logger{Logger: slog.New(NewHandler(w, level))}
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(requestID, method, path, ip, userAgent string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"request_id", requestID,
		"method", method,
		"path", path,
		"ip", ip,
		"user_agent", userAgent,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// AnalysisLogger logs a completed analysis without the tweet text or model output
func (l *Logger) AnalysisLogger(username, provider string, tweetCount int, duration time.Duration) {
	l.Info("Analysis Completed",
		"username", username,
		"provider", provider,
		"tweet_count", tweetCount,
		"duration_ms", duration.Milliseconds(),
	)
}

// ExternalAPILogger logs external API calls
func (l *Logger) ExternalAPILogger(apiName, operation string, duration time.Duration, err error) {
	level := slog.LevelInfo
	attrs := []any{
		"api_name", apiName,
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
		"success", err == nil,
	}
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, "error", err.Error())
	}

	l.Log(context.Background(), level, "External API Call", attrs...)
}
