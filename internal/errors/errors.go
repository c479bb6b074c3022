package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryUnauthorized  ErrorCategory = "unauthorized"
	CategoryRateLimit     ErrorCategory = "rate_limit"
	CategoryExternalAPI   ErrorCategory = "external_api"
	CategoryAnalysis      ErrorCategory = "analysis"
	CategoryUnavailable   ErrorCategory = "unavailable"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryInternal      ErrorCategory = "internal"
	CategoryConfiguration ErrorCategory = "configuration"
)

// User-facing messages.
const (
	MsgUsernameRequired = "Username is required."
	MsgNoTweets         = "No tweets found for this user."
	MsgInvalidToken     = "Invalid or expired Twitter API token."
	MsgRateLimited      = "Rate limit exceeded. Please try again later."
	MsgFetchFailed      = "Failed to fetch tweets."
	MsgAnalysisFailed   = "Failed to analyze tweets."
	MsgServerBusy       = "Server is busy. Please try again later."
	MsgRequestTimeout   = "Request timed out."
	MsgInternal         = "An unexpected error occurred"
)

// AppError wraps an errbuilder error with the category and HTTP status used to render it
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Timestamp  time.Time     `json:"timestamp"`
	StackTrace string        `json:"stack_trace,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Category, e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// Message is the text shown to API callers.
func (e *AppError) Message() string {
	return e.ErrBuilder.Msg
}

// NewAppError creates an AppError from errbuilder with additional context
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

func withCause(builder *errbuilder.ErrBuilder, cause error) *errbuilder.ErrBuilder {
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return builder
}

// NewValidationError creates a validation error using errbuilder
func NewValidationError(message string, details ...interface{}) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	if len(details) > 0 {
		errorMap := errbuilder.ErrorMap{}
		errorMap.Set("validation_details", fmt.Errorf("%v", details[0]))
		builder = builder.WithDetails(errbuilder.NewErrDetails(errorMap))
	}

	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewNotFoundError covers both an upstream 404 and an empty search result.
func NewNotFoundError(cause error) *AppError {
	return NewAppError(withCause(errbuilder.New().WithCode(errbuilder.CodeNotFound).WithMsg(MsgNoTweets), cause), CategoryNotFound, http.StatusNotFound)
}

// NewUnauthorizedError is returned when the platform rejects the bearer token.
func NewUnauthorizedError(cause error) *AppError {
	return NewAppError(withCause(errbuilder.New().WithCode(errbuilder.CodeUnauthenticated).WithMsg(MsgInvalidToken), cause), CategoryUnauthorized, http.StatusInternalServerError)
}

// NewUpstreamRateLimitError is returned when the platform throttles us. It is
// surfaced as a 500 because the caller did nothing wrong.
func NewUpstreamRateLimitError(retryAfter string, cause error) *AppError {
	builder := withCause(errbuilder.New().WithCode(errbuilder.CodeResourceExhausted).WithMsg(MsgRateLimited), cause)

	if retryAfter != "" {
		errorMap := errbuilder.ErrorMap{}
		errorMap.Set("retry_after", errors.New(retryAfter))
		builder = builder.WithDetails(errbuilder.NewErrDetails(errorMap))
	}

	return NewAppError(builder, CategoryRateLimit, http.StatusInternalServerError)
}

// NewRateLimitError creates an inbound rate limit error
func NewRateLimitError(retryAfter string) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("retry_after", errors.New(retryAfter))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg(MsgRateLimited).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return NewAppError(builder, CategoryRateLimit, http.StatusTooManyRequests)
}

// NewFetchError is the generic failure of the post fetcher
func NewFetchError(apiName string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("api_name", errors.New(apiName))

	builder := withCause(errbuilder.New().WithCode(errbuilder.CodeUnavailable).WithMsg(MsgFetchFailed), cause).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return NewAppError(builder, CategoryExternalAPI, http.StatusInternalServerError)
}

// NewAnalysisError is the generic failure of the text model
func NewAnalysisError(provider string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("provider", errors.New(provider))

	builder := withCause(errbuilder.New().WithCode(errbuilder.CodeUnavailable).WithMsg(MsgAnalysisFailed), cause).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return NewAppError(builder, CategoryAnalysis, http.StatusInternalServerError)
}

// NewUnavailableError is returned when the server refuses work because it is saturated
func NewUnavailableError(cause error) *AppError {
	return NewAppError(withCause(errbuilder.New().WithCode(errbuilder.CodeUnavailable).WithMsg(MsgServerBusy), cause), CategoryUnavailable, http.StatusServiceUnavailable)
}

// NewTimeoutError creates a timeout error using errbuilder
func NewTimeoutError(cause error) *AppError {
	return NewAppError(withCause(errbuilder.New().WithCode(errbuilder.CodeDeadlineExceeded).WithMsg(MsgRequestTimeout), cause), CategoryTimeout, http.StatusGatewayTimeout)
}

// NewInternalError creates an internal server error using errbuilder
func NewInternalError(message string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("internal_details", errors.New(message))

	builder := withCause(errbuilder.New().WithCode(errbuilder.CodeInternal).WithMsg(MsgInternal), cause).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	appErr := NewAppError(builder, CategoryInternal, http.StatusInternalServerError)

	if gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode {
		appErr.StackTrace = captureStackTrace()
	}

	return appErr
}

// NewConfigurationError creates a configuration error using errbuilder
func NewConfigurationError(message string, cause error) *AppError {
	return NewAppError(withCause(errbuilder.New().WithCode(errbuilder.CodeFailedPrecondition).WithMsg(message), cause), CategoryConfiguration, http.StatusInternalServerError)
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ToAppError converts any error to an AppError
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewTimeoutError(err)
	}

	return NewInternalError(MsgInternal, err)
}

// Body is the JSON envelope written for every failed request.
func Body(appErr *AppError) gin.H {
	return gin.H{"error": appErr.Message()}
}

// Respond logs err and writes the error envelope with the mapped status.
func Respond(c *gin.Context, err error) {
	appErr := ToAppError(err)
	LogError(c, appErr)
	c.AbortWithStatusJSON(appErr.HTTPStatus, Body(appErr))
}

// ErrorHandler is a Gin middleware that renders errors attached with c.Error
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		Respond(c, c.Errors.Last().Err)
	}
}

// RecoveryHandler provides panic recovery with the standard error envelope
func RecoveryHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", recovered),
			fmt.Errorf("%v", recovered),
		)
		appErr.StackTrace = captureStackTrace()

		LogError(c, appErr)
		c.AbortWithStatusJSON(appErr.HTTPStatus, Body(appErr))
	})
}

// LogError logs an error with appropriate level and context
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetString("request_id"),
	)

	msg := err.ErrBuilder.Msg
	cause := err.ErrBuilder.Unwrap()

	switch err.Category {
	case CategoryValidation, CategoryNotFound, CategoryRateLimit, CategoryUnavailable:
		if details := err.ErrBuilder.Details; len(details.Errors) > 0 {
			logEntry.Warn(msg, "details", details.Errors)
		} else {
			logEntry.Warn(msg)
		}
	default:
		if cause != nil {
			logEntry.Error(msg, "cause", cause)
		} else {
			logEntry.Error(msg)
		}
	}

	if err.StackTrace != "" && (gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode) {
		logEntry.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// WrapError wraps an error with additional context
func WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", fmt.Sprintf(message, args...), err)
}

// SafeClose safely closes a resource and logs any errors
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}

	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource",
			"resource", resourceName,
			"error", err)
	}
}
