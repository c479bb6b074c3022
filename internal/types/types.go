package types

import "time"

// AnalyzeResponse is the success body of GET /analyze/{username}
type AnalyzeResponse struct {
	Username string   `json:"username" example:"jack"`
	Analysis string   `json:"analysis" example:"The user is not likely depressed."`
	Tweets   []string `json:"tweets"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error" example:"No tweets found for this user."`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version" example:"1.0.0"`

	// Checks maps each pinged dependency to "ok" or its error
	Checks map[string]string `json:"checks,omitempty"`
}
