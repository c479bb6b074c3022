package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/mood-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/resilience"
)

// APIName labels the X API in logs and metrics
const APIName = "twitter"

// maxErrorBody caps how much of an upstream error body ends up in a cause
const maxErrorBody = 2048

// PostFetcher fetches the text of a user's recent posts.
type PostFetcher interface {
	FetchRecentTweets(ctx context.Context, username string) ([]string, error)
}

// XConfig holds Twitter API configuration
type XConfig struct {
	BearerToken string
	BaseURL     string
	// MaxResults is passed as max_results when between 10 and 100; otherwise the API default applies.
	MaxResults int
}

// XAdapter fetches recent posts from the X (Twitter) v2 API
type XAdapter struct {
	config XConfig
	pool   *resilience.ConnectionPool
}

// NewXAdapter creates a new X adapter with its own connection pool
func NewXAdapter(config XConfig) *XAdapter {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.twitter.com/2"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	})

	return &XAdapter{
		config: config,
		pool:   resilience.NewConnectionPool(resilience.DefaultPoolConfig(), cb),
	}
}

// Twitter API v2 response structures
type TwitterSearchResponse struct {
	Data []TwitterTweet `json:"data"`
	Meta TwitterMeta    `json:"meta"`
}

type TwitterTweet struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type TwitterMeta struct {
	ResultCount int `json:"result_count"`
}

// IsAuthenticated checks if the adapter has a bearer token
func (x *XAdapter) IsAuthenticated() bool {
	return x.config.BearerToken != ""
}

// SearchQuery builds the recent-search query for posts authored by username.
func SearchQuery(username string) string {
	return "from:" + strings.TrimPrefix(strings.TrimSpace(username), "@")
}

// FetchRecentTweets returns the text of username's recent posts in the order
// the API returns them. No matches yields an empty slice and no error.
func (x *XAdapter) FetchRecentTweets(ctx context.Context, username string) ([]string, error) {
	if !x.IsAuthenticated() {
		return nil, errors.NewUnauthorizedError(fmt.Errorf("bearer token not configured"))
	}

	params := url.Values{}
	params.Set("query", SearchQuery(username))
	params.Set("tweet.fields", "text")
	if x.config.MaxResults >= 10 && x.config.MaxResults <= 100 {
		params.Set("max_results", strconv.Itoa(x.config.MaxResults))
	}

	headers := map[string]string{
		"Authorization": "Bearer " + x.config.BearerToken,
		"Accept":        "application/json",
	}

	resp, err := x.pool.DoRequest(ctx, http.MethodGet, x.config.BaseURL+"/tweets/search/recent?"+params.Encode(), headers, nil)
	if err != nil {
		return nil, errors.NewFetchError(APIName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	var response TwitterSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, errors.NewFetchError(APIName, fmt.Errorf("failed to parse search response: %w", err))
	}

	tweets := make([]string, 0, len(response.Data))
	for _, tweet := range response.Data {
		tweets = append(tweets, tweet.Text)
	}

	return tweets, nil
}

func classifyStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	cause := fmt.Errorf("twitter API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))

	switch resp.StatusCode {
	case http.StatusNotFound:
		return errors.NewNotFoundError(cause)
	case http.StatusUnauthorized:
		return errors.NewUnauthorizedError(cause)
	case http.StatusTooManyRequests:
		return errors.NewUpstreamRateLimitError(resp.Header.Get("x-rate-limit-reset"), cause)
	default:
		return errors.NewFetchError(APIName, cause)
	}
}

// GetPoolStats returns connection pool statistics
func (x *XAdapter) GetPoolStats() map[string]interface{} {
	return x.pool.GetStats()
}

// Close closes the connection pool
func (x *XAdapter) Close() error {
	return x.pool.Close()
}
