package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sjkd23/raidquota/pkg/domain"
	"github.com/sjkd23/raidquota/pkg/quota"
)

// QuotaClient calls the quota service's HTTP boundary. It is what the
// bot's command and run-lifecycle handlers link against instead of
// talking to the engine directly.
type QuotaClient struct {
	baseURL string
	client  *http.Client
}

// NewQuotaClient creates a client for the quota service at baseURL.
func NewQuotaClient(baseURL string) *QuotaClient {
	return &QuotaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError is an error response from the quota service, carrying the
// HTTP status and the engine's error code.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// HTTPStatusCode returns the HTTP status code of the response.
func (e *APIError) HTTPStatusCode() int {
	return e.StatusCode
}

// LogEventRequest is the POST /v1/events payload.
type LogEventRequest struct {
	GuildID     string  `json:"guild_id"`
	ActorUserID string  `json:"actor_user_id"`
	ActionType  string  `json:"action_type"`
	SubjectID   *string `json:"subject_id,omitempty"`
	DungeonKey  *string `json:"dungeon_key,omitempty"`
	QuotaPoints *int    `json:"quota_points,omitempty"`
}

// LogEventResponse is the POST /v1/events response.
type LogEventResponse struct {
	Event     *domain.QuotaEvent `json:"event,omitempty"`
	Duplicate bool               `json:"duplicate"`
}

// LogEvent posts one event. A duplicate outcome is reported in the
// response, not as an error.
func (c *QuotaClient) LogEvent(ctx context.Context, req LogEventRequest) (*LogEventResponse, error) {
	var resp LogEventResponse
	if err := c.post(ctx, "/v1/events", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LeaderboardRequest is the POST /v1/leaderboard payload.
type LeaderboardRequest struct {
	GuildID    string     `json:"guild_id"`
	Category   string     `json:"category"`
	DungeonKey *string    `json:"dungeon_key,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
	Until      *time.Time `json:"until,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// Leaderboard posts a leaderboard query.
func (c *QuotaClient) Leaderboard(ctx context.Context, req LeaderboardRequest) (*quota.LeaderboardResult, error) {
	var resp quota.LeaderboardResult
	if err := c.post(ctx, "/v1/leaderboard", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UserStats fetches the per-user stats view.
func (c *QuotaClient) UserStats(ctx context.Context, guildID, userID string) (*quota.UserStats, error) {
	var resp quota.UserStats
	if err := c.get(ctx, fmt.Sprintf("/v1/guilds/%s/users/%s/stats", guildID, userID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *QuotaClient) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *QuotaClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, out)
}

func (c *QuotaClient) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       envelope.Error.Code,
			Message:    envelope.Error.Message,
		}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// HTTPStatusCodeError is an interface for errors that carry an HTTP
// status code.
type HTTPStatusCodeError interface {
	error
	HTTPStatusCode() int
}

// IsRetryableHTTPStatus determines if an HTTP status code should be
// retried. Client errors (4xx) are not retryable except timeouts and
// rate limits; server errors (5xx) are.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	if statusCode >= 400 && statusCode < 500 {
		return false
	}
	return true
}

// IsRetryableError determines if an error from QuotaClient should be
// retried. Errors without a status code (network timeouts, connection
// refused) are considered retryable; every engine write is idempotent,
// so blind retries are always safe.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var httpErr HTTPStatusCodeError
	if errors.As(err, &httpErr) {
		return IsRetryableHTTPStatus(httpErr.HTTPStatusCode())
	}

	return true
}
