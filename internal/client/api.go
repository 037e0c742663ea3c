// Package client is the data-access layer of LaunchLog front ends: a typed
// API client, a local SQLite cache with an offline queue, and DataService
// which ties them together.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/launchlog/launchlog-go/internal/model"
)

// APIError is a non-2xx reply from the API.
type APIError struct {
	StatusCode int
	Message    string
	Field      string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("api: %d %s (%s)", e.StatusCode, e.Message, e.Field)
	}
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// ErrAuthRequired means the API refused the stored token. Queued
// operations are kept until the user signs in again.
var ErrAuthRequired = errors.New("sign-in required: session expired or not permitted")

// IsRetryable reports whether a failed call may succeed later unchanged:
// transport errors, timeouts, 429 and 5xx replies. Any other error,
// including a local encoding failure, is not retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded)
}

// IsAuthFailure reports whether err is a 401 or 403 reply.
func IsAuthFailure(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

// isPayloadRejection reports whether the API refused the request body
// itself, so resending it can never succeed.
func isPayloadRejection(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

// APIClient calls the LaunchLog REST API.
type APIClient struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// NewAPIClient creates an APIClient for baseURL. A nil httpClient uses a
// client with a 15 second timeout.
func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &APIClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// SetToken sets the bearer token sent with every request. An empty token
// makes requests anonymous.
func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *APIClient) Health(ctx context.Context) (model.HealthResponse, error) {
	var out model.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

func (c *APIClient) Register(ctx context.Context, req model.CreateUserRequest) (model.AuthResponse, error) {
	var out model.AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &out)
	return out, err
}

func (c *APIClient) Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error) {
	var out model.AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", req, &out)
	return out, err
}

func (c *APIClient) GetUserData(ctx context.Context) (model.UserData, error) {
	var out model.UserData
	if err := c.do(ctx, http.MethodGet, "/api/user-data", nil, &out); err != nil {
		return model.UserData{}, err
	}
	out.Normalize()
	return out, nil
}

func (c *APIClient) SaveTimerSession(ctx context.Context, session model.TimerSession) (model.WriteResult, error) {
	return c.write(ctx, http.MethodPost, "/api/timer-sessions", model.TimerSessionRequest{Session: &session})
}

func (c *APIClient) UpdateTasks(ctx context.Context, tasks model.TaskBoard) (model.WriteResult, error) {
	return c.write(ctx, http.MethodPut, "/api/tasks", model.TasksRequest{Tasks: &tasks})
}

func (c *APIClient) SaveJob(ctx context.Context, job model.Job) (model.WriteResult, error) {
	return c.write(ctx, http.MethodPost, "/api/jobs", model.JobRequest{Job: &job})
}

func (c *APIClient) UpdateJob(ctx context.Context, jobID string, job model.Job) (model.WriteResult, error) {
	return c.write(ctx, http.MethodPut, "/api/jobs/"+url.PathEscape(jobID), model.UpdateJobRequest{UpdatedJob: &job})
}

func (c *APIClient) DeleteJob(ctx context.Context, jobID string) (model.WriteResult, error) {
	return c.write(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(jobID), nil)
}

func (c *APIClient) UpdateDashboard(ctx context.Context, dashboard model.DashboardData) (model.WriteResult, error) {
	return c.write(ctx, http.MethodPut, "/api/dashboard", model.DashboardRequest{DashboardData: &dashboard})
}

func (c *APIClient) Reset(ctx context.Context) (model.WriteResult, error) {
	return c.write(ctx, http.MethodDelete, "/api/reset", nil)
}

func (c *APIClient) write(ctx context.Context, method, path string, body any) (model.WriteResult, error) {
	var out model.WriteResult
	err := c.do(ctx, method, path, body, &out)
	return out, err
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error, Field: e.Field}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
