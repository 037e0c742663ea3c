package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchlog/launchlog-go/internal/crypto"
	"github.com/launchlog/launchlog-go/internal/metrics"
	"github.com/launchlog/launchlog-go/internal/model"
	"github.com/launchlog/launchlog-go/internal/repository"
	"github.com/launchlog/launchlog-go/internal/service"
)

type downUserData struct{ repository.UserDataStore }

func (downUserData) Get(context.Context, string) (model.UserData, error) {
	return model.UserData{}, repository.ErrBackendUnavailable
}
func (downUserData) AppendTimerSession(context.Context, string, model.TimerSession) error {
	return repository.ErrBackendUnavailable
}
func (downUserData) AppendJob(context.Context, string, model.Job) error {
	return repository.ErrBackendUnavailable
}
func (downUserData) Delete(context.Context, string) error {
	return repository.ErrBackendUnavailable
}

var fastHashParams = crypto.HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

type testServer struct {
	*httptest.Server
	t *testing.T
}

// newTestServer runs the full router on memory stores. durableData, when
// set, is used as a connected durable user-data backend.
func newTestServer(t *testing.T, durableData repository.UserDataStore) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	health := repository.NewHealth(nil, logger, nil)
	if durableData != nil {
		health = repository.NewHealth(okPinger{}, logger, nil)
		require.True(t, health.Check(ctx))
	}

	users := repository.NewDual[repository.UserStore](nil, repository.NewMemoryUserStore(), health, logger, nil)
	data := repository.NewDual[repository.UserDataStore](durableData, repository.NewMemoryUserDataStore(), health, logger, nil)
	tokens := crypto.NewTokenIssuer("test-secret", time.Hour)

	router := NewRouter(ctx, RouterConfig{
		Auth:     service.NewAuthService(users, tokens, []string{"boss@x.com"}).WithHashParams(fastHashParams),
		UserData: service.NewUserDataService(data),
		Admin:    service.NewAdminService(users, data),
		Tokens:   tokens,
		Health:   health,
		Metrics:  metrics.New(),
		Logger:   logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, t: t}
}

func (s *testServer) do(method, path, token string, body any) (*http.Response, []byte) {
	s.t.Helper()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp, raw
}

func (s *testServer) register(email, password, name string) model.AuthResponse {
	s.t.Helper()
	resp, raw := s.do(http.MethodPost, "/api/auth/register", "", model.CreateUserRequest{Email: email, Password: password, Name: name})
	require.Equal(s.t, http.StatusCreated, resp.StatusCode, string(raw))
	var out model.AuthResponse
	require.NoError(s.t, json.Unmarshal(raw, &out))
	return out
}

func (s *testServer) userData(token string) model.UserData {
	s.t.Helper()
	resp, raw := s.do(http.MethodGet, "/api/user-data", token, nil)
	require.Equal(s.t, http.StatusOK, resp.StatusCode, string(raw))
	var out model.UserData
	require.NoError(s.t, json.Unmarshal(raw, &out))
	return out
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	resp, raw := s.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[model.HealthResponse](t, raw)
	assert.Equal(t, "OK", body.Status)
	assert.Equal(t, "LaunchLog API is running", body.Message)
	assert.Equal(t, "memory", body.Storage)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(http.MethodGet, "/health", "", nil)

	resp, raw := s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "launchlog_http_request_duration_seconds")
}

func TestRegisterLoginScenario(t *testing.T) {
	s := newTestServer(t, nil)

	reg := s.register("a@x.com", "secret1", "Ann")
	assert.Equal(t, "User created successfully", reg.Message)
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "a@x.com", reg.User.Email)
	assert.Equal(t, "Ann", reg.User.Name)

	resp, raw := s.do(http.MethodPost, "/api/auth/login", "", model.LoginRequest{Email: "a@x.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decode[model.AuthResponse](t, raw)
	assert.Equal(t, "Login successful", login.Message)
	assert.Equal(t, reg.User.ID, login.User.ID)

	resp, raw = s.do(http.MethodPost, "/api/auth/login", "", model.LoginRequest{Email: "a@x.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid credentials", decode[map[string]string](t, raw)["error"])

	resp, raw = s.do(http.MethodPost, "/api/auth/register", "", model.CreateUserRequest{Email: "a@x.com", Password: "secret1", Name: "Ann"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "User already exists", decode[map[string]string](t, raw)["error"])

	resp, raw = s.do(http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, reg.User.ID, decode[model.UserResponse](t, raw).ID)
}

func TestRegister_ValidationError(t *testing.T) {
	s := newTestServer(t, nil)

	resp, raw := s.do(http.MethodPost, "/api/auth/register", "", model.CreateUserRequest{Email: "a@x.com", Password: "123", Name: "Ann"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "password", decode[map[string]string](t, raw)["field"])
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/timer-sessions", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDecodeBody_TooLarge(t *testing.T) {
	big := `{"session":{"subject":"` + strings.Repeat("x", maxBodyBytes) + `"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/timer-sessions", strings.NewReader(big))
	rec := httptest.NewRecorder()

	var dst model.TimerSessionRequest
	assert.False(t, decodeBody(rec, req, &dst))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestTimerSessionForFreshUser(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register("a@x.com", "secret1", "Ann").Token

	resp, raw := s.do(http.MethodPost, "/api/timer-sessions", token, model.TimerSessionRequest{
		Session: &model.TimerSession{ID: "s1", Subject: "Algorithms", Duration: 45, Date: time.Now().UTC()},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.True(t, decode[model.WriteResult](t, raw).Success)

	d := s.userData(token)
	require.Len(t, d.TimerSessions, 1)
	assert.Equal(t, "Algorithms", d.TimerSessions[0].Subject)
	assert.Equal(t, 45, d.TimerSessions[0].Duration)
}

func TestUserData_RequiresToken(t *testing.T) {
	s := newTestServer(t, nil)

	resp, raw := s.do(http.MethodGet, "/api/user-data", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Access token required", decode[map[string]string](t, raw)["error"])

	resp, raw = s.do(http.MethodGet, "/api/user-data", "forged", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Invalid or expired token", decode[map[string]string](t, raw)["error"])
}

func TestUserData_EmptyAggregateShape(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register("a@x.com", "secret1", "Ann").Token

	resp, raw := s.do(http.MethodGet, "/api/user-data", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.JSONEq(t, `[]`, string(body["timerSessions"]))
	assert.JSONEq(t, `[]`, string(body["jobs"]))
	assert.JSONEq(t, `{"todo":[],"doing":[],"done":[]}`, string(body["tasks"]))
}

func TestJobLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register("a@x.com", "secret1", "Ann").Token

	resp, _ := s.do(http.MethodPost, "/api/jobs", token, model.JobRequest{Job: &model.Job{ID: "j1", Title: "SWE", Company: "Acme"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(http.MethodPut, "/api/jobs/j1", token, model.UpdateJobRequest{
		UpdatedJob: &model.Job{Title: "SWE", Company: "Acme", Status: model.JobInterview, Notes: "onsite"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	d := s.userData(token)
	require.Len(t, d.Jobs, 1)
	assert.Equal(t, "j1", d.Jobs[0].ID)
	assert.Equal(t, model.JobInterview, d.Jobs[0].Status)
	assert.Equal(t, "onsite", d.Jobs[0].Notes)

	resp, raw := s.do(http.MethodDelete, "/api/jobs/does-not-exist", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[model.WriteResult](t, raw).Success)
	assert.Len(t, s.userData(token).Jobs, 1)

	resp, _ = s.do(http.MethodDelete, "/api/jobs/j1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, s.userData(token).Jobs)

	resp, _ = s.do(http.MethodPost, "/api/jobs", token, model.JobRequest{Job: &model.Job{Title: "SWE"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTasks_DuplicateIDRejected(t *testing.T) {
	s := newTestServer(t, nil)

	resp, _ := s.do(http.MethodPut, "/api/tasks", "", map[string]any{
		"tasks": map[string]any{
			"todo":       []map[string]string{{"id": "t1"}},
			"inProgress": []map[string]string{{"id": "t1"}},
		},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnonymousWritesUseDefaultOwner(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register("a@x.com", "secret1", "Ann").Token

	resp, _ := s.do(http.MethodPut, "/api/dashboard", "", model.DashboardRequest{DashboardData: &model.DashboardData{TotalHours: 2}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Zero(t, s.userData(token).DashboardData.TotalHours, "anonymous writes must not reach a signed-in user")

	resp, _ = s.do(http.MethodPut, "/api/dashboard", "forged", model.DashboardRequest{DashboardData: &model.DashboardData{}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestReset(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register("a@x.com", "secret1", "Ann").Token

	s.do(http.MethodPost, "/api/timer-sessions", token, model.TimerSessionRequest{Session: &model.TimerSession{Subject: "Go", Duration: 30}})
	s.do(http.MethodPost, "/api/jobs", token, model.JobRequest{Job: &model.Job{Title: "SWE", Company: "Acme"}})

	for i := 0; i < 2; i++ {
		resp, raw := s.do(http.MethodDelete, "/api/reset", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, decode[model.WriteResult](t, raw).Success)
	}

	d := s.userData(token)
	assert.Empty(t, d.TimerSessions)
	assert.Empty(t, d.Jobs)
	assert.Zero(t, d.Tasks.Len())
}

func TestFallbackFlag(t *testing.T) {
	s := newTestServer(t, downUserData{})
	token := s.register("a@x.com", "secret1", "Ann").Token

	resp, raw := s.do(http.MethodPost, "/api/timer-sessions", token, model.TimerSessionRequest{
		Session: &model.TimerSession{Subject: "Algorithms", Duration: 45},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"fallback":true}`, string(raw))

	d := s.userData(token)
	require.Len(t, d.TimerSessions, 1)
	assert.Equal(t, "Algorithms", d.TimerSessions[0].Subject)
}

func TestDurableWritesOmitFallback(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryUserDataStore())

	resp, raw := s.do(http.MethodPost, "/api/timer-sessions", "", model.TimerSessionRequest{
		Session: &model.TimerSession{Subject: "Algorithms", Duration: 45},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true}`, string(raw))

	_, raw = s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, "durable", decode[model.HealthResponse](t, raw).Storage)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.register("boss@x.com", "secret1", "Boss")
	ann := s.register("a@x.com", "secret1", "Ann")

	resp, _ := s.do(http.MethodGet, "/api/admin/users", ann.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, raw := s.do(http.MethodGet, "/api/admin/users", admin.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	users := decode[[]map[string]any](t, raw)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.NotContains(t, u, "passwordHash")
		assert.NotContains(t, u, "PasswordHash")
	}

	resp, raw = s.do(http.MethodGet, "/api/admin/stats", admin.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[model.AdminStats](t, raw)
	assert.Equal(t, 2, stats.TotalUsers)

	resp, _ = s.do(http.MethodDelete, "/api/admin/users/"+admin.User.ID, admin.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(http.MethodDelete, "/api/admin/users/ghost", admin.Token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/admin/users/%s", ann.User.ID), admin.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/api/auth/login", "", model.LoginRequest{Email: "a@x.com", Password: "secret1"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
