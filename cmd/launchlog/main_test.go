package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchlog/launchlog-go/internal/client"
	"github.com/launchlog/launchlog-go/internal/crypto"
	"github.com/launchlog/launchlog-go/internal/handler"
	"github.com/launchlog/launchlog-go/internal/metrics"
	"github.com/launchlog/launchlog-go/internal/model"
	"github.com/launchlog/launchlog-go/internal/repository"
	"github.com/launchlog/launchlog-go/internal/service"
)

type testAPI struct {
	*httptest.Server
	data *repository.MemoryUserDataStore
}

// newTestAPI serves the full router on memory stores.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	health := repository.NewHealth(nil, logger, nil)
	memData := repository.NewMemoryUserDataStore()

	users := repository.NewDual[repository.UserStore](nil, repository.NewMemoryUserStore(), health, logger, nil)
	data := repository.NewDual[repository.UserDataStore](nil, memData, health, logger, nil)
	tokens := crypto.NewTokenIssuer("test-secret", time.Hour)

	router := handler.NewRouter(ctx, handler.RouterConfig{
		Auth: service.NewAuthService(users, tokens, nil).WithHashParams(crypto.HashParams{
			Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
		}),
		UserData: service.NewUserDataService(data),
		Admin:    service.NewAdminService(users, data),
		Tokens:   tokens,
		Health:   health,
		Metrics:  metrics.New(),
		Logger:   logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testAPI{Server: srv, data: memData}
}

// run executes one CLI invocation and returns its stdout.
func run(t *testing.T, apiURL, cachePath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--api", apiURL, "--cache", cachePath, "--timeout", "5s"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_SignedInFlow(t *testing.T) {
	api := newTestAPI(t)
	cache := filepath.Join(t.TempDir(), "nested", "cache.db")

	out, err := run(t, api.URL, cache, "register", "--email", "ann@x.com", "--password", "secret1", "--name", "Ann")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered and signed in as Ann")

	out, err = run(t, api.URL, cache, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "ann@x.com")

	out, err = run(t, api.URL, cache, "session", "log", "Go", "90")
	require.NoError(t, err)
	assert.Contains(t, out, "Session saved")

	out, err = run(t, api.URL, cache, "job", "add", "--title", "Backend Dev", "--company", "Acme")
	require.NoError(t, err)
	assert.Contains(t, out, "saved")

	out, err = run(t, api.URL, cache, "task", "add", "Write cover letter", "--column", "done")
	require.NoError(t, err)
	assert.Contains(t, out, "saved")

	out, err = run(t, api.URL, cache, "dashboard")
	require.NoError(t, err)
	assert.NotContains(t, out, "local data")
	assert.Contains(t, out, "Total hours:          1.5")
	assert.Contains(t, out, "Completed tasks:      1")
	assert.Contains(t, out, "Active applications:  1")

	out, err = run(t, api.URL, cache, "job", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend Dev")
	assert.Contains(t, out, "Applied")
}

func TestCLI_JobStatusAndRemove(t *testing.T) {
	api := newTestAPI(t)
	cache := filepath.Join(t.TempDir(), "cache.db")

	_, err := run(t, api.URL, cache, "register", "--email", "bo@x.com", "--password", "secret1", "--name", "Bo")
	require.NoError(t, err)
	out, err := run(t, api.URL, cache, "job", "add", "--title", "SRE", "--company", "Initech")
	require.NoError(t, err)

	// "Job <id> saved"
	fields := strings.Fields(out)
	require.GreaterOrEqual(t, len(fields), 2)
	id := fields[1]

	_, err = run(t, api.URL, cache, "job", "status", id, "Placed")
	require.NoError(t, err)

	out, err = run(t, api.URL, cache, "dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "Active applications:  0")

	_, err = run(t, api.URL, cache, "job", "status", id, "Hired")
	require.Error(t, err)

	_, err = run(t, api.URL, cache, "job", "rm", id)
	require.NoError(t, err)
	out, err = run(t, api.URL, cache, "job", "ls")
	require.NoError(t, err)
	assert.NotContains(t, out, id)
}

func TestCLI_OfflineThenSync(t *testing.T) {
	api := newTestAPI(t)
	cache := filepath.Join(t.TempDir(), "cache.db")

	dead := httptest.NewServer(nil)
	deadURL := dead.URL
	dead.Close()

	out, err := run(t, deadURL, cache, "session", "log", "Go", "25")
	require.NoError(t, err)
	assert.Contains(t, out, "queued")

	out, err = run(t, deadURL, cache, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "unreachable")
	assert.Contains(t, out, "Queued:  1")

	out, err = run(t, deadURL, cache, "sync")
	require.Error(t, err)
	assert.Contains(t, out, "1 change(s) still queued")

	out, err = run(t, api.URL, cache, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "All changes synced")

	d, err := api.data.Get(context.Background(), model.DefaultUserID)
	require.NoError(t, err)
	require.Len(t, d.TimerSessions, 1)
	assert.Equal(t, "Go", d.TimerSessions[0].Subject)
}

func TestCLI_TaskMove(t *testing.T) {
	api := newTestAPI(t)
	cache := filepath.Join(t.TempDir(), "cache.db")

	out, err := run(t, api.URL, cache, "task", "add", "Refactor")
	require.NoError(t, err)
	fields := strings.Fields(out)
	// "(showing local data)" precedes the result for anonymous use.
	require.Contains(t, fields, "Task")
	var id string
	for i, f := range fields {
		if f == "Task" && i+1 < len(fields) {
			id = fields[i+1]
		}
	}
	require.NotEmpty(t, id)

	_, err = run(t, api.URL, cache, "task", "move", id, "doing")
	require.NoError(t, err)

	d, err := api.data.Get(context.Background(), model.DefaultUserID)
	require.NoError(t, err)
	assert.Empty(t, d.Tasks.Todo)
	require.Len(t, d.Tasks.Doing, 1)
	assert.Equal(t, "Refactor", d.Tasks.Doing[0].Title)

	_, err = run(t, api.URL, cache, "task", "move", "missing", "done")
	require.Error(t, err)
}

func TestCLI_ResetNeedsConfirmation(t *testing.T) {
	api := newTestAPI(t)
	cache := filepath.Join(t.TempDir(), "cache.db")

	_, err := run(t, api.URL, cache, "session", "log", "Go", "25")
	require.NoError(t, err)

	_, err = run(t, api.URL, cache, "reset")
	require.Error(t, err)

	out, err := run(t, api.URL, cache, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset saved")

	d, err := api.data.Get(context.Background(), model.DefaultUserID)
	require.NoError(t, err)
	assert.Empty(t, d.TimerSessions)
}

func TestCLI_BadMinutes(t *testing.T) {
	_, err := run(t, "http://127.0.0.1:1", filepath.Join(t.TempDir(), "cache.db"), "session", "log", "Go", "ten")
	require.Error(t, err)
}

func TestPrintOutcome(t *testing.T) {
	var buf bytes.Buffer
	authErr := fmt.Errorf("%w: api: 401 Invalid or expired token", client.ErrAuthRequired)

	err := printOutcome(&buf, "Job j1", client.Outcome{Queued: true}, authErr)
	require.ErrorIs(t, err, client.ErrAuthRequired)
	assert.Contains(t, buf.String(), "Job j1 queued (sign-in required")

	buf.Reset()
	rejected := &client.APIError{StatusCode: 400, Message: "title is required"}
	err = printOutcome(&buf, "Job j2", client.Outcome{}, rejected)
	assert.ErrorIs(t, err, rejected)
	assert.Empty(t, buf.String())

	buf.Reset()
	require.NoError(t, printOutcome(&buf, "Job j3", client.Outcome{Fallback: true}, nil))
	assert.Contains(t, buf.String(), "fallback mode")
}
