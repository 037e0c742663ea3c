package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/launchlog/launchlog-go/internal/crypto"
	"github.com/launchlog/launchlog-go/internal/model"
	"github.com/launchlog/launchlog-go/internal/repository"
)

// fastHashParams keeps Argon2id cheap in tests.
var fastHashParams = crypto.HashParams{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

var errConnReset = errors.New("connection reset")

// downUserData fails every call like an unreachable database.
type downUserData struct{ repository.UserDataStore }

func (downUserData) Get(context.Context, string) (model.UserData, error) {
	return model.UserData{}, fmt.Errorf("%w: %v", repository.ErrBackendUnavailable, errConnReset)
}
func (downUserData) AppendTimerSession(context.Context, string, model.TimerSession) error {
	return fmt.Errorf("%w: %v", repository.ErrBackendUnavailable, errConnReset)
}
func (downUserData) ReplaceTasks(context.Context, string, model.TaskBoard) error {
	return fmt.Errorf("%w: %v", repository.ErrBackendUnavailable, errConnReset)
}
func (downUserData) AppendJob(context.Context, string, model.Job) error {
	return fmt.Errorf("%w: %v", repository.ErrBackendUnavailable, errConnReset)
}
func (downUserData) ReplaceJob(context.Context, string, string, model.Job) error {
	return fmt.Errorf("%w: %v", repository.ErrBackendUnavailable, errConnReset)
}
func (downUserData) RemoveJob(context.Context, string, string) error {
	return fmt.Errorf("%w: %v", repository.ErrBackendUnavailable, errConnReset)
}
func (downUserData) ReplaceDashboard(context.Context, string, model.DashboardData) error {
	return fmt.Errorf("%w: %v", repository.ErrBackendUnavailable, errConnReset)
}
func (downUserData) Delete(context.Context, string) error {
	return fmt.Errorf("%w: %v", repository.ErrBackendUnavailable, errConnReset)
}

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

func connectedHealth(t *testing.T) *repository.Health {
	t.Helper()
	h := repository.NewHealth(okPinger{}, nil, nil)
	require.True(t, h.Check(context.Background()))
	return h
}

type fixture struct {
	auth  *AuthService
	data  *UserDataService
	admin *AdminService
	users *repository.Dual[repository.UserStore]
}

// newFixture wires the services on memory stores. durableData, when set,
// is used as a connected durable user-data backend.
func newFixture(t *testing.T, durableData repository.UserDataStore, admins ...string) fixture {
	t.Helper()

	health := repository.NewHealth(nil, nil, nil)
	if durableData != nil {
		health = connectedHealth(t)
	}
	users := repository.NewDual[repository.UserStore](nil, repository.NewMemoryUserStore(), health, nil, nil)
	data := repository.NewDual[repository.UserDataStore](durableData, repository.NewMemoryUserDataStore(), health, nil, nil)

	auth := NewAuthService(users, crypto.NewTokenIssuer("test-secret", time.Hour), admins).WithHashParams(fastHashParams)

	return fixture{
		auth:  auth,
		data:  NewUserDataService(data),
		admin: NewAdminService(users, data),
		users: users,
	}
}
