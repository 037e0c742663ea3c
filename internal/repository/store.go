package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/launchlog/launchlog-go/internal/model"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")

	// ErrBackendUnavailable wraps every failure of the durable store.
	ErrBackendUnavailable = errors.New("durable store unavailable")
)

// UserStore persists accounts.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	Delete(ctx context.Context, id string) error
}

// UserDataStore persists one aggregate per user id.
//
// Get never persists anything: a missing aggregate is returned as
// model.NewUserData. Every write upserts. ReplaceJob and RemoveJob on an
// unknown job id succeed without changing anything.
type UserDataStore interface {
	Get(ctx context.Context, userID string) (model.UserData, error)
	AppendTimerSession(ctx context.Context, userID string, session model.TimerSession) error
	ReplaceTasks(ctx context.Context, userID string, tasks model.TaskBoard) error
	AppendJob(ctx context.Context, userID string, job model.Job) error
	ReplaceJob(ctx context.Context, userID, jobID string, job model.Job) error
	RemoveJob(ctx context.Context, userID, jobID string) error
	ReplaceDashboard(ctx context.Context, userID string, dashboard model.DashboardData) error
	Delete(ctx context.Context, userID string) error
	Stats(ctx context.Context) (model.DataStats, error)
}

// IsDomainError reports whether err is an expected outcome of a store call
// rather than a backend failure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrDuplicateEmail)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, op, err)
}
