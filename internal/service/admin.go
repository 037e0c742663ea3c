package service

import (
	"context"
	"errors"

	"github.com/launchlog/launchlog-go/internal/model"
	"github.com/launchlog/launchlog-go/internal/repository"
)

// AdminService backs the admin panel.
type AdminService struct {
	users *repository.Dual[repository.UserStore]
	data  *repository.Dual[repository.UserDataStore]
}

// NewAdminService creates a new AdminService.
func NewAdminService(users *repository.Dual[repository.UserStore], data *repository.Dual[repository.UserDataStore]) *AdminService {
	return &AdminService{users: users, data: data}
}

// ListUsers returns every account, newest first, without password hashes.
func (s *AdminService) ListUsers(ctx context.Context) ([]model.UserResponse, error) {
	users, _, err := repository.Read(ctx, s.users, "list_users", func(st repository.UserStore) ([]model.User, error) {
		return st.List(ctx)
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, u.ToResponse())
	}
	return out, nil
}

// Stats summarises accounts and stored data.
func (s *AdminService) Stats(ctx context.Context) (model.AdminStats, error) {
	users, _, err := repository.Read(ctx, s.users, "list_users", func(st repository.UserStore) ([]model.User, error) {
		return st.List(ctx)
	})
	if err != nil {
		return model.AdminStats{}, err
	}

	totals, _, err := repository.Read(ctx, s.data, "user_data_stats", func(st repository.UserDataStore) (model.DataStats, error) {
		return st.Stats(ctx)
	})
	if err != nil {
		return model.AdminStats{}, err
	}

	return model.AdminStats{
		TotalUsers:    len(users),
		TotalSessions: totals.TotalSessions,
		TotalTasks:    totals.TotalTasks,
		SystemStatus:  s.data.Health().Status(),
	}, nil
}

// DeleteUser removes a non-admin account together with its aggregate.
func (s *AdminService) DeleteUser(ctx context.Context, userID string) (model.WriteResult, error) {
	user, _, err := repository.Read(ctx, s.users, "get_user", func(st repository.UserStore) (*model.User, error) {
		return st.GetByID(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.WriteResult{}, ErrUserNotFound
		}
		return model.WriteResult{}, err
	}
	if user.IsAdmin() {
		return model.WriteResult{}, ErrCannotDeleteAdmin
	}

	userFallback, err := s.users.Purge(ctx, "delete_user", func(st repository.UserStore) error {
		return st.Delete(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.WriteResult{}, ErrUserNotFound
		}
		return model.WriteResult{}, err
	}

	dataFallback, err := s.data.Purge(ctx, "delete_user_data", func(st repository.UserDataStore) error {
		return st.Delete(ctx, userID)
	})
	if err != nil {
		return model.WriteResult{}, err
	}

	return model.WriteResult{Success: true, Fallback: userFallback || dataFallback}, nil
}
