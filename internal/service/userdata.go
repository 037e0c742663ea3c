package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/launchlog/launchlog-go/internal/model"
	"github.com/launchlog/launchlog-go/internal/repository"
)

// UserDataService reads and mutates the per-user aggregate.
type UserDataService struct {
	data *repository.Dual[repository.UserDataStore]
	now  func() time.Time
}

// NewUserDataService creates a new UserDataService.
func NewUserDataService(data *repository.Dual[repository.UserDataStore]) *UserDataService {
	return &UserDataService{data: data, now: time.Now}
}

// GetUserData returns the aggregate of userID, or the empty one.
func (s *UserDataService) GetUserData(ctx context.Context, userID string) (model.UserData, error) {
	d, _, err := repository.Read(ctx, s.data, "get_user_data", func(st repository.UserDataStore) (model.UserData, error) {
		return st.Get(ctx, userID)
	})
	return d, err
}

// SaveTimerSession appends a completed session. A missing id is generated
// and a zero date is set to now.
func (s *UserDataService) SaveTimerSession(ctx context.Context, userID string, session *model.TimerSession) (model.WriteResult, error) {
	if session == nil {
		return model.WriteResult{}, invalid("session", "is required")
	}
	if strings.TrimSpace(session.Subject) == "" {
		return model.WriteResult{}, invalid("session.subject", "is required")
	}
	if session.Duration < 0 {
		return model.WriteResult{}, invalid("session.duration", "must not be negative")
	}

	sess := *session
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Date.IsZero() {
		sess.Date = s.now().UTC()
	}

	return s.write(ctx, "append_timer_session", func(st repository.UserDataStore) error {
		return st.AppendTimerSession(ctx, userID, sess)
	})
}

// UpdateTasks replaces the whole task board.
func (s *UserDataService) UpdateTasks(ctx context.Context, userID string, tasks *model.TaskBoard) (model.WriteResult, error) {
	if tasks == nil {
		return model.WriteResult{}, invalid("tasks", "is required")
	}
	if id, dup := tasks.DuplicateID(); dup {
		return model.WriteResult{}, invalid("tasks", "task "+id+" appears more than once")
	}

	board := *tasks
	return s.write(ctx, "replace_tasks", func(st repository.UserDataStore) error {
		return st.ReplaceTasks(ctx, userID, board)
	})
}

// SaveJob appends a job application.
func (s *UserDataService) SaveJob(ctx context.Context, userID string, job *model.Job) (model.WriteResult, error) {
	if job == nil {
		return model.WriteResult{}, invalid("job", "is required")
	}
	j, err := s.prepareJob(*job, "job")
	if err != nil {
		return model.WriteResult{}, err
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}

	return s.write(ctx, "append_job", func(st repository.UserDataStore) error {
		return st.AppendJob(ctx, userID, j)
	})
}

// UpdateJob replaces the job with jobID. The replacement keeps jobID as its
// id. An unknown jobID changes nothing and still succeeds.
func (s *UserDataService) UpdateJob(ctx context.Context, userID, jobID string, job *model.Job) (model.WriteResult, error) {
	if job == nil {
		return model.WriteResult{}, invalid("updatedJob", "is required")
	}
	j, err := s.prepareJob(*job, "updatedJob")
	if err != nil {
		return model.WriteResult{}, err
	}
	j.ID = jobID

	return s.write(ctx, "replace_job", func(st repository.UserDataStore) error {
		return st.ReplaceJob(ctx, userID, jobID, j)
	})
}

// DeleteJob removes the job with jobID. An unknown jobID still succeeds.
func (s *UserDataService) DeleteJob(ctx context.Context, userID, jobID string) (model.WriteResult, error) {
	return s.write(ctx, "remove_job", func(st repository.UserDataStore) error {
		return st.RemoveJob(ctx, userID, jobID)
	})
}

// UpdateDashboard stores the client computed summary as sent.
func (s *UserDataService) UpdateDashboard(ctx context.Context, userID string, dashboard *model.DashboardData) (model.WriteResult, error) {
	if dashboard == nil {
		return model.WriteResult{}, invalid("dashboardData", "is required")
	}

	dd := *dashboard
	return s.write(ctx, "replace_dashboard", func(st repository.UserDataStore) error {
		return st.ReplaceDashboard(ctx, userID, dd)
	})
}

// Reset deletes the aggregate from both the durable store and the memory
// mirror. Resetting an empty aggregate succeeds.
func (s *UserDataService) Reset(ctx context.Context, userID string) (model.WriteResult, error) {
	fallback, err := s.data.Purge(ctx, "reset", func(st repository.UserDataStore) error {
		return st.Delete(ctx, userID)
	})
	if err != nil {
		return model.WriteResult{}, err
	}
	return model.WriteResult{Success: true, Fallback: fallback}, nil
}

func (s *UserDataService) write(ctx context.Context, op string, fn func(repository.UserDataStore) error) (model.WriteResult, error) {
	fallback, err := s.data.Write(ctx, op, fn)
	if err != nil {
		return model.WriteResult{}, err
	}
	return model.WriteResult{Success: true, Fallback: fallback}, nil
}

func (s *UserDataService) prepareJob(j model.Job, field string) (model.Job, error) {
	if strings.TrimSpace(j.Title) == "" {
		return j, invalid(field+".title", "is required")
	}
	if strings.TrimSpace(j.Company) == "" {
		return j, invalid(field+".company", "is required")
	}
	if j.Status == "" {
		j.Status = model.JobApplied
	}
	if !j.Status.Valid() {
		return j, invalid(field+".status", "must be one of Applied, Interview, Rejected, Placed")
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = s.now().UTC()
	}
	return j, nil
}
