package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/launchlog/launchlog-go/internal/model"
)

// MySQLUserDataRepository stores each aggregate as one row of JSON columns.
type MySQLUserDataRepository struct {
	db *sql.DB
}

// NewMySQLUserDataRepository creates a new MySQLUserDataRepository.
func NewMySQLUserDataRepository(db *sql.DB) *MySQLUserDataRepository {
	return &MySQLUserDataRepository{db: db}
}

// upsertPrefix inserts a full aggregate; callers append the ON DUPLICATE KEY
// clause that touches only their field. The inserted row is aliased as
// incoming (MySQL 8.0.19+).
const upsertPrefix = `INSERT INTO user_data (user_id, timer_sessions, tasks, jobs, dashboard_data)
	VALUES (?, CAST(? AS JSON), CAST(? AS JSON), CAST(? AS JSON), CAST(? AS JSON)) AS incoming
	ON DUPLICATE KEY UPDATE `

// Get returns the stored aggregate, or an empty one when none exists.
func (r *MySQLUserDataRepository) Get(ctx context.Context, userID string) (model.UserData, error) {
	query := `SELECT timer_sessions, tasks, jobs, dashboard_data FROM user_data WHERE user_id = ?`

	var sessions, tasks, jobs, dashboard []byte
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&sessions, &tasks, &jobs, &dashboard)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewUserData(userID), nil
		}
		return model.UserData{}, unavailable("get user data", err)
	}

	d := model.UserData{UserID: userID}
	for _, col := range []struct {
		raw []byte
		dst any
	}{
		{sessions, &d.TimerSessions},
		{tasks, &d.Tasks},
		{jobs, &d.Jobs},
		{dashboard, &d.DashboardData},
	} {
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return model.UserData{}, unavailable("decode user data", err)
		}
	}
	d.Normalize()

	return d, nil
}

// AppendTimerSession appends a session, creating the aggregate if absent.
func (r *MySQLUserDataRepository) AppendTimerSession(ctx context.Context, userID string, session model.TimerSession) error {
	fresh := model.NewUserData(userID)
	fresh.TimerSessions = append(fresh.TimerSessions, session)

	item, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return r.upsert(ctx, "append timer session", fresh,
		`timer_sessions = JSON_ARRAY_APPEND(timer_sessions, '$', CAST(? AS JSON))`, item)
}

// ReplaceTasks overwrites the task board.
func (r *MySQLUserDataRepository) ReplaceTasks(ctx context.Context, userID string, tasks model.TaskBoard) error {
	fresh := model.NewUserData(userID)
	fresh.Tasks = tasks
	fresh.Normalize()
	return r.upsert(ctx, "replace tasks", fresh, `tasks = incoming.tasks`)
}

// AppendJob appends a job application, creating the aggregate if absent.
func (r *MySQLUserDataRepository) AppendJob(ctx context.Context, userID string, job model.Job) error {
	fresh := model.NewUserData(userID)
	fresh.Jobs = append(fresh.Jobs, job)

	item, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return r.upsert(ctx, "append job", fresh,
		`jobs = JSON_ARRAY_APPEND(jobs, '$', CAST(? AS JSON))`, item)
}

// ReplaceDashboard overwrites the dashboard summary.
func (r *MySQLUserDataRepository) ReplaceDashboard(ctx context.Context, userID string, dashboard model.DashboardData) error {
	fresh := model.NewUserData(userID)
	fresh.DashboardData = dashboard
	return r.upsert(ctx, "replace dashboard", fresh, `dashboard_data = incoming.dashboard_data`)
}

func (r *MySQLUserDataRepository) upsert(ctx context.Context, op string, fresh model.UserData, onDuplicate string, extra ...any) error {
	args := []any{fresh.UserID}
	for _, v := range []any{fresh.TimerSessions, fresh.Tasks, fresh.Jobs, fresh.DashboardData} {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		args = append(args, raw)
	}
	args = append(args, extra...)

	if _, err := r.db.ExecContext(ctx, upsertPrefix+onDuplicate, args...); err != nil {
		return unavailable(op, err)
	}
	return nil
}

// ReplaceJob swaps the job with jobID for job. Unknown ids are a no-op.
func (r *MySQLUserDataRepository) ReplaceJob(ctx context.Context, userID, jobID string, job model.Job) error {
	return r.mutateJobs(ctx, "replace job", userID, func(d *model.UserData) bool {
		return d.ReplaceJob(jobID, job)
	})
}

// RemoveJob drops the job with jobID. Unknown ids are a no-op.
func (r *MySQLUserDataRepository) RemoveJob(ctx context.Context, userID, jobID string) error {
	return r.mutateJobs(ctx, "remove job", userID, func(d *model.UserData) bool {
		return d.RemoveJob(jobID)
	})
}

// mutateJobs applies fn to the jobs of userID under a row lock and writes
// them back only when fn reports a change.
func (r *MySQLUserDataRepository) mutateJobs(ctx context.Context, op, userID string, fn func(*model.UserData) bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(op, err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx, `SELECT jobs FROM user_data WHERE user_id = ? FOR UPDATE`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return unavailable(op, err)
	}

	d := model.UserData{UserID: userID}
	if err := json.Unmarshal(raw, &d.Jobs); err != nil {
		return unavailable(op, err)
	}
	if !fn(&d) {
		return nil
	}
	d.Normalize()

	updated, err := json.Marshal(d.Jobs)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE user_data SET jobs = CAST(? AS JSON) WHERE user_id = ?`, updated, userID); err != nil {
		return unavailable(op, err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable(op, err)
	}
	return nil
}

// Delete removes the aggregate. Deleting a missing aggregate is not an error.
func (r *MySQLUserDataRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_data WHERE user_id = ?`, userID); err != nil {
		return unavailable("delete user data", err)
	}
	return nil
}

// Stats totals sessions and tasks over every aggregate.
func (r *MySQLUserDataRepository) Stats(ctx context.Context) (model.DataStats, error) {
	query := `SELECT
		COALESCE(SUM(JSON_LENGTH(timer_sessions)), 0),
		COALESCE(SUM(
			COALESCE(JSON_LENGTH(tasks, '$.todo'), 0) +
			COALESCE(JSON_LENGTH(tasks, '$.doing'), 0) +
			COALESCE(JSON_LENGTH(tasks, '$.done'), 0)), 0)
		FROM user_data`

	var sessions, tasks int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&sessions, &tasks); err != nil {
		return model.DataStats{}, unavailable("user data stats", err)
	}

	return model.DataStats{TotalSessions: int(sessions), TotalTasks: int(tasks)}, nil
}
