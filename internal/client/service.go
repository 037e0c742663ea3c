package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/launchlog/launchlog-go/internal/model"
)

const (
	settingToken = "token"
	settingUser  = "user"
)

// ErrDuplicateTask is returned by UpdateTasks when a task id appears in
// more than one column.
var ErrDuplicateTask = errors.New("task appears in more than one column")

// Remote is the subset of APIClient used by DataService.
type Remote interface {
	SetToken(token string)
	Register(ctx context.Context, req model.CreateUserRequest) (model.AuthResponse, error)
	Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error)
	GetUserData(ctx context.Context) (model.UserData, error)
	SaveTimerSession(ctx context.Context, session model.TimerSession) (model.WriteResult, error)
	UpdateTasks(ctx context.Context, tasks model.TaskBoard) (model.WriteResult, error)
	SaveJob(ctx context.Context, job model.Job) (model.WriteResult, error)
	UpdateJob(ctx context.Context, jobID string, job model.Job) (model.WriteResult, error)
	DeleteJob(ctx context.Context, jobID string) (model.WriteResult, error)
	UpdateDashboard(ctx context.Context, dashboard model.DashboardData) (model.WriteResult, error)
	Reset(ctx context.Context) (model.WriteResult, error)
}

// Outcome describes where a mutation ended up.
type Outcome struct {
	// Queued is set when the API could not be reached and the mutation
	// waits in the offline queue.
	Queued bool
	// Fallback is set when the server stored the mutation in its memory
	// fallback rather than the durable store.
	Fallback bool
}

// DataService is the single entry point of a front end to its data. The
// API is the source of truth; the local cache holds the last known
// aggregate and an ordered queue of mutations made while offline.
type DataService struct {
	remote Remote
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	user *model.UserResponse
	data model.UserData
}

// NewDataService restores the signed-in user and the cached aggregate.
func NewDataService(ctx context.Context, remote Remote, cache *Cache, logger *slog.Logger) (*DataService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &DataService{remote: remote, cache: cache, logger: logger, now: time.Now}

	token, ok, err := cache.Setting(ctx, settingToken)
	if err != nil {
		return nil, err
	}
	if ok {
		remote.SetToken(token)
	}

	raw, ok, err := cache.Setting(ctx, settingUser)
	if err != nil {
		return nil, err
	}
	if ok {
		var u model.UserResponse
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return nil, fmt.Errorf("decode cached user: %w", err)
		}
		s.user = &u
	}

	if s.data, _, err = cache.LoadSnapshot(ctx, s.userID()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DataService) userID() string {
	if s.user != nil {
		return s.user.ID
	}
	return model.DefaultUserID
}

// CurrentUser returns the signed-in user, if any.
func (s *DataService) CurrentUser() (model.UserResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return model.UserResponse{}, false
	}
	return *s.user, true
}

// Data returns a copy of the current aggregate.
func (s *DataService) Data() model.UserData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

// Register creates an account and signs in as it.
func (s *DataService) Register(ctx context.Context, req model.CreateUserRequest) (model.UserResponse, error) {
	resp, err := s.remote.Register(ctx, req)
	if err != nil {
		return model.UserResponse{}, err
	}
	return resp.User, s.signIn(ctx, resp)
}

// Login signs in.
func (s *DataService) Login(ctx context.Context, req model.LoginRequest) (model.UserResponse, error) {
	resp, err := s.remote.Login(ctx, req)
	if err != nil {
		return model.UserResponse{}, err
	}
	return resp.User, s.signIn(ctx, resp)
}

func (s *DataService) signIn(ctx context.Context, resp model.AuthResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(resp.User)
	if err != nil {
		return err
	}
	if err := s.cache.SetSetting(ctx, settingToken, resp.Token); err != nil {
		return err
	}
	if err := s.cache.SetSetting(ctx, settingUser, string(raw)); err != nil {
		return err
	}

	s.remote.SetToken(resp.Token)
	user := resp.User
	s.user = &user
	s.data, _, err = s.cache.LoadSnapshot(ctx, user.ID)
	return err
}

// Logout forgets the token and switches back to the anonymous owner.
func (s *DataService) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.DeleteSetting(ctx, settingToken); err != nil {
		return err
	}
	if err := s.cache.DeleteSetting(ctx, settingUser); err != nil {
		return err
	}
	s.remote.SetToken("")
	s.user = nil

	var err error
	s.data, _, err = s.cache.LoadSnapshot(ctx, model.DefaultUserID)
	return err
}

// Load flushes the offline queue and fetches the aggregate from the API.
// When the API cannot serve it, or operations are still queued, the cached
// snapshot is used with a locally recomputed dashboard, and fromCache is
// true.
func (s *DataService) Load(ctx context.Context) (d model.UserData, fromCache bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(ctx); err != nil {
		s.logger.WarnContext(ctx, "offline queue not flushed", "error", err)
	}
	pending, err := s.cache.Pending(ctx, s.userID())
	if err != nil {
		return model.UserData{}, false, err
	}

	// The API only serves the aggregate of signed-in users. Its copy lacks
	// the queued operations, so it must not replace the snapshot yet.
	if s.user != nil && len(pending) == 0 {
		remote, err := s.remote.GetUserData(ctx)
		if err == nil {
			remote.UserID = s.user.ID
			s.data = remote
			if err := s.cache.SaveSnapshot(ctx, s.data); err != nil {
				return model.UserData{}, false, err
			}
			return s.data.Clone(), false, nil
		}
		s.logger.WarnContext(ctx, "loading from API failed, using local cache", "error", err)
	}

	if s.data, _, err = s.cache.LoadSnapshot(ctx, s.userID()); err != nil {
		return model.UserData{}, false, err
	}
	s.data.RecomputeDashboard(s.now())
	return s.data.Clone(), true, nil
}

// SaveTimerSession records a completed session. A missing id or date is
// filled in before anything is sent.
func (s *DataService) SaveTimerSession(ctx context.Context, session model.TimerSession) (model.TimerSession, Outcome, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Date.IsZero() {
		session.Date = s.now().UTC()
	}

	out, err := s.mutate(ctx, OpSaveTimerSession, "", session, func(d *model.UserData) {
		d.TimerSessions = append(d.TimerSessions, session)
	})
	return session, out, err
}

// UpdateTasks replaces the task board.
func (s *DataService) UpdateTasks(ctx context.Context, tasks model.TaskBoard) (Outcome, error) {
	if id, dup := tasks.DuplicateID(); dup {
		return Outcome{}, fmt.Errorf("%w: %s", ErrDuplicateTask, id)
	}
	return s.mutate(ctx, OpUpdateTasks, "", tasks, func(d *model.UserData) {
		d.Tasks = tasks
	})
}

// SaveJob records a job application, filling in id, status and createdAt.
func (s *DataService) SaveJob(ctx context.Context, job model.Job) (model.Job, Outcome, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = model.JobApplied
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now().UTC()
	}

	out, err := s.mutate(ctx, OpSaveJob, "", job, func(d *model.UserData) {
		d.Jobs = append(d.Jobs, job)
	})
	return job, out, err
}

// UpdateJob replaces the job with jobID.
func (s *DataService) UpdateJob(ctx context.Context, jobID string, job model.Job) (Outcome, error) {
	job.ID = jobID
	return s.mutate(ctx, OpUpdateJob, jobID, job, func(d *model.UserData) {
		d.ReplaceJob(jobID, job)
	})
}

// DeleteJob removes the job with jobID.
func (s *DataService) DeleteJob(ctx context.Context, jobID string) (Outcome, error) {
	return s.mutate(ctx, OpDeleteJob, jobID, nil, func(d *model.UserData) {
		d.RemoveJob(jobID)
	})
}

// UpdateDashboard stores dashboard as given and sends it. Mutations made
// through DataService already keep the dashboard current.
func (s *DataService) UpdateDashboard(ctx context.Context, dashboard model.DashboardData) (Outcome, error) {
	raw, err := json.Marshal(dashboard)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode %s: %w", OpUpdateDashboard, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	op := Op{UserID: s.userID(), Kind: OpUpdateDashboard, Payload: raw}
	out, err := s.sendOrQueueLocked(ctx, op)
	if err != nil && !out.Queued {
		return Outcome{}, err
	}

	s.data.DashboardData = dashboard
	if serr := s.cache.SaveSnapshot(ctx, s.data); serr != nil {
		return out, serr
	}
	return out, err
}

// Flush replays the offline queue in order and returns how many operations
// are still queued. The error wraps ErrAuthRequired when the API refused
// the stored token.
func (s *DataService) Flush(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.flushLocked(ctx)
	ops, perr := s.cache.Pending(ctx, s.userID())
	if perr != nil {
		return 0, perr
	}
	return len(ops), err
}

// Reset asks the API to delete the aggregate, then clears the local
// snapshot and queue whatever the API answered.
func (s *DataService) Reset(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.userID()
	res, apiErr := s.remote.Reset(ctx)

	if err := s.cache.ClearQueue(ctx, id); err != nil {
		return Outcome{}, err
	}
	if err := s.cache.DeleteSnapshot(ctx, id); err != nil {
		return Outcome{}, err
	}
	s.data = model.NewUserData(id)

	if apiErr != nil {
		return Outcome{}, fmt.Errorf("reset on server: %w", apiErr)
	}
	return Outcome{Fallback: res.Fallback}, nil
}

// mutate sends one mutation and applies it to the local aggregate. A
// rejected mutation is not applied. A mutation queued because the token
// was refused is applied and ErrAuthRequired is returned with the outcome.
// After a sent mutation the recomputed dashboard is pushed too.
func (s *DataService) mutate(ctx context.Context, kind OpKind, jobID string, payload any, apply func(*model.UserData)) (Outcome, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode %s: %w", kind, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	op := Op{UserID: s.userID(), Kind: kind, JobID: jobID, Payload: raw}
	out, err := s.sendOrQueueLocked(ctx, op)
	if err != nil && !out.Queued {
		return Outcome{}, err
	}

	apply(&s.data)
	s.data.Normalize()
	s.data.RecomputeDashboard(s.now())
	if serr := s.cache.SaveSnapshot(ctx, s.data); serr != nil {
		return out, serr
	}

	if !out.Queued {
		s.pushDashboardLocked(ctx)
	}
	return out, err
}

// sendOrQueueLocked sends op, or queues it when earlier operations are
// still waiting, the API is unreachable or the token was refused. A
// refused token is reported as ErrAuthRequired next to a queued outcome.
// Any other rejection is returned as is.
func (s *DataService) sendOrQueueLocked(ctx context.Context, op Op) (Outcome, error) {
	var (
		out     Outcome
		authErr error
	)
	if err := s.flushLocked(ctx); err != nil {
		out.Queued = true
		if errors.Is(err, ErrAuthRequired) {
			authErr = err
		}
	} else {
		res, err := s.send(ctx, op)
		switch {
		case err == nil:
			out.Fallback = res.Fallback
		case IsRetryable(err):
			s.logger.WarnContext(ctx, "API unreachable, queueing mutation", "kind", op.Kind, "error", err)
			out.Queued = true
		case IsAuthFailure(err):
			s.logger.WarnContext(ctx, "token refused, queueing mutation", "kind", op.Kind, "error", err)
			out.Queued = true
			authErr = fmt.Errorf("%w: %w", ErrAuthRequired, err)
		default:
			return Outcome{}, err
		}
	}

	if out.Queued {
		if err := s.cache.Enqueue(ctx, &op); err != nil {
			return Outcome{}, err
		}
	}
	return out, authErr
}

func (s *DataService) pushDashboardLocked(ctx context.Context) {
	if _, err := s.remote.UpdateDashboard(ctx, s.data.DashboardData); err != nil {
		s.logger.WarnContext(ctx, "dashboard push failed", "error", err)
		if !IsRetryable(err) && !IsAuthFailure(err) {
			return
		}
		raw, _ := json.Marshal(s.data.DashboardData)
		op := Op{UserID: s.userID(), Kind: OpUpdateDashboard, Payload: raw}
		if err := s.cache.Enqueue(ctx, &op); err != nil {
			s.logger.ErrorContext(ctx, "queueing dashboard push failed", "error", err)
		}
	}
}

// flushLocked sends queued operations in order. Only an operation that can
// never be sent is dropped: one the API rejects for its payload (400, 404,
// 413, 422) or one that cannot be decoded locally. Any other failure stops
// the flush and leaves that operation and the rest queued; a refused token
// is returned wrapped in ErrAuthRequired.
func (s *DataService) flushLocked(ctx context.Context) error {
	ops, err := s.cache.Pending(ctx, s.userID())
	if err != nil {
		return err
	}

	for _, op := range ops {
		if _, err := s.send(ctx, op); err != nil {
			switch {
			case errors.Is(err, errInvalidOp), isPayloadRejection(err):
				s.logger.WarnContext(ctx, "dropping queued mutation that cannot be sent",
					"kind", op.Kind, "queued_at", op.CreatedAt, "error", err)
			case IsAuthFailure(err):
				return fmt.Errorf("%w: %w", ErrAuthRequired, err)
			default:
				return err
			}
		}
		if err := s.cache.Dequeue(ctx, op.ID); err != nil {
			return err
		}
	}
	return nil
}

// errInvalidOp marks a queued operation whose payload or kind cannot be
// decoded.
var errInvalidOp = errors.New("invalid queued operation")

func decodeOp(op Op, v any) error {
	if err := json.Unmarshal(op.Payload, v); err != nil {
		return fmt.Errorf("%w: decode %s: %w", errInvalidOp, op.Kind, err)
	}
	return nil
}

func (s *DataService) send(ctx context.Context, op Op) (model.WriteResult, error) {
	switch op.Kind {
	case OpSaveTimerSession:
		var v model.TimerSession
		if err := decodeOp(op, &v); err != nil {
			return model.WriteResult{}, err
		}
		return s.remote.SaveTimerSession(ctx, v)
	case OpUpdateTasks:
		var v model.TaskBoard
		if err := decodeOp(op, &v); err != nil {
			return model.WriteResult{}, err
		}
		return s.remote.UpdateTasks(ctx, v)
	case OpSaveJob:
		var v model.Job
		if err := decodeOp(op, &v); err != nil {
			return model.WriteResult{}, err
		}
		return s.remote.SaveJob(ctx, v)
	case OpUpdateJob:
		var v model.Job
		if err := decodeOp(op, &v); err != nil {
			return model.WriteResult{}, err
		}
		return s.remote.UpdateJob(ctx, op.JobID, v)
	case OpDeleteJob:
		return s.remote.DeleteJob(ctx, op.JobID)
	case OpUpdateDashboard:
		var v model.DashboardData
		if err := decodeOp(op, &v); err != nil {
			return model.WriteResult{}, err
		}
		return s.remote.UpdateDashboard(ctx, v)
	}
	return model.WriteResult{}, fmt.Errorf("%w: unknown kind %q", errInvalidOp, op.Kind)
}
