package repository

import (
	"context"
	"sync"

	"github.com/patrickmn/go-cache"

	"github.com/launchlog/launchlog-go/internal/model"
)

// MemoryUserDataStore is the process-local mirror of the aggregates. Items
// never expire; the store is emptied only by Delete or a restart.
type MemoryUserDataStore struct {
	mu    sync.Mutex
	items *cache.Cache
}

// NewMemoryUserDataStore creates an empty MemoryUserDataStore.
func NewMemoryUserDataStore() *MemoryUserDataStore {
	return &MemoryUserDataStore{items: cache.New(cache.NoExpiration, 0)}
}

// Get returns a copy of the aggregate, or an empty one when none exists.
func (s *MemoryUserDataStore) Get(_ context.Context, userID string) (model.UserData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.items.Get(userID); ok {
		return v.(*model.UserData).Clone(), nil
	}
	return model.NewUserData(userID), nil
}

func (s *MemoryUserDataStore) AppendTimerSession(_ context.Context, userID string, session model.TimerSession) error {
	s.update(userID, func(d *model.UserData) {
		d.TimerSessions = append(d.TimerSessions, session)
	})
	return nil
}

func (s *MemoryUserDataStore) ReplaceTasks(_ context.Context, userID string, tasks model.TaskBoard) error {
	s.update(userID, func(d *model.UserData) {
		d.Tasks = tasks
		d.Normalize()
	})
	return nil
}

func (s *MemoryUserDataStore) AppendJob(_ context.Context, userID string, job model.Job) error {
	s.update(userID, func(d *model.UserData) {
		d.Jobs = append(d.Jobs, job)
	})
	return nil
}

func (s *MemoryUserDataStore) ReplaceJob(_ context.Context, userID, jobID string, job model.Job) error {
	s.update(userID, func(d *model.UserData) {
		d.ReplaceJob(jobID, job)
	})
	return nil
}

func (s *MemoryUserDataStore) RemoveJob(_ context.Context, userID, jobID string) error {
	s.update(userID, func(d *model.UserData) {
		d.RemoveJob(jobID)
	})
	return nil
}

func (s *MemoryUserDataStore) ReplaceDashboard(_ context.Context, userID string, dashboard model.DashboardData) error {
	s.update(userID, func(d *model.UserData) {
		d.DashboardData = dashboard
	})
	return nil
}

func (s *MemoryUserDataStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items.Delete(userID)
	return nil
}

func (s *MemoryUserDataStore) Stats(_ context.Context) (model.DataStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats model.DataStats
	for _, item := range s.items.Items() {
		d := item.Object.(*model.UserData)
		stats.TotalSessions += len(d.TimerSessions)
		stats.TotalTasks += d.Tasks.Len()
	}
	return stats, nil
}

// update applies fn to the stored aggregate, creating it first if absent.
func (s *MemoryUserDataStore) update(userID string, fn func(*model.UserData)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var d *model.UserData
	if v, ok := s.items.Get(userID); ok {
		d = v.(*model.UserData)
	} else {
		fresh := model.NewUserData(userID)
		d = &fresh
		s.items.Set(userID, d, cache.NoExpiration)
	}
	fn(d)
}
