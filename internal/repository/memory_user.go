package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/patrickmn/go-cache"

	"github.com/launchlog/launchlog-go/internal/model"
)

// MemoryUserStore keeps accounts in process memory, indexed by email and id.
type MemoryUserStore struct {
	mu      sync.Mutex
	byEmail *cache.Cache
	byID    *cache.Cache
}

// NewMemoryUserStore creates an empty MemoryUserStore.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byEmail: cache.New(cache.NoExpiration, 0),
		byID:    cache.New(cache.NoExpiration, 0),
	}
}

func (s *MemoryUserStore) Create(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := *user
	if err := s.byEmail.Add(u.Email, &u, cache.NoExpiration); err != nil {
		return ErrDuplicateEmail
	}
	s.byID.Set(u.ID, &u, cache.NoExpiration)
	return nil
}

func (s *MemoryUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return s.get(s.byEmail, email)
}

func (s *MemoryUserStore) GetByID(_ context.Context, id string) (*model.User, error) {
	return s.get(s.byID, id)
}

func (s *MemoryUserStore) get(index *cache.Cache, key string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := index.Get(key)
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *v.(*model.User)
	return &u, nil
}

// List returns all accounts, newest first.
func (s *MemoryUserStore) List(_ context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]model.User, 0, s.byID.ItemCount())
	for _, item := range s.byID.Items() {
		users = append(users, *item.Object.(*model.User))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

// UpdatePasswordHash replaces the stored hash. Both indexes share the record.
func (s *MemoryUserStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.byID.Get(id)
	if !ok {
		return ErrUserNotFound
	}
	v.(*model.User).PasswordHash = hash
	return nil
}

func (s *MemoryUserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.byID.Get(id)
	if !ok {
		return ErrUserNotFound
	}
	s.byEmail.Delete(v.(*model.User).Email)
	s.byID.Delete(id)
	return nil
}
