package user

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*User
}

// NewMemoryStore creates an in-memory user store for tests and tooling.
func NewMemoryStore(ids ...int64) Store {
	s := &memoryStore{
		nextID: 1,
		byID:   make(map[int64]*User),
	}
	for _, id := range ids {
		_ = s.Create(context.Background(), &User{ID: id})
	}
	return s
}

func (s *memoryStore) Exists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok, nil
}

func (s *memoryStore) Get(_ context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	usr, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *usr
	return &cp, nil
}

func (s *memoryStore) Create(_ context.Context, usr *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if usr.ID == 0 {
		usr.ID = s.nextID
	}
	if usr.ID >= s.nextID {
		s.nextID = usr.ID + 1
	}
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = time.Now()
	}
	cp := *usr
	s.byID[usr.ID] = &cp
	return nil
}
