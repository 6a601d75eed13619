package txlog

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	nextID  int64
}

// NewMemoryStore creates an in-memory Store for tests and local runs.
func NewMemoryStore() Store {
	return &memoryStore{nextID: 1}
}

func (s *memoryStore) Record(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry.ID = s.nextID
	entry.CreatedAt = now
	entry.UpdatedAt = now
	s.nextID++

	stored := *entry
	s.entries = append(s.entries, &stored)
	return nil
}

func (s *memoryStore) UpdateStatus(_ context.Context, id int64, status Status, txHash, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == id {
			e.Status = status
			if txHash != "" {
				e.TxHash = txHash
			}
			if errMsg != "" {
				e.ErrorMessage = errMsg
			}
			e.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrEntryNotFound
}

func (s *memoryStore) GetByTxHash(_ context.Context, txHash string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.TxHash == txHash {
			found := *e
			return &found, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (s *memoryStore) List(_ context.Context, opts ...QueryOption) ([]*Entry, error) {
	query := applyQueryOptions(opts)

	s.mu.RLock()
	var matched []*Entry
	for _, e := range s.entries {
		if query.matches(e) {
			found := *e
			matched = append(matched, &found)
		}
	}
	s.mu.RUnlock()

	// Newest first, matching the postgres ordering.
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if query.Limit > 0 {
		if query.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[query.Offset:]
		if len(matched) > query.Limit {
			matched = matched[:query.Limit]
		}
	}
	return matched, nil
}
