package token

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*Token
}

// NewMemoryStore creates an in-memory token store for tests and tooling.
func NewMemoryStore(tokens ...*Token) Store {
	s := &memoryStore{
		nextID: 1,
		byID:   make(map[int64]*Token),
	}
	for _, tok := range tokens {
		_ = s.Create(context.Background(), tok)
	}
	return s
}

func (s *memoryStore) GetByID(_ context.Context, id int64) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.byID[id]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *tok
	return &cp, nil
}

func (s *memoryStore) GetBySymbol(_ context.Context, symbol string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tok := range s.byID {
		if tok.Symbol == symbol {
			cp := *tok
			return &cp, nil
		}
	}
	return nil, ErrTokenNotFound
}

func (s *memoryStore) GetByContractAddress(_ context.Context, contractAddress string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tok := range s.byID {
		if tok.ContractAddress == contractAddress {
			cp := *tok
			return &cp, nil
		}
	}
	return nil, ErrTokenNotFound
}

func (s *memoryStore) List(_ context.Context) ([]*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens := make([]*Token, 0, len(s.byID))
	for _, tok := range s.byID {
		cp := *tok
		tokens = append(tokens, &cp)
	}
	return tokens, nil
}

func (s *memoryStore) Create(_ context.Context, tok *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.ID == 0 {
		tok.ID = s.nextID
	}
	if tok.ID >= s.nextID {
		s.nextID = tok.ID + 1
	}
	cp := *tok
	s.byID[tok.ID] = &cp
	return nil
}
