package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type watermarkKey struct {
	address string
	tokenID int64
}

type memoryStore struct {
	mu         sync.RWMutex
	wallets    map[string]*Wallet
	watermarks map[watermarkKey]*Watermark
	nextID     int64
}

// NewMemoryStore creates an in-memory Store for tests and local runs.
func NewMemoryStore() Store {
	return &memoryStore{
		wallets:    make(map[string]*Wallet),
		watermarks: make(map[watermarkKey]*Watermark),
		nextID:     1,
	}
}

func (s *memoryStore) CreateWallet(_ context.Context, wallet *Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[wallet.Address]; ok {
		return fmt.Errorf("wallet address %s already tracked", wallet.Address)
	}

	wallet.ID = s.nextID
	wallet.CreatedAt = time.Now()
	s.nextID++

	stored := *wallet
	s.wallets[wallet.Address] = &stored
	return nil
}

func (s *memoryStore) GetWalletByAddress(_ context.Context, address string) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[address]
	if !ok {
		return nil, ErrWalletNotFound
	}
	found := *w
	return &found, nil
}

func (s *memoryStore) ListWallets(_ context.Context) ([]*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallets := make([]*Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		found := *w
		wallets = append(wallets, &found)
	}
	return wallets, nil
}

func (s *memoryStore) GetWatermark(_ context.Context, address string, tokenID int64) (*Watermark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wm, ok := s.watermarks[watermarkKey{address: address, tokenID: tokenID}]
	if !ok {
		return nil, ErrWatermarkNotFound
	}
	found := *wm
	return &found, nil
}

func (s *memoryStore) SetWatermark(_ context.Context, address string, tokenID int64, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := watermarkKey{address: address, tokenID: tokenID}
	if wm, ok := s.watermarks[k]; ok {
		wm.Balance = balance
		wm.UpdatedAt = time.Now()
		return nil
	}

	s.watermarks[k] = &Watermark{
		ID:        s.nextID,
		Address:   address,
		TokenID:   tokenID,
		Balance:   balance,
		UpdatedAt: time.Now(),
	}
	s.nextID++
	return nil
}
