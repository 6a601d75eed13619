package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// key identifies one balance row.
type key struct {
	userID  int64
	tokenID int64
}

// entry carries its own lock so operations on disjoint keys never block
// each other. The outer mutex only guards the map itself.
type entry struct {
	mu        sync.Mutex
	amount    decimal.Decimal
	created   bool
	updatedAt time.Time
}

type memoryLedger struct {
	refs Refs

	mu      sync.RWMutex
	entries map[key]*entry
}

// NewMemory creates a concurrency-safe in-memory ledger used by tests
// and tooling. Pass nil refs to skip user/token reference validation.
func NewMemory(refs Refs) Ledger {
	return &memoryLedger{
		refs:    refs,
		entries: make(map[key]*entry),
	}
}

// lookup returns the entry for k, creating a placeholder when create is
// set. A placeholder becomes a committed row only once a credit lands.
func (l *memoryLedger) lookup(k key, create bool) *entry {
	l.mu.RLock()
	e, ok := l.entries[k]
	l.mu.RUnlock()
	if ok || !create {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[k]; ok {
		return e
	}
	e = &entry{amount: decimal.Zero}
	l.entries[k] = e
	return e
}

func (l *memoryLedger) GetBalance(_ context.Context, userID, tokenID int64) (decimal.Decimal, error) {
	e := l.lookup(key{userID, tokenID}, false)
	if e == nil {
		return decimal.Zero, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.created {
		return decimal.Zero, nil
	}
	return e.amount, nil
}

func (l *memoryLedger) AddToBalance(ctx context.Context, userID, tokenID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := validateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	if err := validateRefs(ctx, l.refs, tokenID, userID); err != nil {
		return decimal.Zero, err
	}

	e := l.lookup(key{userID, tokenID}, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.amount = e.amount.Add(amount)
	e.created = true
	e.updatedAt = time.Now()
	return e.amount, nil
}

func (l *memoryLedger) SubtractFromBalance(ctx context.Context, userID, tokenID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := validateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	if err := validateRefs(ctx, l.refs, tokenID, userID); err != nil {
		return decimal.Zero, err
	}

	e := l.lookup(key{userID, tokenID}, false)
	if e == nil {
		return decimal.Zero, ErrNoBalanceRecord
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.created {
		return decimal.Zero, ErrNoBalanceRecord
	}
	if e.amount.LessThan(amount) {
		return decimal.Zero, ErrInsufficientBalance
	}
	e.amount = e.amount.Sub(amount)
	e.updatedAt = time.Now()
	return e.amount, nil
}

func (l *memoryLedger) TransferBalance(ctx context.Context, fromUserID, toUserID, tokenID int64, amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if err := validateRefs(ctx, l.refs, tokenID, fromUserID, toUserID); err != nil {
		return err
	}

	from := l.lookup(key{fromUserID, tokenID}, false)
	if from == nil {
		return ErrNoBalanceRecord
	}
	to := l.lookup(key{toUserID, tokenID}, true)

	// Lock both entries in deterministic key order so concurrent
	// transfers over the same pair cannot deadlock.
	first, second := from, to
	if fromUserID > toUserID {
		first, second = to, from
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	if second != first {
		second.mu.Lock()
		defer second.mu.Unlock()
	}

	if !from.created {
		return ErrNoBalanceRecord
	}
	if from.amount.LessThan(amount) {
		return ErrInsufficientBalance
	}

	now := time.Now()
	from.amount = from.amount.Sub(amount)
	from.updatedAt = now
	to.amount = to.amount.Add(amount)
	to.created = true
	to.updatedAt = now
	return nil
}

func (l *memoryLedger) HasSufficientBalance(ctx context.Context, userID, tokenID int64, amount decimal.Decimal) (bool, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return true, nil
	}
	current, err := l.GetBalance(ctx, userID, tokenID)
	if err != nil {
		return false, err
	}
	return current.GreaterThanOrEqual(amount), nil
}

func (l *memoryLedger) AllBalances(_ context.Context, userID int64) ([]*Balance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var balances []*Balance
	for k, e := range l.entries {
		if k.userID != userID {
			continue
		}
		e.mu.Lock()
		if e.created {
			balances = append(balances, &Balance{
				UserID:    k.userID,
				TokenID:   k.tokenID,
				Amount:    e.amount,
				UpdatedAt: e.updatedAt,
			})
		}
		e.mu.Unlock()
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].TokenID < balances[j].TokenID })
	return balances, nil
}
