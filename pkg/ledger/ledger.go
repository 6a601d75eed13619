// Package ledger is the authoritative store of internal per-user,
// per-token balances. All mutations on the same (user, token) key
// serialize; mutations on disjoint keys do not block each other; a
// committed read never observes a balance mid-update.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned when a mutation amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInsufficientBalance is returned when a debit exceeds the stored amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrNoBalanceRecord is returned when a debit targets a key with no row.
	ErrNoBalanceRecord = errors.New("no balance record")
	// ErrUnknownUser is returned when the referenced user does not exist.
	ErrUnknownUser = errors.New("unknown user")
	// ErrUnknownToken is returned when the referenced token does not exist.
	ErrUnknownToken = errors.New("unknown token")
)

// Balance is one committed (user, token) ledger row.
type Balance struct {
	UserID    int64
	TokenID   int64
	Amount    decimal.Decimal
	UpdatedAt time.Time
}

// Ledger defines the atomic balance operations shared by the deposit,
// withdrawal and transfer paths.
type Ledger interface {
	// GetBalance returns the stored amount, or zero when no row exists.
	GetBalance(ctx context.Context, userID, tokenID int64) (decimal.Decimal, error)
	// AddToBalance credits the key, creating the row on first credit,
	// and returns the new amount.
	AddToBalance(ctx context.Context, userID, tokenID int64, amount decimal.Decimal) (decimal.Decimal, error)
	// SubtractFromBalance debits the key and returns the new amount.
	// The row must exist and hold at least the requested amount.
	SubtractFromBalance(ctx context.Context, userID, tokenID int64, amount decimal.Decimal) (decimal.Decimal, error)
	// TransferBalance atomically moves amount between two users for the
	// same token. No observer ever sees the debit without the credit.
	TransferBalance(ctx context.Context, fromUserID, toUserID, tokenID int64, amount decimal.Decimal) error
	// HasSufficientBalance reports whether the stored amount covers the
	// requested one. Non-positive amounts are trivially covered.
	HasSufficientBalance(ctx context.Context, userID, tokenID int64, amount decimal.Decimal) (bool, error)
	// AllBalances lists every balance row the user holds.
	AllBalances(ctx context.Context, userID int64) ([]*Balance, error)
}

// Refs validates user and token references before a mutation creates rows.
// Backed by the user and token stores in production; tests substitute fakes.
type Refs interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
	TokenExists(ctx context.Context, tokenID int64) (bool, error)
}

// UserExistser is the slice of the user store the ledger needs.
type UserExistser interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

type storeRefs struct {
	users       UserExistser
	lookupToken func(ctx context.Context, id int64) (bool, error)
}

// NewRefs builds a Refs from the user store and a token lookup function.
// lookupToken reports whether the token exists; a non-nil error means
// the lookup itself failed and is propagated, not treated as absence.
func NewRefs(users UserExistser, lookupToken func(ctx context.Context, id int64) (bool, error)) Refs {
	return &storeRefs{users: users, lookupToken: lookupToken}
}

func (r *storeRefs) UserExists(ctx context.Context, userID int64) (bool, error) {
	return r.users.Exists(ctx, userID)
}

func (r *storeRefs) TokenExists(ctx context.Context, tokenID int64) (bool, error) {
	return r.lookupToken(ctx, tokenID)
}

func validateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	return nil
}

func validateRefs(ctx context.Context, refs Refs, tokenID int64, userIDs ...int64) error {
	if refs == nil {
		return nil
	}
	for _, userID := range userIDs {
		ok, err := refs.UserExists(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnknownUser
		}
	}
	ok, err := refs.TokenExists(ctx, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownToken
	}
	return nil
}
