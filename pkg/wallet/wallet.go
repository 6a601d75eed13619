// Package wallet tracks the deposit wallets watched for incoming
// funds and the last on-chain balance observed per wallet and token.
package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrWatermarkNotFound = errors.New("wallet balance watermark not found")
)

// Wallet is a deposit address owned by a user. Funds arriving at the
// address are credited to the owning user's ledger balance.
type Wallet struct {
	ID        int64
	UserID    int64
	Address   string
	CreatedAt time.Time
}

// Watermark is the last on-chain balance observed for a wallet and
// token. The deposit watcher credits the difference between the live
// balance and the watermark, then advances the watermark.
type Watermark struct {
	ID        int64
	Address   string
	TokenID   int64
	Balance   decimal.Decimal
	UpdatedAt time.Time
}

// Store persists tracked wallets and their balance watermarks.
type Store interface {
	CreateWallet(ctx context.Context, wallet *Wallet) error
	GetWalletByAddress(ctx context.Context, address string) (*Wallet, error)
	ListWallets(ctx context.Context) ([]*Wallet, error)

	// GetWatermark returns ErrWatermarkNotFound for a (address, token)
	// pair that has never been observed.
	GetWatermark(ctx context.Context, address string, tokenID int64) (*Watermark, error)
	// SetWatermark upserts the observed balance for (address, token).
	SetWatermark(ctx context.Context, address string, tokenID int64, balance decimal.Decimal) error
}
