// Package token holds the registry of supported tokens: the mapping
// between exchange symbols, on-chain contract addresses and decimal
// precision. Tokens are created by the bootstrap path and read-only to
// the rest of the system.
package token

import (
	"context"
	"errors"
)

// NativeContractAddress is the sentinel contract address used for the
// chain's native coin (no ERC-20 contract).
const NativeContractAddress = ""

// ErrTokenNotFound is returned when a lookup finds no matching token.
var ErrTokenNotFound = errors.New("token not found")

// Token describes a supported asset.
type Token struct {
	ID              int64
	Symbol          string
	Name            string
	ContractAddress string // NativeContractAddress for the native coin
	Decimals        int
}

// IsNative reports whether the token is the chain's native coin.
func (t *Token) IsNative() bool {
	return t.ContractAddress == NativeContractAddress
}

// Store defines token persistence. Symbols are unique;
// contract addresses are unique among non-native tokens.
type Store interface {
	GetByID(ctx context.Context, id int64) (*Token, error)
	GetBySymbol(ctx context.Context, symbol string) (*Token, error)
	GetByContractAddress(ctx context.Context, contractAddress string) (*Token, error)
	List(ctx context.Context) ([]*Token, error)
	Create(ctx context.Context, tok *Token) error
}
