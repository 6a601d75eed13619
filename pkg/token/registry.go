package token

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry is a read-through cache over the token store. The token set
// changes only through the bootstrap path, so lookups are served from
// memory and Refresh reloads the cache when the set changes.
type Registry struct {
	store Store

	mu         sync.RWMutex
	bySymbol   map[string]*Token
	byContract map[string]*Token
	byID       map[int64]*Token
}

// NewRegistry creates a registry backed by the given store and loads
// the current token set.
func NewRegistry(ctx context.Context, store Store) (*Registry, error) {
	r := &Registry{store: store}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh reloads the cached token set from the store.
func (r *Registry) Refresh(ctx context.Context) error {
	tokens, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh token registry: %w", err)
	}

	bySymbol := make(map[string]*Token, len(tokens))
	byContract := make(map[string]*Token, len(tokens))
	byID := make(map[int64]*Token, len(tokens))
	for _, tok := range tokens {
		bySymbol[strings.ToUpper(tok.Symbol)] = tok
		byID[tok.ID] = tok
		if !tok.IsNative() {
			byContract[strings.ToLower(tok.ContractAddress)] = tok
		}
	}

	r.mu.Lock()
	r.bySymbol = bySymbol
	r.byContract = byContract
	r.byID = byID
	r.mu.Unlock()
	return nil
}

// BySymbol looks up a token by its exchange symbol, case-insensitive.
func (r *Registry) BySymbol(symbol string) (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.bySymbol[strings.ToUpper(symbol)]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return tok, nil
}

// ByContractAddress looks up a token by its on-chain contract address.
// The native sentinel address resolves to the native coin.
func (r *Registry) ByContractAddress(contractAddress string) (*Token, error) {
	if contractAddress == NativeContractAddress {
		return r.Native()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.byContract[strings.ToLower(contractAddress)]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return tok, nil
}

// ByID looks up a token by its internal id.
func (r *Registry) ByID(id int64) (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.byID[id]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return tok, nil
}

// Native returns the token registered for the chain's native coin.
func (r *Registry) Native() (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tok := range r.bySymbol {
		if tok.IsNative() {
			return tok, nil
		}
	}
	return nil, ErrTokenNotFound
}

// Symbols returns the cached symbols, for log lines and validation messages.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	symbols := make([]string, 0, len(r.bySymbol))
	for symbol := range r.bySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
