package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the token store
func NewStore(db *bun.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) GetByID(ctx context.Context, id int64) (*Token, error) {
	dao := new(TokenDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token by id: %w", err)
	}
	return toToken(dao), nil
}

func (s *pgStore) GetBySymbol(ctx context.Context, symbol string) (*Token, error) {
	dao := new(TokenDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("symbol = ?", symbol).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token by symbol: %w", err)
	}
	return toToken(dao), nil
}

func (s *pgStore) GetByContractAddress(ctx context.Context, contractAddress string) (*Token, error) {
	dao := new(TokenDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("contract_address = ?", contractAddress).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token by contract address: %w", err)
	}
	return toToken(dao), nil
}

func (s *pgStore) List(ctx context.Context) ([]*Token, error) {
	var daos []TokenDao
	err := s.db.NewSelect().
		Model(&daos).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	tokens := make([]*Token, 0, len(daos))
	for i := range daos {
		tokens = append(tokens, toToken(&daos[i]))
	}
	return tokens, nil
}

func (s *pgStore) Create(ctx context.Context, tok *Token) error {
	dao := toTokenDao(tok)
	_, err := s.db.NewInsert().
		Model(dao).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	tok.ID = dao.ID
	return nil
}
