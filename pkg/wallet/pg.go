package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type pgStore struct {
	db *bun.DB
}

func NewStore(db *bun.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) CreateWallet(ctx context.Context, wallet *Wallet) error {
	dao := &WalletDao{
		UserID:    wallet.UserID,
		Address:   wallet.Address,
		CreatedAt: time.Now(),
	}
	_, err := s.db.NewInsert().Model(dao).Returning("id").Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	wallet.ID = dao.ID
	wallet.CreatedAt = dao.CreatedAt
	return nil
}

func (s *pgStore) GetWalletByAddress(ctx context.Context, address string) (*Wallet, error) {
	dao := new(WalletDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("address = ?", address).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return toWallet(dao), nil
}

func (s *pgStore) ListWallets(ctx context.Context) ([]*Wallet, error) {
	var daos []WalletDao
	err := s.db.NewSelect().
		Model(&daos).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	wallets := make([]*Wallet, 0, len(daos))
	for i := range daos {
		wallets = append(wallets, toWallet(&daos[i]))
	}
	return wallets, nil
}

func (s *pgStore) GetWatermark(ctx context.Context, address string, tokenID int64) (*Watermark, error) {
	dao := new(WatermarkDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("address = ?", address).
		Where("token_id = ?", tokenID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWatermarkNotFound
		}
		return nil, fmt.Errorf("failed to get watermark: %w", err)
	}
	return toWatermark(dao), nil
}

func (s *pgStore) SetWatermark(ctx context.Context, address string, tokenID int64, balance decimal.Decimal) error {
	dao := &WatermarkDao{
		Address:   address,
		TokenID:   tokenID,
		Balance:   balance,
		UpdatedAt: time.Now(),
	}
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (address, token_id) DO UPDATE").
		Set("balance = EXCLUDED.balance").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set watermark: %w", err)
	}
	return nil
}
