package wallet

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type WalletDao struct {
	bun.BaseModel `bun:"table:wallets,alias:w"`

	ID        int64     `bun:"id,pk,autoincrement"`
	UserID    int64     `bun:"user_id,notnull"`
	Address   string    `bun:"address,notnull,unique"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type WatermarkDao struct {
	bun.BaseModel `bun:"table:wallet_balances,alias:wb"`

	ID        int64           `bun:"id,pk,autoincrement"`
	Address   string          `bun:"address,notnull"`
	TokenID   int64           `bun:"token_id,notnull"`
	Balance   decimal.Decimal `bun:"balance,notnull,type:numeric(38,18)"`
	UpdatedAt time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}

func toWallet(dao *WalletDao) *Wallet {
	return &Wallet{
		ID:        dao.ID,
		UserID:    dao.UserID,
		Address:   dao.Address,
		CreatedAt: dao.CreatedAt,
	}
}

func toWatermark(dao *WatermarkDao) *Watermark {
	return &Watermark{
		ID:        dao.ID,
		Address:   dao.Address,
		TokenID:   dao.TokenID,
		Balance:   dao.Balance,
		UpdatedAt: dao.UpdatedAt,
	}
}
