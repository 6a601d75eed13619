package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// BalanceDao is a data access object that maps directly to the
// 'user_balances' table in PostgreSQL.
type BalanceDao struct {
	bun.BaseModel `bun:"table:user_balances,alias:ub"`
	UserID        int64           `bun:"user_id,pk"`
	TokenID       int64           `bun:"token_id,pk"`
	Amount        decimal.Decimal `bun:"amount,notnull,type:numeric(38,18)"`
	UpdatedAt     time.Time       `bun:"updated_at,nullzero,default:current_timestamp"`
}

func toBalance(dao *BalanceDao) *Balance {
	return &Balance{
		UserID:    dao.UserID,
		TokenID:   dao.TokenID,
		Amount:    dao.Amount,
		UpdatedAt: dao.UpdatedAt,
	}
}
