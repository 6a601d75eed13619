package txlog

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type EntryDao struct {
	bun.BaseModel `bun:"table:transaction_logs,alias:tl"`

	ID           int64           `bun:"id,pk,autoincrement"`
	UserID       int64           `bun:"user_id,notnull"`
	TokenID      int64           `bun:"token_id,notnull"`
	Type         string          `bun:"type,notnull"`
	Amount       decimal.Decimal `bun:"amount,notnull,type:numeric(38,18)"`
	Status       string          `bun:"status,notnull"`
	TxHash       string          `bun:"tx_hash"`
	FromAddress  string          `bun:"from_address"`
	ToAddress    string          `bun:"to_address"`
	ErrorMessage string          `bun:"error_message"`
	CreatedAt    time.Time       `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}

func toEntryDao(e *Entry) *EntryDao {
	return &EntryDao{
		ID:           e.ID,
		UserID:       e.UserID,
		TokenID:      e.TokenID,
		Type:         string(e.Type),
		Amount:       e.Amount,
		Status:       string(e.Status),
		TxHash:       e.TxHash,
		FromAddress:  e.FromAddress,
		ToAddress:    e.ToAddress,
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func toEntry(dao *EntryDao) *Entry {
	return &Entry{
		ID:           dao.ID,
		UserID:       dao.UserID,
		TokenID:      dao.TokenID,
		Type:         Type(dao.Type),
		Amount:       dao.Amount,
		Status:       Status(dao.Status),
		TxHash:       dao.TxHash,
		FromAddress:  dao.FromAddress,
		ToAddress:    dao.ToAddress,
		ErrorMessage: dao.ErrorMessage,
		CreatedAt:    dao.CreatedAt,
		UpdatedAt:    dao.UpdatedAt,
	}
}
