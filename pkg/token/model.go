package token

import (
	"time"

	"github.com/uptrace/bun"
)

// TokenDao is a data access object that maps directly to the 'tokens' table in PostgreSQL.
type TokenDao struct {
	bun.BaseModel   `bun:"table:tokens,alias:t"`
	ID              int64     `bun:"id,pk,autoincrement"`
	Symbol          string    `bun:"symbol,unique,notnull,type:varchar(16)"`
	Name            string    `bun:"name,notnull,type:varchar(128)"`
	ContractAddress string    `bun:"contract_address,notnull,default:'',type:varchar(42)"`
	Decimals        int       `bun:"decimals,notnull"`
	CreatedAt       time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

func toTokenDao(tok *Token) *TokenDao {
	return &TokenDao{
		ID:              tok.ID,
		Symbol:          tok.Symbol,
		Name:            tok.Name,
		ContractAddress: tok.ContractAddress,
		Decimals:        tok.Decimals,
	}
}

func toToken(dao *TokenDao) *Token {
	return &Token{
		ID:              dao.ID,
		Symbol:          dao.Symbol,
		Name:            dao.Name,
		ContractAddress: dao.ContractAddress,
		Decimals:        dao.Decimals,
	}
}
