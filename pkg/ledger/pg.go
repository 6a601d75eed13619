package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type pgLedger struct {
	db   *bun.DB
	refs Refs
}

// NewStore creates the postgres implementation of the ledger. Every
// mutation runs in its own transaction and takes a row lock on the
// affected balance row(s), so same-key operations serialize while
// disjoint keys proceed in parallel.
func NewStore(db *bun.DB, refs Refs) Ledger {
	return &pgLedger{db: db, refs: refs}
}

// lockRow selects a balance row FOR UPDATE inside tx. Returns nil when
// no row exists yet.
func lockRow(ctx context.Context, tx bun.Tx, userID, tokenID int64) (*BalanceDao, error) {
	dao := new(BalanceDao)
	err := tx.NewSelect().
		Model(dao).
		Where("user_id = ?", userID).
		Where("token_id = ?", tokenID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock balance row: %w", err)
	}
	return dao, nil
}

func saveRow(ctx context.Context, tx bun.Tx, dao *BalanceDao, isNew bool) error {
	dao.UpdatedAt = time.Now()
	if isNew {
		_, err := tx.NewInsert().Model(dao).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert balance row: %w", err)
		}
		return nil
	}
	_, err := tx.NewUpdate().
		Model(dao).
		Column("amount", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update balance row: %w", err)
	}
	return nil
}

func (l *pgLedger) GetBalance(ctx context.Context, userID, tokenID int64) (decimal.Decimal, error) {
	dao := new(BalanceDao)
	err := l.db.NewSelect().
		Model(dao).
		Where("user_id = ?", userID).
		Where("token_id = ?", tokenID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return dao.Amount, nil
}

func (l *pgLedger) AddToBalance(ctx context.Context, userID, tokenID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := validateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	if err := validateRefs(ctx, l.refs, tokenID, userID); err != nil {
		return decimal.Zero, err
	}

	var newAmount decimal.Decimal
	err := l.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		dao, err := lockRow(ctx, tx, userID, tokenID)
		if err != nil {
			return err
		}
		isNew := dao == nil
		if isNew {
			dao = &BalanceDao{UserID: userID, TokenID: tokenID, Amount: decimal.Zero}
		}
		dao.Amount = dao.Amount.Add(amount)
		newAmount = dao.Amount
		return saveRow(ctx, tx, dao, isNew)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return newAmount, nil
}

func (l *pgLedger) SubtractFromBalance(ctx context.Context, userID, tokenID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := validateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	if err := validateRefs(ctx, l.refs, tokenID, userID); err != nil {
		return decimal.Zero, err
	}

	var newAmount decimal.Decimal
	err := l.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		dao, err := lockRow(ctx, tx, userID, tokenID)
		if err != nil {
			return err
		}
		if dao == nil {
			return ErrNoBalanceRecord
		}
		if dao.Amount.LessThan(amount) {
			return ErrInsufficientBalance
		}
		dao.Amount = dao.Amount.Sub(amount)
		newAmount = dao.Amount
		return saveRow(ctx, tx, dao, false)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return newAmount, nil
}

func (l *pgLedger) TransferBalance(ctx context.Context, fromUserID, toUserID, tokenID int64, amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if err := validateRefs(ctx, l.refs, tokenID, fromUserID, toUserID); err != nil {
		return err
	}

	return l.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		// Lock rows in user-id order so concurrent opposing transfers
		// cannot deadlock.
		firstID, secondID := fromUserID, toUserID
		if firstID > secondID {
			firstID, secondID = secondID, firstID
		}

		rows := make(map[int64]*BalanceDao, 2)
		for _, userID := range []int64{firstID, secondID} {
			dao, err := lockRow(ctx, tx, userID, tokenID)
			if err != nil {
				return err
			}
			rows[userID] = dao
		}

		from := rows[fromUserID]
		if from == nil {
			return ErrNoBalanceRecord
		}
		if from.Amount.LessThan(amount) {
			return ErrInsufficientBalance
		}

		to := rows[toUserID]
		toIsNew := to == nil
		if toIsNew {
			to = &BalanceDao{UserID: toUserID, TokenID: tokenID, Amount: decimal.Zero}
		}

		from.Amount = from.Amount.Sub(amount)
		to.Amount = to.Amount.Add(amount)

		if err := saveRow(ctx, tx, from, false); err != nil {
			return err
		}
		return saveRow(ctx, tx, to, toIsNew)
	})
}

func (l *pgLedger) HasSufficientBalance(ctx context.Context, userID, tokenID int64, amount decimal.Decimal) (bool, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return true, nil
	}
	current, err := l.GetBalance(ctx, userID, tokenID)
	if err != nil {
		return false, err
	}
	return current.GreaterThanOrEqual(amount), nil
}

func (l *pgLedger) AllBalances(ctx context.Context, userID int64) ([]*Balance, error) {
	var daos []BalanceDao
	err := l.db.NewSelect().
		Model(&daos).
		Where("user_id = ?", userID).
		Order("token_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}

	balances := make([]*Balance, 0, len(daos))
	for i := range daos {
		balances = append(balances, toBalance(&daos[i]))
	}
	return balances, nil
}
