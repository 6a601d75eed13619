package txlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type pgStore struct {
	db *bun.DB
}

func NewStore(db *bun.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) Record(ctx context.Context, entry *Entry) error {
	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	dao := toEntryDao(entry)
	_, err := s.db.NewInsert().Model(dao).Returning("id").Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record transaction log entry: %w", err)
	}
	entry.ID = dao.ID
	return nil
}

func (s *pgStore) UpdateStatus(ctx context.Context, id int64, status Status, txHash, errMsg string) error {
	q := s.db.NewUpdate().
		Model((*EntryDao)(nil)).
		Set("status = ?", string(status)).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id)
	if txHash != "" {
		q = q.Set("tx_hash = ?", txHash)
	}
	if errMsg != "" {
		q = q.Set("error_message = ?", errMsg)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update transaction log status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *pgStore) GetByTxHash(ctx context.Context, txHash string) (*Entry, error) {
	dao := new(EntryDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("tx_hash = ?", txHash).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get transaction log entry: %w", err)
	}
	return toEntry(dao), nil
}

func (s *pgStore) List(ctx context.Context, opts ...QueryOption) ([]*Entry, error) {
	query := applyQueryOptions(opts)

	q := s.db.NewSelect().Model((*EntryDao)(nil))
	if query.UserID != nil {
		q = q.Where("user_id = ?", *query.UserID)
	}
	if query.Type != nil {
		q = q.Where("type = ?", string(*query.Type))
	}
	if query.Status != nil {
		q = q.Where("status = ?", string(*query.Status))
	}
	if query.From != nil {
		q = q.Where("created_at >= ?", *query.From)
	}
	if query.To != nil {
		q = q.Where("created_at < ?", *query.To)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit).Offset(query.Offset)
	}

	var daos []EntryDao
	err := q.Order("created_at DESC", "id DESC").Scan(ctx, &daos)
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction log entries: %w", err)
	}

	entries := make([]*Entry, 0, len(daos))
	for i := range daos {
		entries = append(entries, toEntry(&daos[i]))
	}
	return entries, nil
}
