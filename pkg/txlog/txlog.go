// Package txlog records every balance-affecting operation as an
// append-only audit trail. Entries are written once and only their
// status may change afterwards.
package txlog

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrEntryNotFound = errors.New("transaction log entry not found")

// Type classifies a logged operation.
type Type string

const (
	TypeDeposit     Type = "DEPOSIT"
	TypeWithdrawal  Type = "WITHDRAWAL"
	TypeTransferIn  Type = "TRANSFER_IN"
	TypeTransferOut Type = "TRANSFER_OUT"
)

// Status tracks the lifecycle of a logged operation. Deposits and
// transfers are recorded COMPLETED immediately. Withdrawals start as
// PENDING and are resolved to COMPLETED or FAILED once the external
// submission settles.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

type Entry struct {
	ID           int64
	UserID       int64
	TokenID      int64
	Type         Type
	Amount       decimal.Decimal
	Status       Status
	TxHash       string
	FromAddress  string
	ToAddress    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store persists audit entries.
type Store interface {
	// Record appends an entry and assigns its ID and timestamps.
	Record(ctx context.Context, entry *Entry) error
	// UpdateStatus resolves a pending entry. txHash may be empty when
	// the operation failed before a hash was obtained; errMsg records
	// the failure cause on FAILED entries.
	UpdateStatus(ctx context.Context, id int64, status Status, txHash, errMsg string) error
	GetByTxHash(ctx context.Context, txHash string) (*Entry, error)
	List(ctx context.Context, opts ...QueryOption) ([]*Entry, error)
}

// QueryOptions defines filters for listing entries
type QueryOptions struct {
	UserID *int64
	Type   *Type
	Status *Status
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// QueryOption is a functional option for listing entries
type QueryOption func(*QueryOptions)

// WithUserID restricts results to a single user
func WithUserID(userID int64) QueryOption {
	return func(opts *QueryOptions) {
		opts.UserID = &userID
	}
}

// WithType restricts results to one transaction type
func WithType(t Type) QueryOption {
	return func(opts *QueryOptions) {
		opts.Type = &t
	}
}

// WithStatus restricts results to one status
func WithStatus(s Status) QueryOption {
	return func(opts *QueryOptions) {
		opts.Status = &s
	}
}

// WithTimeRange restricts results to entries created in [from, to)
func WithTimeRange(from, to time.Time) QueryOption {
	return func(opts *QueryOptions) {
		opts.From = &from
		opts.To = &to
	}
}

// WithPage applies limit/offset paging
func WithPage(limit, offset int) QueryOption {
	return func(opts *QueryOptions) {
		opts.Limit = limit
		opts.Offset = offset
	}
}

func applyQueryOptions(opts []QueryOption) *QueryOptions {
	q := &QueryOptions{}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *QueryOptions) matches(e *Entry) bool {
	if q.UserID != nil && e.UserID != *q.UserID {
		return false
	}
	if q.Type != nil && e.Type != *q.Type {
		return false
	}
	if q.Status != nil && e.Status != *q.Status {
		return false
	}
	if q.From != nil && e.CreatedAt.Before(*q.From) {
		return false
	}
	if q.To != nil && !e.CreatedAt.Before(*q.To) {
		return false
	}
	return true
}
