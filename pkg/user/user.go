// Package user holds the minimal user model the exchange core needs.
// Identity and authentication live outside this service; users are
// opaque numeric ids that must exist before the ledger touches them.
package user

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound is returned when a user lookup finds no matching record.
var ErrUserNotFound = errors.New("user not found")

// User represents the domain model for an exchange user.
type User struct {
	ID        int64
	Email     string
	CreatedAt time.Time
}

// Store defines the user persistence operations the core consumes.
type Store interface {
	Exists(ctx context.Context, id int64) (bool, error)
	Get(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, usr *User) error
}
