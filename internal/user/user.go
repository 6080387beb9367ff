package user

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// User is an account holder known to the ledger. Balance never goes negative.
type User struct {
	ID       string
	Username string
	Balance  decimal.Decimal
}

var (
	// ErrExists occurs when creating a user whose id is already taken.
	ErrExists = errors.New("user already exists")

	// ErrNotFound occurs when no user matches the requested id.
	ErrNotFound = errors.New("user not found")
)

// Repository persists users in the authoritative store.
type Repository interface {
	Create(ctx context.Context, u User) error
	Get(ctx context.Context, id string) (User, error)
}
