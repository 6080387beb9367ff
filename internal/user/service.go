package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Service exposes the administrative user operations performed by the
// registration and lookup panels.
type Service struct {
	repo Repository
}

// NewService builds a user service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput captures the data required to register a user.
type CreateInput struct {
	UserID         string
	Username       string
	InitialBalance string
}

// Create registers a new user with an optional starting balance.
func (s *Service) Create(ctx context.Context, input CreateInput) (User, error) {
	id := strings.TrimSpace(input.UserID)
	name := strings.TrimSpace(input.Username)
	if id == "" || name == "" {
		return User{}, fmt.Errorf("user id and username are required")
	}

	balance, err := parseBalance(input.InitialBalance)
	if err != nil {
		return User{}, err
	}

	u := User{ID: id, Username: name, Balance: balance}
	if err := s.repo.Create(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

func parseBalance(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid initial balance %q", raw)
	}
	if balance.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("initial balance cannot be negative")
	}
	return balance, nil
}

// Get looks a user up by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("user id is required")
	}
	return s.repo.Get(ctx, id)
}
