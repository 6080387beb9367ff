package user_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sbsk/fieldledger/internal/store"
	"github.com/sbsk/fieldledger/internal/user"
)

func TestCreateAndGet(t *testing.T) {
	svc := user.NewService(store.NewMemory())

	ctx := context.Background()
	created, err := svc.Create(ctx, user.CreateInput{UserID: "U123", Username: "John Doe", InitialBalance: "250.50"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created.Balance.Equal(decimal.RequireFromString("250.50")) {
		t.Fatalf("expected balance 250.50, got %s", created.Balance)
	}

	fetched, err := svc.Get(ctx, "U123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Username != "John Doe" {
		t.Fatalf("expected username John Doe, got %q", fetched.Username)
	}
}

func TestCreateDefaultsBalanceToZero(t *testing.T) {
	svc := user.NewService(store.NewMemory())
	created, err := svc.Create(context.Background(), user.CreateInput{UserID: "U1", Username: "Jane"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created.Balance.IsZero() {
		t.Fatalf("expected zero balance, got %s", created.Balance)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc := user.NewService(store.NewMemory())
	ctx := context.Background()

	if _, err := svc.Create(ctx, user.CreateInput{UserID: "", Username: "Jane"}); err == nil {
		t.Fatal("expected error for missing user id")
	}
	if _, err := svc.Create(ctx, user.CreateInput{UserID: "U1", Username: "Jane", InitialBalance: "abc"}); err == nil {
		t.Fatal("expected error for bad balance")
	}
	if _, err := svc.Create(ctx, user.CreateInput{UserID: "U1", Username: "Jane", InitialBalance: "-5"}); err == nil {
		t.Fatal("expected error for negative balance")
	}
}

func TestCreateDuplicate(t *testing.T) {
	svc := user.NewService(store.NewMemory())
	ctx := context.Background()

	if _, err := svc.Create(ctx, user.CreateInput{UserID: "U1", Username: "Jane"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.Create(ctx, user.CreateInput{UserID: "U1", Username: "Jane"})
	if !errors.Is(err, user.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestGetUnknown(t *testing.T) {
	svc := user.NewService(store.NewMemory())
	_, err := svc.Get(context.Background(), "ghost")
	if !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
