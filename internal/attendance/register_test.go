package attendance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sbsk/fieldledger/internal/attendance"
	"github.com/sbsk/fieldledger/internal/logging"
	"github.com/sbsk/fieldledger/internal/store"
)

func TestRecordCreatesUserAndCredits(t *testing.T) {
	mem := store.NewMemory()
	register := attendance.NewRegister(mem, decimal.RequireFromString("100"), logging.Discard())

	ts, _ := time.Parse("2006-01-02 15:04:05", "2026-08-30 09:15:00")
	balance, err := register.Record(context.Background(), "1A", "U123", "John Doe", ts)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected balance 100, got %s", balance)
	}
}

func TestRecordCreditsExistingUser(t *testing.T) {
	mem := store.NewMemory()
	mem.SeedUser("U123", "John Doe", decimal.RequireFromString("40"))
	register := attendance.NewRegister(mem, decimal.RequireFromString("100"), logging.Discard())

	ts, _ := time.Parse("2006-01-02 15:04:05", "2026-08-30 09:15:00")
	balance, err := register.Record(context.Background(), "1A", "U123", "John Doe", ts)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("140")) {
		t.Fatalf("expected balance 140, got %s", balance)
	}
}

func TestRecordSameDayIsDuplicate(t *testing.T) {
	mem := store.NewMemory()
	register := attendance.NewRegister(mem, decimal.RequireFromString("100"), logging.Discard())

	ctx := context.Background()
	morning, _ := time.Parse("2006-01-02 15:04:05", "2026-08-30 09:15:00")
	evening, _ := time.Parse("2006-01-02 15:04:05", "2026-08-30 17:40:00")

	if _, err := register.Record(ctx, "1A", "U123", "John Doe", morning); err != nil {
		t.Fatalf("first record: %v", err)
	}
	_, err := register.Record(ctx, "1A", "U123", "John Doe", evening)
	if !errors.Is(err, attendance.ErrDuplicateDay) {
		t.Fatalf("expected ErrDuplicateDay, got %v", err)
	}
	if !mem.Balance("U123").Equal(decimal.RequireFromString("100")) {
		t.Fatalf("duplicate credited anyway: %s", mem.Balance("U123"))
	}
}

func TestRecordNextDayIsAccepted(t *testing.T) {
	mem := store.NewMemory()
	register := attendance.NewRegister(mem, decimal.RequireFromString("100"), logging.Discard())

	ctx := context.Background()
	day1, _ := time.Parse("2006-01-02 15:04:05", "2026-08-30 09:15:00")
	day2, _ := time.Parse("2006-01-02 15:04:05", "2026-08-31 09:10:00")

	if _, err := register.Record(ctx, "1A", "U123", "John Doe", day1); err != nil {
		t.Fatalf("day one: %v", err)
	}
	balance, err := register.Record(ctx, "1A", "U123", "John Doe", day2)
	if err != nil {
		t.Fatalf("day two: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("200")) {
		t.Fatalf("expected balance 200, got %s", balance)
	}
}

func TestRecordRequiresUserID(t *testing.T) {
	register := attendance.NewRegister(store.NewMemory(), decimal.RequireFromString("100"), logging.Discard())
	if _, err := register.Record(context.Background(), "1A", "", "John Doe", time.Now()); err == nil {
		t.Fatal("expected error for empty user id")
	}
}
