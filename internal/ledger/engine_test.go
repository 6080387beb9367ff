package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sbsk/fieldledger/internal/ledger"
	"github.com/sbsk/fieldledger/internal/logging"
	"github.com/sbsk/fieldledger/internal/store"
)

type stubScanner struct {
	hit bool
	err error
}

func (s stubScanner) HasPaymentRow(string, string, decimal.Decimal) (bool, error) {
	return s.hit, s.err
}

func newEngine(mem *store.Memory, scanner ledger.RequestScanner, window time.Duration) *ledger.Engine {
	logger := logging.Discard()
	guard := ledger.NewGuard(scanner, mem, window, logger)
	return ledger.NewEngine(mem, guard, logger)
}

func mustRequest(t *testing.T, userID, amount string, ts time.Time) ledger.Request {
	t.Helper()
	req, err := ledger.NewRequest("1A", userID, "John Doe", decimal.RequireFromString(amount), ts)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return req
}

func TestProcessDebitsAndIssuesReceipt(t *testing.T) {
	mem := store.NewMemory()
	mem.SeedUser("U123", "John Doe", decimal.RequireFromString("200"))
	engine := newEngine(mem, stubScanner{}, time.Minute)

	ctx := context.Background()
	receipt, err := engine.Process(ctx, mustRequest(t, "U123", "50", time.Now()))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if receipt.ID == "" {
		t.Fatal("expected a receipt id")
	}
	if !receipt.PreviousBalance.Equal(decimal.RequireFromString("200")) {
		t.Fatalf("expected previous balance 200, got %s", receipt.PreviousBalance)
	}
	if !receipt.NewBalance.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("expected new balance 150, got %s", receipt.NewBalance)
	}
	if !mem.Balance("U123").Equal(decimal.RequireFromString("150")) {
		t.Fatalf("expected stored balance 150, got %s", mem.Balance("U123"))
	}
}

func TestProcessRejectsReplayWithinWindow(t *testing.T) {
	mem := store.NewMemory()
	mem.SeedUser("U123", "John Doe", decimal.RequireFromString("200"))
	engine := newEngine(mem, stubScanner{}, time.Minute)

	ctx := context.Background()
	if _, err := engine.Process(ctx, mustRequest(t, "U123", "50", time.Now())); err != nil {
		t.Fatalf("first process: %v", err)
	}

	_, err := engine.Process(ctx, mustRequest(t, "U123", "50", time.Now().Add(5*time.Second)))
	if !errors.Is(err, ledger.ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}
	if !mem.Balance("U123").Equal(decimal.RequireFromString("150")) {
		t.Fatalf("balance changed on duplicate: %s", mem.Balance("U123"))
	}
	if got := mem.ReceiptCount("U123"); got != 1 {
		t.Fatalf("expected 1 receipt, got %d", got)
	}
}

func TestProcessRejectsExactReplayOutsideWindow(t *testing.T) {
	mem := store.NewMemory()
	mem.SeedUser("U123", "John Doe", decimal.RequireFromString("200"))
	engine := newEngine(mem, stubScanner{}, 0)

	ctx := context.Background()
	ts := time.Now().Add(-2 * time.Minute)
	if _, err := engine.Process(ctx, mustRequest(t, "U123", "50", ts)); err != nil {
		t.Fatalf("first process: %v", err)
	}

	// With the window disabled only the unique index can catch it.
	_, err := engine.Process(ctx, mustRequest(t, "U123", "50", ts))
	if !errors.Is(err, ledger.ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}
}

func TestProcessAuditScanHit(t *testing.T) {
	mem := store.NewMemory()
	mem.SeedUser("U123", "John Doe", decimal.RequireFromString("200"))
	engine := newEngine(mem, stubScanner{hit: true}, time.Minute)

	_, err := engine.Process(context.Background(), mustRequest(t, "U123", "50", time.Now()))
	if !errors.Is(err, ledger.ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}
	if got := mem.RequestCount("U123"); got != 0 {
		t.Fatalf("expected no request entries, got %d", got)
	}
}

func TestProcessScanFailureIsNotADuplicate(t *testing.T) {
	mem := store.NewMemory()
	mem.SeedUser("U123", "John Doe", decimal.RequireFromString("200"))
	engine := newEngine(mem, stubScanner{err: errors.New("disk gone")}, time.Minute)

	if _, err := engine.Process(context.Background(), mustRequest(t, "U123", "50", time.Now())); err != nil {
		t.Fatalf("process with failing scanner: %v", err)
	}
}

func TestProcessUserNotFound(t *testing.T) {
	mem := store.NewMemory()
	engine := newEngine(mem, stubScanner{}, time.Minute)

	_, err := engine.Process(context.Background(), mustRequest(t, "ghost", "50", time.Now()))
	if !errors.Is(err, ledger.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestProcessInsufficientFundsLeavesBalance(t *testing.T) {
	mem := store.NewMemory()
	mem.SeedUser("U123", "John Doe", decimal.RequireFromString("20"))
	engine := newEngine(mem, stubScanner{}, time.Minute)

	_, err := engine.Process(context.Background(), mustRequest(t, "U123", "50", time.Now()))
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if !mem.Balance("U123").Equal(decimal.RequireFromString("20")) {
		t.Fatalf("balance changed on failure: %s", mem.Balance("U123"))
	}
}

func TestProcessRollsBackRequestOnReceiptFailure(t *testing.T) {
	mem := store.NewMemory()
	mem.SeedUser("U123", "John Doe", decimal.RequireFromString("200"))
	engine := newEngine(mem, stubScanner{}, 0)

	ctx := context.Background()
	ts := time.Now()
	mem.FailNextPayment(errors.New("store unavailable"))
	if _, err := engine.Process(ctx, mustRequest(t, "U123", "50", ts)); err == nil {
		t.Fatal("expected processing failure")
	}
	if got := mem.RequestCount("U123"); got != 0 {
		t.Fatalf("expected rollback to remove request entry, got %d", got)
	}

	// The identical retry must now settle.
	receipt, err := engine.Process(ctx, mustRequest(t, "U123", "50", ts))
	if err != nil {
		t.Fatalf("retry after rollback: %v", err)
	}
	if !receipt.NewBalance.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("expected new balance 150, got %s", receipt.NewBalance)
	}
}
