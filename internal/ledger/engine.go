package ledger

import (
	"context"
	"log/slog"
)

// Engine turns admitted payment requests into balance debits and receipts.
type Engine struct {
	store  Store
	guard  *Guard
	logger *slog.Logger
}

// NewEngine builds a ledger engine.
func NewEngine(store Store, guard *Guard, logger *slog.Logger) *Engine {
	return &Engine{store: store, guard: guard, logger: logger}
}

// Process admits the request through the duplicate guard, then settles it
// atomically. When the receipt cannot be produced the request entry is rolled
// back so an identical later request is accepted rather than flagged
// duplicate.
func (e *Engine) Process(ctx context.Context, req Request) (Receipt, error) {
	if err := e.guard.Admit(ctx, req); err != nil {
		return Receipt{}, err
	}

	receipt, err := e.store.ProcessPayment(ctx, req.UserID, req.Amount, req.NodeAddress)
	if err != nil {
		if delErr := e.store.DeleteRequest(ctx, req); delErr != nil {
			e.logger.Error("request rollback failed",
				"user_id", req.UserID,
				"amount", req.Amount.StringFixed(2),
				"error", delErr)
		}
		return Receipt{}, err
	}
	return receipt, nil
}
