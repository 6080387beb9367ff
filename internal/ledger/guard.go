package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// RequestScanner checks the payment audit file for an already-recorded
// request. It catches replays visible only in the file, e.g. after a store
// outage.
type RequestScanner interface {
	HasPaymentRow(userID, timestamp string, amount decimal.Decimal) (bool, error)
}

// Guard applies the layered duplicate checks to payment requests before any
// balance mutation. The first two layers are cheap best-effort pre-filters;
// the compound-unique insert is ground truth.
type Guard struct {
	scanner RequestScanner
	store   Store
	window  time.Duration
	logger  *slog.Logger
}

// NewGuard builds a duplicate guard with the given recency window.
func NewGuard(scanner RequestScanner, store Store, window time.Duration, logger *slog.Logger) *Guard {
	return &Guard{scanner: scanner, store: store, window: window, logger: logger}
}

// Admit runs all three layers and records the request entry. Any layer hit
// returns ErrDuplicateEntry; pre-filter failures are logged and skipped, not
// treated as duplicates.
func (g *Guard) Admit(ctx context.Context, req Request) error {
	ts := req.Timestamp.Format(TimeLayout)

	if g.scanner != nil {
		dup, err := g.scanner.HasPaymentRow(req.UserID, ts, req.Amount)
		switch {
		case err != nil:
			g.logger.Warn("audit file scan failed", "error", err)
		case dup:
			return fmt.Errorf("audit file: %w", ErrDuplicateEntry)
		}
	}

	dup, err := g.store.HasRecent(ctx, req.UserID, req.Amount, g.window)
	switch {
	case err != nil:
		g.logger.Warn("recency window query failed", "error", err)
	case dup:
		return fmt.Errorf("recency window: %w", ErrDuplicateEntry)
	}

	return g.store.InsertRequest(ctx, req)
}
