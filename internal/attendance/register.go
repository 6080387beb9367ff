package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// Register grants the per-attendance credit, idempotent per calendar day.
type Register struct {
	store  Store
	credit decimal.Decimal
	logger *slog.Logger
	now    func() time.Time
}

// NewRegister builds an attendance register crediting the given amount per
// attendance.
func NewRegister(store Store, credit decimal.Decimal, logger *slog.Logger) *Register {
	return &Register{store: store, credit: credit, logger: logger, now: time.Now}
}

// Record stores the attendance event and credits the user, creating the user
// on first attendance. Returns the balance after the credit.
func (r *Register) Record(ctx context.Context, node, userID, username string, ts time.Time) (decimal.Decimal, error) {
	if userID == "" {
		return decimal.Zero, fmt.Errorf("attendance needs a user id")
	}

	entry := Entry{
		NodeAddress: node,
		UserID:      userID,
		Username:    username,
		Date:        ts.Format(dateLayout),
		Timestamp:   ts.Truncate(time.Second),
		RecordedAt:  r.now(),
	}
	return r.store.RecordAttendance(ctx, entry, r.credit)
}
