package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// ErrDuplicateDay occurs when attendance for (user, calendar date) was
// already recorded. At most one credit is granted per user per day.
var ErrDuplicateDay = errors.New("attendance already recorded for this date")

// Entry is one attendance record. Immutable, never deleted.
type Entry struct {
	NodeAddress string
	UserID      string
	Username    string
	Date        string
	Timestamp   time.Time
	RecordedAt  time.Time
}

// Store persists attendance entries and applies the paired balance credit.
type Store interface {
	// RecordAttendance inserts the entry and upserts the user (create with
	// the credit as balance, or increment) in one atomic unit, returning the
	// resulting balance. An existing (user_id, date) entry yields
	// ErrDuplicateDay without mutation.
	RecordAttendance(ctx context.Context, e Entry, credit decimal.Decimal) (decimal.Decimal, error)
}
