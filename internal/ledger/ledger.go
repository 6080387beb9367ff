package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is the second-resolution timestamp format used on the wire,
// in audit rows and for the compound uniqueness key.
const TimeLayout = "2006-01-02 15:04:05"

// Kind tags a persisted ledger entry.
type Kind string

const (
	KindRequest Kind = "request"
	KindReceipt Kind = "receipt"
)

var (
	// ErrDuplicateEntry occurs when any duplicate-guard layer rejects a
	// request; the node sees TRX_DUPLICATE.
	ErrDuplicateEntry = errors.New("duplicate ledger entry")

	// ErrUserNotFound occurs when a payment names an unknown user.
	ErrUserNotFound = errors.New("user not found")

	// ErrInsufficientFunds occurs when the balance cannot cover the request.
	ErrInsufficientFunds = errors.New("insufficient balance")
)

// Request is a payment request entry, immutable once written. It is deleted
// only by the explicit rollback after a failed receipt.
type Request struct {
	NodeAddress string
	UserID      string
	Username    string
	Amount      decimal.Decimal
	Timestamp   time.Time
}

// NewRequest validates and builds a Request. The timestamp is truncated to
// whole seconds, matching the uniqueness key resolution.
func NewRequest(node, userID, username string, amount decimal.Decimal, ts time.Time) (Request, error) {
	if userID == "" {
		return Request{}, fmt.Errorf("request needs a user id")
	}
	if amount.Sign() <= 0 {
		return Request{}, fmt.Errorf("request amount must be positive")
	}
	return Request{
		NodeAddress: node,
		UserID:      userID,
		Username:    username,
		Amount:      amount,
		Timestamp:   ts.Truncate(time.Second),
	}, nil
}

// Receipt records a settled payment: the balance transition and the entry
// identifier echoed back to the node.
type Receipt struct {
	ID              string
	NodeAddress     string
	UserID          string
	Username        string
	PreviousBalance decimal.Decimal
	RequestAmount   decimal.Decimal
	NewBalance      decimal.Decimal
	Timestamp       time.Time
}

// Store is the authoritative transactional backend for ledger entries and
// user balances.
type Store interface {
	// InsertRequest persists a request entry. A compound uniqueness
	// violation on (user_id, amount, timestamp, kind) yields
	// ErrDuplicateEntry; this is the authoritative duplicate signal.
	InsertRequest(ctx context.Context, req Request) error

	// DeleteRequest removes a request entry so the same request can be
	// retried after a failed receipt.
	DeleteRequest(ctx context.Context, req Request) error

	// HasRecent reports whether any request or receipt for (userID, amount)
	// exists within the window, regardless of exact timestamp.
	HasRecent(ctx context.Context, userID string, amount decimal.Decimal, window time.Duration) (bool, error)

	// ProcessPayment atomically validates the user, debits the balance and
	// inserts the receipt. On failure nothing is observable.
	ProcessPayment(ctx context.Context, userID string, amount decimal.Decimal, nodeAddress string) (Receipt, error)
}
