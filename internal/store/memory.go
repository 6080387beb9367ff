package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sbsk/fieldledger/internal/attendance"
	"github.com/sbsk/fieldledger/internal/ledger"
	"github.com/sbsk/fieldledger/internal/user"
)

type memoryUser struct {
	username string
	balance  decimal.Decimal
}

// Memory is a concurrency-safe in-memory store implementing the same
// interfaces as Mongo. Useful for unit tests.
type Memory struct {
	mu         sync.Mutex
	users      map[string]*memoryUser
	requests   []ledger.Request
	receipts   []ledger.Receipt
	attendance map[string]attendance.Entry

	paymentErr error

	// Now supplies timestamps for receipts and the recency window; tests
	// may freeze it.
	Now func() time.Time
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:      make(map[string]*memoryUser),
		attendance: make(map[string]attendance.Entry),
		Now:        time.Now,
	}
}

// SeedUser installs a user with the given balance.
func (m *Memory) SeedUser(id, username string, balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &memoryUser{username: username, balance: balance}
}

// FailNextPayment makes the next ProcessPayment call return err.
func (m *Memory) FailNextPayment(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paymentErr = err
}

// Balance returns the current balance for id, zero if unknown.
func (m *Memory) Balance(id string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u.balance
	}
	return decimal.Zero
}

// RequestCount returns how many request entries exist for the user.
func (m *Memory) RequestCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.UserID == userID {
			n++
		}
	}
	return n
}

// ReceiptCount returns how many receipts exist for the user.
func (m *Memory) ReceiptCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.receipts {
		if r.UserID == userID {
			n++
		}
	}
	return n
}

func (m *Memory) InsertRequest(_ context.Context, req ledger.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.UserID == req.UserID && r.Amount.Equal(req.Amount) && r.Timestamp.Equal(req.Timestamp) {
			return fmt.Errorf("unique index: %w", ledger.ErrDuplicateEntry)
		}
	}
	m.requests = append(m.requests, req)
	return nil
}

func (m *Memory) DeleteRequest(_ context.Context, req ledger.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.requests[:0]
	for _, r := range m.requests {
		if r.UserID == req.UserID && r.Amount.Equal(req.Amount) && r.Timestamp.Equal(req.Timestamp) {
			continue
		}
		kept = append(kept, r)
	}
	m.requests = kept
	return nil
}

func (m *Memory) HasRecent(_ context.Context, userID string, amount decimal.Decimal, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lower := m.Now().Add(-window)
	for _, r := range m.requests {
		if r.UserID == userID && r.Amount.Equal(amount) && !r.Timestamp.Before(lower) {
			return true, nil
		}
	}
	for _, r := range m.receipts {
		if r.UserID == userID && r.RequestAmount.Equal(amount) && !r.Timestamp.Before(lower) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ProcessPayment(_ context.Context, userID string, amount decimal.Decimal, nodeAddress string) (ledger.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paymentErr != nil {
		err := m.paymentErr
		m.paymentErr = nil
		return ledger.Receipt{}, err
	}

	u, ok := m.users[userID]
	if !ok {
		return ledger.Receipt{}, ledger.ErrUserNotFound
	}
	if u.balance.LessThan(amount) {
		return ledger.Receipt{}, ledger.ErrInsufficientFunds
	}

	receipt := ledger.Receipt{
		ID:              uuid.NewString(),
		NodeAddress:     nodeAddress,
		UserID:          userID,
		Username:        u.username,
		PreviousBalance: u.balance,
		RequestAmount:   amount,
		NewBalance:      u.balance.Sub(amount),
		Timestamp:       m.Now().Truncate(time.Second),
	}
	u.balance = receipt.NewBalance
	m.receipts = append(m.receipts, receipt)
	return receipt, nil
}

func (m *Memory) RecordAttendance(_ context.Context, e attendance.Entry, credit decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := e.UserID + "|" + e.Date
	if _, exists := m.attendance[key]; exists {
		return decimal.Zero, attendance.ErrDuplicateDay
	}
	m.attendance[key] = e

	u, ok := m.users[e.UserID]
	if !ok {
		u = &memoryUser{username: e.Username}
		m.users[e.UserID] = u
	}
	u.balance = u.balance.Add(credit)
	return u.balance, nil
}

func (m *Memory) Create(_ context.Context, u user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[u.ID]; exists {
		return user.ErrExists
	}
	m.users[u.ID] = &memoryUser{username: u.Username, balance: u.Balance}
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return user.User{ID: id, Username: u.username, Balance: u.balance}, nil
}
