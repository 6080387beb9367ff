package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/sbsk/fieldledger/internal/attendance"
	"github.com/sbsk/fieldledger/internal/ledger"
	"github.com/sbsk/fieldledger/internal/user"
)

const transactionIndexName = "unique_transaction"

// Mongo owns the connection to the authoritative store and the lifecycle of
// its collections and indexes. It implements ledger.Store, attendance.Store
// and user.Repository.
type Mongo struct {
	client       *mongo.Client
	users        *mongo.Collection
	attendance   *mongo.Collection
	transactions *mongo.Collection
}

// Open connects to the store, verifies connectivity and declares the
// uniqueness indexes the duplicate guard relies on.
func Open(ctx context.Context, uri, database string) (*Mongo, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	m := &Mongo{
		client:       client,
		users:        db.Collection("users"),
		attendance:   db.Collection("attendance"),
		transactions: db.Collection("transactions"),
	}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

// Close disconnects from the store.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Ping verifies connectivity to the primary.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.transactions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "amount", Value: 1},
			{Key: "timestamp", Value: 1},
			{Key: "type", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName(transactionIndexName),
	})
	if err != nil {
		return fmt.Errorf("create transaction index: %w", err)
	}

	_, err = m.attendance.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "date", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("unique_attendance_day"),
	})
	if err != nil {
		return fmt.Errorf("create attendance index: %w", err)
	}
	return nil
}

type userDoc struct {
	ID       string               `bson:"_id"`
	Username string               `bson:"username"`
	Balance  primitive.Decimal128 `bson:"balance"`
}

// InsertRequest persists a request entry; the compound unique index turns a
// replay into ledger.ErrDuplicateEntry.
func (m *Mongo) InsertRequest(ctx context.Context, req ledger.Request) error {
	_, err := m.transactions.InsertOne(ctx, bson.M{
		"node_address": req.NodeAddress,
		"user_id":      req.UserID,
		"username":     req.Username,
		"amount":       toDecimal128(req.Amount),
		"timestamp":    req.Timestamp,
		"type":         string(ledger.KindRequest),
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("unique index: %w", ledger.ErrDuplicateEntry)
	}
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// DeleteRequest rolls a request entry back after a failed receipt.
func (m *Mongo) DeleteRequest(ctx context.Context, req ledger.Request) error {
	_, err := m.transactions.DeleteMany(ctx, bson.M{
		"user_id":   req.UserID,
		"amount":    toDecimal128(req.Amount),
		"timestamp": req.Timestamp,
		"type":      string(ledger.KindRequest),
	})
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	return nil
}

// HasRecent reports whether any request or receipt for (userID, amount) falls
// inside the window. Absorbs sender clock skew.
func (m *Mongo) HasRecent(ctx context.Context, userID string, amount decimal.Decimal, window time.Duration) (bool, error) {
	lower := time.Now().Add(-window)
	amt := toDecimal128(amount)
	err := m.transactions.FindOne(ctx, bson.M{
		"user_id":   userID,
		"timestamp": bson.M{"$gte": lower},
		"$or": bson.A{
			bson.M{"type": string(ledger.KindRequest), "amount": amt},
			bson.M{"type": string(ledger.KindReceipt), "request_amount": amt},
		},
	}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("recency query: %w", err)
	}
	return true, nil
}

// ProcessPayment debits the balance and writes the receipt inside one
// multi-document transaction session.
func (m *Mongo) ProcessPayment(ctx context.Context, userID string, amount decimal.Decimal, nodeAddress string) (ledger.Receipt, error) {
	session, err := m.client.StartSession()
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var u userDoc
		if err := m.users.FindOne(sc, bson.M{"_id": userID}).Decode(&u); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, ledger.ErrUserNotFound
			}
			return nil, fmt.Errorf("read user: %w", err)
		}

		balance, err := fromDecimal128(u.Balance)
		if err != nil {
			return nil, fmt.Errorf("decode balance: %w", err)
		}
		if balance.LessThan(amount) {
			return nil, ledger.ErrInsufficientFunds
		}
		newBalance := balance.Sub(amount)

		if _, err := m.users.UpdateOne(sc,
			bson.M{"_id": userID},
			bson.M{"$set": bson.M{"balance": toDecimal128(newBalance)}},
		); err != nil {
			return nil, fmt.Errorf("debit balance: %w", err)
		}

		receipt := ledger.Receipt{
			ID:              uuid.NewString(),
			NodeAddress:     nodeAddress,
			UserID:          userID,
			Username:        u.Username,
			PreviousBalance: balance,
			RequestAmount:   amount,
			NewBalance:      newBalance,
			Timestamp:       time.Now().Truncate(time.Second),
		}
		if _, err := m.transactions.InsertOne(sc, bson.M{
			"_id":              receipt.ID,
			"node_address":     receipt.NodeAddress,
			"user_id":          receipt.UserID,
			"username":         receipt.Username,
			"previous_balance": toDecimal128(receipt.PreviousBalance),
			"request_amount":   toDecimal128(receipt.RequestAmount),
			"new_balance":      toDecimal128(receipt.NewBalance),
			"timestamp":        receipt.Timestamp,
			"type":             string(ledger.KindReceipt),
		}); err != nil {
			return nil, fmt.Errorf("insert receipt: %w", err)
		}
		return receipt, nil
	})
	if err != nil {
		return ledger.Receipt{}, err
	}
	return result.(ledger.Receipt), nil
}

// RecordAttendance inserts the entry and upserts the user balance in one
// atomic unit, returning the balance after the credit.
func (m *Mongo) RecordAttendance(ctx context.Context, e attendance.Entry, credit decimal.Decimal) (decimal.Decimal, error) {
	session, err := m.client.StartSession()
	if err != nil {
		return decimal.Zero, fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		err := m.attendance.FindOne(sc, bson.M{"user_id": e.UserID, "date": e.Date}).Err()
		if err == nil {
			return nil, attendance.ErrDuplicateDay
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("attendance lookup: %w", err)
		}

		if _, err := m.attendance.InsertOne(sc, bson.M{
			"node_address": e.NodeAddress,
			"user_id":      e.UserID,
			"username":     e.Username,
			"date":         e.Date,
			"timestamp":    e.Timestamp,
			"recorded_at":  e.RecordedAt,
		}); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, attendance.ErrDuplicateDay
			}
			return nil, fmt.Errorf("insert attendance: %w", err)
		}

		if _, err := m.users.UpdateOne(sc,
			bson.M{"_id": e.UserID},
			bson.M{
				"$setOnInsert": bson.M{"username": e.Username},
				"$inc":         bson.M{"balance": toDecimal128(credit)},
			},
			options.Update().SetUpsert(true),
		); err != nil {
			return nil, fmt.Errorf("credit balance: %w", err)
		}

		var u userDoc
		if err := m.users.FindOne(sc, bson.M{"_id": e.UserID}).Decode(&u); err != nil {
			return nil, fmt.Errorf("read balance: %w", err)
		}
		balance, err := fromDecimal128(u.Balance)
		if err != nil {
			return nil, fmt.Errorf("decode balance: %w", err)
		}
		return balance, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return result.(decimal.Decimal), nil
}

// Create inserts a user; an existing id yields user.ErrExists.
func (m *Mongo) Create(ctx context.Context, u user.User) error {
	_, err := m.users.InsertOne(ctx, bson.M{
		"_id":      u.ID,
		"username": u.Username,
		"balance":  toDecimal128(u.Balance),
	})
	if mongo.IsDuplicateKeyError(err) {
		return user.ErrExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Get fetches a user by id.
func (m *Mongo) Get(ctx context.Context, id string) (user.User, error) {
	var doc userDoc
	if err := m.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, fmt.Errorf("read user: %w", err)
	}
	balance, err := fromDecimal128(doc.Balance)
	if err != nil {
		return user.User{}, fmt.Errorf("decode balance: %w", err)
	}
	return user.User{ID: doc.ID, Username: doc.Username, Balance: balance}, nil
}

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		// decimal.Decimal always renders a parseable value
		return primitive.Decimal128{}
	}
	return v
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(v.String())
}
