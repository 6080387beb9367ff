package courier

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sbsk/fieldledger/internal/ledger"
	"github.com/sbsk/fieldledger/internal/logging"
	"github.com/sbsk/fieldledger/internal/transport"
)

func TestSendFormatsLine(t *testing.T) {
	conn := transport.NewLoopback()
	c := New(conn, 1, 0, logging.Discard())

	c.Send("1A", "TRX_COMPLETE")

	sent := conn.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 line, got %d", len(sent))
	}
	if sent[0] != "1A TRX_COMPLETE" {
		t.Fatalf("unexpected line %q", sent[0])
	}
}

func TestSendNormalizesNodeAddress(t *testing.T) {
	conn := transport.NewLoopback()
	c := New(conn, 1, 0, logging.Discard())

	c.Send("a", "PING")

	sent := conn.Sent()
	if len(sent) != 1 || sent[0] != "0A PING" {
		t.Fatalf("expected normalized address, got %v", sent)
	}
}

func TestSendDropsInvalidNode(t *testing.T) {
	conn := transport.NewLoopback()
	c := New(conn, 1, 0, logging.Discard())

	c.Send("ZZ", "PING")
	c.Send("123", "PING")

	if sent := conn.Sent(); len(sent) != 0 {
		t.Fatalf("expected nothing sent, got %v", sent)
	}
}

func TestSendClosedConnIsNoop(t *testing.T) {
	conn := transport.NewLoopback()
	conn.Close()
	c := New(conn, 1, 0, logging.Discard())

	c.Send("1A", "PING")

	if sent := conn.Sent(); len(sent) != 0 {
		t.Fatalf("expected nothing sent, got %v", sent)
	}
}

func TestTransmitReceiptRepeats(t *testing.T) {
	conn := transport.NewLoopback()
	c := New(conn, 3, 0, logging.Discard())

	ts, _ := time.Parse(ledger.TimeLayout, "2026-08-30 09:15:00")
	c.TransmitReceipt(ledger.Receipt{
		ID:            "abc-123",
		NodeAddress:   "1A",
		UserID:        "U123",
		RequestAmount: decimal.RequireFromString("50"),
		NewBalance:    decimal.RequireFromString("150"),
		Timestamp:     ts,
	})

	sent := conn.Sent()
	if len(sent) != 3 {
		t.Fatalf("expected 3 transmissions, got %d", len(sent))
	}
	want := "1A RECEIPT|U123|50.00|150.00|2026-08-30 09:15:00|abc-123"
	for i, line := range sent {
		if line != want {
			t.Fatalf("transmission %d mismatch: got %q want %q", i, line, want)
		}
	}
}
