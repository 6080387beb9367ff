package frame

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the category of one inbound frame.
type Kind int

const (
	KindNoise Kind = iota
	KindAttendance
	KindPayment
	KindCompletion
	KindChunk
	KindSent
	KindInfo
)

const (
	addressMarker    = "From:0x"
	attendanceMarker = "ATTENDANCE|"
	// Trailing space is significant: it separates the marker from the payload.
	paymentMarker = "REQUEST_AMOUNT "

	timeLayout = "2006-01-02 15:04:05"
)

// Boot chatter emitted by the node firmware before the radio link settles.
var noiseMarkers = []string{
	"Using existing attendance file at:",
	"Using existing request amount file at:",
	"ets Jul 29 2019",
	"rst:0x1",
	"configsip:",
	"clk_drv:",
	"mode:DIO",
	"load:0x",
	"entry 0x",
}

var (
	ErrBadNodeAddress = errors.New("malformed node address")
	ErrBadFrame       = errors.New("malformed frame")
)

// Message is one classified inbound frame.
type Message struct {
	Kind Kind
	Node string
	Raw  string
}

// Classify categorizes a raw line and extracts the source node address.
// A malformed address after the "From:0x" marker is an error and the frame
// must be dropped by the caller.
func Classify(line string) (Message, error) {
	for _, marker := range noiseMarkers {
		if strings.Contains(line, marker) {
			return Message{Kind: KindNoise, Raw: line}, nil
		}
	}

	node := "00"
	if strings.Contains(line, addressMarker) {
		addr, err := extractNode(line)
		if err != nil {
			return Message{}, err
		}
		node = addr
	}

	msg := Message{Node: node, Raw: line}
	switch {
	case strings.Contains(line, attendanceMarker):
		msg.Kind = KindAttendance
	case strings.Contains(line, paymentMarker):
		msg.Kind = KindPayment
	case strings.Contains(line, "COMPLETE from"):
		msg.Kind = KindCompletion
	case strings.Contains(line, addressMarker):
		msg.Kind = KindChunk
	case strings.Contains(line, "Sent chunk"):
		msg.Kind = KindSent
	default:
		msg.Kind = KindInfo
	}
	return msg, nil
}

func extractNode(line string) (string, error) {
	_, rest, _ := strings.Cut(line, addressMarker)
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: nothing after %q", ErrBadNodeAddress, addressMarker)
	}
	addr := fields[0]
	if len(addr) > 2 {
		addr = addr[:2]
	}
	addr = strings.ToUpper(addr)
	for len(addr) < 2 {
		addr = "0" + addr
	}
	for _, c := range addr {
		if !isHexDigit(c) {
			return "", fmt.Errorf("%w: %q", ErrBadNodeAddress, addr)
		}
	}
	return addr, nil
}

func isHexDigit(c rune) bool {
	return c >= '0' && c <= '9' || c >= 'A' && c <= 'F'
}

// AttendanceEvent is the parsed payload of an attendance frame.
type AttendanceEvent struct {
	Username  string
	UserID    string
	Timestamp time.Time
}

// ParseAttendance extracts the attendance payload:
// ATTENDANCE|<name>|<user_id>|<YYYY-MM-DD HH:MM:SS>.
func ParseAttendance(raw string) (AttendanceEvent, error) {
	_, payload, ok := strings.Cut(raw, attendanceMarker)
	if !ok {
		return AttendanceEvent{}, fmt.Errorf("%w: missing %q", ErrBadFrame, attendanceMarker)
	}
	parts := strings.Split(payload, "|")
	if len(parts) < 3 {
		return AttendanceEvent{}, fmt.Errorf("%w: attendance needs name, id and timestamp", ErrBadFrame)
	}
	ts, err := time.Parse(timeLayout, strings.TrimSpace(parts[2]))
	if err != nil {
		return AttendanceEvent{}, fmt.Errorf("%w: bad attendance timestamp: %v", ErrBadFrame, err)
	}
	return AttendanceEvent{
		Username:  strings.TrimSpace(parts[0]),
		UserID:    strings.TrimSpace(parts[1]),
		Timestamp: ts,
	}, nil
}

// PaymentRequest is the parsed payload of a payment frame.
type PaymentRequest struct {
	UserID   string
	Username string
	Amount   decimal.Decimal
}

// ParsePayment extracts the payment payload:
// REQUEST_AMOUNT <user_id> <name words...> <amount>. The amount is the last
// whitespace token; the name is every token in between.
func ParsePayment(raw string) (PaymentRequest, error) {
	_, payload, ok := strings.Cut(raw, "REQUEST_AMOUNT")
	if !ok {
		return PaymentRequest{}, fmt.Errorf("%w: missing %q", ErrBadFrame, paymentMarker)
	}
	parts := strings.Fields(strings.TrimSpace(payload))
	if len(parts) < 4 {
		return PaymentRequest{}, fmt.Errorf("%w: payment needs id, name and amount", ErrBadFrame)
	}
	amount, err := decimal.NewFromString(parts[len(parts)-1])
	if err != nil {
		return PaymentRequest{}, fmt.Errorf("%w: bad amount %q", ErrBadFrame, parts[len(parts)-1])
	}
	if amount.Sign() <= 0 {
		return PaymentRequest{}, fmt.Errorf("%w: amount must be positive", ErrBadFrame)
	}
	return PaymentRequest{
		UserID:   parts[0],
		Username: strings.Join(parts[1:len(parts)-1], " "),
		Amount:   amount,
	}, nil
}
