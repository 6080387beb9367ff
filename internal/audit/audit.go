package audit

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sbsk/fieldledger/internal/ledger"
)

var (
	requestHeader     = []string{"Node", "Name", "ID", "Amount", "Timestamp"}
	attendanceHeader  = []string{"Node", "Name", "ID", "Timestamp"}
	transactionHeader = []string{"node_address", "user_id", "username", "previous_balance", "request_amount", "new_balance", "timestamp"}
)

// Writer appends accepted events to the flat audit files. The payment file is
// read back by the duplicate guard, so its writes use a crash-safe
// temp-then-rename pattern; the other files use plain appends.
type Writer struct {
	requestPath     string
	attendancePath  string
	transactionPath string
	logger          *slog.Logger
	mu              sync.Mutex
}

// NewWriter builds an audit writer over the three file paths.
func NewWriter(requestPath, attendancePath, transactionPath string, logger *slog.Logger) *Writer {
	return &Writer{
		requestPath:     requestPath,
		attendancePath:  attendancePath,
		transactionPath: transactionPath,
		logger:          logger,
	}
}

// Init creates the payment and attendance files with headers when absent.
// The transaction-detail header is written lazily on first row.
func (w *Writer) Init() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ensureFile(w.requestPath, requestHeader); err != nil {
		return err
	}
	return ensureFile(w.attendancePath, attendanceHeader)
}

func ensureFile(path string, header []string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(header); err != nil {
		return err
	}
	cw.Flush()
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("initialize %s: %w", path, err)
	}
	return nil
}

// AppendPaymentRequest records an accepted payment request. The whole file is
// rewritten to a temporary sibling and atomically renamed into place.
func (w *Writer) AppendPaymentRequest(node, name, userID string, amount decimal.Decimal, ts time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	existing, err := os.ReadFile(w.requestPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read %s: %w", w.requestPath, err)
	}

	var buf bytes.Buffer
	buf.Write(existing)
	cw := csv.NewWriter(&buf)
	if len(existing) == 0 {
		if err := cw.Write(requestHeader); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{node, name, userID, amount.StringFixed(2), ts.Format(ledger.TimeLayout)}); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	tmp := w.requestPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, w.requestPath); err != nil {
		return fmt.Errorf("replace %s: %w", w.requestPath, err)
	}
	return nil
}

// AppendAttendance records an accepted attendance event.
func (w *Writer) AppendAttendance(node, name, userID string, ts time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return appendRow(w.attendancePath, nil, []string{node, name, userID, ts.Format(ledger.TimeLayout)})
}

// AppendTransactionDetail records the full balance transition of a receipt.
func (w *Writer) AppendTransactionDetail(r ledger.Receipt) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return appendRow(w.transactionPath, transactionHeader, []string{
		r.NodeAddress,
		r.UserID,
		r.Username,
		r.PreviousBalance.StringFixed(2),
		r.RequestAmount.StringFixed(2),
		r.NewBalance.StringFixed(2),
		r.Timestamp.Format(ledger.TimeLayout),
	})
}

func appendRow(path string, headerIfNew, row []string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if headerIfNew != nil {
		if pos, err := f.Seek(0, io.SeekEnd); err == nil && pos == 0 {
			if err := cw.Write(headerIfNew); err != nil {
				return err
			}
		}
	}
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// HasPaymentRow scans the payment file for a row matching (userID, timestamp,
// amount). Read problems surface as errors; the guard treats them as no-hit.
func (w *Writer) HasPaymentRow(userID, timestamp string, amount decimal.Decimal) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.requestPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %w", w.requestPath, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	first := true
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("scan %s: %w", w.requestPath, err)
		}
		if first {
			first = false
			continue
		}
		if len(row) < 5 || row[2] != userID || row[4] != timestamp {
			continue
		}
		rowAmount, err := decimal.NewFromString(row[3])
		if err != nil {
			continue
		}
		if rowAmount.Equal(amount) {
			return true, nil
		}
	}
}
