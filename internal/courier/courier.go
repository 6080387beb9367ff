package courier

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sbsk/fieldledger/internal/ledger"
	"github.com/sbsk/fieldledger/internal/transport"
)

var nodePattern = regexp.MustCompile(`^[0-9A-F]{2}$`)

// Courier formats protocol responses and pushes them back over the link.
// Delivery is best-effort: receipt retransmission is blind and write failures
// never propagate to the caller.
type Courier struct {
	conn     transport.Conn
	logger   *slog.Logger
	attempts int
	delay    time.Duration
}

// New builds a courier retransmitting receipts `attempts` times with a fixed
// delay between sends.
func New(conn transport.Conn, attempts int, delay time.Duration, logger *slog.Logger) *Courier {
	if attempts < 1 {
		attempts = 1
	}
	return &Courier{conn: conn, logger: logger, attempts: attempts, delay: delay}
}

// Send writes "<node> <message>\n" to the link. The node address must be two
// hex characters after normalization; anything else is logged and dropped.
// A closed transport is a silent no-op.
func (c *Courier) Send(node, message string) {
	if c.conn == nil || !c.conn.Open() {
		return
	}

	node = strings.ToUpper(node)
	for len(node) < 2 {
		node = "0" + node
	}
	if !nodePattern.MatchString(node) {
		c.logger.Error("invalid node address", "node", node)
		return
	}

	if err := c.conn.WriteLine(fmt.Sprintf("%s %s", node, message)); err != nil {
		c.logger.Error("write to node failed", "node", node, "error", err)
		return
	}
	c.logger.Info("sent to node", "node", node, "message", message)
}

// TransmitReceipt sends the formatted receipt several times with no
// acknowledgement step; the node is assumed to deduplicate repeats.
func (c *Courier) TransmitReceipt(r ledger.Receipt) {
	message := fmt.Sprintf("RECEIPT|%s|%s|%s|%s|%s",
		r.UserID,
		r.RequestAmount.StringFixed(2),
		r.NewBalance.StringFixed(2),
		r.Timestamp.Format(ledger.TimeLayout),
		r.ID,
	)
	for i := 0; i < c.attempts; i++ {
		c.Send(r.NodeAddress, message)
		time.Sleep(c.delay)
	}
}
