package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sbsk/fieldledger/internal/attendance"
	"github.com/sbsk/fieldledger/internal/audit"
	"github.com/sbsk/fieldledger/internal/courier"
	"github.com/sbsk/fieldledger/internal/frame"
	"github.com/sbsk/fieldledger/internal/ledger"
	"github.com/sbsk/fieldledger/internal/transport"
)

// Deps aggregates everything the pipeline needs.
type Deps struct {
	Conn     transport.Conn
	Engine   *ledger.Engine
	Register *attendance.Register
	Audit    *audit.Writer
	Courier  *courier.Courier
	Logger   *slog.Logger
	Interval time.Duration
}

// Pipeline is the single-producer single-consumer frame pipeline: one
// goroutine blocks on transport reads and enqueues raw frames, one consumer
// drains the queue on a fixed tick and fully processes each frame before the
// next. All payment and attendance processing is serialized here.
type Pipeline struct {
	conn     transport.Conn
	engine   *ledger.Engine
	register *attendance.Register
	audit    *audit.Writer
	courier  *courier.Courier
	logger   *slog.Logger
	interval time.Duration
	frames   queue
	now      func() time.Time
}

// New builds a pipeline from its dependencies.
func New(d Deps) *Pipeline {
	interval := d.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Pipeline{
		conn:     d.Conn,
		engine:   d.Engine,
		register: d.Register,
		audit:    d.Audit,
		courier:  d.Courier,
		logger:   d.Logger,
		interval: interval,
		now:      time.Now,
	}
}

// Run starts the producer and consumes frames until ctx is cancelled or the
// transport closes.
func (p *Pipeline) Run(ctx context.Context) error {
	readErr := make(chan error, 1)
	go p.produce(ctx, readErr)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.consume(ctx)
			return ctx.Err()
		case err := <-readErr:
			p.consume(ctx)
			return err
		case <-ticker.C:
			p.consume(ctx)
		}
	}
}

func (p *Pipeline) produce(ctx context.Context, done chan<- error) {
	for {
		line, err := p.conn.ReadLine()
		if err != nil {
			if ctx.Err() != nil || !p.conn.Open() {
				done <- nil
				return
			}
			p.logger.Error("transport read failed", "error", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if line != "" {
			p.frames.push(line)
		}
	}
}

func (p *Pipeline) consume(ctx context.Context) {
	for _, line := range p.frames.drain() {
		p.process(ctx, line)
	}
}

// process handles one frame. No failure is fatal: everything is caught here,
// logged, and the consumer moves on.
func (p *Pipeline) process(ctx context.Context, line string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("frame processing panicked", "frame", line, "panic", r)
		}
	}()

	msg, err := frame.Classify(line)
	if err != nil {
		p.logger.Error("node address extraction failed", "frame", line, "error", err)
		return
	}

	switch msg.Kind {
	case frame.KindNoise:
	case frame.KindAttendance:
		p.handleAttendance(ctx, msg)
	case frame.KindPayment:
		p.handlePayment(ctx, msg)
	case frame.KindCompletion:
		p.logger.Info("node transfer complete", "node", msg.Node, "frame", line)
	case frame.KindChunk, frame.KindSent:
		p.logger.Debug("link chatter", "node", msg.Node, "frame", line)
	default:
		p.logger.Info("unclassified frame", "frame", line)
	}
}

func (p *Pipeline) handlePayment(ctx context.Context, msg frame.Message) {
	pay, err := frame.ParsePayment(msg.Raw)
	if err != nil {
		p.logger.Warn("invalid payment frame", "node", msg.Node, "frame", msg.Raw, "error", err)
		return
	}

	req, err := ledger.NewRequest(msg.Node, pay.UserID, pay.Username, pay.Amount, p.now())
	if err != nil {
		p.logger.Warn("invalid payment request", "node", msg.Node, "error", err)
		return
	}

	receipt, err := p.engine.Process(ctx, req)
	switch {
	case errors.Is(err, ledger.ErrDuplicateEntry):
		p.logger.Warn("duplicate payment prevented",
			"node", msg.Node, "user_id", req.UserID, "amount", req.Amount.StringFixed(2), "cause", err)
		p.courier.Send(msg.Node, "TRX_DUPLICATE")
	case errors.Is(err, ledger.ErrUserNotFound):
		p.logger.Warn("payment for unknown user", "node", msg.Node, "user_id", req.UserID)
		p.courier.Send(msg.Node, "TRX_ERROR|user not found")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		p.logger.Warn("payment exceeds balance", "node", msg.Node, "user_id", req.UserID, "amount", req.Amount.StringFixed(2))
		p.courier.Send(msg.Node, "TRX_ERROR|insufficient balance")
	case err != nil:
		p.logger.Error("payment failed", "node", msg.Node, "user_id", req.UserID, "error", err)
		p.courier.Send(msg.Node, "TRX_ERROR|"+err.Error())
	default:
		if err := p.audit.AppendPaymentRequest(req.NodeAddress, req.Username, req.UserID, req.Amount, req.Timestamp); err != nil {
			p.logger.Error("payment audit write failed", "user_id", req.UserID, "error", err)
		}
		if err := p.audit.AppendTransactionDetail(receipt); err != nil {
			p.logger.Error("transaction detail write failed", "user_id", req.UserID, "error", err)
		}
		p.logger.Info("payment settled",
			"node", msg.Node,
			"user_id", receipt.UserID,
			"amount", receipt.RequestAmount.StringFixed(2),
			"new_balance", receipt.NewBalance.StringFixed(2))
		p.courier.TransmitReceipt(receipt)
		p.courier.Send(msg.Node, "TRX_COMPLETE")
	}
}

func (p *Pipeline) handleAttendance(ctx context.Context, msg frame.Message) {
	ev, err := frame.ParseAttendance(msg.Raw)
	if err != nil {
		p.logger.Warn("invalid attendance frame", "node", msg.Node, "frame", msg.Raw, "error", err)
		return
	}

	balance, err := p.register.Record(ctx, msg.Node, ev.UserID, ev.Username, ev.Timestamp)
	switch {
	case errors.Is(err, attendance.ErrDuplicateDay):
		p.logger.Info("duplicate attendance skipped", "node", msg.Node, "user_id", ev.UserID, "date", ev.Timestamp.Format("2006-01-02"))
		return
	case err != nil:
		p.logger.Error("attendance failed", "node", msg.Node, "user_id", ev.UserID, "error", err)
		return
	}

	if err := p.audit.AppendAttendance(msg.Node, ev.Username, ev.UserID, ev.Timestamp); err != nil {
		p.logger.Error("attendance audit write failed", "user_id", ev.UserID, "error", err)
	}
	p.logger.Info("attendance recorded",
		"node", msg.Node,
		"user_id", ev.UserID,
		"username", ev.Username,
		"balance", balance.StringFixed(2))
}
