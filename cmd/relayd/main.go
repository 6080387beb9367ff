package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sbsk/fieldledger/internal/attendance"
	"github.com/sbsk/fieldledger/internal/audit"
	"github.com/sbsk/fieldledger/internal/config"
	"github.com/sbsk/fieldledger/internal/courier"
	"github.com/sbsk/fieldledger/internal/ledger"
	"github.com/sbsk/fieldledger/internal/logging"
	"github.com/sbsk/fieldledger/internal/relay"
	"github.com/sbsk/fieldledger/internal/store"
	"github.com/sbsk/fieldledger/internal/transport"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := store.Open(openCtx, cfg.MongoURI, cfg.MongoDatabase)
	cancel()
	if err != nil {
		logger.Error("connect mongo", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Close(closeCtx); err != nil {
			logger.Warn("close mongo", "error", err)
		}
	}()

	auditor := audit.NewWriter(cfg.RequestFile, cfg.AttendanceFile, cfg.TransactionFile,
		logging.Component(logger, "audit"))
	if err := auditor.Init(); err != nil {
		logger.Error("initialize audit files", "error", err)
		os.Exit(1)
	}

	conn, err := transport.Dial(cfg.SerialPort, cfg.BaudRate)
	if err != nil {
		logger.Error("open serial port", "port", cfg.SerialPort, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("close serial port", "error", err)
		}
	}()
	logger.Info("serial link open", "port", cfg.SerialPort, "baud", cfg.BaudRate)

	guard := ledger.NewGuard(auditor, db, cfg.RecencyWindow, logging.Component(logger, "guard"))
	engine := ledger.NewEngine(db, guard, logging.Component(logger, "ledger"))
	register := attendance.NewRegister(db, cfg.AttendanceCredit, logging.Component(logger, "attendance"))
	sender := courier.New(conn, cfg.ReceiptRetries, cfg.ReceiptDelay, logging.Component(logger, "courier"))

	pipeline := relay.New(relay.Deps{
		Conn:     conn,
		Engine:   engine,
		Register: register,
		Audit:    auditor,
		Courier:  sender,
		Logger:   logging.Component(logger, "relay"),
		Interval: cfg.DrainInterval,
	})

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("relay started")
	if err := pipeline.Run(runCtx); err != nil && err != context.Canceled {
		logger.Error("relay stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("relay exited cleanly")
}
