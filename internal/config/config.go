package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultSerialPort       = "/dev/ttyUSB0"
	defaultBaudRate         = 115200
	defaultMongoDatabase    = "attendance_system"
	defaultLogLevel         = "info"
	defaultAttendanceCredit = "100"
	defaultRecencyWindow    = 60 * time.Second
	defaultReceiptRetries   = 3
	defaultReceiptDelay     = 500 * time.Millisecond
	defaultDrainInterval    = 100 * time.Millisecond
	defaultAttendanceFile   = "attendance_records.csv"
	defaultRequestFile      = "request_amount_records.csv"
	defaultTransactionFile  = "transaction.csv"
	defaultAdminPort        = "8080"
)

// Config captures runtime configuration loaded from environment variables.
type Config struct {
	SerialPort       string
	BaudRate         int
	MongoURI         string
	MongoDatabase    string
	LogLevel         string
	AttendanceCredit decimal.Decimal
	RecencyWindow    time.Duration
	ReceiptRetries   int
	ReceiptDelay     time.Duration
	DrainInterval    time.Duration
	AttendanceFile   string
	RequestFile      string
	TransactionFile  string
	AdminPort        string
}

// Load reads configuration from the environment and populates a Config.
func Load() (Config, error) {
	cfg := Config{
		SerialPort:      getEnv("SERIAL_PORT", defaultSerialPort),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDatabase:   getEnv("MONGO_DB", defaultMongoDatabase),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		RecencyWindow:   defaultRecencyWindow,
		AttendanceFile:  getEnv("ATTENDANCE_FILE", defaultAttendanceFile),
		RequestFile:     getEnv("REQUEST_FILE", defaultRequestFile),
		TransactionFile: getEnv("TRANSACTION_FILE", defaultTransactionFile),
		AdminPort:       getEnv("ADMIN_PORT", defaultAdminPort),
	}

	baud, err := getEnvInt("SERIAL_BAUD", defaultBaudRate)
	if err != nil {
		return Config{}, err
	}
	cfg.BaudRate = baud

	credit, err := decimal.NewFromString(getEnv("ATTENDANCE_CREDIT", defaultAttendanceCredit))
	if err != nil {
		return Config{}, fmt.Errorf("invalid ATTENDANCE_CREDIT: %w", err)
	}
	if credit.Sign() <= 0 {
		return Config{}, fmt.Errorf("ATTENDANCE_CREDIT must be positive")
	}
	cfg.AttendanceCredit = credit

	if v := os.Getenv("RECENCY_WINDOW_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RECENCY_WINDOW_SECONDS: %w", err)
		}
		cfg.RecencyWindow = time.Duration(seconds) * time.Second
	}

	if cfg.ReceiptRetries, err = getEnvInt("RECEIPT_RETRIES", defaultReceiptRetries); err != nil {
		return Config{}, err
	}
	if cfg.ReceiptDelay, err = getEnvDuration("RECEIPT_RETRY_DELAY", defaultReceiptDelay); err != nil {
		return Config{}, err
	}
	if cfg.DrainInterval, err = getEnvDuration("DRAIN_INTERVAL", defaultDrainInterval); err != nil {
		return Config{}, err
	}

	if cfg.MongoURI == "" {
		return Config{}, fmt.Errorf("MONGO_URI must be set")
	}

	return cfg, nil
}

// AdminAddress returns the listen address in the format Fiber expects.
func (c Config) AdminAddress() string {
	if strings.HasPrefix(c.AdminPort, ":") {
		return c.AdminPort
	}
	return fmt.Sprintf(":%s", c.AdminPort)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
