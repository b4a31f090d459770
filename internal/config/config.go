// Package config loads server settings from flags, environment variables
// and an optional .env file. Flags take precedence; environment variables
// provide their defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"meme-token-ledger/internal/solana"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageBadger   = "badger"
)

// Clock sources.
const (
	ClockSystem = "system"
	ClockChain  = "chain"
)

// Config holds server settings.
type Config struct {
	HTTPAddr      string
	Storage       string
	PostgresDSN   string
	ClickHouseDSN string
	BadgerPath    string
	RPCEndpoint   string
	ProgramID     solana.Pubkey
	SettleCron    string
	Clock         string
	LogLevel      string
	LogFormat     string
	UptimeEvery   time.Duration
}

// LoadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Parse builds a Config from args, using getenv for flag defaults.
func Parse(args []string, getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	cfg := &Config{}
	var programID string
	fs.StringVar(&cfg.HTTPAddr, "http-addr", env("HTTP_ADDR", ":8080"), "HTTP listen address")
	fs.StringVar(&cfg.Storage, "storage", env("STORAGE", StorageMemory), "Storage backend (memory, postgres, badger)")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	fs.StringVar(&cfg.ClickHouseDSN, "clickhouse-dsn", getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the event log")
	fs.StringVar(&cfg.BadgerPath, "badger-path", env("BADGER_PATH", "data/ledger"), "Badger data directory")
	fs.StringVar(&cfg.RPCEndpoint, "rpc-endpoint", getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint for balances and chain time")
	fs.StringVar(&programID, "program-id", getenv("PROGRAM_ID"), "Program id used for address derivation")
	fs.StringVar(&cfg.SettleCron, "settle-schedule", env("SETTLE_SCHEDULE", "@every 5m"), "Cron schedule for holder settlement, empty to disable")
	fs.StringVar(&cfg.Clock, "clock", env("CLOCK", ClockSystem), "Clock source (system, chain)")
	fs.StringVar(&cfg.LogLevel, "log-level", env("LOG_LEVEL", "info"), "Log level")
	fs.StringVar(&cfg.LogFormat, "log-format", env("LOG_FORMAT", "text"), "Log format (text, json)")
	fs.DurationVar(&cfg.UptimeEvery, "uptime-interval", 15*time.Second, "Uptime gauge refresh interval")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if programID != "" {
		pk, err := solana.ParsePubkey(programID)
		if err != nil {
			return nil, fmt.Errorf("program id: %w", err)
		}
		cfg.ProgramID = pk
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the settings are consistent.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return errors.New("--postgres-dsn is required for postgres storage")
		}
	case StorageBadger:
		if c.BadgerPath == "" {
			return errors.New("--badger-path is required for badger storage")
		}
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}

	switch c.Clock {
	case ClockSystem:
	case ClockChain:
		if c.RPCEndpoint == "" {
			return errors.New("--rpc-endpoint is required for the chain clock")
		}
	default:
		return fmt.Errorf("unknown clock %q", c.Clock)
	}

	if c.ProgramID.IsZero() {
		return errors.New("--program-id is required")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// NewLogger builds a logger for the configured level and format.
func (c *Config) NewLogger(out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if strings.EqualFold(c.LogFormat, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
