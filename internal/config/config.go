// Package config loads server settings from flags, the environment and an
// optional .env file. Flags win over environment variables, which win over
// the built-in defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/stockgame/engine/internal/ledger"
	"github.com/stockgame/engine/internal/symbol"
)

// Config holds all server configuration.
type Config struct {
	// Server
	Port int
	Host string

	// Storage; all empty selects the in-memory store.
	DatabaseURL string
	RedisURL    string
	MongoURI    string
	CacheTTL    time.Duration

	// Economy
	StartingBalance decimal.Decimal
	TransactionFee  decimal.Decimal
	FeePolicy       ledger.FeePolicy

	// Simulation
	UpdateInterval time.Duration
	HistoryDays    int
	Seed           int64
	PlayerName     string
	Symbols        []string

	// Market data providers; both empty leaves the synthetic provider alone.
	FinnhubAPIKey   string
	FinnhubBaseURL  string
	AlpacaKeyID     string
	AlpacaSecretKey string
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AlpacaEnabled reports whether both Alpaca credentials are present.
func (c *Config) AlpacaEnabled() bool {
	return c.AlpacaKeyID != "" && c.AlpacaSecretKey != ""
}

// Load reads .env (if present) and parses the process command line.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using system environment variables")
	}
	return Parse(flag.CommandLine, os.Args[1:])
}

// Parse registers the server flags on fs and parses args. Environment
// variables supply the flag defaults.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	c := &Config{}
	var (
		starting, fee, policy, symbols string
	)

	fs.IntVar(&c.Port, "port", envInt("PORT", 8080), "HTTP listen port")
	fs.StringVar(&c.Host, "host", envStr("HOST", ""), "Listen host")

	fs.StringVar(&c.DatabaseURL, "database-url", envStr("DATABASE_URL", ""), "PostgreSQL connection string")
	fs.StringVar(&c.RedisURL, "redis-url", envStr("REDIS_URL", ""), "Redis URL (cache over the database, or the store itself)")
	fs.StringVar(&c.MongoURI, "mongo-uri", envStr("MONGO_URI", ""), "MongoDB connection URI")
	fs.DurationVar(&c.CacheTTL, "cache-ttl", envDuration("CACHE_TTL", 30*time.Second), "Redis read cache TTL")

	fs.StringVar(&starting, "starting-balance", envStr("STARTING_BALANCE", "10000"), "Cash a new player starts with")
	fs.StringVar(&fee, "fee", envStr("TRANSACTION_FEE", ledger.DefaultFee.String()), "Flat commission per trade")
	fs.StringVar(&policy, "sell-fee-policy", envStr("SELL_FEE_POLICY", "deduct"), "How sells absorb the fee: deduct or floor")

	fs.DurationVar(&c.UpdateInterval, "update-interval", envDuration("UPDATE_INTERVAL", 30*time.Second), "Price tick interval")
	fs.IntVar(&c.HistoryDays, "history-days", envInt("HISTORY_DAYS", 30), "Days of generated history per symbol")
	fs.Int64Var(&c.Seed, "seed", envInt64("GAME_SEED", 0), "PRNG seed (0 = random)")
	fs.StringVar(&c.PlayerName, "player-name", envStr("PLAYER_NAME", "Trader"), "Display name for a new player")
	fs.StringVar(&symbols, "symbols", envStr("SYMBOLS", ""), "Comma-separated tradable symbols (empty = default universe)")

	fs.StringVar(&c.FinnhubAPIKey, "finnhub-key", envStr("FINNHUB_API_KEY", ""), "Finnhub API key")
	fs.StringVar(&c.FinnhubBaseURL, "finnhub-url", envStr("FINNHUB_BASE_URL", "https://finnhub.io/api/v1"), "Finnhub API base URL")
	fs.StringVar(&c.AlpacaKeyID, "alpaca-key", envStr("APCA_API_KEY_ID", ""), "Alpaca API key ID")
	fs.StringVar(&c.AlpacaSecretKey, "alpaca-secret", envStr("APCA_API_SECRET_KEY", ""), "Alpaca API secret key")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if c.StartingBalance, err = positiveDecimal("starting balance", starting); err != nil {
		return nil, err
	}
	if c.TransactionFee, err = decimal.NewFromString(strings.TrimSpace(fee)); err != nil {
		return nil, fmt.Errorf("config: transaction fee: %w", err)
	}
	if c.TransactionFee.IsNegative() {
		return nil, errors.New("config: transaction fee must not be negative")
	}
	if c.FeePolicy, err = ledger.ParseFeePolicy(policy); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if c.UpdateInterval <= 0 {
		return nil, errors.New("config: update interval must be positive")
	}
	if c.HistoryDays < 1 {
		return nil, errors.New("config: history days must be at least 1")
	}
	if c.Symbols, err = parseSymbols(symbols); err != nil {
		return nil, err
	}
	return c, nil
}

func positiveDecimal(name, s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s: %w", name, err)
	}
	if !v.IsPositive() {
		return decimal.Zero, fmt.Errorf("config: %s must be positive", name)
	}
	return v, nil
}

func parseSymbols(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, err := symbol.Normalize(part)
		if err != nil {
			return nil, fmt.Errorf("config: symbols: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
