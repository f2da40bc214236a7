package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

type Config struct {
	DB

	JWTSecret string        `env:"JWT_SECRET,required"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`
	Port      int           `env:"PORT" envDefault:"8080"`
	LogLevel  string        `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv    string        `env:"APP_ENV" envDefault:"production"`

	Ledger

	QuoteProviderURL string        `env:"QUOTE_PROVIDER_URL" envDefault:"http://mock-quotes:8081"`
	QuoteTimeout     time.Duration `env:"QUOTE_TIMEOUT" envDefault:"5s"`
	QuoteRange       string        `env:"QUOTE_RANGE" envDefault:"5d"`
}

// DB is the subset ledgerctl needs.
type DB struct {
	DatabaseURL        string `env:"DATABASE_URL,required"`
	DBMaxOpenConns     int    `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int    `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int    `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int    `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
	DBConnectAttempts  int    `env:"DB_CONNECT_ATTEMPTS" envDefault:"10"`
}

type Ledger struct {
	Currency     string        `env:"LEDGER_CURRENCY" envDefault:"EUR"`
	MaxRetries   uint64        `env:"LEDGER_MAX_RETRIES" envDefault:"5"`
	RetryInitial time.Duration `env:"LEDGER_RETRY_INITIAL" envDefault:"10ms"`
	// TxLimit caps a single withdrawal, transfer or buy. Zero disables the cap.
	TxLimit decimal.Decimal `env:"TX_LIMIT" envDefault:"0"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.TxLimit.IsNegative() {
		return nil, fmt.Errorf("config.Load: TX_LIMIT must not be negative")
	}
	return &cfg, nil
}

func LoadDB() (*DB, error) {
	cfg, err := env.ParseAs[DB]()
	if err != nil {
		return nil, fmt.Errorf("config.LoadDB: %w", err)
	}
	return &cfg, nil
}
