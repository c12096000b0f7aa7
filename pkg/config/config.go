package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading engine.
type Config struct {
	// Binance USDT-M futures
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string

	// Execution
	ExecutionEnabled bool
	PendingOrderTTL  time.Duration
	SignalQueueSize  int

	// Risk limits
	MaxOrderNotional float64
	MinOrderNotional float64
	MaxDailyTrades   int
	MaxDailyLoss     float64
	MaxOpenPositions int

	// Reconciliation
	ReconcileInterval time.Duration

	// Database
	DBPath string

	// Strategy configuration file
	StrategyConfigPath string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/trading.db")
	}

	return &Config{
		BinanceTestnet:     getEnv("BINANCE_TESTNET", "false") == "true",
		BinanceAPIKey:      os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:   os.Getenv("BINANCE_API_SECRET"),
		ExecutionEnabled:   getEnv("EXECUTION_ENABLED", "true") == "true",
		PendingOrderTTL:    getEnvDuration("PENDING_ORDER_TTL", 30*time.Second),
		SignalQueueSize:    getEnvInt("SIGNAL_QUEUE_SIZE", 1024),
		MaxOrderNotional:   getEnvFloat("MAX_ORDER_NOTIONAL", 100000),
		MinOrderNotional:   getEnvFloat("MIN_ORDER_NOTIONAL", 5),
		MaxDailyTrades:     getEnvInt("MAX_DAILY_TRADES", 500),
		MaxDailyLoss:       getEnvFloat("MAX_DAILY_LOSS", 5000),
		MaxOpenPositions:   getEnvInt("MAX_OPEN_POSITIONS", 20),
		ReconcileInterval:  getEnvDuration("RECONCILE_INTERVAL", time.Minute),
		DBPath:             dbPath,
		StrategyConfigPath: getEnv("STRATEGY_CONFIG_PATH", "./configs/strategies.yaml"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
