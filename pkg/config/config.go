package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds environment-driven settings for the signal core.
type Config struct {
	// API surface
	APIAddr      string
	JWTSecret    string
	APIAccessKey string // shared key exchanged for JWTs

	// Binance
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string

	// KuCoin
	KuCoinAPIKey     string
	KuCoinAPISecret  string
	KuCoinPassphrase string

	// Execution
	TradeAmount   float64 // USDT notional per signal
	Leverage      int
	FixedFeeRate  float64 // taker fee used for breakeven math
	DryRun        bool
	TradeCooldown int // seconds between entries per (exchange, coin)

	// Routing
	TargetTraders   []string
	TraderMapFile   string
	DefaultExchange string

	// Symbol catalog
	SymbolCacheTTLMin int

	// Order shaping
	MakerTickOffset   int
	DefaultProtectPct float64 // default SL/TP distance when signal omits one

	// Follow-up matching and reconciliation
	TimestampToleranceMin int
	MatchConfidence       float64
	ReconcileLookbackH    int
	ReconcileIntervalSec  int
	AuditIntervalSec      int

	// HTTP client
	RequestTimeoutSec int

	// Database
	DBPath string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		APIAddr:               getEnv("API_ADDR", ":8080"),
		JWTSecret:             getEnv("API_JWT_SECRET", "dev-secret"),
		APIAccessKey:          getEnv("API_ACCESS_KEY", "dev-key"),
		BinanceTestnet:        getEnv("BINANCE_TESTNET", "false") == "true",
		BinanceAPIKey:         os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:      os.Getenv("BINANCE_API_SECRET"),
		KuCoinAPIKey:          os.Getenv("KUCOIN_API_KEY"),
		KuCoinAPISecret:       os.Getenv("KUCOIN_API_SECRET"),
		KuCoinPassphrase:      os.Getenv("KUCOIN_API_PASSPHRASE"),
		TradeAmount:           getEnvFloat("TRADE_AMOUNT", 100.0),
		Leverage:              getEnvInt("LEVERAGE", 5),
		FixedFeeRate:          getEnvFloat("FIXED_FEE_RATE", 0.0002),
		DryRun:                getEnv("DRY_RUN", "false") == "true",
		TradeCooldown:         getEnvInt("TRADE_COOLDOWN", 300),
		TargetTraders:         splitAndTrim(getEnv("TARGET_TRADERS", "")),
		TraderMapFile:         getEnv("TRADER_MAP_FILE", ""),
		DefaultExchange:       strings.ToLower(getEnv("DEFAULT_EXCHANGE", "binance")),
		SymbolCacheTTLMin:     getEnvInt("SYMBOL_CACHE_TTL_MIN", 10),
		MakerTickOffset:       getEnvInt("MAKER_TICK_OFFSET", 3),
		DefaultProtectPct:     getEnvFloat("DEFAULT_PROTECT_PCT", 0.05),
		TimestampToleranceMin: getEnvInt("TIMESTAMP_TOLERANCE_MIN", 5),
		MatchConfidence:       getEnvFloat("MATCH_CONFIDENCE", 0.6),
		ReconcileLookbackH:    getEnvInt("RECONCILE_LOOKBACK_H", 24),
		ReconcileIntervalSec:  getEnvInt("RECONCILE_INTERVAL_SEC", 60),
		AuditIntervalSec:      getEnvInt("AUDIT_INTERVAL_SEC", 300),
		RequestTimeoutSec:     getEnvInt("REQUEST_TIMEOUT_SEC", 10),
		DBPath:                getEnv("DB_PATH", "./data/signal-core.db"),
	}

	if cfg.TradeAmount <= 0 {
		return nil, fmt.Errorf("TRADE_AMOUNT must be positive, got %v", cfg.TradeAmount)
	}
	if cfg.DefaultExchange != "binance" && cfg.DefaultExchange != "kucoin" {
		return nil, fmt.Errorf("DEFAULT_EXCHANGE must be binance or kucoin, got %q", cfg.DefaultExchange)
	}
	return cfg, nil
}

// TraderMap maps a trader handle to the venue that executes their signals.
type TraderMap map[string]string

// LoadTraderMap reads the YAML trader→venue file. A missing path yields an
// empty map so routing falls back to the default exchange.
func LoadTraderMap(path string) (TraderMap, error) {
	if path == "" {
		return TraderMap{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return TraderMap{}, nil
		}
		return nil, fmt.Errorf("read trader map: %w", err)
	}
	var doc struct {
		Traders map[string]string `yaml:"traders"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse trader map: %w", err)
	}
	out := make(TraderMap, len(doc.Traders))
	for trader, venue := range doc.Traders {
		out[strings.ToLower(strings.TrimSpace(trader))] = strings.ToLower(strings.TrimSpace(venue))
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
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
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
