package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Connector modes.
const (
	ConnectorSimulated = "simulated"
	ConnectorREST      = "rest"
	ConnectorStream    = "stream"
)

// Storage modes.
const (
	StorageConsole  = "console"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Market data
	Symbols               []string
	Exchanges             []string
	ConnectorMode         string
	RESTBaseURLs          map[string]string
	StreamURL             string
	StreamExchange        string
	OrderbookDepth        int
	MaxConcurrentRequests int
	FetchTickers          bool
	ScanInterval          time.Duration
	OrderbookStaleness    time.Duration
	FundingStaleness      time.Duration
	SimSeed               int64
	SimVolatility         float64

	// WebSocket
	WSDialTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration

	// Arbitrage detection
	MinProfitThresholdPercent decimal.Decimal
	CandidateNotional         decimal.Decimal
	FeeRates                  map[string]decimal.Decimal
	DefaultFeeRate            decimal.Decimal
	OpportunityWindow         time.Duration
	CooldownWindow            time.Duration
	TickerPrefilter           bool
	// FundingVenues maps a spot exchange to the exchange quoting its perpetual.
	FundingVenues         map[string]string
	MinFundingRatePercent decimal.Decimal

	// Risk
	MaxPositionSize    decimal.Decimal
	MaxTotalExposure   decimal.Decimal
	MaxDrawdownPercent decimal.Decimal
	MaxLossPercent     decimal.Decimal
	MaxRiskScore       float64

	// Validation
	MaxPriceDeviationPercent decimal.Decimal

	// Portfolio
	InitialBalance        decimal.Decimal
	SnapshotInterval      time.Duration
	ExposureResetInterval time.Duration

	// Circuit breaker
	BreakerEnabled         bool
	BreakerCheckInterval   time.Duration
	BreakerTradeMultiplier decimal.Decimal
	BreakerMinBalance      decimal.Decimal
	BreakerHysteresisRatio decimal.Decimal

	// Storage
	StorageMode    string // "console", "postgres" or "redis"
	PostgresHost   string
	PostgresPort   string
	PostgresUser   string
	PostgresPass   string
	PostgresDB     string
	PostgresSSL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisStreamLen int64
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Market data defaults
		Symbols:               getListOrDefault("SYMBOLS", []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}),
		Exchanges:             getListOrDefault("EXCHANGES", []string{"binance", "kraken", "coinbase"}),
		ConnectorMode:         getEnvOrDefault("CONNECTOR_MODE", ConnectorSimulated),
		StreamURL:             getEnvOrDefault("STREAM_URL", "wss://stream.binance.com:9443/stream"),
		StreamExchange:        getEnvOrDefault("STREAM_EXCHANGE", "binance"),
		OrderbookDepth:        getIntOrDefault("ORDERBOOK_DEPTH", 20),
		MaxConcurrentRequests: getIntOrDefault("MAX_CONCURRENT_REQUESTS", 50),
		FetchTickers:          getBoolOrDefault("FETCH_TICKERS", false),
		ScanInterval:          getMillisOrDefault("SCAN_INTERVAL_MS", 500*time.Millisecond),
		OrderbookStaleness:    getMillisOrDefault("ORDERBOOK_STALENESS_MS", 100*time.Millisecond),
		FundingStaleness:      getDurationOrDefault("FUNDING_STALENESS", 60*time.Second),
		SimSeed:               int64(getIntOrDefault("SIM_SEED", 42)),
		SimVolatility:         getFloat64OrDefault("SIM_VOLATILITY", 0.0005),

		// WebSocket defaults
		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 30*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 1*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),

		// Arbitrage defaults
		MinProfitThresholdPercent: getDecimalOrDefault("MIN_PROFIT_THRESHOLD_PERCENT", "0.1"),
		CandidateNotional:         getDecimalOrDefault("CANDIDATE_NOTIONAL_USD", "1000"),
		DefaultFeeRate:            getDecimalOrDefault("DEFAULT_FEE_RATE", "0.001"),
		OpportunityWindow:         getDurationOrDefault("OPPORTUNITY_WINDOW", 5*time.Second),
		CooldownWindow:            getDurationOrDefault("COOLDOWN_WINDOW", 5*time.Second),
		TickerPrefilter:           getBoolOrDefault("TICKER_PREFILTER", false),
		MinFundingRatePercent:     getDecimalOrDefault("MIN_FUNDING_RATE_PERCENT", "0.01"),

		// Risk defaults
		MaxPositionSize:    getDecimalOrDefault("MAX_POSITION_SIZE_USD", "1000"),
		MaxTotalExposure:   getDecimalOrDefault("MAX_TOTAL_EXPOSURE_USD", "5000"),
		MaxDrawdownPercent: getDecimalOrDefault("MAX_DRAWDOWN_PERCENT", "10"),
		MaxLossPercent:     getDecimalOrDefault("MAX_LOSS_PERCENT", "10"),
		MaxRiskScore:       getFloat64OrDefault("MAX_RISK_SCORE", 0),

		// Validation defaults
		MaxPriceDeviationPercent: getDecimalOrDefault("MAX_PRICE_DEVIATION_PERCENT", "1"),

		// Portfolio defaults
		InitialBalance:        getDecimalOrDefault("INITIAL_BALANCE_USD", "10000"),
		SnapshotInterval:      getDurationOrDefault("SNAPSHOT_INTERVAL", 30*time.Second),
		ExposureResetInterval: getDurationOrDefault("EXPOSURE_RESET_INTERVAL", 24*time.Hour),

		// Circuit breaker defaults
		BreakerEnabled:         getBoolOrDefault("CIRCUIT_BREAKER_ENABLED", true),
		BreakerCheckInterval:   getDurationOrDefault("CIRCUIT_BREAKER_CHECK_INTERVAL", 5*time.Second),
		BreakerTradeMultiplier: getDecimalOrDefault("CIRCUIT_BREAKER_TRADE_MULTIPLIER", "3"),
		BreakerMinBalance:      getDecimalOrDefault("CIRCUIT_BREAKER_MIN_BALANCE_USD", "100"),
		BreakerHysteresisRatio: getDecimalOrDefault("CIRCUIT_BREAKER_HYSTERESIS_RATIO", "1.5"),

		// Storage defaults
		StorageMode:    getEnvOrDefault("STORAGE_MODE", StorageConsole),
		PostgresHost:   getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort:   getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser:   getEnvOrDefault("POSTGRES_USER", "arbitrage"),
		PostgresPass:   getEnvOrDefault("POSTGRES_PASSWORD", "arbitrage"),
		PostgresDB:     getEnvOrDefault("POSTGRES_DB", "arbitrage"),
		PostgresSSL:    getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		RedisAddr:      getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getIntOrDefault("REDIS_DB", 0),
		RedisStreamLen: int64(getIntOrDefault("REDIS_STREAM_MAXLEN", 10000)),
	}

	var err error
	cfg.FeeRates, err = ParseFeeRates(getEnvOrDefault("FEE_RATES", "binance:0.001,kraken:0.0026,coinbase:0.006"))
	if err != nil {
		return nil, fmt.Errorf("parse FEE_RATES: %w", err)
	}

	cfg.FundingVenues, err = ParsePairs(getEnvOrDefault("FUNDING_VENUES", "binance:binance-perp"))
	if err != nil {
		return nil, fmt.Errorf("parse FUNDING_VENUES: %w", err)
	}

	cfg.RESTBaseURLs, err = ParsePairs(getEnvOrDefault("REST_BASE_URLS",
		"binance:https://api.binance.com,binance-perp:https://fapi.binance.com"))
	if err != nil {
		return nil, fmt.Errorf("parse REST_BASE_URLS: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if len(c.Symbols) == 0 {
		return fmt.Errorf("SYMBOLS cannot be empty")
	}

	if len(c.Exchanges) == 0 {
		return fmt.Errorf("EXCHANGES cannot be empty")
	}

	switch c.ConnectorMode {
	case ConnectorSimulated:
	case ConnectorREST:
		for _, ex := range c.Exchanges {
			if c.RESTBaseURLs[ex] == "" {
				return fmt.Errorf("REST_BASE_URLS has no entry for exchange %q", ex)
			}
		}
	case ConnectorStream:
		if c.StreamURL == "" {
			return fmt.Errorf("STREAM_URL cannot be empty in stream mode")
		}
	default:
		return fmt.Errorf("CONNECTOR_MODE must be 'simulated', 'rest' or 'stream', got %q", c.ConnectorMode)
	}

	if c.OrderbookDepth <= 0 {
		return fmt.Errorf("ORDERBOOK_DEPTH must be positive, got %d", c.OrderbookDepth)
	}

	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_REQUESTS must be positive, got %d", c.MaxConcurrentRequests)
	}

	if c.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL_MS must be positive, got %v", c.ScanInterval)
	}

	if c.OrderbookStaleness <= 0 {
		return fmt.Errorf("ORDERBOOK_STALENESS_MS must be positive, got %v", c.OrderbookStaleness)
	}

	if c.MinProfitThresholdPercent.IsNegative() {
		return fmt.Errorf("MIN_PROFIT_THRESHOLD_PERCENT cannot be negative, got %s", c.MinProfitThresholdPercent)
	}

	if !c.CandidateNotional.IsPositive() {
		return fmt.Errorf("CANDIDATE_NOTIONAL_USD must be positive, got %s", c.CandidateNotional)
	}

	if c.DefaultFeeRate.IsNegative() {
		return fmt.Errorf("DEFAULT_FEE_RATE cannot be negative, got %s", c.DefaultFeeRate)
	}

	for ex, rate := range c.FeeRates {
		if rate.IsNegative() {
			return fmt.Errorf("FEE_RATES: rate for %q cannot be negative, got %s", ex, rate)
		}
	}

	if !c.MaxPositionSize.IsPositive() {
		return fmt.Errorf("MAX_POSITION_SIZE_USD must be positive, got %s", c.MaxPositionSize)
	}

	if c.MaxTotalExposure.LessThan(c.MaxPositionSize) {
		return fmt.Errorf("MAX_TOTAL_EXPOSURE_USD (%s) must be at least MAX_POSITION_SIZE_USD (%s)",
			c.MaxTotalExposure, c.MaxPositionSize)
	}

	hundred := decimal.NewFromInt(100)
	if !c.MaxDrawdownPercent.IsPositive() || c.MaxDrawdownPercent.GreaterThan(hundred) {
		return fmt.Errorf("MAX_DRAWDOWN_PERCENT must be in (0, 100], got %s", c.MaxDrawdownPercent)
	}

	if c.MaxLossPercent.IsNegative() || c.MaxLossPercent.GreaterThan(hundred) {
		return fmt.Errorf("MAX_LOSS_PERCENT must be in [0, 100], got %s", c.MaxLossPercent)
	}

	if c.MaxPriceDeviationPercent.IsNegative() {
		return fmt.Errorf("MAX_PRICE_DEVIATION_PERCENT cannot be negative, got %s", c.MaxPriceDeviationPercent)
	}

	if !c.InitialBalance.IsPositive() {
		return fmt.Errorf("INITIAL_BALANCE_USD must be positive, got %s", c.InitialBalance)
	}

	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("SNAPSHOT_INTERVAL must be positive, got %v", c.SnapshotInterval)
	}

	if c.BreakerEnabled {
		if c.BreakerCheckInterval <= 0 {
			return fmt.Errorf("CIRCUIT_BREAKER_CHECK_INTERVAL must be positive, got %v", c.BreakerCheckInterval)
		}
		if !c.BreakerTradeMultiplier.IsPositive() {
			return fmt.Errorf("CIRCUIT_BREAKER_TRADE_MULTIPLIER must be positive, got %s", c.BreakerTradeMultiplier)
		}
		if !c.BreakerMinBalance.IsPositive() {
			return fmt.Errorf("CIRCUIT_BREAKER_MIN_BALANCE_USD must be positive, got %s", c.BreakerMinBalance)
		}
		if c.BreakerHysteresisRatio.LessThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("CIRCUIT_BREAKER_HYSTERESIS_RATIO must be at least 1, got %s", c.BreakerHysteresisRatio)
		}
	}

	if c.StorageMode != StorageConsole && c.StorageMode != StoragePostgres && c.StorageMode != StorageRedis {
		return fmt.Errorf("STORAGE_MODE must be 'console', 'postgres' or 'redis', got %q", c.StorageMode)
	}

	return nil
}

// ParseFeeRates parses "exchange:rate" entries separated by commas, e.g.
// "binance:0.001,kraken:0.0026".
func ParseFeeRates(s string) (map[string]decimal.Decimal, error) {
	pairs, err := ParsePairs(s)
	if err != nil {
		return nil, err
	}

	rates := make(map[string]decimal.Decimal, len(pairs))
	for ex, raw := range pairs {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("rate for %q: %w", ex, err)
		}
		rates[ex] = rate
	}
	return rates, nil
}

// ParsePairs parses "key:value" entries separated by commas. Only the first
// colon splits an entry, so values may be URLs.
func ParsePairs(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, ok := strings.Cut(entry, ":")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("malformed entry %q, want key:value", entry)
		}
		out[key] = value
	}
	return out, nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

// getMillisOrDefault reads an integer number of milliseconds.
func getMillisOrDefault(key string, defaultValue time.Duration) time.Duration {
	ms := getIntOrDefault(key, -1)
	if ms < 0 {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}

// getDecimalOrDefault parses an exact decimal. defaultValue must be a valid
// decimal literal.
func getDecimalOrDefault(key string, defaultValue string) decimal.Decimal {
	value := os.Getenv(key)
	if value != "" {
		d, err := decimal.NewFromString(value)
		if err == nil {
			return d
		}
	}
	return decimal.RequireFromString(defaultValue)
}

func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
