package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// validConfig returns a configuration that passes Validate.
func validConfig() *Config {
	return &Config{
		HTTPPort:                  "8080",
		Symbols:                   []string{"BTC/USDT"},
		Exchanges:                 []string{"binance", "kraken"},
		ConnectorMode:             ConnectorSimulated,
		OrderbookDepth:            20,
		MaxConcurrentRequests:     50,
		ScanInterval:              500 * time.Millisecond,
		OrderbookStaleness:        100 * time.Millisecond,
		MinProfitThresholdPercent: decimal.RequireFromString("0.1"),
		CandidateNotional:         decimal.NewFromInt(1000),
		DefaultFeeRate:            decimal.RequireFromString("0.001"),
		FeeRates:                  map[string]decimal.Decimal{"binance": decimal.RequireFromString("0.001")},
		MaxPositionSize:           decimal.NewFromInt(1000),
		MaxTotalExposure:          decimal.NewFromInt(5000),
		MaxDrawdownPercent:        decimal.NewFromInt(10),
		MaxLossPercent:            decimal.NewFromInt(10),
		MaxPriceDeviationPercent:  decimal.NewFromInt(1),
		InitialBalance:            decimal.NewFromInt(10000),
		SnapshotInterval:          30 * time.Second,
		StorageMode:               StorageConsole,
	}
}

// ===== Comprehensive Validation Tests =====

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:   "empty-port",
			mutate: func(c *Config) { c.HTTPPort = "" },
			errMsg: "HTTP_PORT cannot be empty",
		},
		{
			name:   "no-symbols",
			mutate: func(c *Config) { c.Symbols = nil },
			errMsg: "SYMBOLS cannot be empty",
		},
		{
			name:   "no-exchanges",
			mutate: func(c *Config) { c.Exchanges = nil },
			errMsg: "EXCHANGES cannot be empty",
		},
		{
			name:   "unknown-connector-mode",
			mutate: func(c *Config) { c.ConnectorMode = "fix" },
			errMsg: `CONNECTOR_MODE must be 'simulated', 'rest' or 'stream', got "fix"`,
		},
		{
			name: "rest-mode-with-urls",
			mutate: func(c *Config) {
				c.ConnectorMode = ConnectorREST
				c.RESTBaseURLs = map[string]string{"binance": "http://a", "kraken": "http://b"}
			},
		},
		{
			name: "stream-mode-without-url",
			mutate: func(c *Config) {
				c.ConnectorMode = ConnectorStream
				c.StreamURL = ""
			},
			errMsg: "STREAM_URL cannot be empty in stream mode",
		},
		{
			name:   "zero-depth",
			mutate: func(c *Config) { c.OrderbookDepth = 0 },
			errMsg: "ORDERBOOK_DEPTH must be positive, got 0",
		},
		{
			name:   "zero-staleness",
			mutate: func(c *Config) { c.OrderbookStaleness = 0 },
			errMsg: "ORDERBOOK_STALENESS_MS must be positive, got 0s",
		},
		{
			name:   "negative-threshold",
			mutate: func(c *Config) { c.MinProfitThresholdPercent = decimal.NewFromInt(-1) },
			errMsg: "MIN_PROFIT_THRESHOLD_PERCENT cannot be negative, got -1",
		},
		{
			name:   "zero-threshold-allowed",
			mutate: func(c *Config) { c.MinProfitThresholdPercent = decimal.Zero },
		},
		{
			name:   "negative-fee-rate",
			mutate: func(c *Config) { c.FeeRates["kraken"] = decimal.RequireFromString("-0.001") },
			errMsg: `FEE_RATES: rate for "kraken" cannot be negative, got -0.001`,
		},
		{
			name:   "zero-position-size",
			mutate: func(c *Config) { c.MaxPositionSize = decimal.Zero },
			errMsg: "MAX_POSITION_SIZE_USD must be positive, got 0",
		},
		{
			name:   "exposure-below-position",
			mutate: func(c *Config) { c.MaxTotalExposure = decimal.NewFromInt(500) },
			errMsg: "MAX_TOTAL_EXPOSURE_USD (500) must be at least MAX_POSITION_SIZE_USD (1000)",
		},
		{
			name:   "drawdown-over-100",
			mutate: func(c *Config) { c.MaxDrawdownPercent = decimal.NewFromInt(101) },
			errMsg: "MAX_DRAWDOWN_PERCENT must be in (0, 100], got 101",
		},
		{
			name:   "stop-loss-disabled",
			mutate: func(c *Config) { c.MaxLossPercent = decimal.Zero },
		},
		{
			name:   "zero-balance",
			mutate: func(c *Config) { c.InitialBalance = decimal.Zero },
			errMsg: "INITIAL_BALANCE_USD must be positive, got 0",
		},
		{
			name: "breaker-disabled-skips-its-checks",
			mutate: func(c *Config) {
				c.BreakerEnabled = false
				c.BreakerCheckInterval = 0
			},
		},
		{
			name: "breaker-zero-check-interval",
			mutate: func(c *Config) {
				c.BreakerEnabled = true
				c.BreakerCheckInterval = 0
				c.BreakerTradeMultiplier = decimal.NewFromInt(3)
				c.BreakerMinBalance = decimal.NewFromInt(100)
				c.BreakerHysteresisRatio = decimal.RequireFromString("1.5")
			},
			errMsg: "CIRCUIT_BREAKER_CHECK_INTERVAL must be positive, got 0s",
		},
		{
			name: "breaker-hysteresis-below-one",
			mutate: func(c *Config) {
				c.BreakerEnabled = true
				c.BreakerCheckInterval = 5 * time.Second
				c.BreakerTradeMultiplier = decimal.NewFromInt(3)
				c.BreakerMinBalance = decimal.NewFromInt(100)
				c.BreakerHysteresisRatio = decimal.RequireFromString("0.5")
			},
			errMsg: "CIRCUIT_BREAKER_HYSTERESIS_RATIO must be at least 1, got 0.5",
		},
		{
			name:   "unknown-storage-mode",
			mutate: func(c *Config) { c.StorageMode = "s3" },
			errMsg: `STORAGE_MODE must be 'console', 'postgres' or 'redis', got "s3"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("expected error %q, got nil", tt.errMsg)
			} else if err.Error() != tt.errMsg {
				t.Errorf("expected error %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}
