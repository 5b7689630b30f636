// Package circuitbreaker stops paper execution when free capital runs low.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const tradeWindow = 20

// BalanceFetcher reports the capital available for new trades.
type BalanceFetcher interface {
	AvailableBalance(ctx context.Context) (decimal.Decimal, error)
}

// BalanceFunc adapts a function to BalanceFetcher.
type BalanceFunc func(ctx context.Context) (decimal.Decimal, error)

// AvailableBalance calls f.
func (f BalanceFunc) AvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	return f(ctx)
}

// BalanceCircuitBreaker disables execution when the available balance drops
// below a threshold derived from recent trade sizes, and re-enables it once
// the balance recovers past a higher threshold.
type BalanceCircuitBreaker struct {
	enabled atomic.Bool

	checkInterval   time.Duration
	balances        BalanceFetcher
	logger          *zap.Logger
	tradeMultiplier decimal.Decimal
	minAbsolute     decimal.Decimal
	hysteresisRatio decimal.Decimal
	now             func() time.Time

	mu               sync.RWMutex
	lastBalance      decimal.Decimal
	lastCheck        time.Time
	recentTrades     []decimal.Decimal
	disableThreshold decimal.Decimal
	enableThreshold  decimal.Decimal
}

// Config holds circuit breaker configuration.
type Config struct {
	CheckInterval time.Duration
	// TradeMultiplier scales the average trade notional into the disable
	// threshold.
	TradeMultiplier decimal.Decimal
	// MinAbsolute is the disable threshold floor in USD.
	MinAbsolute decimal.Decimal
	// HysteresisRatio sets the enable threshold as a multiple of the disable
	// threshold. Must be at least 1.
	HysteresisRatio decimal.Decimal
	Balances        BalanceFetcher
	Logger          *zap.Logger
	Clock           func() time.Time
}

// Status is the breaker state served over HTTP.
type Status struct {
	Enabled          bool            `json:"enabled"`
	LastBalance      decimal.Decimal `json:"last_balance"`
	LastCheck        time.Time       `json:"last_check"`
	DisableThreshold decimal.Decimal `json:"disable_threshold"`
	EnableThreshold  decimal.Decimal `json:"enable_threshold"`
	AvgTradeSize     decimal.Decimal `json:"avg_trade_size"`
	RecentTradeCount int             `json:"recent_trade_count"`
}

// New creates a circuit breaker. It starts enabled.
func New(cfg *Config) (*BalanceCircuitBreaker, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Balances == nil {
		return nil, errors.New("balance fetcher cannot be nil")
	}
	if cfg.CheckInterval <= 0 {
		return nil, errors.New("check interval must be positive")
	}
	if !cfg.TradeMultiplier.IsPositive() {
		return nil, errors.New("trade multiplier must be positive")
	}
	if !cfg.MinAbsolute.IsPositive() {
		return nil, errors.New("min absolute must be positive")
	}
	if cfg.HysteresisRatio.LessThan(decimal.NewFromInt(1)) {
		return nil, errors.New("hysteresis ratio must be >= 1.0")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	b := &BalanceCircuitBreaker{
		checkInterval:    cfg.CheckInterval,
		balances:         cfg.Balances,
		logger:           logger,
		tradeMultiplier:  cfg.TradeMultiplier,
		minAbsolute:      cfg.MinAbsolute,
		hysteresisRatio:  cfg.HysteresisRatio,
		now:              now,
		recentTrades:     make([]decimal.Decimal, 0, tradeWindow),
		disableThreshold: cfg.MinAbsolute,
		enableThreshold:  cfg.MinAbsolute.Mul(cfg.HysteresisRatio),
	}
	b.enabled.Store(true)

	Enabled.Set(1)
	DisableThreshold.Set(b.disableThreshold.InexactFloat64())
	EnableThreshold.Set(b.enableThreshold.InexactFloat64())
	AvgTradeSize.Set(0)

	return b, nil
}

// IsEnabled reports whether execution is allowed. Lock-free.
func (b *BalanceCircuitBreaker) IsEnabled() bool {
	return b.enabled.Load()
}

// RecordTrade adds an executed trade's notional to the rolling window and
// recalculates the thresholds.
func (b *BalanceCircuitBreaker) RecordTrade(notional decimal.Decimal) {
	if !notional.IsPositive() {
		b.logger.Warn("invalid-trade-size", zap.String("notional", notional.String()))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.recentTrades = append(b.recentTrades, notional)
	if len(b.recentTrades) > tradeWindow {
		b.recentTrades = b.recentTrades[1:]
	}

	avg := b.avgLocked()
	b.disableThreshold = decimal.Max(avg.Mul(b.tradeMultiplier), b.minAbsolute)
	b.enableThreshold = b.disableThreshold.Mul(b.hysteresisRatio)

	AvgTradeSize.Set(avg.InexactFloat64())
	DisableThreshold.Set(b.disableThreshold.InexactFloat64())
	EnableThreshold.Set(b.enableThreshold.InexactFloat64())

	b.logger.Debug("thresholds-updated",
		zap.String("avg-trade-size", avg.StringFixed(2)),
		zap.Int("trade-count", len(b.recentTrades)),
		zap.String("disable-threshold", b.disableThreshold.StringFixed(2)),
		zap.String("enable-threshold", b.enableThreshold.StringFixed(2)))
}

func (b *BalanceCircuitBreaker) avgLocked() decimal.Decimal {
	if len(b.recentTrades) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(decimal.Zero, b.recentTrades...).Div(decimal.NewFromInt(int64(len(b.recentTrades))))
}

// CheckBalance reads the available balance and updates the enabled state.
func (b *BalanceCircuitBreaker) CheckBalance(ctx context.Context) error {
	start := time.Now()
	defer func() {
		CheckDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	balance, err := b.balances.AvailableBalance(ctx)
	if err != nil {
		return fmt.Errorf("get available balance: %w", err)
	}

	b.mu.Lock()
	b.lastBalance = balance
	b.lastCheck = b.now()
	disableThreshold := b.disableThreshold
	enableThreshold := b.enableThreshold
	b.mu.Unlock()

	Balance.Set(balance.InexactFloat64())

	currentlyEnabled := b.enabled.Load()
	shouldDisable := currentlyEnabled && balance.LessThan(disableThreshold)
	shouldEnable := !currentlyEnabled && balance.GreaterThanOrEqual(enableThreshold)

	fields := []zap.Field{
		zap.String("balance", balance.StringFixed(2)),
		zap.String("disable-threshold", disableThreshold.StringFixed(2)),
		zap.String("enable-threshold", enableThreshold.StringFixed(2)),
	}

	switch {
	case shouldDisable:
		b.enabled.Store(false)
		Enabled.Set(0)
		StateChangesTotal.Inc()
		b.logger.Warn("circuit-breaker-disabled", fields...)
	case shouldEnable:
		b.enabled.Store(true)
		Enabled.Set(1)
		StateChangesTotal.Inc()
		b.logger.Info("circuit-breaker-enabled", fields...)
	default:
		b.logger.Debug("balance-checked", append(fields, zap.Bool("enabled", currentlyEnabled))...)
	}

	return nil
}

// Start checks the balance once and then every check interval until ctx is
// done.
func (b *BalanceCircuitBreaker) Start(ctx context.Context) {
	b.logger.Info("circuit-breaker-started",
		zap.Duration("check-interval", b.checkInterval),
		zap.String("trade-multiplier", b.tradeMultiplier.String()),
		zap.String("min-absolute", b.minAbsolute.String()),
		zap.String("hysteresis-ratio", b.hysteresisRatio.String()))

	err := b.CheckBalance(ctx)
	if err != nil {
		b.logger.Error("initial-balance-check-failed", zap.Error(err))
	}

	go b.monitorLoop(ctx)
}

func (b *BalanceCircuitBreaker) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(b.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("circuit-breaker-stopped")
			return
		case <-ticker.C:
			err := b.CheckBalance(ctx)
			if err != nil {
				b.logger.Error("balance-check-error", zap.Error(err))
			}
		}
	}
}

// Status returns the current breaker state.
func (b *BalanceCircuitBreaker) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Status{
		Enabled:          b.enabled.Load(),
		LastBalance:      b.lastBalance,
		LastCheck:        b.lastCheck,
		DisableThreshold: b.disableThreshold,
		EnableThreshold:  b.enableThreshold,
		AvgTradeSize:     b.avgLocked(),
		RecentTradeCount: len(b.recentTrades),
	}
}
