package websocket

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReconnectConfig holds the exponential backoff settings.
type ReconnectConfig struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64 // 0.2 = up to 20% added
}

// ReconnectManager retries a connect function with exponential backoff and jitter.
type ReconnectManager struct {
	config ReconnectConfig
	logger *zap.Logger

	mu      sync.Mutex
	backoff time.Duration
}

// NewReconnectManager creates a reconnect manager. Zero fields fall back to
// 1s initial delay, 30s cap and a multiplier of 2.
func NewReconnectManager(cfg ReconnectConfig, logger *zap.Logger) *ReconnectManager {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = 30 * time.Second
		if cfg.MaxDelay < cfg.InitialDelay {
			cfg.MaxDelay = cfg.InitialDelay
		}
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReconnectManager{
		config:  cfg,
		logger:  logger,
		backoff: cfg.InitialDelay,
	}
}

// Reconnect waits out the current backoff and calls connect until it succeeds
// or ctx is done. A success resets the backoff.
func (rm *ReconnectManager) Reconnect(ctx context.Context, connect func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := ctx.Err()
		if err != nil {
			return err
		}

		wait := rm.nextBackoff()
		rm.logger.Info("attempting-reconnection",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait))
		ReconnectAttemptsTotal.Inc()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		err = connect(ctx)
		if err == nil {
			rm.Reset()
			rm.logger.Info("reconnection-successful", zap.Int("attempt", attempt))
			return nil
		}

		rm.logger.Warn("reconnection-failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
		ReconnectFailuresTotal.Inc()
		rm.grow()
	}
}

// Reset restores the initial delay.
func (rm *ReconnectManager) Reset() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.backoff = rm.config.InitialDelay
}

// Backoff returns the current delay before jitter.
func (rm *ReconnectManager) Backoff() time.Duration {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.backoff
}

func (rm *ReconnectManager) nextBackoff() time.Duration {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	jitter := rand.Float64() * rm.config.JitterPercent //nolint:gosec // jitter only
	return time.Duration(float64(rm.backoff) * (1 + jitter))
}

func (rm *ReconnectManager) grow() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	next := time.Duration(float64(rm.backoff) * rm.config.BackoffMultiplier)
	if next > rm.config.MaxDelay {
		next = rm.config.MaxDelay
	}
	rm.backoff = next
}
