// Package portfolio tracks the simulated account that paper trades settle
// against.
package portfolio

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Snapshot is a point-in-time copy of the portfolio. Callers own it.
type Snapshot struct {
	Cash          decimal.Decimal            `json:"cash"`
	Exposure      map[string]decimal.Decimal `json:"exposure"`
	TotalExposure decimal.Decimal            `json:"total_exposure"`
	RealizedPnL   decimal.Decimal            `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal            `json:"unrealized_pnl"`
	Equity        decimal.Decimal            `json:"equity"`
	InitialEquity decimal.Decimal            `json:"initial_equity"`
	PeakEquity    decimal.Decimal            `json:"peak_equity"`
	Drawdown      decimal.Decimal            `json:"drawdown"`
	MaxDrawdown   decimal.Decimal            `json:"max_drawdown"`
	TradeCount    int                        `json:"trade_count"`
	WinCount      int                        `json:"win_count"`
	LossCount     int                        `json:"loss_count"`
	WinRate       decimal.Decimal            `json:"win_rate"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

// PnLPercent returns realized PnL as a percent of initial equity.
func (s *Snapshot) PnLPercent() decimal.Decimal {
	if !s.InitialEquity.IsPositive() {
		return decimal.Zero
	}
	return s.RealizedPnL.Div(s.InitialEquity).Mul(decimal.NewFromInt(100))
}

// Symbols returns the symbols with non-zero exposure, sorted.
func (s *Snapshot) Symbols() []string {
	out := make([]string, 0, len(s.Exposure))
	for sym, amt := range s.Exposure {
		if !amt.IsZero() {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Snapshot) clone() Snapshot {
	c := *s
	c.Exposure = make(map[string]decimal.Decimal, len(s.Exposure))
	for k, v := range s.Exposure {
		c.Exposure[k] = v
	}
	return c
}

// Config holds portfolio configuration.
type Config struct {
	InitialBalance decimal.Decimal
	Logger         *zap.Logger
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
}

// Portfolio is the single mutable account aggregate. All mutations are
// serialized; each computes the next state on a copy and swaps it in.
type Portfolio struct {
	mu     sync.RWMutex
	state  Snapshot
	now    func() time.Time
	logger *zap.Logger
}

// New creates a portfolio holding InitialBalance in cash.
func New(cfg *Config) (*Portfolio, error) {
	if !cfg.InitialBalance.IsPositive() {
		return nil, fmt.Errorf("%w: initial balance must be positive, got %s",
			types.ErrInvalidInput, cfg.InitialBalance)
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Portfolio{
		state: Snapshot{
			Cash:          cfg.InitialBalance,
			Exposure:      make(map[string]decimal.Decimal),
			Equity:        cfg.InitialBalance,
			InitialEquity: cfg.InitialBalance,
			PeakEquity:    cfg.InitialBalance,
			UpdatedAt:     now(),
		},
		now:    now,
		logger: logger,
	}
	p.observe(&p.state)
	return p, nil
}

// Snapshot returns a copy of the current state.
func (p *Portfolio) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.clone()
}

// Apply settles trade. Trades that would not have executed leave the
// portfolio unchanged.
func (p *Portfolio) Apply(trade *types.Trade) (Snapshot, error) {
	if trade == nil {
		return Snapshot{}, fmt.Errorf("%w: nil trade", types.ErrInvalidInput)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !trade.WouldHaveExecuted {
		return p.state.clone(), nil
	}
	if trade.Notional.IsNegative() {
		return Snapshot{}, fmt.Errorf("%w: negative trade notional %s", types.ErrInvalidInput, trade.Notional)
	}

	next := p.state.clone()
	next.Cash = next.Cash.Add(trade.RealizedProfit)
	next.RealizedPnL = next.RealizedPnL.Add(trade.RealizedProfit)
	next.Exposure[trade.Symbol] = next.Exposure[trade.Symbol].Add(trade.Notional)
	next.TotalExposure = next.TotalExposure.Add(trade.Notional)

	next.TradeCount++
	if trade.IsWin() {
		next.WinCount++
	} else {
		next.LossCount++
	}
	next.WinRate = decimal.NewFromInt(int64(next.WinCount)).Div(decimal.NewFromInt(int64(next.TradeCount)))

	p.revalue(&next)

	p.state = next
	p.observe(&next)
	TradesAppliedTotal.Inc()

	p.logger.Debug("portfolio-updated",
		zap.String("trade-id", trade.ID),
		zap.String("realized-profit", trade.RealizedProfit.String()),
		zap.String("equity", next.Equity.String()),
		zap.String("drawdown", next.Drawdown.StringFixed(6)),
		zap.Int("trade-count", next.TradeCount))

	return next.clone(), nil
}

// ReleaseExposure reduces symbol's exposure by amount, flooring at zero.
func (p *Portfolio) ReleaseExposure(symbol string, amount decimal.Decimal) (Snapshot, error) {
	if amount.IsNegative() {
		return Snapshot{}, fmt.Errorf("%w: negative release amount %s", types.ErrInvalidInput, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.state.clone()
	current := next.Exposure[symbol]
	released := decimal.Min(current, amount)
	remaining := current.Sub(released)
	if remaining.IsZero() {
		delete(next.Exposure, symbol)
	} else {
		next.Exposure[symbol] = remaining
	}
	next.TotalExposure = next.TotalExposure.Sub(released)
	next.UpdatedAt = p.now()

	p.state = next
	p.observe(&next)
	return next.clone(), nil
}

// ResetExposure clears all exposure, as when positions are unwound at the end
// of a trading day.
func (p *Portfolio) ResetExposure() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.state.clone()
	next.Exposure = make(map[string]decimal.Decimal)
	next.TotalExposure = decimal.Zero
	next.UpdatedAt = p.now()

	p.state = next
	p.observe(&next)
	p.logger.Info("portfolio-exposure-reset")
	return next.clone()
}

// revalue recomputes equity, peak and drawdown on s.
func (p *Portfolio) revalue(s *Snapshot) {
	s.Equity = s.Cash.Add(s.UnrealizedPnL)
	if s.Equity.GreaterThan(s.PeakEquity) {
		s.PeakEquity = s.Equity
	}

	s.Drawdown = decimal.Zero
	if s.PeakEquity.IsPositive() {
		s.Drawdown = clampUnit(s.PeakEquity.Sub(s.Equity).Div(s.PeakEquity))
	}
	if s.Drawdown.GreaterThan(s.MaxDrawdown) {
		s.MaxDrawdown = s.Drawdown
	}
	s.UpdatedAt = p.now()
}

func (p *Portfolio) observe(s *Snapshot) {
	EquityUSD.Set(s.Equity.InexactFloat64())
	DrawdownRatio.Set(s.Drawdown.InexactFloat64())
	TotalExposureUSD.Set(s.TotalExposure.InexactFloat64())
}

func clampUnit(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return d
}
