// Package risk admits or rejects opportunities against position, exposure and
// drawdown limits, and scores the ones it sees.
package risk

import (
	"sync"
	"time"

	"github.com/digitalrebelz/arbitrage-app/internal/arbitrage"
	"github.com/digitalrebelz/arbitrage-app/internal/portfolio"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RejectReason is the limit an opportunity failed.
type RejectReason string

const (
	ReasonNone          RejectReason = ""
	ReasonDrawdownHalt  RejectReason = "drawdown_halt"
	ReasonPositionSize  RejectReason = "position_size"
	ReasonTotalExposure RejectReason = "total_exposure"
	ReasonStopLoss      RejectReason = "stop_loss"
)

const (
	defaultStalenessBound   = 100 * time.Millisecond
	defaultVolatilityWindow = 20
)

var hundred = decimal.NewFromInt(100)

// Limits are the hard limits enforced by Evaluate.
type Limits struct {
	MaxPositionSize           decimal.Decimal
	MaxTotalExposure          decimal.Decimal
	MaxDrawdownPercent        decimal.Decimal
	MinProfitThresholdPercent decimal.Decimal
	// MaxLossPercent is the realized loss, as a percent of initial equity,
	// that trips the stop-loss. Zero disables it.
	MaxLossPercent decimal.Decimal
	// MaxRiskScore above which PositionSize sizes to zero. Zero disables it.
	MaxRiskScore float64
}

// Config holds risk manager configuration.
type Config struct {
	Limits           Limits
	StalenessBound   time.Duration
	VolatilityWindow int
	Logger           *zap.Logger
}

// Decision is the outcome of Evaluate. Opportunity is always the scored copy.
type Decision struct {
	Admitted    bool
	Reason      RejectReason
	Detail      string
	Opportunity arbitrage.Opportunity
}

// Manager enforces risk limits. The drawdown halt latches until ClearHalt.
type Manager struct {
	limits    Limits
	staleness time.Duration
	window    int
	logger    *zap.Logger

	mu         sync.Mutex
	halted     bool
	haltReason RejectReason
	spreads    map[string]*spreadWindow
}

// New creates a risk manager.
func New(cfg *Config) *Manager {
	staleness := cfg.StalenessBound
	if staleness <= 0 {
		staleness = defaultStalenessBound
	}
	window := cfg.VolatilityWindow
	if window <= 1 {
		window = defaultVolatilityWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		limits:    cfg.Limits,
		staleness: staleness,
		window:    window,
		logger:    logger,
		spreads:   make(map[string]*spreadWindow),
	}
}

// Limits returns the configured limits.
func (m *Manager) Limits() Limits {
	return m.limits
}

// Evaluate checks opp against the limits given the portfolio state in snap.
func (m *Manager) Evaluate(opp *arbitrage.Opportunity, snap *portfolio.Snapshot) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	score := m.scoreLocked(opp)
	RiskScore.Observe(score)
	decision := Decision{Opportunity: opp.WithRiskScore(score)}

	reason, detail := m.checkLocked(opp, snap)
	if reason != ReasonNone {
		decision.Reason = reason
		decision.Detail = detail
		RejectionsTotal.WithLabelValues(string(reason)).Inc()
		m.logger.Warn("risk-rejected",
			zap.String("opportunity-id", opp.ID),
			zap.String("symbol", opp.Symbol),
			zap.String("reason", string(reason)),
			zap.String("detail", detail),
			zap.Float64("risk-score", score))
		return decision
	}

	decision.Admitted = true
	AdmittedTotal.Inc()
	return decision
}

func (m *Manager) checkLocked(opp *arbitrage.Opportunity, snap *portfolio.Snapshot) (RejectReason, string) {
	if m.halted {
		return m.haltReason, "halt latched"
	}

	if reason, detail := m.drawdownLocked(snap); reason != ReasonNone {
		return reason, detail
	}

	if opp.Notional.GreaterThan(m.limits.MaxPositionSize) {
		return ReasonPositionSize, opp.Notional.String() + " > " + m.limits.MaxPositionSize.String()
	}

	exposure := snap.TotalExposure.Add(opp.Notional)
	if exposure.GreaterThan(m.limits.MaxTotalExposure) {
		return ReasonTotalExposure, exposure.String() + " > " + m.limits.MaxTotalExposure.String()
	}

	if m.stopLossLocked(snap) {
		m.haltLocked(ReasonStopLoss, snap.RealizedPnL)
		return ReasonStopLoss, snap.RealizedPnL.String()
	}

	return ReasonNone, ""
}

func (m *Manager) drawdownLocked(snap *portfolio.Snapshot) (RejectReason, string) {
	drawdownPercent := snap.Drawdown.Mul(hundred)
	if m.limits.MaxDrawdownPercent.IsPositive() && drawdownPercent.GreaterThan(m.limits.MaxDrawdownPercent) {
		m.haltLocked(ReasonDrawdownHalt, drawdownPercent)
		return ReasonDrawdownHalt, drawdownPercent.StringFixed(4) + "%"
	}
	return ReasonNone, ""
}

// CheckHalt reports whether trading is halted for the portfolio state in
// snap. Like Evaluate, it latches the halt when the drawdown or stop-loss
// limit is breached.
func (m *Manager) CheckHalt(snap *portfolio.Snapshot) (RejectReason, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.halted {
		return m.haltReason, true
	}
	if reason, _ := m.drawdownLocked(snap); reason != ReasonNone {
		return reason, true
	}
	if m.stopLossLocked(snap) {
		m.haltLocked(ReasonStopLoss, snap.RealizedPnL)
		return ReasonStopLoss, true
	}
	return ReasonNone, false
}

// stopLossLocked reports whether realized losses reached MaxLossPercent of
// initial equity.
func (m *Manager) stopLossLocked(snap *portfolio.Snapshot) bool {
	if !m.limits.MaxLossPercent.IsPositive() || !snap.RealizedPnL.IsNegative() {
		return false
	}
	maxLoss := snap.InitialEquity.Mul(m.limits.MaxLossPercent).Div(hundred)
	return snap.RealizedPnL.Abs().GreaterThanOrEqual(maxLoss)
}

func (m *Manager) haltLocked(reason RejectReason, value decimal.Decimal) {
	m.halted = true
	m.haltReason = reason
	Halted.Set(1)
	m.logger.Error("trading-halted",
		zap.String("reason", string(reason)),
		zap.String("value", value.String()))
}

// Halted reports whether the halt is latched.
func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// HaltReason returns why trading is halted, or ReasonNone.
func (m *Manager) HaltReason() RejectReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.haltReason
}

// ClearHalt releases a latched halt. It is the only way to resume.
func (m *Manager) ClearHalt() {
	m.mu.Lock()
	wasHalted := m.halted
	m.halted = false
	m.haltReason = ReasonNone
	m.mu.Unlock()

	Halted.Set(0)
	if wasHalted {
		m.logger.Info("trading-halt-cleared")
	}
}

// PositionSize returns a risk-adjusted size for opp: the max position at the
// buy price, scaled down by risk score and up by profitability (at most 2x),
// capped by executable depth and by MaxLossPercent of equity.
func (m *Manager) PositionSize(opp *arbitrage.Opportunity, snap *portfolio.Snapshot) decimal.Decimal {
	if !opp.BuyPrice.IsPositive() {
		return decimal.Zero
	}
	if m.limits.MaxRiskScore > 0 && opp.RiskScore > m.limits.MaxRiskScore {
		return decimal.Zero
	}

	size := m.limits.MaxPositionSize.Div(opp.BuyPrice)
	size = size.Mul(decimal.NewFromFloat(1 - clamp01(opp.RiskScore)))

	profitMultiplier := decimal.Min(opp.NetProfitPercent.Div(decimal.NewFromFloat(0.5)), decimal.NewFromInt(2))
	if !profitMultiplier.IsPositive() {
		return decimal.Zero
	}
	size = size.Mul(profitMultiplier)

	if opp.MaxExecutableSize.IsPositive() {
		size = decimal.Min(size, opp.MaxExecutableSize)
	}
	if m.limits.MaxLossPercent.IsPositive() {
		maxLoss := snap.Equity.Mul(m.limits.MaxLossPercent).Div(hundred)
		size = decimal.Min(size, maxLoss.Div(opp.BuyPrice))
	}
	if size.IsNegative() {
		return decimal.Zero
	}
	return size.Truncate(8)
}

// Metrics is a read-only view of exposure against limits.
type Metrics struct {
	CurrentExposure    decimal.Decimal `json:"current_exposure"`
	MaxExposure        decimal.Decimal `json:"max_exposure"`
	ExposurePercent    decimal.Decimal `json:"exposure_percent"`
	DrawdownPercent    decimal.Decimal `json:"drawdown_percent"`
	MaxDrawdownPercent decimal.Decimal `json:"max_drawdown_percent"`
	MaxPositionSize    decimal.Decimal `json:"max_position_size"`
	RealizedPnL        decimal.Decimal `json:"realized_pnl"`
	WinRate            decimal.Decimal `json:"win_rate"`
	Halted             bool            `json:"halted"`
	HaltReason         RejectReason    `json:"halt_reason,omitempty"`
}

// Metrics summarizes snap against the configured limits.
func (m *Manager) Metrics(snap *portfolio.Snapshot) Metrics {
	m.mu.Lock()
	halted, reason := m.halted, m.haltReason
	m.mu.Unlock()

	exposurePercent := decimal.Zero
	if m.limits.MaxTotalExposure.IsPositive() {
		exposurePercent = snap.TotalExposure.Div(m.limits.MaxTotalExposure).Mul(hundred)
	}

	return Metrics{
		CurrentExposure:    snap.TotalExposure,
		MaxExposure:        m.limits.MaxTotalExposure,
		ExposurePercent:    exposurePercent,
		DrawdownPercent:    snap.Drawdown.Mul(hundred),
		MaxDrawdownPercent: m.limits.MaxDrawdownPercent,
		MaxPositionSize:    m.limits.MaxPositionSize,
		RealizedPnL:        snap.RealizedPnL,
		WinRate:            snap.WinRate,
		Halted:             halted,
		HaltReason:         reason,
	}
}
