package risk

import (
	"testing"
	"time"

	"github.com/digitalrebelz/arbitrage-app/internal/arbitrage"
	"github.com/digitalrebelz/arbitrage-app/internal/portfolio"
	"github.com/digitalrebelz/arbitrage-app/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLimits() Limits {
	return Limits{
		MaxPositionSize:           testutil.Dec("1000"),
		MaxTotalExposure:          testutil.Dec("5000"),
		MaxDrawdownPercent:        testutil.Dec("10"),
		MinProfitThresholdPercent: testutil.Dec("0.1"),
		MaxLossPercent:            testutil.Dec("10"),
	}
}

func newTestManager(limits Limits) *Manager {
	return New(&Config{
		Limits:         limits,
		StalenessBound: 100 * time.Millisecond,
		Logger:         zap.NewNop(),
	})
}

func freshSnapshot() portfolio.Snapshot {
	return portfolio.Snapshot{
		Cash:          testutil.Dec("10000"),
		Equity:        testutil.Dec("10000"),
		InitialEquity: testutil.Dec("10000"),
		PeakEquity:    testutil.Dec("10000"),
	}
}

func testOpportunity(notional string) arbitrage.Opportunity {
	opp := arbitrage.CreateTestOpportunity("BTC/USDT", "binance", "kraken", time.Now())
	opp.Notional = testutil.Dec(notional)
	return opp
}

func TestManager_Evaluate_Limits(t *testing.T) {
	tests := []struct {
		name     string
		limits   func(l *Limits)
		snapshot func(s *portfolio.Snapshot)
		notional string
		admitted bool
		reason   RejectReason
	}{
		{
			name:     "within all limits",
			notional: "100",
			admitted: true,
		},
		{
			name:     "position exactly at limit is accepted",
			notional: "1000",
			admitted: true,
		},
		{
			name:     "position above limit",
			notional: "1000.01",
			reason:   ReasonPositionSize,
		},
		{
			name:     "exposure would exceed limit",
			limits:   func(l *Limits) { l.MaxTotalExposure = testutil.Dec("10000") },
			snapshot: func(s *portfolio.Snapshot) { s.TotalExposure = testutil.Dec("9900") },
			notional: "200",
			reason:   ReasonTotalExposure,
		},
		{
			name:     "exposure reaching limit exactly is accepted",
			limits:   func(l *Limits) { l.MaxTotalExposure = testutil.Dec("10000") },
			snapshot: func(s *portfolio.Snapshot) { s.TotalExposure = testutil.Dec("9900") },
			notional: "100",
			admitted: true,
		},
		{
			name:     "drawdown at limit is not a halt",
			snapshot: func(s *portfolio.Snapshot) { s.Drawdown = testutil.Dec("0.10") },
			notional: "100",
			admitted: true,
		},
		{
			name:     "drawdown above limit halts",
			snapshot: func(s *portfolio.Snapshot) { s.Drawdown = testutil.Dec("0.11") },
			notional: "100",
			reason:   ReasonDrawdownHalt,
		},
		{
			name:     "realized loss reaches stop loss",
			snapshot: func(s *portfolio.Snapshot) { s.RealizedPnL = testutil.Dec("-1000") },
			notional: "100",
			reason:   ReasonStopLoss,
		},
		{
			name:     "realized loss below stop loss",
			snapshot: func(s *portfolio.Snapshot) { s.RealizedPnL = testutil.Dec("-999.99") },
			notional: "100",
			admitted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits := testLimits()
			if tt.limits != nil {
				tt.limits(&limits)
			}
			snap := freshSnapshot()
			if tt.snapshot != nil {
				tt.snapshot(&snap)
			}
			m := newTestManager(limits)
			opp := testOpportunity(tt.notional)

			d := m.Evaluate(&opp, &snap)

			assert.Equal(t, tt.admitted, d.Admitted)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, opp.ID, d.Opportunity.ID)
		})
	}
}

func TestManager_DrawdownHaltLatches(t *testing.T) {
	m := newTestManager(testLimits())
	opp := testOpportunity("100")

	deep := freshSnapshot()
	deep.Drawdown = testutil.Dec("0.2")
	d := m.Evaluate(&opp, &deep)
	require.False(t, d.Admitted)
	assert.Equal(t, ReasonDrawdownHalt, d.Reason)
	assert.True(t, m.Halted())

	recovered := freshSnapshot()
	d = m.Evaluate(&opp, &recovered)
	assert.False(t, d.Admitted, "halt stays latched after recovery")
	assert.Equal(t, ReasonDrawdownHalt, d.Reason)

	m.ClearHalt()
	assert.False(t, m.Halted())
	assert.Equal(t, ReasonNone, m.HaltReason())

	d = m.Evaluate(&opp, &recovered)
	assert.True(t, d.Admitted)
}

func TestManager_StopLossLatches(t *testing.T) {
	m := newTestManager(testLimits())
	opp := testOpportunity("100")

	losing := freshSnapshot()
	losing.RealizedPnL = testutil.Dec("-1500")
	d := m.Evaluate(&opp, &losing)
	assert.Equal(t, ReasonStopLoss, d.Reason)
	assert.Equal(t, ReasonStopLoss, m.HaltReason())

	fresh := freshSnapshot()
	d = m.Evaluate(&opp, &fresh)
	assert.False(t, d.Admitted)
	assert.Equal(t, ReasonStopLoss, d.Reason)
}

func TestManager_CheckHalt(t *testing.T) {
	tests := []struct {
		name     string
		snapshot func(s *portfolio.Snapshot)
		halted   bool
		reason   RejectReason
	}{
		{
			name:     "healthy portfolio",
			snapshot: func(*portfolio.Snapshot) {},
		},
		{
			name:     "drawdown beyond limit",
			snapshot: func(s *portfolio.Snapshot) { s.Drawdown = testutil.Dec("0.15") },
			halted:   true,
			reason:   ReasonDrawdownHalt,
		},
		{
			name:     "realized loss at stop-loss",
			snapshot: func(s *portfolio.Snapshot) { s.RealizedPnL = testutil.Dec("-1000") },
			halted:   true,
			reason:   ReasonStopLoss,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(testLimits())
			snap := freshSnapshot()
			tt.snapshot(&snap)

			reason, halted := m.CheckHalt(&snap)
			assert.Equal(t, tt.halted, halted)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.halted, m.Halted(), "breach latches the halt")
		})
	}
}

func TestManager_CheckHaltHonoursLatch(t *testing.T) {
	m := newTestManager(testLimits())
	deep := freshSnapshot()
	deep.Drawdown = testutil.Dec("0.2")
	_, halted := m.CheckHalt(&deep)
	require.True(t, halted)

	fresh := freshSnapshot()
	reason, halted := m.CheckHalt(&fresh)
	assert.True(t, halted)
	assert.Equal(t, ReasonDrawdownHalt, reason)

	m.ClearHalt()
	_, halted = m.CheckHalt(&fresh)
	assert.False(t, halted)
}

func TestManager_ScoreIsAdvisory(t *testing.T) {
	m := newTestManager(testLimits())
	opp := testOpportunity("100")
	opp.DataAge = time.Second
	opp.MaxExecutableSize = testutil.Dec("0")

	snap := freshSnapshot()
	d := m.Evaluate(&opp, &snap)

	assert.True(t, d.Admitted)
	assert.InDelta(t, 0.6, d.Opportunity.RiskScore, 1e-9)
	assert.Equal(t, 0.0, opp.RiskScore, "input opportunity is not mutated")
}

func TestManager_ScoreComponents(t *testing.T) {
	m := newTestManager(testLimits())
	snap := freshSnapshot()

	first := testOpportunity("100")
	first.SpreadPercent = testutil.Dec("1")
	d := m.Evaluate(&first, &snap)
	assert.InDelta(t, 0.0, d.Opportunity.RiskScore, 1e-9, "single sample, fresh, fully fillable")

	second := testOpportunity("100")
	second.SpreadPercent = testutil.Dec("3")
	second.DataAge = 50 * time.Millisecond
	second.MaxExecutableSize = testutil.Dec("0.5")
	d = m.Evaluate(&second, &snap)

	// volatility: mean 2, stddev 1 -> 0.5; staleness 0.5; thinness 0.5
	assert.InDelta(t, 0.4*0.5+0.3*0.5+0.3*0.5, d.Opportunity.RiskScore, 1e-9)
}

func TestScore_Bounds(t *testing.T) {
	tests := []struct {
		name       string
		volatility float64
		age        time.Duration
		thinness   float64
		want       float64
	}{
		{name: "all zero", want: 0},
		{name: "all saturated", volatility: 5, age: time.Hour, thinness: 2, want: 1},
		{name: "negative inputs clamp", volatility: -1, age: -time.Second, thinness: -1, want: 0},
		{name: "staleness only", age: 100 * time.Millisecond, want: 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.volatility, tt.age, 100*time.Millisecond, tt.thinness)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSpreadWindow_Wraps(t *testing.T) {
	w := newSpreadWindow(3)
	for _, v := range []float64{100, 1, 1, 1} {
		w.add(v)
	}
	assert.Len(t, w.samples(), 3)
	assert.InDelta(t, 0.0, w.coefficientOfVariation(), 1e-12, "outlier evicted")
}

func TestManager_PositionSize(t *testing.T) {
	m := newTestManager(testLimits())
	snap := freshSnapshot()

	opp := testOpportunity("100")
	// base 1000/100 = 10, profit multiplier capped at 2, executable cap 1
	assert.True(t, m.PositionSize(&opp, &snap).Equal(testutil.Dec("1")))

	opp.MaxExecutableSize = testutil.Dec("100")
	// 20 before the loss cap; 10% of 10000 equity at 100 is 10
	assert.True(t, m.PositionSize(&opp, &snap).Equal(testutil.Dec("10")))

	opp.NetProfitPercent = testutil.Dec("-0.1")
	assert.True(t, m.PositionSize(&opp, &snap).IsZero())

	limits := testLimits()
	limits.MaxRiskScore = 0.5
	strict := newTestManager(limits)
	risky := testOpportunity("100")
	risky = risky.WithRiskScore(0.6)
	assert.True(t, strict.PositionSize(&risky, &snap).IsZero())
}

func TestManager_Metrics(t *testing.T) {
	m := newTestManager(testLimits())
	snap := freshSnapshot()
	snap.TotalExposure = testutil.Dec("2500")
	snap.Drawdown = testutil.Dec("0.05")

	got := m.Metrics(&snap)
	assert.True(t, got.ExposurePercent.Equal(testutil.Dec("50")))
	assert.True(t, got.DrawdownPercent.Equal(testutil.Dec("5")))
	assert.False(t, got.Halted)
}
