package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/digitalrebelz/arbitrage-app/internal/arbitrage"
	"github.com/digitalrebelz/arbitrage-app/internal/portfolio"
	"github.com/digitalrebelz/arbitrage-app/internal/risk"
	"github.com/digitalrebelz/arbitrage-app/internal/slippage"
	"github.com/digitalrebelz/arbitrage-app/internal/validation"
	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultRecentTrades = 100

// ErrHalted is returned by Execute when the halt gate refuses new trades.
var ErrHalted = errors.New("trading halted")

// Validator decides whether an opportunity would have executed.
type Validator interface {
	Validate(opp *arbitrage.Opportunity, at time.Time) validation.Result
}

// HaltGate decides whether new trades may be simulated for a portfolio state.
type HaltGate interface {
	CheckHalt(snap *portfolio.Snapshot) (risk.RejectReason, bool)
}

// Storage is the interface for storing trades.
type Storage interface {
	StoreTrade(ctx context.Context, trade *types.Trade) error
}

// PaperTrader simulates execution of admitted opportunities. It never
// transmits an order; its whole output is the Trade record and the
// portfolio update.
type PaperTrader struct {
	logger          *zap.Logger
	validator       Validator
	portfolio       *portfolio.Portfolio
	storage         Storage
	opportunityChan <-chan *arbitrage.Opportunity
	onExecuted      func(trade *types.Trade)
	onSettled       func(opp *arbitrage.Opportunity)
	gate            HaltGate
	now             func() time.Time
	ctx             context.Context
	wg              sync.WaitGroup

	mu          sync.Mutex
	recent      []types.Trade
	recentLimit int
	recentNext  int
	wrapped     bool
}

// Config holds paper trader configuration.
type Config struct {
	Validator          Validator
	Portfolio          *portfolio.Portfolio
	Storage            Storage // optional
	OpportunityChannel <-chan *arbitrage.Opportunity
	RecentTrades       int
	// OnExecuted is called after a trade that would have executed settles.
	OnExecuted func(trade *types.Trade)
	// OnSettled is called once the execution loop is done with an
	// opportunity, whatever the outcome.
	OnSettled func(opp *arbitrage.Opportunity)
	// Gate is consulted before each simulation. Optional.
	Gate   HaltGate
	Logger *zap.Logger
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
}

// New creates a new paper trader.
func New(cfg *Config) *PaperTrader {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	limit := cfg.RecentTrades
	if limit <= 0 {
		limit = defaultRecentTrades
	}

	return &PaperTrader{
		logger:          logger,
		validator:       cfg.Validator,
		portfolio:       cfg.Portfolio,
		storage:         cfg.Storage,
		opportunityChan: cfg.OpportunityChannel,
		onExecuted:      cfg.OnExecuted,
		onSettled:       cfg.OnSettled,
		gate:            cfg.Gate,
		now:             now,
		recent:          make([]types.Trade, 0, limit),
		recentLimit:     limit,
	}
}

// Start starts consuming the opportunity channel.
func (p *PaperTrader) Start(ctx context.Context) error {
	if p.opportunityChan == nil {
		return fmt.Errorf("paper trader has no opportunity channel")
	}
	p.ctx = ctx
	p.logger.Info("paper-trader-starting")

	p.wg.Add(1)
	go p.executionLoop()

	return nil
}

// executionLoop is the portfolio's single writer.
func (p *PaperTrader) executionLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Info("paper-trader-stopping")
			return
		case opp, ok := <-p.opportunityChan:
			if !ok {
				p.logger.Info("opportunity-channel-closed")
				return
			}

			OpportunitiesReceived.Inc()
			start := time.Now()
			_, err := p.Execute(p.ctx, opp)
			ExecutionDurationSeconds.Observe(time.Since(start).Seconds())

			switch {
			case errors.Is(err, ErrHalted):
				p.logger.Warn("opportunity-skipped-halted",
					zap.String("opportunity-id", opp.ID),
					zap.Error(err))
			case err != nil:
				p.logger.Error("execution-failed",
					zap.String("opportunity-id", opp.ID),
					zap.Error(err))
				ExecutionErrorsTotal.Inc()
			}

			if p.onSettled != nil {
				p.onSettled(opp)
			}
		}
	}
}

// Execute validates opp and settles the resulting trade. A trade that would
// not have executed is still recorded. If ctx is done before the portfolio
// commit, nothing is applied and the context error is returned. When the gate
// reports a halt, nothing is simulated and ErrHalted is returned.
func (p *PaperTrader) Execute(ctx context.Context, opp *arbitrage.Opportunity) (types.Trade, error) {
	if p.gate != nil {
		snap := p.portfolio.Snapshot()
		if reason, halted := p.gate.CheckHalt(&snap); halted {
			OpportunitiesSkippedTotal.WithLabelValues("halted").Inc()
			return types.Trade{}, fmt.Errorf("execute opportunity %s: %w (%s)", opp.ID, ErrHalted, reason)
		}
	}

	decidedAt := p.now()
	res := p.validator.Validate(opp, decidedAt)

	trade := p.buildTrade(opp, &res, decidedAt)

	err := ctx.Err()
	if err != nil {
		OpportunitiesSkippedTotal.WithLabelValues("cancelled").Inc()
		return types.Trade{}, fmt.Errorf("execute opportunity %s: %w", opp.ID, err)
	}

	var snap portfolio.Snapshot
	if trade.WouldHaveExecuted {
		snap, err = p.portfolio.Apply(&trade)
		if err != nil {
			return types.Trade{}, fmt.Errorf("apply trade %s: %w", trade.ID, err)
		}
		OpportunitiesExecuted.Inc()
		ProfitRealizedUSD.WithLabelValues(string(trade.Kind)).Add(trade.RealizedProfit.InexactFloat64())
		if p.onExecuted != nil {
			p.onExecuted(&trade)
		}
	} else {
		OpportunitiesSkippedTotal.WithLabelValues(string(trade.Verdict)).Inc()
	}
	TradesTotal.WithLabelValues(string(trade.Kind), outcomeLabel(&trade)).Inc()

	p.remember(trade)

	if p.storage != nil {
		storeErr := p.storage.StoreTrade(ctx, &trade)
		if storeErr != nil {
			p.logger.Error("failed-to-store-trade",
				zap.String("trade-id", trade.ID),
				zap.Error(storeErr))
		}
	}

	if trade.WouldHaveExecuted {
		p.logger.Info("paper-trade-executed",
			zap.String("trade-id", trade.ID),
			zap.String("opportunity-id", opp.ID),
			zap.String("kind", string(trade.Kind)),
			zap.String("symbol", trade.Symbol),
			zap.String("buy-exchange", trade.BuyOrder.Exchange),
			zap.String("sell-exchange", trade.SellOrder.Exchange),
			zap.String("size", trade.FilledSize.String()),
			zap.String("buy-price", trade.BuyOrder.FillPrice.String()),
			zap.String("sell-price", trade.SellOrder.FillPrice.String()),
			zap.String("profit-usd", trade.RealizedProfit.StringFixed(6)),
			zap.String("equity-usd", snap.Equity.StringFixed(2)))
	} else {
		p.logger.Info("paper-trade-not-executed",
			zap.String("trade-id", trade.ID),
			zap.String("opportunity-id", opp.ID),
			zap.String("symbol", trade.Symbol),
			zap.String("verdict", string(trade.Verdict)),
			zap.String("reason", trade.Reason))
	}

	return trade, nil
}

func (p *PaperTrader) buildTrade(opp *arbitrage.Opportunity, res *validation.Result, decidedAt time.Time) types.Trade {
	trade := types.Trade{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		Kind:          opp.Kind,
		Symbol:        opp.Symbol,
		Verdict:       res.Verdict,
		Reason:        string(res.Reason),
		DecidedAt:     decidedAt,
		BuyOrder:      p.order(opp, types.SideBuy, opp.BuyExchange, opp.BuyPrice, res.BuyBookTimestamp),
		SellOrder:     p.order(opp, types.SideSell, opp.SellExchange, opp.SellPrice, res.SellBookTimestamp),
	}

	if !res.WouldHaveExecuted() {
		return trade
	}

	size := res.Size
	fillLeg(&trade.BuyOrder, res.BuyFill, size, res.Profit.BuyFee)
	fillLeg(&trade.SellOrder, res.SellFill, size, res.Profit.SellFee)

	trade.WouldHaveExecuted = true
	trade.FilledSize = size
	trade.FillPrice = res.BuyFill.VWAP
	trade.Notional = res.Profit.Notional
	trade.GrossProfit = res.Profit.GrossProfit
	trade.Fees = res.Profit.Fees
	trade.SlippageCost = res.BuyFill.SlippageCost.Add(res.SellFill.SlippageCost)
	trade.RealizedProfit = res.Profit.NetProfit
	trade.RealizedProfitPercent = res.Profit.NetProfitPercent
	trade.FilledAt = p.now()

	return trade
}

// order builds a market order leg as requested, before any fill.
func (p *PaperTrader) order(opp *arbitrage.Opportunity, side types.Side, exchange string, quoted decimal.Decimal, bookTS time.Time) types.SimulatedOrder {
	return types.SimulatedOrder{
		ID:            uuid.New().String(),
		Side:          side,
		Exchange:      exchange,
		Symbol:        opp.Symbol,
		Type:          types.OrderTypeMarket,
		RequestedSize: opp.Size,
		LimitPrice:    quoted,
		BookTimestamp: bookTS,
	}
}

func fillLeg(o *types.SimulatedOrder, fill slippage.Fill, size, fee decimal.Decimal) {
	o.FilledSize = size
	o.FillPrice = fill.VWAP
	o.Fee = fee
	o.SlippageCost = fill.SlippageCost
	o.FullyFilled = fill.FullyFilled && size.Equal(o.RequestedSize)
}

func outcomeLabel(t *types.Trade) string {
	switch {
	case !t.WouldHaveExecuted:
		return string(t.Verdict)
	case t.IsWin():
		return "win"
	default:
		return "loss"
	}
}

func (p *PaperTrader) remember(trade types.Trade) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.recent) < p.recentLimit {
		p.recent = append(p.recent, trade)
		return
	}
	p.recent[p.recentNext] = trade
	p.recentNext = (p.recentNext + 1) % p.recentLimit
	p.wrapped = true
}

// RecentTrades returns up to the configured number of most recent trades,
// oldest first.
func (p *PaperTrader) RecentTrades() []types.Trade {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]types.Trade, 0, len(p.recent))
	if !p.wrapped {
		return append(out, p.recent...)
	}
	out = append(out, p.recent[p.recentNext:]...)
	return append(out, p.recent[:p.recentNext]...)
}

// Portfolio returns the portfolio the trader settles into.
func (p *PaperTrader) Portfolio() *portfolio.Portfolio {
	return p.portfolio
}

// Close waits for the execution loop to stop.
func (p *PaperTrader) Close() error {
	p.logger.Info("closing-paper-trader")
	p.wg.Wait()

	snap := p.portfolio.Snapshot()
	p.logger.Info("paper-trader-closed",
		zap.String("realized-pnl-usd", snap.RealizedPnL.StringFixed(2)),
		zap.String("equity-usd", snap.Equity.StringFixed(2)),
		zap.Int("trade-count", snap.TradeCount))

	return nil
}
