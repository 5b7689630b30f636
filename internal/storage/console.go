package storage

import (
	"context"

	"github.com/digitalrebelz/arbitrage-app/internal/arbitrage"
	"github.com/digitalrebelz/arbitrage-app/internal/portfolio"
	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"go.uber.org/zap"
)

// ConsoleSink implements Sink by writing structured log lines.
type ConsoleSink struct {
	logger *zap.Logger
}

// NewConsoleSink creates a new console sink.
func NewConsoleSink(logger *zap.Logger) *ConsoleSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("console-storage-initialized")
	return &ConsoleSink{logger: logger}
}

// StoreOpportunity logs an arbitrage opportunity.
func (c *ConsoleSink) StoreOpportunity(_ context.Context, opp *arbitrage.Opportunity) error {
	fields := []zap.Field{
		zap.String("opportunity-id", opp.ID),
		zap.String("kind", string(opp.Kind)),
		zap.String("symbol", opp.Symbol),
		zap.String("buy-exchange", opp.BuyExchange),
		zap.String("sell-exchange", opp.SellExchange),
		zap.String("buy-price", opp.BuyPrice.String()),
		zap.String("sell-price", opp.SellPrice.String()),
		zap.String("size", opp.Size.String()),
		zap.String("net-profit-usd", opp.NetProfit.StringFixed(6)),
		zap.String("net-profit-pct", opp.NetProfitPercent.StringFixed(4)),
		zap.Float64("risk-score", opp.RiskScore),
		zap.Time("detected-at", opp.DetectedAt),
	}
	if opp.IsFunding() {
		fields = append(fields,
			zap.String("funding-rate", opp.Funding.Rate.String()),
			zap.String("direction", opp.Funding.Direction))
	}

	c.logger.Info("opportunity-recorded", fields...)
	return nil
}

// StoreTrade logs a paper trade.
func (c *ConsoleSink) StoreTrade(_ context.Context, trade *types.Trade) error {
	c.logger.Info("trade-recorded",
		zap.String("trade-id", trade.ID),
		zap.String("opportunity-id", trade.OpportunityID),
		zap.String("symbol", trade.Symbol),
		zap.String("verdict", string(trade.Verdict)),
		zap.String("reason", trade.Reason),
		zap.String("filled-size", trade.FilledSize.String()),
		zap.String("realized-profit-usd", trade.RealizedProfit.StringFixed(6)),
		zap.Bool("would-have-executed", trade.WouldHaveExecuted))
	return nil
}

// StoreSnapshot logs a portfolio snapshot.
func (c *ConsoleSink) StoreSnapshot(_ context.Context, snap *portfolio.Snapshot) error {
	c.logger.Info("portfolio-snapshot",
		zap.String("equity-usd", snap.Equity.StringFixed(2)),
		zap.String("cash-usd", snap.Cash.StringFixed(2)),
		zap.String("total-exposure-usd", snap.TotalExposure.StringFixed(2)),
		zap.String("realized-pnl-usd", snap.RealizedPnL.StringFixed(2)),
		zap.String("drawdown", snap.Drawdown.StringFixed(4)),
		zap.Int("trade-count", snap.TradeCount),
		zap.String("win-rate", snap.WinRate.StringFixed(4)))
	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleSink) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
