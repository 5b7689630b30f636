package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/digitalrebelz/arbitrage-app/internal/arbitrage"
	"github.com/digitalrebelz/arbitrage-app/internal/portfolio"
	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	json "github.com/goccy/go-json"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS opportunities (
	id                  TEXT PRIMARY KEY,
	kind                TEXT NOT NULL,
	symbol              TEXT NOT NULL,
	buy_exchange        TEXT NOT NULL,
	sell_exchange       TEXT NOT NULL,
	buy_price           NUMERIC NOT NULL,
	sell_price          NUMERIC NOT NULL,
	spread_percent      NUMERIC NOT NULL,
	size                NUMERIC NOT NULL,
	notional            NUMERIC NOT NULL,
	gross_profit        NUMERIC NOT NULL,
	fees                NUMERIC NOT NULL,
	net_profit          NUMERIC NOT NULL,
	net_profit_percent  NUMERIC NOT NULL,
	max_executable_size NUMERIC NOT NULL,
	risk_score          DOUBLE PRECISION NOT NULL,
	funding_rate        NUMERIC,
	detected_at         TIMESTAMPTZ NOT NULL,
	expires_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id                      TEXT PRIMARY KEY,
	opportunity_id          TEXT NOT NULL,
	kind                    TEXT NOT NULL,
	symbol                  TEXT NOT NULL,
	buy_exchange            TEXT NOT NULL,
	sell_exchange           TEXT NOT NULL,
	verdict                 TEXT NOT NULL,
	reason                  TEXT NOT NULL,
	filled_size             NUMERIC NOT NULL,
	buy_fill_price          NUMERIC NOT NULL,
	sell_fill_price         NUMERIC NOT NULL,
	notional                NUMERIC NOT NULL,
	gross_profit            NUMERIC NOT NULL,
	fees                    NUMERIC NOT NULL,
	slippage_cost           NUMERIC NOT NULL,
	realized_profit         NUMERIC NOT NULL,
	realized_profit_percent NUMERIC NOT NULL,
	would_have_executed     BOOLEAN NOT NULL,
	decided_at              TIMESTAMPTZ NOT NULL,
	filled_at               TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS portfolio_snapshots (
	id             BIGSERIAL PRIMARY KEY,
	cash           NUMERIC NOT NULL,
	total_exposure NUMERIC NOT NULL,
	realized_pnl   NUMERIC NOT NULL,
	equity         NUMERIC NOT NULL,
	peak_equity    NUMERIC NOT NULL,
	drawdown       NUMERIC NOT NULL,
	max_drawdown   NUMERIC NOT NULL,
	trade_count    INTEGER NOT NULL,
	win_count      INTEGER NOT NULL,
	loss_count     INTEGER NOT NULL,
	win_rate       NUMERIC NOT NULL,
	exposure       JSONB NOT NULL,
	taken_at       TIMESTAMPTZ NOT NULL
);
`

// PostgresSink implements Sink using PostgreSQL.
type PostgresSink struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresSink connects to PostgreSQL and creates the tables if missing.
func NewPostgresSink(ctx context.Context, cfg *PostgresConfig) (*PostgresSink, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &PostgresSink{db: db, logger: cfg.Logger}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}

	err = p.EnsureSchema(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	p.logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return p, nil
}

// EnsureSchema creates the opportunities, trades and portfolio_snapshots
// tables if they do not exist.
func (p *PostgresSink) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// StoreOpportunity inserts an opportunity. Decimals are bound in their exact
// string form so NUMERIC columns keep full precision.
func (p *PostgresSink) StoreOpportunity(ctx context.Context, opp *arbitrage.Opportunity) error {
	query := `
		INSERT INTO opportunities (
			id, kind, symbol, buy_exchange, sell_exchange,
			buy_price, sell_price, spread_percent, size, notional,
			gross_profit, fees, net_profit, net_profit_percent, max_executable_size,
			risk_score, funding_rate, detected_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)
	`

	var fundingRate sql.NullString
	if opp.IsFunding() {
		fundingRate = sql.NullString{String: opp.Funding.Rate.String(), Valid: true}
	}

	_, err := p.db.ExecContext(ctx, query,
		opp.ID,
		string(opp.Kind),
		opp.Symbol,
		opp.BuyExchange,
		opp.SellExchange,
		opp.BuyPrice.String(),
		opp.SellPrice.String(),
		opp.SpreadPercent.String(),
		opp.Size.String(),
		opp.Notional.String(),
		opp.GrossProfit.String(),
		opp.Fees.String(),
		opp.NetProfit.String(),
		opp.NetProfitPercent.String(),
		opp.MaxExecutableSize.String(),
		opp.RiskScore,
		fundingRate,
		opp.DetectedAt,
		opp.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert opportunity: %w", err)
	}

	p.logger.Debug("opportunity-stored", zap.String("opportunity-id", opp.ID))
	return nil
}

// StoreTrade inserts a paper trade.
func (p *PostgresSink) StoreTrade(ctx context.Context, trade *types.Trade) error {
	query := `
		INSERT INTO trades (
			id, opportunity_id, kind, symbol, buy_exchange, sell_exchange,
			verdict, reason, filled_size, buy_fill_price, sell_fill_price,
			notional, gross_profit, fees, slippage_cost, realized_profit,
			realized_profit_percent, would_have_executed, decided_at, filled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
	`

	var filledAt sql.NullTime
	if !trade.FilledAt.IsZero() {
		filledAt = sql.NullTime{Time: trade.FilledAt, Valid: true}
	}

	_, err := p.db.ExecContext(ctx, query,
		trade.ID,
		trade.OpportunityID,
		string(trade.Kind),
		trade.Symbol,
		trade.BuyOrder.Exchange,
		trade.SellOrder.Exchange,
		string(trade.Verdict),
		trade.Reason,
		trade.FilledSize.String(),
		trade.BuyOrder.FillPrice.String(),
		trade.SellOrder.FillPrice.String(),
		trade.Notional.String(),
		trade.GrossProfit.String(),
		trade.Fees.String(),
		trade.SlippageCost.String(),
		trade.RealizedProfit.String(),
		trade.RealizedProfitPercent.String(),
		trade.WouldHaveExecuted,
		trade.DecidedAt,
		filledAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}

	p.logger.Debug("trade-stored",
		zap.String("trade-id", trade.ID),
		zap.String("verdict", string(trade.Verdict)))
	return nil
}

// StoreSnapshot inserts a portfolio snapshot. Per-symbol exposure is kept as
// a JSONB object.
func (p *PostgresSink) StoreSnapshot(ctx context.Context, snap *portfolio.Snapshot) error {
	exposure, err := json.Marshal(snap.Exposure)
	if err != nil {
		return fmt.Errorf("marshal exposure: %w", err)
	}

	takenAt := snap.UpdatedAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}

	query := `
		INSERT INTO portfolio_snapshots (
			cash, total_exposure, realized_pnl, equity, peak_equity,
			drawdown, max_drawdown, trade_count, win_count, loss_count,
			win_rate, exposure, taken_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err = p.db.ExecContext(ctx, query,
		snap.Cash.String(),
		snap.TotalExposure.String(),
		snap.RealizedPnL.String(),
		snap.Equity.String(),
		snap.PeakEquity.String(),
		snap.Drawdown.String(),
		snap.MaxDrawdown.String(),
		snap.TradeCount,
		snap.WinCount,
		snap.LossCount,
		snap.WinRate.String(),
		string(exposure),
		takenAt,
	)
	if err != nil {
		return fmt.Errorf("insert portfolio snapshot: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (p *PostgresSink) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
