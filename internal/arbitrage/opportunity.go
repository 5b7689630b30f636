package arbitrage

import (
	"time"

	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Funding directions.
const (
	ShortPerpLongSpot = "short_perp_long_spot"
	LongPerpShortSpot = "long_perp_short_spot"
)

// FundingLeg carries the funding-specific detail of a funding opportunity.
type FundingLeg struct {
	Rate               decimal.Decimal `json:"rate"`
	Direction          string          `json:"direction"`
	SpotExchange       string          `json:"spot_exchange"`
	PerpExchange       string          `json:"perp_exchange"`
	BasisPercent       decimal.Decimal `json:"basis_percent"`
	DailyReturnPercent decimal.Decimal `json:"daily_return_percent"`
	NextFundingTime    time.Time       `json:"next_funding_time"`
}

// Opportunity is a detected, not yet validated, arbitrage candidate. It is a
// value: derived versions are copies, and re-detection yields a new ID.
type Opportunity struct {
	ID                string                `json:"id"`
	Kind              types.OpportunityKind `json:"kind"`
	Symbol            string                `json:"symbol"`
	BuyExchange       string                `json:"buy_exchange"`
	SellExchange      string                `json:"sell_exchange"`
	BuyPrice          decimal.Decimal       `json:"buy_price"`
	SellPrice         decimal.Decimal       `json:"sell_price"`
	SpreadPercent     decimal.Decimal       `json:"spread_percent"`
	Size              decimal.Decimal       `json:"size"`
	Notional          decimal.Decimal       `json:"notional"`
	GrossProfit       decimal.Decimal       `json:"gross_profit"`
	Fees              decimal.Decimal       `json:"fees"`
	SlippageCost      decimal.Decimal       `json:"slippage_cost"`
	NetProfit         decimal.Decimal       `json:"net_profit"`
	NetProfitPercent  decimal.Decimal       `json:"net_profit_percent"`
	MaxExecutableSize decimal.Decimal       `json:"max_executable_size"`
	FullyFillable     bool                  `json:"fully_fillable"`
	RiskScore         float64               `json:"risk_score"`
	DataAge           time.Duration         `json:"data_age"`
	DetectedAt        time.Time             `json:"detected_at"`
	ExpiresAt         time.Time             `json:"expires_at"`
	Funding           *FundingLeg           `json:"funding,omitempty"`
}

func newOpportunity(kind types.OpportunityKind, symbol, buyExchange, sellExchange string,
	size decimal.Decimal, ev Evaluation, dataAge time.Duration, now time.Time, window time.Duration,
) Opportunity {
	spread := decimal.Zero
	if ev.BuyFill.BestPrice.IsPositive() {
		spread = ev.SellFill.BestPrice.Sub(ev.BuyFill.BestPrice).Div(ev.BuyFill.BestPrice).Mul(hundred)
	}

	return Opportunity{
		ID:               uuid.New().String(),
		Kind:             kind,
		Symbol:           symbol,
		BuyExchange:      buyExchange,
		SellExchange:     sellExchange,
		BuyPrice:         ev.BuyFill.BestPrice,
		SellPrice:        ev.SellFill.BestPrice,
		SpreadPercent:    spread,
		Size:             size,
		Notional:         ev.Notional,
		GrossProfit:      ev.GrossProfit,
		Fees:             ev.Fees,
		SlippageCost:     ev.SlippageCost,
		NetProfit:        ev.NetProfit,
		NetProfitPercent: ev.NetProfitPercent,
		FullyFillable:    ev.FullyFilled(),
		DataAge:          dataAge,
		DetectedAt:       now,
		ExpiresAt:        now.Add(window),
	}
}

// RouteKey identifies the trade route regardless of detection time.
func (o *Opportunity) RouteKey() string {
	return string(o.Kind) + "|" + o.Symbol + "|" + o.BuyExchange + "|" + o.SellExchange
}

// IsFunding reports whether the opportunity came from the funding strategy.
func (o *Opportunity) IsFunding() bool {
	return o.Kind == types.KindFunding && o.Funding != nil
}

// Expired reports whether now is past the opportunity window.
func (o *Opportunity) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}

// WithRiskScore returns a copy carrying score.
func (o *Opportunity) WithRiskScore(score float64) Opportunity {
	scored := *o
	scored.RiskScore = score
	return scored
}
