package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a simulated order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType distinguishes market from limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OpportunityKind tags which detection strategy produced an opportunity.
type OpportunityKind string

const (
	KindSpread  OpportunityKind = "spread"
	KindFunding OpportunityKind = "funding"
)

// Verdict is the executability verdict for an opportunity at execution time.
type Verdict string

const (
	VerdictWouldHaveExecuted    Verdict = "WOULD_HAVE_EXECUTED"
	VerdictWouldNotHaveExecuted Verdict = "WOULD_NOT_HAVE_EXECUTED"
	VerdictStale                Verdict = "STALE"
)

// SimulatedOrder is one leg of a paper trade. It is never transmitted.
type SimulatedOrder struct {
	ID            string          `json:"id"`
	Side          Side            `json:"side"`
	Exchange      string          `json:"exchange"`
	Symbol        string          `json:"symbol"`
	Type          OrderType       `json:"type"`
	RequestedSize decimal.Decimal `json:"requested_size"`
	LimitPrice    decimal.Decimal `json:"limit_price"`
	BookTimestamp time.Time       `json:"book_timestamp"`
	FilledSize    decimal.Decimal `json:"filled_size"`
	FillPrice     decimal.Decimal `json:"fill_price"`
	Fee           decimal.Decimal `json:"fee"`
	SlippageCost  decimal.Decimal `json:"slippage_cost"`
	FullyFilled   bool            `json:"fully_filled"`
}

// Trade is the audit record of a paper trade, executed or not.
type Trade struct {
	ID                    string          `json:"id"`
	OpportunityID         string          `json:"opportunity_id"`
	Kind                  OpportunityKind `json:"kind"`
	Symbol                string          `json:"symbol"`
	BuyOrder              SimulatedOrder  `json:"buy_order"`
	SellOrder             SimulatedOrder  `json:"sell_order"`
	Verdict               Verdict         `json:"verdict"`
	Reason                string          `json:"reason,omitempty"`
	FilledSize            decimal.Decimal `json:"filled_size"`
	FillPrice             decimal.Decimal `json:"fill_price"`
	Notional              decimal.Decimal `json:"notional"`
	GrossProfit           decimal.Decimal `json:"gross_profit"`
	Fees                  decimal.Decimal `json:"fees"`
	SlippageCost          decimal.Decimal `json:"slippage_cost"`
	RealizedProfit        decimal.Decimal `json:"realized_profit"`
	RealizedProfitPercent decimal.Decimal `json:"realized_profit_percent"`
	WouldHaveExecuted     bool            `json:"would_have_executed"`
	DecidedAt             time.Time       `json:"decided_at"`
	FilledAt              time.Time       `json:"filled_at"`
}

// IsWin reports whether an executed trade made money.
func (t *Trade) IsWin() bool {
	return t.WouldHaveExecuted && t.RealizedProfit.IsPositive()
}
