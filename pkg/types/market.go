package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticker is the top of book for one symbol on one venue.
type Ticker struct {
	Exchange  string          `json:"exchange"`
	Symbol    string          `json:"symbol"`
	BidPrice  decimal.Decimal `json:"bid_price"`
	BidSize   decimal.Decimal `json:"bid_size"`
	AskPrice  decimal.Decimal `json:"ask_price"`
	AskSize   decimal.Decimal `json:"ask_size"`
	Timestamp time.Time       `json:"timestamp"`
}

// Spread returns ask minus bid.
func (t *Ticker) Spread() decimal.Decimal {
	return t.AskPrice.Sub(t.BidPrice)
}

// FundingRate is a perpetual contract's current funding snapshot.
// Rate is a fraction per funding interval (0.0001 = 0.01%).
type FundingRate struct {
	Exchange        string          `json:"exchange"`
	Symbol          string          `json:"symbol"`
	Rate            decimal.Decimal `json:"rate"`
	MarkPrice       decimal.Decimal `json:"mark_price"`
	NextFundingTime time.Time       `json:"next_funding_time"`
	Timestamp       time.Time       `json:"timestamp"`
}
