package arbitrage

import (
	"time"

	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"github.com/shopspring/decimal"
)

// CreateTestOpportunity creates a 1-unit spread opportunity buying at 100 on
// buyExchange and selling at 102 on sellExchange with 0.1% fees per leg.
// Test helper kept here to avoid import cycles with internal/testutil users.
func CreateTestOpportunity(symbol, buyExchange, sellExchange string, detectedAt time.Time) Opportunity {
	return Opportunity{
		ID:                "test-opp-" + symbol + "-" + buyExchange + "-" + sellExchange,
		Kind:              types.KindSpread,
		Symbol:            symbol,
		BuyExchange:       buyExchange,
		SellExchange:      sellExchange,
		BuyPrice:          decimal.NewFromInt(100),
		SellPrice:         decimal.NewFromInt(102),
		SpreadPercent:     decimal.NewFromInt(2),
		Size:              decimal.NewFromInt(1),
		Notional:          decimal.NewFromInt(100),
		GrossProfit:       decimal.NewFromInt(2),
		Fees:              decimal.RequireFromString("0.202"),
		SlippageCost:      decimal.Zero,
		NetProfit:         decimal.RequireFromString("1.798"),
		NetProfitPercent:  decimal.RequireFromString("1.798"),
		MaxExecutableSize: decimal.NewFromInt(1),
		FullyFillable:     true,
		DetectedAt:        detectedAt,
		ExpiresAt:         detectedAt.Add(5 * time.Second),
	}
}
