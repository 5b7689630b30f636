package testutil

import (
	"sync"
	"time"

	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"github.com/shopspring/decimal"
)

// Dec parses a decimal literal, panicking on malformed input.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Levels builds price levels from alternating price, size literals.
func Levels(priceSize ...string) []types.PriceLevel {
	levels := make([]types.PriceLevel, 0, len(priceSize)/2)
	for i := 0; i+1 < len(priceSize); i += 2 {
		levels = append(levels, types.PriceLevel{
			Price: Dec(priceSize[i]),
			Size:  Dec(priceSize[i+1]),
		})
	}
	return levels
}

// CreateTestOrderBook creates a book stamped at ts.
func CreateTestOrderBook(exchange, symbol string, ts time.Time, bids, asks []types.PriceLevel) types.OrderBook {
	return types.OrderBook{
		Exchange:  exchange,
		Symbol:    symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: ts,
	}
}

// CreateTestTicker creates a ticker whose sizes are 1.
func CreateTestTicker(exchange, symbol string, ts time.Time, bid, ask string) types.Ticker {
	return types.Ticker{
		Exchange:  exchange,
		Symbol:    symbol,
		BidPrice:  Dec(bid),
		BidSize:   decimal.NewFromInt(1),
		AskPrice:  Dec(ask),
		AskSize:   decimal.NewFromInt(1),
		Timestamp: ts,
	}
}

// CreateTestFundingRate creates a funding snapshot with the next payment in one hour.
func CreateTestFundingRate(exchange, symbol string, ts time.Time, rate, mark string) types.FundingRate {
	return types.FundingRate{
		Exchange:        exchange,
		Symbol:          symbol,
		Rate:            Dec(rate),
		MarkPrice:       Dec(mark),
		NextFundingTime: ts.Add(time.Hour),
		Timestamp:       ts,
	}
}

// ManualClock is a clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the frozen time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
