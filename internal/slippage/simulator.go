// Package slippage estimates the volume-weighted execution price of a taker
// order by walking order book depth.
package slippage

import (
	"fmt"

	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Fill is the outcome of walking one book side for a requested size.
type Fill struct {
	BestPrice      decimal.Decimal
	VWAP           decimal.Decimal
	RequestedSize  decimal.Decimal
	FilledSize     decimal.Decimal
	FullyFilled    bool
	Cost           decimal.Decimal // sum(price * size) over consumed levels
	SlippageCost   decimal.Decimal // |VWAP - best| * filled, never negative
	LevelsConsumed int
}

// FillRatio returns filled / requested.
func (f Fill) FillRatio() decimal.Decimal {
	if !f.RequestedSize.IsPositive() {
		return decimal.Zero
	}
	return f.FilledSize.Div(f.RequestedSize)
}

// SlippagePercent returns the VWAP's distance from the best price as a percent
// of the best price.
func (f Fill) SlippagePercent() decimal.Decimal {
	if !f.BestPrice.IsPositive() {
		return decimal.Zero
	}
	return f.VWAP.Sub(f.BestPrice).Abs().Div(f.BestPrice).Mul(hundred)
}

// Simulate consumes levels (best first) until size is filled or the side is
// exhausted. An empty side yields an unfilled zero Fill.
func Simulate(levels []types.PriceLevel, size decimal.Decimal) (Fill, error) {
	if !size.IsPositive() {
		return Fill{}, fmt.Errorf("%w: size must be positive, got %s", types.ErrInvalidInput, size)
	}

	fill := Fill{RequestedSize: size}
	if len(levels) == 0 {
		return fill, nil
	}

	fill.BestPrice = levels[0].Price
	remaining := size
	for _, lvl := range levels {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, lvl.Size)
		fill.Cost = fill.Cost.Add(take.Mul(lvl.Price))
		fill.FilledSize = fill.FilledSize.Add(take)
		remaining = remaining.Sub(take)
		fill.LevelsConsumed++
	}

	if fill.FilledSize.IsPositive() {
		fill.VWAP = fill.Cost.Div(fill.FilledSize)
		fill.SlippageCost = fill.VWAP.Sub(fill.BestPrice).Abs().Mul(fill.FilledSize)
	}
	fill.FullyFilled = !remaining.IsPositive()

	return fill, nil
}

// SimulateOrder walks the side of book a taker order of side would consume.
func SimulateOrder(book *types.OrderBook, side types.Side, size decimal.Decimal) (Fill, error) {
	return Simulate(book.Levels(side), size)
}

// EstimateMarketImpact returns the slippage percent a taker order of size would
// incur against book. Unfillable depth reports the impact of what is available.
func EstimateMarketImpact(book *types.OrderBook, side types.Side, size decimal.Decimal) (decimal.Decimal, error) {
	fill, err := SimulateOrder(book, side, size)
	if err != nil {
		return decimal.Zero, err
	}
	return fill.SlippagePercent(), nil
}
