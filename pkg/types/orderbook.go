package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single resting level of an order book side.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderBook is a point-in-time snapshot of one venue's book for one symbol.
// Bids are sorted best (highest) first, asks best (lowest) first.
type OrderBook struct {
	Exchange  string       `json:"exchange"`
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// BestBid returns the highest bid level.
func (b *OrderBook) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask level.
func (b *OrderBook) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Levels returns the side a taker order of the given side trades against:
// asks for a buy, bids for a sell.
func (b *OrderBook) Levels(side Side) []PriceLevel {
	if side == SideBuy {
		return b.Asks
	}
	return b.Bids
}

// Clone returns a deep copy of the book.
func (b *OrderBook) Clone() OrderBook {
	out := *b
	out.Bids = append([]PriceLevel(nil), b.Bids...)
	out.Asks = append([]PriceLevel(nil), b.Asks...)
	return out
}

// Validate checks level ordering and that the book is not crossed.
func (b *OrderBook) Validate() error {
	if b.Exchange == "" || b.Symbol == "" {
		return fmt.Errorf("%w: order book missing exchange or symbol", ErrInvalidInput)
	}

	err := validateSide(b.Bids, "bid", func(prev, cur decimal.Decimal) bool { return cur.LessThan(prev) })
	if err != nil {
		return err
	}

	err = validateSide(b.Asks, "ask", func(prev, cur decimal.Decimal) bool { return cur.GreaterThan(prev) })
	if err != nil {
		return err
	}

	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	if hasBid && hasAsk && !bid.Price.LessThan(ask.Price) {
		return fmt.Errorf("%w: crossed book %s/%s bid %s >= ask %s",
			ErrInvalidInput, b.Exchange, b.Symbol, bid.Price, ask.Price)
	}

	return nil
}

func validateSide(levels []PriceLevel, name string, ordered func(prev, cur decimal.Decimal) bool) error {
	for i, lvl := range levels {
		if !lvl.Price.IsPositive() || !lvl.Size.IsPositive() {
			return fmt.Errorf("%w: %s level %d has non-positive price or size", ErrInvalidInput, name, i)
		}
		if i > 0 && !ordered(levels[i-1].Price, lvl.Price) {
			return fmt.Errorf("%w: %s levels not strictly ordered at %d", ErrInvalidInput, name, i)
		}
	}
	return nil
}
