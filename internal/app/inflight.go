package app

import (
	"sync"

	"github.com/shopspring/decimal"
)

// inflightExposure is the notional of admitted opportunities that are queued
// or executing but not yet settled by the paper trader.
type inflightExposure struct {
	mu       sync.Mutex
	notional decimal.Decimal
}

func (e *inflightExposure) add(amount decimal.Decimal) {
	e.mu.Lock()
	e.notional = e.notional.Add(amount)
	total := e.notional
	e.mu.Unlock()

	InflightExposureUSD.Set(total.InexactFloat64())
}

// release never takes the total below zero.
func (e *inflightExposure) release(amount decimal.Decimal) {
	e.mu.Lock()
	e.notional = decimal.Max(e.notional.Sub(amount), decimal.Zero)
	total := e.notional
	e.mu.Unlock()

	InflightExposureUSD.Set(total.InexactFloat64())
}

func (e *inflightExposure) total() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notional
}
