// Package storage persists opportunities, paper trades and portfolio
// snapshots. Every sink is append-only; nothing is read back.
package storage

import (
	"context"
	"errors"

	"github.com/digitalrebelz/arbitrage-app/internal/arbitrage"
	"github.com/digitalrebelz/arbitrage-app/internal/portfolio"
	"github.com/digitalrebelz/arbitrage-app/pkg/types"
)

// Sink is the interface for recording pipeline output.
type Sink interface {
	// StoreOpportunity records a detected opportunity.
	StoreOpportunity(ctx context.Context, opp *arbitrage.Opportunity) error

	// StoreTrade records a paper trade, executed or not.
	StoreTrade(ctx context.Context, trade *types.Trade) error

	// StoreSnapshot records a portfolio snapshot.
	StoreSnapshot(ctx context.Context, snap *portfolio.Snapshot) error

	// Close releases the sink's connections.
	Close() error
}

// MultiSink writes every record to each of its sinks. A failing sink does
// not stop the others; their errors are joined.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink fanning out to sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// StoreOpportunity stores opp in every sink.
func (m *MultiSink) StoreOpportunity(ctx context.Context, opp *arbitrage.Opportunity) error {
	return m.each(func(s Sink) error { return s.StoreOpportunity(ctx, opp) })
}

// StoreTrade stores trade in every sink.
func (m *MultiSink) StoreTrade(ctx context.Context, trade *types.Trade) error {
	return m.each(func(s Sink) error { return s.StoreTrade(ctx, trade) })
}

// StoreSnapshot stores snap in every sink.
func (m *MultiSink) StoreSnapshot(ctx context.Context, snap *portfolio.Snapshot) error {
	return m.each(func(s Sink) error { return s.StoreSnapshot(ctx, snap) })
}

// Close closes every sink.
func (m *MultiSink) Close() error {
	return m.each(func(s Sink) error { return s.Close() })
}

func (m *MultiSink) each(fn func(Sink) error) error {
	var errs []error
	for _, s := range m.sinks {
		err := fn(s)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
