// Package connector fetches market data snapshots from venues and writes them
// into the market data cache.
package connector

import (
	"context"
	"strconv"
	"strings"

	"github.com/digitalrebelz/arbitrage-app/pkg/types"
)

// Connector reads one venue's market data. Implementations wrap
// types.ErrTransient for retryable failures and types.ErrUnsupportedSymbol for
// symbols the venue does not list.
type Connector interface {
	Name() string
	FetchTicker(ctx context.Context, symbol string) (types.Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (types.OrderBook, error)
	FetchFundingRate(ctx context.Context, symbol string) (types.FundingRate, error)
	Close() error
}

// Cache is the write side of the market data cache.
type Cache interface {
	PutTicker(t types.Ticker)
	PutOrderBook(b types.OrderBook)
	PutFundingRate(f types.FundingRate)
}

// VenueSymbol maps "BTC/USDT" to the venue form "BTCUSDT".
func VenueSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

// StreamName returns the partial depth stream for symbol, e.g.
// "btcusdt@depth20@100ms".
func StreamName(symbol string, depth int, interval string) string {
	name := strings.ToLower(VenueSymbol(symbol)) + "@depth" + strconv.Itoa(depth)
	if interval != "" {
		name += "@" + interval
	}
	return name
}

var (
	streamDepths = []int{5, 10, 20}
	restDepths   = []int{5, 10, 20, 50, 100, 500, 1000}
)

// roundDepth rounds depth up to the nearest size in allowed, capping at the
// largest.
func roundDepth(depth int, allowed []int) int {
	for _, d := range allowed {
		if depth <= d {
			return d
		}
	}
	return allowed[len(allowed)-1]
}
