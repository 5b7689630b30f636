package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/digitalrebelz/arbitrage-app/internal/marketdata"
	"github.com/digitalrebelz/arbitrage-app/internal/testutil"
	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeConnector serves fixed books and fails per symbol on demand.
type fakeConnector struct {
	name  string
	now   func() time.Time
	block bool

	mu    sync.Mutex
	calls map[string]int
	errs  map[string]error
	book  func(symbol string) types.OrderBook
}

func newFakeConnector(name string, now func() time.Time) *fakeConnector {
	f := &fakeConnector{
		name:  name,
		now:   now,
		calls: make(map[string]int),
		errs:  make(map[string]error),
	}
	f.book = func(symbol string) types.OrderBook {
		return testutil.CreateTestOrderBook(name, symbol, now(),
			testutil.Levels("99", "1"), testutil.Levels("100", "1"))
	}
	return f
}

func (f *fakeConnector) Name() string { return f.name }

func (f *fakeConnector) record(kind, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[kind+":"+symbol]++
	return f.errs[symbol]
}

func (f *fakeConnector) callCount(kind, symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind+":"+symbol]
}

func (f *fakeConnector) wait(ctx context.Context) error {
	if !f.block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeConnector) FetchTicker(ctx context.Context, symbol string) (types.Ticker, error) {
	if err := f.record("ticker", symbol); err != nil {
		return types.Ticker{}, err
	}
	return testutil.CreateTestTicker(f.name, symbol, f.now(), "99", "100"), f.wait(ctx)
}

func (f *fakeConnector) FetchOrderBook(ctx context.Context, symbol string, _ int) (types.OrderBook, error) {
	if err := f.record("book", symbol); err != nil {
		return types.OrderBook{}, err
	}
	if err := f.wait(ctx); err != nil {
		return types.OrderBook{}, err
	}
	return f.book(symbol), nil
}

func (f *fakeConnector) FetchFundingRate(ctx context.Context, symbol string) (types.FundingRate, error) {
	if err := f.record("funding", symbol); err != nil {
		return types.FundingRate{}, err
	}
	return testutil.CreateTestFundingRate(f.name, symbol, f.now(), "0.0001", "100"), f.wait(ctx)
}

func (f *fakeConnector) Close() error { return nil }

func newPollerFixture(cfg *PollerConfig) (*Poller, *marketdata.Cache, *testutil.ManualClock) {
	clock := testutil.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := marketdata.New(&marketdata.Config{Clock: clock.Now})
	cfg.Logger = zap.NewNop()
	return NewPoller(cfg, c), c, clock
}

func TestFetchTimeout(t *testing.T) {
	tests := []struct {
		name      string
		explicit  time.Duration
		staleness time.Duration
		want      time.Duration
	}{
		{name: "explicit wins", explicit: 5 * time.Second, staleness: 100 * time.Millisecond, want: 5 * time.Second},
		{name: "ten times staleness", staleness: 100 * time.Millisecond, want: time.Second},
		{name: "floor", staleness: 10 * time.Millisecond, want: 250 * time.Millisecond},
		{name: "unset", want: 250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FetchTimeout(tt.explicit, tt.staleness))
		})
	}
}

func TestPoller_PollWritesCache(t *testing.T) {
	cfg := &PollerConfig{MaxConcurrentRequests: 2, FetchTickers: true, FundingExchanges: []string{"kraken"}}
	p, c, clock := newPollerFixture(cfg)
	binance := newFakeConnector("binance", clock.Now)
	kraken := newFakeConnector("kraken", clock.Now)
	p.config.Connectors = []Connector{binance, kraken}

	res, err := p.Poll(context.Background(), []string{"BTC/USDT", "ETH/USDT"})
	require.NoError(t, err)

	// 4 books + 4 tickers + 2 funding
	assert.Equal(t, 10, res.Fetched)
	assert.Equal(t, 0, res.Skipped)

	for _, ex := range []string{"binance", "kraken"} {
		for _, sym := range []string{"BTC/USDT", "ETH/USDT"} {
			_, _, ok := c.OrderBook(ex, sym)
			assert.True(t, ok, "%s %s book", ex, sym)
			_, _, ok = c.Ticker(ex, sym)
			assert.True(t, ok, "%s %s ticker", ex, sym)
		}
	}

	_, _, ok := c.FundingRate("kraken", "BTC/USDT")
	assert.True(t, ok)
	_, _, ok = c.FundingRate("binance", "BTC/USDT")
	assert.False(t, ok)
	assert.Equal(t, 0, binance.callCount("funding", "BTC/USDT"))
}

func TestPoller_UnsupportedPairIsExcluded(t *testing.T) {
	var (
		mu       sync.Mutex
		excluded []string
	)
	cfg := &PollerConfig{
		OnUnsupported: func(exchange, symbol string) {
			mu.Lock()
			defer mu.Unlock()
			excluded = append(excluded, exchange+"/"+symbol)
		},
	}
	p, _, clock := newPollerFixture(cfg)
	conn := newFakeConnector("kraken", clock.Now)
	conn.errs["DOGE/USDT"] = fmt.Errorf("fetch: %w", types.ErrUnsupportedSymbol)
	p.config.Connectors = []Connector{conn}

	symbols := []string{"BTC/USDT", "DOGE/USDT"}
	res, err := p.Poll(context.Background(), symbols)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 1, res.Unsupported)

	res, err = p.Poll(context.Background(), symbols)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 0, res.Unsupported)

	assert.Equal(t, 1, conn.callCount("book", "DOGE/USDT"))
	assert.Equal(t, 2, conn.callCount("book", "BTC/USDT"))
	assert.Equal(t, 1, p.Excluded())
	assert.Equal(t, []string{"kraken/DOGE/USDT"}, excluded)
}

func TestPoller_TransientErrorIsSkip(t *testing.T) {
	p, c, clock := newPollerFixture(&PollerConfig{})
	conn := newFakeConnector("binance", clock.Now)
	conn.errs["BTC/USDT"] = fmt.Errorf("%w: status 429", types.ErrTransient)
	p.config.Connectors = []Connector{conn}

	res, err := p.Poll(context.Background(), []string{"BTC/USDT"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, p.Excluded())

	_, _, ok := c.OrderBook("binance", "BTC/USDT")
	assert.False(t, ok)
}

func TestPoller_TimeoutIsSkip(t *testing.T) {
	p, _, clock := newPollerFixture(&PollerConfig{FetchTimeout: 20 * time.Millisecond})
	conn := newFakeConnector("binance", clock.Now)
	conn.block = true
	p.config.Connectors = []Connector{conn}

	res, err := p.Poll(context.Background(), []string{"BTC/USDT"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
}

func TestPoller_InvalidBookIsNotCached(t *testing.T) {
	p, c, clock := newPollerFixture(&PollerConfig{})
	conn := newFakeConnector("binance", clock.Now)
	conn.book = func(symbol string) types.OrderBook {
		return testutil.CreateTestOrderBook("binance", symbol, clock.Now(),
			testutil.Levels("101", "1"), testutil.Levels("100", "1"))
	}
	p.config.Connectors = []Connector{conn}

	res, err := p.Poll(context.Background(), []string{"BTC/USDT"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)

	_, _, ok := c.OrderBook("binance", "BTC/USDT")
	assert.False(t, ok)
}

func TestPoller_CancelledContext(t *testing.T) {
	p, _, clock := newPollerFixture(&PollerConfig{})
	p.config.Connectors = []Connector{newFakeConnector("binance", clock.Now)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Poll(ctx, []string{"BTC/USDT"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPoller_Close(t *testing.T) {
	p, _, clock := newPollerFixture(&PollerConfig{})
	p.config.Connectors = []Connector{newFakeConnector("binance", clock.Now)}
	assert.NoError(t, p.Close())
}
