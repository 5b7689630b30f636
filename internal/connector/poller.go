package connector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minFetchTimeout = 250 * time.Millisecond

// UnsupportedFunc is told about every pair a venue reports as unlisted.
type UnsupportedFunc func(exchange, symbol string)

// PollerConfig holds poller configuration.
type PollerConfig struct {
	Connectors            []Connector
	Depth                 int
	MaxConcurrentRequests int
	// FetchTimeout bounds each fetch. Zero derives it from Staleness.
	FetchTimeout time.Duration
	Staleness    time.Duration
	// FetchTickers also polls top-of-book tickers for the detector prefilter.
	FetchTickers bool
	// FundingExchanges lists the connectors whose funding rates are polled.
	FundingExchanges []string
	OnUnsupported    UnsupportedFunc
	Logger           *zap.Logger
}

// PollResult summarizes one poll pass.
type PollResult struct {
	Fetched     int
	Skipped     int
	Unsupported int
	Duration    time.Duration
}

// Poller fans out fetches over every (connector, symbol) pair and writes the
// snapshots into the cache. A pass returns only after every fetch finished.
type Poller struct {
	config  PollerConfig
	logger  *zap.Logger
	cache   Cache
	funding map[string]bool
	timeout time.Duration

	mu       sync.Mutex
	excluded map[pairKey]struct{}
}

type pairKey struct {
	exchange string
	symbol   string
}

type fetchKind string

const (
	kindBook    fetchKind = "orderbook"
	kindTicker  fetchKind = "ticker"
	kindFunding fetchKind = "funding"
)

// NewPoller creates a poller writing into cache.
func NewPoller(cfg *PollerConfig, cache Cache) *Poller {
	c := *cfg
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.MaxConcurrentRequests <= 0 {
		c.MaxConcurrentRequests = 50
	}
	if c.Depth <= 0 {
		c.Depth = 20
	}

	funding := make(map[string]bool, len(c.FundingExchanges))
	for _, ex := range c.FundingExchanges {
		funding[ex] = true
	}

	return &Poller{
		config:   c,
		logger:   c.Logger,
		cache:    cache,
		funding:  funding,
		timeout:  FetchTimeout(c.FetchTimeout, c.Staleness),
		excluded: make(map[pairKey]struct{}),
	}
}

// FetchTimeout returns explicit when set, otherwise ten times the staleness
// bound, never below 250ms.
func FetchTimeout(explicit, staleness time.Duration) time.Duration {
	if explicit > 0 {
		return explicit
	}
	d := 10 * staleness
	if d < minFetchTimeout {
		d = minFetchTimeout
	}
	return d
}

// Poll fetches every non-excluded (connector, symbol) pair once. Failed
// fetches are counted as skips; only cancellation of ctx is returned.
func (p *Poller) Poll(ctx context.Context, symbols []string) (PollResult, error) {
	start := time.Now()

	var (
		mu  sync.Mutex
		res PollResult
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			res.Fetched++
		case errors.Is(err, types.ErrUnsupportedSymbol):
			res.Unsupported++
		default:
			res.Skipped++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxConcurrentRequests)

	for _, conn := range p.config.Connectors {
		for _, symbol := range symbols {
			if p.isExcluded(conn.Name(), symbol) {
				continue
			}

			g.Go(func() error {
				record(p.fetch(gctx, conn, kindBook, symbol))
				return nil
			})
			if p.config.FetchTickers {
				g.Go(func() error {
					record(p.fetch(gctx, conn, kindTicker, symbol))
					return nil
				})
			}
			if p.funding[conn.Name()] {
				g.Go(func() error {
					record(p.fetch(gctx, conn, kindFunding, symbol))
					return nil
				})
			}
		}
	}

	_ = g.Wait()
	res.Duration = time.Since(start)
	PollDurationSeconds.Observe(res.Duration.Seconds())

	err := ctx.Err()
	if err != nil {
		return res, err
	}

	p.logger.Debug("poll-complete",
		zap.Int("fetched", res.Fetched),
		zap.Int("skipped", res.Skipped),
		zap.Int("unsupported", res.Unsupported),
		zap.Duration("duration", res.Duration))

	return res, nil
}

func (p *Poller) fetch(ctx context.Context, conn Connector, kind fetchKind, symbol string) error {
	fctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	exchange := conn.Name()
	start := time.Now()

	var err error
	switch kind {
	case kindBook:
		var book types.OrderBook
		book, err = conn.FetchOrderBook(fctx, symbol, p.config.Depth)
		if err == nil {
			err = book.Validate()
		}
		if err == nil {
			p.cache.PutOrderBook(book)
		}
	case kindTicker:
		var t types.Ticker
		t, err = conn.FetchTicker(fctx, symbol)
		if err == nil {
			p.cache.PutTicker(t)
		}
	case kindFunding:
		var f types.FundingRate
		f, err = conn.FetchFundingRate(fctx, symbol)
		if err == nil {
			p.cache.PutFundingRate(f)
		}
	}

	FetchDurationSeconds.WithLabelValues(exchange, string(kind)).Observe(time.Since(start).Seconds())
	FetchesTotal.WithLabelValues(exchange, string(kind), outcome(err)).Inc()

	if err == nil {
		return nil
	}

	if errors.Is(err, types.ErrUnsupportedSymbol) {
		p.exclude(exchange, symbol)
		return err
	}

	p.logger.Debug("fetch-skipped",
		zap.String("exchange", exchange),
		zap.String("symbol", symbol),
		zap.String("kind", string(kind)),
		zap.Error(err))
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrUnsupportedSymbol):
		return "unsupported"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, types.ErrTransient):
		return "transient"
	case errors.Is(err, types.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

func (p *Poller) exclude(exchange, symbol string) {
	p.mu.Lock()
	_, seen := p.excluded[pairKey{exchange, symbol}]
	if !seen {
		p.excluded[pairKey{exchange, symbol}] = struct{}{}
		ExcludedPairs.Set(float64(len(p.excluded)))
	}
	p.mu.Unlock()

	if seen {
		return
	}

	p.logger.Warn("pair-excluded-unsupported",
		zap.String("exchange", exchange),
		zap.String("symbol", symbol))
	if p.config.OnUnsupported != nil {
		p.config.OnUnsupported(exchange, symbol)
	}
}

func (p *Poller) isExcluded(exchange, symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.excluded[pairKey{exchange, symbol}]
	return ok
}

// Excluded returns how many pairs have been excluded.
func (p *Poller) Excluded() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.excluded)
}

// Close closes every connector.
func (p *Poller) Close() error {
	var errs []error
	for _, conn := range p.config.Connectors {
		err := conn.Close()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
