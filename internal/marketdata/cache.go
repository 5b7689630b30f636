package marketdata

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"go.uber.org/zap"
)

// DefaultStaleness is the freshness bound used when none is configured.
const DefaultStaleness = 100 * time.Millisecond

// Key identifies one venue's market.
type Key struct {
	Exchange string
	Symbol   string
}

func (k Key) String() string {
	return k.Exchange + ":" + k.Symbol
}

// slot holds the latest snapshots for one key. Its mutex serializes writers of
// that key only.
type slot struct {
	mu      sync.RWMutex
	ticker  *types.Ticker
	book    *types.OrderBook
	funding *types.FundingRate
}

// Cache holds the freshest ticker, order book and funding snapshot per
// (exchange, symbol). Writes are last-write-wins. The cache never purges;
// freshness is decided by the reader.
type Cache struct {
	slots  map[Key]*slot
	mu     sync.RWMutex
	now    func() time.Time
	logger *zap.Logger
}

// Config holds cache configuration.
type Config struct {
	Logger *zap.Logger
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
}

// New creates an empty cache.
func New(cfg *Config) *Cache {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Cache{
		slots:  make(map[Key]*slot),
		now:    now,
		logger: logger,
	}
}

// slotFor returns the slot for key, creating it when create is set.
func (c *Cache) slotFor(key Key, create bool) *slot {
	c.mu.RLock()
	s, ok := c.slots[key]
	c.mu.RUnlock()
	if ok || !create {
		return s
	}

	lockStart := time.Now()
	c.mu.Lock()
	LockContentionDuration.Observe(time.Since(lockStart).Seconds())
	defer c.mu.Unlock()

	s, ok = c.slots[key]
	if !ok {
		s = &slot{}
		c.slots[key] = s
		KeysTracked.Set(float64(len(c.slots)))
	}
	return s
}

// PutTicker stores t, replacing whatever was there.
func (c *Cache) PutTicker(t types.Ticker) {
	if t.Timestamp.IsZero() {
		t.Timestamp = c.now()
	}

	s := c.slotFor(Key{t.Exchange, t.Symbol}, true)
	s.mu.Lock()
	s.ticker = &t
	s.mu.Unlock()

	UpdatesTotal.WithLabelValues("ticker", t.Exchange).Inc()
}

// PutOrderBook stores a deep copy of b, replacing whatever was there.
func (c *Cache) PutOrderBook(b types.OrderBook) {
	book := b.Clone()
	if book.Timestamp.IsZero() {
		book.Timestamp = c.now()
	}

	s := c.slotFor(Key{b.Exchange, b.Symbol}, true)
	s.mu.Lock()
	s.book = &book
	s.mu.Unlock()

	UpdatesTotal.WithLabelValues("orderbook", b.Exchange).Inc()

	c.logger.Debug("orderbook-snapshot-updated",
		zap.String("exchange", b.Exchange),
		zap.String("symbol", b.Symbol),
		zap.Int("bid-levels", len(b.Bids)),
		zap.Int("ask-levels", len(b.Asks)))
}

// PutFundingRate stores f, replacing whatever was there.
func (c *Cache) PutFundingRate(f types.FundingRate) {
	if f.Timestamp.IsZero() {
		f.Timestamp = c.now()
	}

	s := c.slotFor(Key{f.Exchange, f.Symbol}, true)
	s.mu.Lock()
	s.funding = &f
	s.mu.Unlock()

	UpdatesTotal.WithLabelValues("funding", f.Exchange).Inc()
}

// Ticker returns the latest ticker and its age.
func (c *Cache) Ticker(exchange, symbol string) (types.Ticker, time.Duration, bool) {
	s := c.slotFor(Key{exchange, symbol}, false)
	if s == nil {
		return types.Ticker{}, 0, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ticker == nil {
		return types.Ticker{}, 0, false
	}
	return *s.ticker, c.age(s.ticker.Timestamp), true
}

// OrderBook returns a copy of the latest book and its age.
func (c *Cache) OrderBook(exchange, symbol string) (types.OrderBook, time.Duration, bool) {
	s := c.slotFor(Key{exchange, symbol}, false)
	if s == nil {
		return types.OrderBook{}, 0, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.book == nil {
		return types.OrderBook{}, 0, false
	}
	return s.book.Clone(), c.age(s.book.Timestamp), true
}

// FundingRate returns the latest funding snapshot and its age.
func (c *Cache) FundingRate(exchange, symbol string) (types.FundingRate, time.Duration, bool) {
	s := c.slotFor(Key{exchange, symbol}, false)
	if s == nil {
		return types.FundingRate{}, 0, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.funding == nil {
		return types.FundingRate{}, 0, false
	}
	return *s.funding, c.age(s.funding.Timestamp), true
}

// FreshTicker returns the ticker only if it is no older than maxAge.
func (c *Cache) FreshTicker(exchange, symbol string, maxAge time.Duration) (types.Ticker, time.Duration, error) {
	t, age, ok := c.Ticker(exchange, symbol)
	err := checkFresh("ticker", Key{exchange, symbol}, ok, age, maxAge)
	return t, age, err
}

// FreshOrderBook returns the book only if it is no older than maxAge.
func (c *Cache) FreshOrderBook(exchange, symbol string, maxAge time.Duration) (types.OrderBook, time.Duration, error) {
	b, age, ok := c.OrderBook(exchange, symbol)
	err := checkFresh("orderbook", Key{exchange, symbol}, ok, age, maxAge)
	return b, age, err
}

// FreshFundingRate returns the funding snapshot only if it is no older than maxAge.
func (c *Cache) FreshFundingRate(exchange, symbol string, maxAge time.Duration) (types.FundingRate, time.Duration, error) {
	f, age, ok := c.FundingRate(exchange, symbol)
	err := checkFresh("funding", Key{exchange, symbol}, ok, age, maxAge)
	return f, age, err
}

// Keys lists every stored key, sorted.
func (c *Cache) Keys() []Key {
	c.mu.RLock()
	keys := make([]Key, 0, len(c.slots))
	for k := range c.slots {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Exchange != keys[j].Exchange {
			return keys[i].Exchange < keys[j].Exchange
		}
		return keys[i].Symbol < keys[j].Symbol
	})
	return keys
}

// Now returns the cache clock's current time.
func (c *Cache) Now() time.Time {
	return c.now()
}

func (c *Cache) age(ts time.Time) time.Duration {
	age := c.now().Sub(ts)
	if age < 0 {
		return 0
	}
	return age
}

// IsFresh reports whether age is within maxAge. A non-positive maxAge means
// DefaultStaleness.
func IsFresh(age, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = DefaultStaleness
	}
	return age <= maxAge
}

func checkFresh(kind string, key Key, ok bool, age, maxAge time.Duration) error {
	if !ok {
		return fmt.Errorf("%s %s: %w", kind, key, types.ErrNotFound)
	}
	if !IsFresh(age, maxAge) {
		StaleReadsTotal.WithLabelValues(kind).Inc()
		return fmt.Errorf("%s %s age %s: %w", kind, key, age, types.ErrStaleData)
	}
	return nil
}
