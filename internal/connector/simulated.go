package connector

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"github.com/shopspring/decimal"
)

// DefaultBasePrices are the reference mid prices simulated markets start from.
var DefaultBasePrices = map[string]float64{
	"BTC/USDT":  100000,
	"ETH/USDT":  3400,
	"SOL/USDT":  200,
	"XRP/USDT":  2.4,
	"ADA/USDT":  1.0,
	"DOGE/USDT": 0.375,
}

const (
	defaultVolatility     = 0.0005
	defaultVenueNoise     = 0.002
	defaultSpreadFraction = 0.0001
	defaultFundingRate    = 0.0001
	fundingInterval       = 8 * time.Hour
	priceDecimals         = 8
	sizeDecimals          = 4
)

// SimulatedMarket is the shared reference price process simulated venues
// quote around. Every read advances the symbol's random walk by one step.
type SimulatedMarket struct {
	mu         sync.Mutex
	rng        *rand.Rand
	mids       map[string]float64
	volatility float64
}

// NewSimulatedMarket creates a market seeded with seed. A nil basePrices uses
// DefaultBasePrices; volatility <= 0 uses 0.05% per step.
func NewSimulatedMarket(seed int64, basePrices map[string]float64, volatility float64) *SimulatedMarket {
	if basePrices == nil {
		basePrices = DefaultBasePrices
	}
	if volatility <= 0 {
		volatility = defaultVolatility
	}
	mids := make(map[string]float64, len(basePrices))
	for s, p := range basePrices {
		mids[s] = p
	}

	return &SimulatedMarket{
		rng:        rand.New(rand.NewSource(seed)), //nolint:gosec // simulation only
		mids:       mids,
		volatility: volatility,
	}
}

// Symbols returns the listed symbols, sorted.
func (m *SimulatedMarket) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.mids))
	for s := range m.mids {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// step advances symbol's mid and returns it.
func (m *SimulatedMarket) step(symbol string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mid, ok := m.mids[symbol]
	if !ok {
		return 0, false
	}
	mid *= 1 + m.volatility*m.rng.NormFloat64()
	m.mids[symbol] = mid
	return mid, true
}

// SimulatedConfig holds simulated venue configuration.
type SimulatedConfig struct {
	Name   string
	Market *SimulatedMarket
	Seed   int64
	// PriceOffset is a fixed relative skew against the market mid. Zero
	// derives a stable offset from Name.
	PriceOffset float64
	// VenueNoise is the maximum relative per-read deviation from the skewed mid.
	VenueNoise     float64
	SpreadFraction float64
	Levels         int
	FundingRate    float64
	Clock          func() time.Time
}

// Simulated is a venue generating books around a SimulatedMarket.
type Simulated struct {
	name        string
	market      *SimulatedMarket
	offset      float64
	noise       float64
	spread      float64
	levels      int
	fundingRate float64
	now         func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulated venue.
func NewSimulated(cfg *SimulatedConfig) *Simulated {
	c := *cfg
	if c.Market == nil {
		c.Market = NewSimulatedMarket(c.Seed, nil, 0)
	}
	if c.PriceOffset == 0 {
		c.PriceOffset = NameOffset(c.Name)
	}
	if c.VenueNoise <= 0 {
		c.VenueNoise = defaultVenueNoise
	}
	if c.SpreadFraction <= 0 {
		c.SpreadFraction = defaultSpreadFraction
	}
	if c.Levels <= 0 {
		c.Levels = 10
	}
	if c.FundingRate == 0 {
		c.FundingRate = defaultFundingRate
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}

	return &Simulated{
		name:        c.Name,
		market:      c.Market,
		offset:      c.PriceOffset,
		noise:       c.VenueNoise,
		spread:      c.SpreadFraction,
		levels:      c.Levels,
		fundingRate: c.FundingRate,
		now:         c.Clock,
		rng:         rand.New(rand.NewSource(c.Seed)), //nolint:gosec // simulation only
	}
}

// NameOffset maps a venue name to a stable skew within ±0.15%.
func NameOffset(name string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return (float64(h.Sum32()%3001) - 1500) / 1e6
}

// Name returns the venue name.
func (s *Simulated) Name() string {
	return s.name
}

func (s *Simulated) mid(symbol string) (float64, error) {
	ref, ok := s.market.step(symbol)
	if !ok {
		return 0, fmt.Errorf("%w: %s not listed on %s", types.ErrUnsupportedSymbol, symbol, s.name)
	}

	s.mu.Lock()
	jitter := (s.rng.Float64()*2 - 1) * s.noise
	s.mu.Unlock()

	return ref * (1 + s.offset + jitter), nil
}

func (s *Simulated) size() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return decimal.NewFromFloat(50 + s.rng.Float64()*150).Round(sizeDecimals)
}

// FetchOrderBook generates a book of depth levels per side spaced by the
// configured spread fraction.
func (s *Simulated) FetchOrderBook(ctx context.Context, symbol string, depth int) (types.OrderBook, error) {
	err := ctx.Err()
	if err != nil {
		return types.OrderBook{}, err
	}
	mid, err := s.mid(symbol)
	if err != nil {
		return types.OrderBook{}, err
	}
	if depth <= 0 || depth > s.levels {
		depth = s.levels
	}

	step := mid * s.spread
	book := types.OrderBook{
		Exchange:  s.name,
		Symbol:    symbol,
		Bids:      make([]types.PriceLevel, 0, depth),
		Asks:      make([]types.PriceLevel, 0, depth),
		Timestamp: s.now(),
	}
	for i := 1; i <= depth; i++ {
		offset := step * float64(i)
		book.Bids = append(book.Bids, types.PriceLevel{
			Price: decimal.NewFromFloat(mid - offset).Round(priceDecimals),
			Size:  s.size(),
		})
		book.Asks = append(book.Asks, types.PriceLevel{
			Price: decimal.NewFromFloat(mid + offset).Round(priceDecimals),
			Size:  s.size(),
		})
	}
	return book, nil
}

// FetchTicker returns the top level of a freshly generated book.
func (s *Simulated) FetchTicker(ctx context.Context, symbol string) (types.Ticker, error) {
	book, err := s.FetchOrderBook(ctx, symbol, 1)
	if err != nil {
		return types.Ticker{}, err
	}
	return types.Ticker{
		Exchange:  s.name,
		Symbol:    symbol,
		BidPrice:  book.Bids[0].Price,
		BidSize:   book.Bids[0].Size,
		AskPrice:  book.Asks[0].Price,
		AskSize:   book.Asks[0].Size,
		Timestamp: book.Timestamp,
	}, nil
}

// FetchFundingRate returns the configured rate with noise of up to ±50%,
// paid at the next 8-hour UTC boundary.
func (s *Simulated) FetchFundingRate(ctx context.Context, symbol string) (types.FundingRate, error) {
	err := ctx.Err()
	if err != nil {
		return types.FundingRate{}, err
	}
	mid, err := s.mid(symbol)
	if err != nil {
		return types.FundingRate{}, err
	}

	s.mu.Lock()
	rate := s.fundingRate * (0.5 + s.rng.Float64())
	s.mu.Unlock()

	now := s.now()
	return types.FundingRate{
		Exchange:        s.name,
		Symbol:          symbol,
		Rate:            decimal.NewFromFloat(rate).Round(priceDecimals),
		MarkPrice:       decimal.NewFromFloat(mid).Round(priceDecimals),
		NextFundingTime: now.UTC().Truncate(fundingInterval).Add(fundingInterval),
		Timestamp:       now,
	}, nil
}

// Close is a no-op.
func (s *Simulated) Close() error {
	return nil
}
