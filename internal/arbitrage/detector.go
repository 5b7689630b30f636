package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/digitalrebelz/arbitrage-app/pkg/cache"
	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MarketData is the read side of the market data cache. Every read carries
// its own freshness bound.
type MarketData interface {
	FreshOrderBook(exchange, symbol string, maxAge time.Duration) (types.OrderBook, time.Duration, error)
	FreshTicker(exchange, symbol string, maxAge time.Duration) (types.Ticker, time.Duration, error)
	FreshFundingRate(exchange, symbol string, maxAge time.Duration) (types.FundingRate, time.Duration, error)
	Now() time.Time
}

// Storage is the interface for storing opportunities.
type Storage interface {
	StoreOpportunity(ctx context.Context, opp *Opportunity) error
}

// SkipReason explains why a pair produced no opportunity in a scan.
type SkipReason string

const (
	SkipStaleData      SkipReason = "stale_data"
	SkipNoData         SkipReason = "no_data"
	SkipUnsupported    SkipReason = "unsupported"
	SkipNoSpread       SkipReason = "no_spread"
	SkipNoDepth        SkipReason = "no_depth"
	SkipBelowThreshold SkipReason = "below_threshold"
	SkipFundingTooLow  SkipReason = "funding_rate_too_low"
	SkipFundingElapsed SkipReason = "funding_elapsed"
	SkipCooldown       SkipReason = "cooldown"
	SkipInvalidInput   SkipReason = "invalid_input"
)

// Skip records a pair that was evaluated and passed over.
type Skip struct {
	Kind         types.OpportunityKind
	Symbol       string
	BuyExchange  string
	SellExchange string
	Reason       SkipReason
	Detail       string
}

// ScanResult is the output of one scan pass. Opportunity order is unspecified.
type ScanResult struct {
	Opportunities  []Opportunity
	Skips          []Skip
	PairsEvaluated int
	StartedAt      time.Time
	Duration       time.Duration
}

// SkipCount returns how many skips had reason.
func (r *ScanResult) SkipCount(reason SkipReason) int {
	n := 0
	for _, s := range r.Skips {
		if s.Reason == reason {
			n++
		}
	}
	return n
}

// Config holds detector configuration.
type Config struct {
	MinProfitThresholdPercent decimal.Decimal
	CandidateNotional         decimal.Decimal
	Staleness                 time.Duration
	FundingStaleness          time.Duration
	MinFundingRatePercent     decimal.Decimal
	FundingIntervalsPerDay    int
	// FundingVenues maps a spot exchange to the exchange quoting its perpetual.
	FundingVenues     map[string]string
	MaxConcurrency    int
	OpportunityWindow time.Duration
	TickerPrefilter   bool
	Fees              FeeSchedule
	Logger            *zap.Logger
}

type venueKey struct {
	exchange string
	symbol   string
}

// Detector scans the market data cache for spread and funding opportunities.
type Detector struct {
	config   Config
	logger   *zap.Logger
	data     MarketData
	calc     *Calculator
	storage  Storage
	cooldown *cache.Cooldown

	excludedMu sync.RWMutex
	excluded   map[venueKey]struct{}

	latestMu   sync.RWMutex
	latest     []Opportunity
	lastScanAt time.Time
}

// New creates a detector. storage and cooldown may be nil.
func New(cfg Config, data MarketData, storage Storage, cooldown *cache.Cooldown) *Detector {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.FundingIntervalsPerDay <= 0 {
		cfg.FundingIntervalsPerDay = 3
	}
	if cfg.FundingStaleness <= 0 {
		cfg.FundingStaleness = time.Minute
	}

	return &Detector{
		config:   cfg,
		logger:   cfg.Logger,
		data:     data,
		calc:     NewCalculator(cfg.Fees),
		storage:  storage,
		cooldown: cooldown,
		excluded: make(map[venueKey]struct{}),
	}
}

// Calculator returns the detector's calculator.
func (d *Detector) Calculator() *Calculator {
	return d.calc
}

// Exclude removes (exchange, symbol) from every later scan in this run.
func (d *Detector) Exclude(exchange, symbol string) {
	d.excludedMu.Lock()
	_, already := d.excluded[venueKey{exchange, symbol}]
	d.excluded[venueKey{exchange, symbol}] = struct{}{}
	d.excludedMu.Unlock()

	if !already {
		ExcludedPairs.Inc()
		d.logger.Warn("pair-excluded",
			zap.String("exchange", exchange),
			zap.String("symbol", symbol))
	}
}

func (d *Detector) isExcluded(exchange, symbol string) bool {
	d.excludedMu.RLock()
	defer d.excludedMu.RUnlock()
	_, ok := d.excluded[venueKey{exchange, symbol}]
	return ok
}

// Opportunities returns the opportunities emitted by the last scan.
func (d *Detector) Opportunities() []Opportunity {
	d.latestMu.RLock()
	defer d.latestMu.RUnlock()
	out := make([]Opportunity, len(d.latest))
	copy(out, d.latest)
	return out
}

// LastScanAt returns when the last completed scan started.
func (d *Detector) LastScanAt() time.Time {
	d.latestMu.RLock()
	defer d.latestMu.RUnlock()
	return d.lastScanAt
}

type scanTask func() (*Opportunity, *Skip)

// Scan evaluates every ordered exchange pair for every symbol, plus every
// configured funding venue, against the cache as it is at read time.
func (d *Detector) Scan(ctx context.Context, symbols, exchanges []string) (ScanResult, error) {
	start := time.Now()
	result := ScanResult{StartedAt: d.data.Now()}

	tasks := make([]scanTask, 0, len(symbols)*len(exchanges)*len(exchanges))
	for _, symbol := range symbols {
		for _, buyEx := range exchanges {
			for _, sellEx := range exchanges {
				if buyEx == sellEx {
					continue
				}
				tasks = append(tasks, func() (*Opportunity, *Skip) {
					return d.evaluateSpread(symbol, buyEx, sellEx)
				})
			}
		}
		for spotEx, perpEx := range d.config.FundingVenues {
			tasks = append(tasks, func() (*Opportunity, *Skip) {
				return d.evaluateFunding(symbol, spotEx, perpEx)
			})
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.MaxConcurrency)
	for _, task := range tasks {
		g.Go(func() error {
			err := gctx.Err()
			if err != nil {
				return err
			}

			opp, skip := task()

			mu.Lock()
			defer mu.Unlock()
			result.PairsEvaluated++
			if opp != nil {
				result.Opportunities = append(result.Opportunities, *opp)
			}
			if skip != nil {
				result.Skips = append(result.Skips, *skip)
				SkipsTotal.WithLabelValues(string(skip.Reason)).Inc()
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return ScanResult{}, fmt.Errorf("scan: %w", err)
	}

	result.Duration = time.Since(start)
	ScanDurationSeconds.Observe(result.Duration.Seconds())
	PairsEvaluatedTotal.Add(float64(result.PairsEvaluated))

	d.publish(ctx, result)

	return result, nil
}

// publish runs only for a completed scan, so a cancelled scan never puts a
// route into cooldown.
func (d *Detector) publish(ctx context.Context, result ScanResult) {
	for i := range result.Opportunities {
		opp := &result.Opportunities[i]
		d.cooldown.Mark(opp.RouteKey())

		OpportunitiesDetectedTotal.WithLabelValues(string(opp.Kind)).Inc()
		OpportunityNetProfitPercent.WithLabelValues(string(opp.Kind)).Observe(opp.NetProfitPercent.InexactFloat64())
		OpportunityNotionalUSD.Observe(opp.Notional.InexactFloat64())

		d.logger.Info("arbitrage-opportunity-detected",
			zap.String("opportunity-id", opp.ID),
			zap.String("kind", string(opp.Kind)),
			zap.String("symbol", opp.Symbol),
			zap.String("buy-exchange", opp.BuyExchange),
			zap.String("sell-exchange", opp.SellExchange),
			zap.String("buy-price", opp.BuyPrice.String()),
			zap.String("sell-price", opp.SellPrice.String()),
			zap.String("size", opp.Size.String()),
			zap.String("net-profit", opp.NetProfit.StringFixed(6)),
			zap.String("net-profit-percent", opp.NetProfitPercent.StringFixed(4)),
			zap.Duration("data-age", opp.DataAge))

		if d.storage != nil {
			err := d.storage.StoreOpportunity(ctx, opp)
			if err != nil {
				d.logger.Error("failed-to-store-opportunity",
					zap.String("opportunity-id", opp.ID),
					zap.Error(err))
			}
		}
	}

	d.latestMu.Lock()
	d.latest = append([]Opportunity(nil), result.Opportunities...)
	d.lastScanAt = result.StartedAt
	d.latestMu.Unlock()

	d.logger.Debug("scan-complete",
		zap.Int("pairs-evaluated", result.PairsEvaluated),
		zap.Int("opportunities", len(result.Opportunities)),
		zap.Int("skips", len(result.Skips)),
		zap.Duration("duration", result.Duration))
}

func (d *Detector) evaluateSpread(symbol, buyEx, sellEx string) (*Opportunity, *Skip) {
	skip := func(reason SkipReason, detail string) (*Opportunity, *Skip) {
		return nil, &Skip{
			Kind:         types.KindSpread,
			Symbol:       symbol,
			BuyExchange:  buyEx,
			SellExchange: sellEx,
			Reason:       reason,
			Detail:       detail,
		}
	}

	if d.isExcluded(buyEx, symbol) || d.isExcluded(sellEx, symbol) {
		return skip(SkipUnsupported, "")
	}

	if d.config.TickerPrefilter {
		buyTicker, _, errBuy := d.data.FreshTicker(buyEx, symbol, d.config.Staleness)
		sellTicker, _, errSell := d.data.FreshTicker(sellEx, symbol, d.config.Staleness)
		if errBuy == nil && errSell == nil && buyTicker.AskPrice.GreaterThanOrEqual(sellTicker.BidPrice) {
			return skip(SkipNoSpread, "ticker")
		}
	}

	buyBook, buyAge, err := d.data.FreshOrderBook(buyEx, symbol, d.config.Staleness)
	if err != nil {
		return skip(readSkipReason(err), err.Error())
	}
	sellBook, sellAge, err := d.data.FreshOrderBook(sellEx, symbol, d.config.Staleness)
	if err != nil {
		return skip(readSkipReason(err), err.Error())
	}

	ask, hasAsk := buyBook.BestAsk()
	bid, hasBid := sellBook.BestBid()
	if !hasAsk || !hasBid {
		return skip(SkipNoDepth, "")
	}
	if ask.Price.GreaterThanOrEqual(bid.Price) {
		return skip(SkipNoSpread, "")
	}

	maxExec := MaxExecutableSize(buyBook.Asks, sellBook.Bids)
	size, ev, err := d.sizeAndEvaluate(&buyBook, &sellBook, ask.Price, maxExec)
	if err != nil {
		if errors.Is(err, errNoDepth) {
			return skip(SkipNoDepth, "")
		}
		return skip(SkipInvalidInput, err.Error())
	}

	if !ev.NetProfitPercent.GreaterThan(d.config.MinProfitThresholdPercent) {
		return skip(SkipBelowThreshold, ev.NetProfitPercent.StringFixed(4))
	}

	now := d.data.Now()
	opp := newOpportunity(types.KindSpread, symbol, buyEx, sellEx, size, ev,
		maxDuration(buyAge, sellAge), now, d.config.OpportunityWindow)
	opp.MaxExecutableSize = maxExec

	if d.cooldown.Active(opp.RouteKey()) {
		return skip(SkipCooldown, "")
	}

	return &opp, nil
}

func (d *Detector) evaluateFunding(symbol, spotEx, perpEx string) (*Opportunity, *Skip) {
	skip := func(reason SkipReason, detail string) (*Opportunity, *Skip) {
		return nil, &Skip{
			Kind:         types.KindFunding,
			Symbol:       symbol,
			BuyExchange:  spotEx,
			SellExchange: perpEx,
			Reason:       reason,
			Detail:       detail,
		}
	}

	if d.isExcluded(spotEx, symbol) || d.isExcluded(perpEx, symbol) {
		return skip(SkipUnsupported, "")
	}

	spotBook, spotAge, err := d.data.FreshOrderBook(spotEx, symbol, d.config.Staleness)
	if err != nil {
		return skip(readSkipReason(err), err.Error())
	}
	perpBook, perpAge, err := d.data.FreshOrderBook(perpEx, symbol, d.config.Staleness)
	if err != nil {
		return skip(readSkipReason(err), err.Error())
	}
	funding, _, err := d.data.FreshFundingRate(perpEx, symbol, d.config.FundingStaleness)
	if err != nil {
		return skip(readSkipReason(err), err.Error())
	}

	now := d.data.Now()
	if !funding.NextFundingTime.After(now) {
		return skip(SkipFundingElapsed, funding.NextFundingTime.String())
	}

	ratePercent := funding.Rate.Mul(hundred)
	if ratePercent.Abs().LessThan(d.config.MinFundingRatePercent) {
		return skip(SkipFundingTooLow, ratePercent.String())
	}

	// Positive funding pays shorts: hold spot, short the perp. Negative pays longs.
	direction := ShortPerpLongSpot
	buyBook, sellBook := &spotBook, &perpBook
	if funding.Rate.IsNegative() {
		direction = LongPerpShortSpot
		buyBook, sellBook = &perpBook, &spotBook
	}

	ask, hasAsk := buyBook.BestAsk()
	_, hasBid := sellBook.BestBid()
	if !hasAsk || !hasBid {
		return skip(SkipNoDepth, "")
	}

	size, ev, err := d.sizeAndEvaluate(buyBook, sellBook, ask.Price, decimal.Zero)
	if err != nil {
		if errors.Is(err, errNoDepth) {
			return skip(SkipNoDepth, "")
		}
		return skip(SkipInvalidInput, err.Error())
	}

	spotPrice, perpPrice := ev.BuyFill.BestPrice, ev.SellFill.BestPrice
	if direction == LongPerpShortSpot {
		spotPrice, perpPrice = perpPrice, spotPrice
	}

	res, err := CalculateFunding(FundingInput{
		SpotPrice:    spotPrice,
		PerpPrice:    perpPrice,
		Rate:         funding.Rate,
		Size:         size,
		SpotFeeRate:  d.calc.fees.Rate(spotEx),
		PerpFeeRate:  d.calc.fees.Rate(perpEx),
		SlippageCost: ev.SlippageCost,
	})
	if err != nil {
		return skip(SkipInvalidInput, err.Error())
	}

	if !res.NetProfitPercent.GreaterThan(d.config.MinProfitThresholdPercent) {
		return skip(SkipBelowThreshold, res.NetProfitPercent.StringFixed(4))
	}

	ev.Result = res
	opp := newOpportunity(types.KindFunding, symbol, buyBook.Exchange, sellBook.Exchange, size, ev,
		maxDuration(spotAge, perpAge), now, d.config.OpportunityWindow)
	opp.ExpiresAt = funding.NextFundingTime
	opp.MaxExecutableSize = size
	opp.Funding = &FundingLeg{
		Rate:               funding.Rate,
		Direction:          direction,
		SpotExchange:       spotEx,
		PerpExchange:       perpEx,
		BasisPercent:       BasisPercent(spotPrice, perpPrice),
		DailyReturnPercent: FundingDailyReturnPercent(funding.Rate.Abs(), d.config.FundingIntervalsPerDay),
		NextFundingTime:    funding.NextFundingTime,
	}

	if d.cooldown.Active(opp.RouteKey()) {
		return skip(SkipCooldown, "")
	}

	return &opp, nil
}

var errNoDepth = errors.New("no fillable depth")

// sizeAndEvaluate sizes the trade at the candidate notional, capped by maxSize
// when it is positive, and prices it.
// When either leg cannot fill, it shrinks to what both legs can fill.
func (d *Detector) sizeAndEvaluate(buyBook, sellBook *types.OrderBook, bestAsk, maxSize decimal.Decimal) (decimal.Decimal, Evaluation, error) {
	size := d.config.CandidateNotional.Div(bestAsk).Truncate(8)
	if maxSize.IsPositive() && size.GreaterThan(maxSize) {
		size = maxSize
	}
	if !size.IsPositive() {
		return decimal.Zero, Evaluation{}, fmt.Errorf("%w: candidate size rounds to zero", types.ErrInvalidInput)
	}

	ev, err := d.calc.Evaluate(buyBook, sellBook, size)
	if err != nil {
		return decimal.Zero, Evaluation{}, err
	}
	if ev.FullyFilled() {
		return size, ev, nil
	}

	size = decimal.Min(ev.BuyFill.FilledSize, ev.SellFill.FilledSize)
	if !size.IsPositive() {
		return decimal.Zero, Evaluation{}, errNoDepth
	}
	ev, err = d.calc.Evaluate(buyBook, sellBook, size)
	if err != nil {
		return decimal.Zero, Evaluation{}, err
	}
	return size, ev, nil
}

func readSkipReason(err error) SkipReason {
	if errors.Is(err, types.ErrStaleData) {
		return SkipStaleData
	}
	return SkipNoData
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
