// Package validation re-checks an opportunity against the order books as they
// are at intended execution time.
package validation

import (
	"fmt"
	"time"

	"github.com/digitalrebelz/arbitrage-app/internal/arbitrage"
	"github.com/digitalrebelz/arbitrage-app/internal/slippage"
	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reason qualifies a non-executing verdict.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonStaleData         Reason = "stale_data"
	ReasonInsufficientDepth Reason = "insufficient_depth"
	ReasonPriceMoved        Reason = "price_moved"
	ReasonBelowThreshold    Reason = "below_threshold"
	ReasonFundingElapsed    Reason = "funding_elapsed"
	ReasonExpired           Reason = "expired"
	ReasonInvalidInput      Reason = "invalid_input"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// MarketData is the read side of the market data cache.
type MarketData interface {
	FreshOrderBook(exchange, symbol string, maxAge time.Duration) (types.OrderBook, time.Duration, error)
	FreshFundingRate(exchange, symbol string, maxAge time.Duration) (types.FundingRate, time.Duration, error)
}

// Config holds validator configuration.
type Config struct {
	Staleness        time.Duration
	FundingStaleness time.Duration
	// MaxPriceDeviationPercent bounds how far a leg's VWAP may move against
	// the quoted price.
	MaxPriceDeviationPercent  decimal.Decimal
	MinProfitThresholdPercent decimal.Decimal
	Logger                    *zap.Logger
}

// Result is a validation verdict with the legs as they would have filled.
type Result struct {
	Verdict types.Verdict
	Reason  Reason
	Detail  string
	// Size is the size both legs fill at, always the opportunity size.
	Size              decimal.Decimal
	BuyFill           slippage.Fill
	SellFill          slippage.Fill
	BuyBookTimestamp  time.Time
	SellBookTimestamp time.Time
	// Profit is priced the way the detector prices: fees on the best levels,
	// depth beyond them charged as slippage cost.
	Profit      arbitrage.Result
	ValidatedAt time.Time
}

// WouldHaveExecuted reports whether the verdict is WOULD_HAVE_EXECUTED.
func (r *Result) WouldHaveExecuted() bool {
	return r.Verdict == types.VerdictWouldHaveExecuted
}

// Validator decides whether an opportunity would have executed.
type Validator struct {
	cfg    Config
	data   MarketData
	fees   arbitrage.FeeSchedule
	calc   *arbitrage.Calculator
	logger *zap.Logger
}

// New creates a validator pricing fees with fees.
func New(cfg *Config, data MarketData, fees arbitrage.FeeSchedule) *Validator {
	c := *cfg
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.FundingStaleness <= 0 {
		c.FundingStaleness = time.Minute
	}
	if !c.MaxPriceDeviationPercent.IsPositive() {
		c.MaxPriceDeviationPercent = one
	}

	return &Validator{
		cfg:    c,
		data:   data,
		fees:   fees,
		calc:   arbitrage.NewCalculator(fees),
		logger: c.Logger,
	}
}

// Validate re-reads both legs' books and re-runs the fill simulation at
// opp.Size. It reads the cache only, so it returns the same verdict for an
// unchanged cache.
func (v *Validator) Validate(opp *arbitrage.Opportunity, at time.Time) Result {
	res := v.validate(opp, at)
	res.ValidatedAt = at

	VerdictsTotal.WithLabelValues(string(res.Verdict), string(res.Reason)).Inc()
	if res.Verdict != types.VerdictWouldHaveExecuted {
		v.logger.Debug("validation-failed",
			zap.String("opportunity-id", opp.ID),
			zap.String("verdict", string(res.Verdict)),
			zap.String("reason", string(res.Reason)),
			zap.String("detail", res.Detail))
	}
	return res
}

func (v *Validator) validate(opp *arbitrage.Opportunity, at time.Time) Result {
	if !opp.Size.IsPositive() {
		return notExecuted(ReasonInvalidInput, "non-positive size "+opp.Size.String())
	}
	if opp.Expired(at) {
		return Result{Verdict: types.VerdictStale, Reason: ReasonExpired, Detail: opp.ExpiresAt.String()}
	}

	buyBook, _, err := v.data.FreshOrderBook(opp.BuyExchange, opp.Symbol, v.cfg.Staleness)
	if err != nil {
		return stale(err)
	}
	sellBook, _, err := v.data.FreshOrderBook(opp.SellExchange, opp.Symbol, v.cfg.Staleness)
	if err != nil {
		return stale(err)
	}

	var funding types.FundingRate
	if opp.IsFunding() {
		funding, _, err = v.data.FreshFundingRate(opp.Funding.PerpExchange, opp.Symbol, v.cfg.FundingStaleness)
		if err != nil {
			return stale(err)
		}
		if !funding.NextFundingTime.After(at) {
			return notExecuted(ReasonFundingElapsed, funding.NextFundingTime.String())
		}
	}

	size := opp.Size
	ev, res, ok := v.fillLegs(&buyBook, &sellBook, size)
	if !ok {
		return res
	}
	buyFill, sellFill := ev.BuyFill, ev.SellFill

	if moved, detail := v.priceMoved(opp, buyFill, sellFill); moved {
		r := notExecuted(ReasonPriceMoved, detail)
		r.BuyFill, r.SellFill = buyFill, sellFill
		return r
	}

	profit, err := v.price(opp, &funding, &ev, size)
	if err != nil {
		return notExecuted(ReasonInvalidInput, err.Error())
	}

	result := Result{
		Size:              size,
		BuyFill:           buyFill,
		SellFill:          sellFill,
		BuyBookTimestamp:  buyBook.Timestamp,
		SellBookTimestamp: sellBook.Timestamp,
		Profit:            profit,
	}
	if !profit.NetProfitPercent.GreaterThan(v.cfg.MinProfitThresholdPercent) {
		result.Verdict = types.VerdictWouldNotHaveExecuted
		result.Reason = ReasonBelowThreshold
		result.Detail = profit.NetProfitPercent.StringFixed(4)
		return result
	}

	result.Verdict = types.VerdictWouldHaveExecuted
	return result
}

// fillLegs prices both legs at size with the detector's calculator. Both legs
// must fill completely; a partial fill on either side is insufficient depth.
func (v *Validator) fillLegs(buyBook, sellBook *types.OrderBook, size decimal.Decimal) (arbitrage.Evaluation, Result, bool) {
	_, hasAsk := buyBook.BestAsk()
	_, hasBid := sellBook.BestBid()
	if !hasAsk || !hasBid {
		return arbitrage.Evaluation{}, notExecuted(ReasonInsufficientDepth, "empty book side"), false
	}

	ev, err := v.calc.Evaluate(buyBook, sellBook, size)
	if err != nil {
		return ev, notExecuted(ReasonInvalidInput, err.Error()), false
	}

	if !ev.FullyFilled() {
		r := notExecuted(ReasonInsufficientDepth, fmt.Sprintf("buy filled %s, sell filled %s of %s",
			ev.BuyFill.FilledSize, ev.SellFill.FilledSize, size))
		r.BuyFill, r.SellFill = ev.BuyFill, ev.SellFill
		return ev, r, false
	}
	return ev, Result{}, true
}

// priceMoved reports whether either VWAP moved beyond the allowed deviation
// against the opportunity's quoted leg price.
func (v *Validator) priceMoved(opp *arbitrage.Opportunity, buyFill, sellFill slippage.Fill) (bool, string) {
	dev := v.cfg.MaxPriceDeviationPercent.Div(hundred)

	buyLimit := opp.BuyPrice.Mul(one.Add(dev))
	if buyFill.VWAP.GreaterThan(buyLimit) {
		return true, fmt.Sprintf("buy vwap %s above %s", buyFill.VWAP, buyLimit)
	}
	sellLimit := opp.SellPrice.Mul(one.Sub(dev))
	if sellFill.VWAP.LessThan(sellLimit) {
		return true, fmt.Sprintf("sell vwap %s below %s", sellFill.VWAP, sellLimit)
	}
	return false, ""
}

func (v *Validator) price(opp *arbitrage.Opportunity, funding *types.FundingRate, ev *arbitrage.Evaluation, size decimal.Decimal) (arbitrage.Result, error) {
	if !opp.IsFunding() {
		return ev.Result, nil
	}

	spotPrice, perpPrice := ev.BuyFill.BestPrice, ev.SellFill.BestPrice
	if opp.BuyExchange == opp.Funding.PerpExchange {
		spotPrice, perpPrice = perpPrice, spotPrice
	}
	return arbitrage.CalculateFunding(arbitrage.FundingInput{
		SpotPrice:    spotPrice,
		PerpPrice:    perpPrice,
		Rate:         funding.Rate,
		Size:         size,
		SpotFeeRate:  v.fees.Rate(opp.Funding.SpotExchange),
		PerpFeeRate:  v.fees.Rate(opp.Funding.PerpExchange),
		SlippageCost: ev.SlippageCost,
	})
}

func stale(err error) Result {
	return Result{Verdict: types.VerdictStale, Reason: ReasonStaleData, Detail: err.Error()}
}

func notExecuted(reason Reason, detail string) Result {
	return Result{Verdict: types.VerdictWouldNotHaveExecuted, Reason: reason, Detail: detail}
}
