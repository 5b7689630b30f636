package arbitrage

import (
	"fmt"

	"github.com/digitalrebelz/arbitrage-app/internal/slippage"
	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.NewFromFloat(0.5)
)

// FeeSchedule maps exchange id to taker fee rate (0.001 = 0.1%).
type FeeSchedule struct {
	Rates   map[string]decimal.Decimal
	Default decimal.Decimal
}

// Rate returns the fee rate for exchange, falling back to Default.
func (f FeeSchedule) Rate(exchange string) decimal.Decimal {
	if r, ok := f.Rates[exchange]; ok {
		return r
	}
	return f.Default
}

// Input describes a two-legged spread trade.
type Input struct {
	BuyPrice     decimal.Decimal
	SellPrice    decimal.Decimal
	Size         decimal.Decimal
	BuyFeeRate   decimal.Decimal
	SellFeeRate  decimal.Decimal
	SlippageCost decimal.Decimal
}

// Result is the profit breakdown of a candidate trade.
type Result struct {
	Notional         decimal.Decimal
	GrossProfit      decimal.Decimal
	BuyFee           decimal.Decimal
	SellFee          decimal.Decimal
	Fees             decimal.Decimal
	SlippageCost     decimal.Decimal
	NetProfit        decimal.Decimal
	NetProfitPercent decimal.Decimal
}

// Calculate computes
//
//	net = (sell - buy)*size - buy*size*buyFee - sell*size*sellFee - slippage
//
// and net as a percent of the buy-leg notional. A negative net is a valid
// result.
func Calculate(in Input) (Result, error) {
	if !in.BuyPrice.IsPositive() || !in.SellPrice.IsPositive() {
		return Result{}, fmt.Errorf("%w: prices must be positive (buy %s, sell %s)",
			types.ErrInvalidInput, in.BuyPrice, in.SellPrice)
	}
	if !in.Size.IsPositive() {
		return Result{}, fmt.Errorf("%w: size must be positive, got %s", types.ErrInvalidInput, in.Size)
	}
	if in.BuyFeeRate.IsNegative() || in.SellFeeRate.IsNegative() {
		return Result{}, fmt.Errorf("%w: fee rates must be non-negative", types.ErrInvalidInput)
	}
	if in.SlippageCost.IsNegative() {
		return Result{}, fmt.Errorf("%w: slippage cost must be non-negative", types.ErrInvalidInput)
	}

	notional := in.BuyPrice.Mul(in.Size)
	gross := in.SellPrice.Sub(in.BuyPrice).Mul(in.Size)
	buyFee := notional.Mul(in.BuyFeeRate)
	sellFee := in.SellPrice.Mul(in.Size).Mul(in.SellFeeRate)
	fees := buyFee.Add(sellFee)
	net := gross.Sub(fees).Sub(in.SlippageCost)

	return Result{
		Notional:         notional,
		GrossProfit:      gross,
		BuyFee:           buyFee,
		SellFee:          sellFee,
		Fees:             fees,
		SlippageCost:     in.SlippageCost,
		NetProfit:        net,
		NetProfitPercent: net.Div(notional).Mul(hundred),
	}, nil
}

// Evaluation is a Result priced against real book depth.
type Evaluation struct {
	Result
	BuyFill  slippage.Fill
	SellFill slippage.Fill
}

// FullyFilled reports whether both legs can be filled at the requested size.
func (e Evaluation) FullyFilled() bool {
	return e.BuyFill.FullyFilled && e.SellFill.FullyFilled
}

// Calculator prices spread and funding trades with a fee schedule.
type Calculator struct {
	fees FeeSchedule
}

// NewCalculator creates a calculator.
func NewCalculator(fees FeeSchedule) *Calculator {
	return &Calculator{fees: fees}
}

// Fees returns the calculator's fee schedule.
func (c *Calculator) Fees() FeeSchedule {
	return c.fees
}

// Evaluate buys size on buyBook's asks and sells size on sellBook's bids.
// Leg prices are the best levels; depth consumption beyond them is charged as
// slippage cost from both walks.
func (c *Calculator) Evaluate(buyBook, sellBook *types.OrderBook, size decimal.Decimal) (Evaluation, error) {
	buyFill, err := slippage.SimulateOrder(buyBook, types.SideBuy, size)
	if err != nil {
		return Evaluation{}, fmt.Errorf("simulate buy leg: %w", err)
	}
	sellFill, err := slippage.SimulateOrder(sellBook, types.SideSell, size)
	if err != nil {
		return Evaluation{}, fmt.Errorf("simulate sell leg: %w", err)
	}

	res, err := Calculate(Input{
		BuyPrice:     buyFill.BestPrice,
		SellPrice:    sellFill.BestPrice,
		Size:         size,
		BuyFeeRate:   c.fees.Rate(buyBook.Exchange),
		SellFeeRate:  c.fees.Rate(sellBook.Exchange),
		SlippageCost: buyFill.SlippageCost.Add(sellFill.SlippageCost),
	})
	if err != nil {
		return Evaluation{}, err
	}

	return Evaluation{Result: res, BuyFill: buyFill, SellFill: sellFill}, nil
}

// FundingInput describes a spot/perpetual funding capture.
type FundingInput struct {
	SpotPrice    decimal.Decimal
	PerpPrice    decimal.Decimal
	Rate         decimal.Decimal // per funding interval, as a fraction
	Size         decimal.Decimal
	SpotFeeRate  decimal.Decimal
	PerpFeeRate  decimal.Decimal
	SlippageCost decimal.Decimal
}

// CalculateFunding prices one funding interval of a hedged spot/perp position:
// income |rate|*notional, minus half the basis as entry/exit cost, minus both
// legs' fees and slippage. Notional is the spot leg.
func CalculateFunding(in FundingInput) (Result, error) {
	if !in.SpotPrice.IsPositive() || !in.PerpPrice.IsPositive() {
		return Result{}, fmt.Errorf("%w: prices must be positive (spot %s, perp %s)",
			types.ErrInvalidInput, in.SpotPrice, in.PerpPrice)
	}
	if !in.Size.IsPositive() {
		return Result{}, fmt.Errorf("%w: size must be positive, got %s", types.ErrInvalidInput, in.Size)
	}
	if in.SpotFeeRate.IsNegative() || in.PerpFeeRate.IsNegative() || in.SlippageCost.IsNegative() {
		return Result{}, fmt.Errorf("%w: fees and slippage must be non-negative", types.ErrInvalidInput)
	}

	notional := in.SpotPrice.Mul(in.Size)
	income := in.Rate.Abs().Mul(notional)
	basisCost := in.PerpPrice.Sub(in.SpotPrice).Abs().Mul(in.Size).Mul(half)
	spotFee := notional.Mul(in.SpotFeeRate)
	perpFee := in.PerpPrice.Mul(in.Size).Mul(in.PerpFeeRate)
	fees := spotFee.Add(perpFee)
	net := income.Sub(basisCost).Sub(fees).Sub(in.SlippageCost)

	return Result{
		Notional:         notional,
		GrossProfit:      income.Sub(basisCost),
		BuyFee:           spotFee,
		SellFee:          perpFee,
		Fees:             fees,
		SlippageCost:     in.SlippageCost,
		NetProfit:        net,
		NetProfitPercent: net.Div(notional).Mul(hundred),
	}, nil
}

// BasisPercent returns (perp - spot) / spot * 100.
func BasisPercent(spot, perp decimal.Decimal) decimal.Decimal {
	if !spot.IsPositive() {
		return decimal.Zero
	}
	return perp.Sub(spot).Div(spot).Mul(hundred)
}

// FundingDailyReturnPercent is the percent return of collecting rate
// intervalsPerDay times a day.
func FundingDailyReturnPercent(rate decimal.Decimal, intervalsPerDay int) decimal.Decimal {
	return rate.Mul(hundred).Mul(decimal.NewFromInt(int64(intervalsPerDay)))
}

// FundingAnnualizedReturnPercent is the daily return times 365.
func FundingAnnualizedReturnPercent(rate decimal.Decimal, intervalsPerDay int) decimal.Decimal {
	return FundingDailyReturnPercent(rate, intervalsPerDay).Mul(decimal.NewFromInt(365))
}

// MaxExecutableSize walks buy asks against sell bids and returns the size that
// can be crossed while the ask is below the bid, before fees.
func MaxExecutableSize(asks, bids []types.PriceLevel) decimal.Decimal {
	total := decimal.Zero
	i, j := 0, 0
	var askLeft, bidLeft decimal.Decimal
	if len(asks) > 0 {
		askLeft = asks[0].Size
	}
	if len(bids) > 0 {
		bidLeft = bids[0].Size
	}

	for i < len(asks) && j < len(bids) && asks[i].Price.LessThan(bids[j].Price) {
		take := decimal.Min(askLeft, bidLeft)
		total = total.Add(take)
		askLeft = askLeft.Sub(take)
		bidLeft = bidLeft.Sub(take)

		if !askLeft.IsPositive() {
			i++
			if i < len(asks) {
				askLeft = asks[i].Size
			}
		}
		if !bidLeft.IsPositive() {
			j++
			if j < len(bids) {
				bidLeft = bids[j].Size
			}
		}
	}

	return total
}
