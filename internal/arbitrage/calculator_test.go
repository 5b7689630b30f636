package arbitrage

import (
	"errors"
	"testing"
	"time"

	"github.com/digitalrebelz/arbitrage-app/internal/testutil"
	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate_ReferenceScenario(t *testing.T) {
	res, err := Calculate(Input{
		BuyPrice:    testutil.Dec("100"),
		SellPrice:   testutil.Dec("102"),
		Size:        testutil.Dec("1"),
		BuyFeeRate:  testutil.Dec("0.001"),
		SellFeeRate: testutil.Dec("0.001"),
	})
	require.NoError(t, err)

	assert.True(t, res.GrossProfit.Equal(testutil.Dec("2")))
	assert.True(t, res.BuyFee.Equal(testutil.Dec("0.1")))
	assert.True(t, res.SellFee.Equal(testutil.Dec("0.102")))
	assert.True(t, res.NetProfit.Equal(testutil.Dec("1.798")), "expected 1.798, got %s", res.NetProfit)
	assert.True(t, res.NetProfitPercent.Equal(testutil.Dec("1.798")))
	assert.True(t, res.Notional.Equal(testutil.Dec("100")))
}

func TestCalculate_NegativeProfitIsValid(t *testing.T) {
	res, err := Calculate(Input{
		BuyPrice:    testutil.Dec("100"),
		SellPrice:   testutil.Dec("100.05"),
		Size:        testutil.Dec("2"),
		BuyFeeRate:  testutil.Dec("0.001"),
		SellFeeRate: testutil.Dec("0.001"),
	})
	require.NoError(t, err)
	assert.True(t, res.NetProfit.IsNegative())
}

func TestCalculate_InvalidInput(t *testing.T) {
	valid := Input{
		BuyPrice:    testutil.Dec("100"),
		SellPrice:   testutil.Dec("101"),
		Size:        testutil.Dec("1"),
		BuyFeeRate:  testutil.Dec("0.001"),
		SellFeeRate: testutil.Dec("0.001"),
	}

	tests := []struct {
		name   string
		mutate func(in *Input)
	}{
		{name: "zero size", mutate: func(in *Input) { in.Size = decimal.Zero }},
		{name: "negative size", mutate: func(in *Input) { in.Size = testutil.Dec("-1") }},
		{name: "zero buy price", mutate: func(in *Input) { in.BuyPrice = decimal.Zero }},
		{name: "negative sell price", mutate: func(in *Input) { in.SellPrice = testutil.Dec("-5") }},
		{name: "negative fee", mutate: func(in *Input) { in.SellFeeRate = testutil.Dec("-0.001") }},
		{name: "negative slippage", mutate: func(in *Input) { in.SlippageCost = testutil.Dec("-0.01") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := Calculate(in)
			assert.True(t, errors.Is(err, types.ErrInvalidInput), "expected ErrInvalidInput, got %v", err)
		})
	}
}

func TestCalculate_MonotonicInFeesAndSlippage(t *testing.T) {
	base := Input{
		BuyPrice:  testutil.Dec("250.5"),
		SellPrice: testutil.Dec("252.25"),
		Size:      testutil.Dec("3.3"),
	}

	prev, err := Calculate(base)
	require.NoError(t, err)

	for _, fee := range []string{"0.0001", "0.001", "0.0026", "0.006"} {
		in := base
		in.BuyFeeRate = testutil.Dec(fee)
		in.SellFeeRate = testutil.Dec(fee)
		res, err := Calculate(in)
		require.NoError(t, err)
		assert.True(t, res.NetProfit.LessThan(prev.NetProfit), "fee %s did not reduce profit", fee)
		prev = res
	}

	prev, _ = Calculate(base)
	for _, slip := range []string{"0.01", "0.5", "2"} {
		in := base
		in.SlippageCost = testutil.Dec(slip)
		res, err := Calculate(in)
		require.NoError(t, err)
		assert.True(t, res.NetProfit.LessThan(prev.NetProfit))
		prev = res
	}
}

func TestCalculator_Evaluate(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	buyBook := testutil.CreateTestOrderBook("binance", "BTC/USDT", now,
		testutil.Levels("99", "5"), testutil.Levels("100", "1", "101", "2"))
	sellBook := testutil.CreateTestOrderBook("kraken", "BTC/USDT", now,
		testutil.Levels("103", "5"), testutil.Levels("104", "5"))

	calc := NewCalculator(FeeSchedule{
		Rates:   map[string]decimal.Decimal{"kraken": testutil.Dec("0.0026")},
		Default: testutil.Dec("0.001"),
	})

	ev, err := calc.Evaluate(&buyBook, &sellBook, testutil.Dec("2"))
	require.NoError(t, err)

	// gross (103-100)*2 = 6; fees 0.2 + 0.5356; slippage 1 on the buy leg.
	assert.True(t, ev.BuyFill.VWAP.Equal(testutil.Dec("100.5")))
	assert.True(t, ev.SlippageCost.Equal(testutil.Dec("1")))
	assert.True(t, ev.Fees.Equal(testutil.Dec("0.7356")))
	assert.True(t, ev.NetProfit.Equal(testutil.Dec("4.2644")), "got %s", ev.NetProfit)
	assert.True(t, ev.FullyFilled())

	ev, err = calc.Evaluate(&buyBook, &sellBook, testutil.Dec("4"))
	require.NoError(t, err)
	assert.False(t, ev.FullyFilled())
	assert.True(t, ev.BuyFill.FilledSize.Equal(testutil.Dec("3")))
}

func TestCalculateFunding(t *testing.T) {
	res, err := CalculateFunding(FundingInput{
		SpotPrice:   testutil.Dec("100"),
		PerpPrice:   testutil.Dec("100.1"),
		Rate:        testutil.Dec("0.001"),
		Size:        testutil.Dec("10"),
		SpotFeeRate: testutil.Dec("0.0002"),
		PerpFeeRate: testutil.Dec("0.0002"),
	})
	require.NoError(t, err)

	// income 1.0, basis cost 0.5, fees 0.2 + 0.2002.
	assert.True(t, res.NetProfit.Equal(testutil.Dec("0.0998")), "got %s", res.NetProfit)
	assert.True(t, res.NetProfitPercent.Equal(testutil.Dec("0.00998")))

	negative, err := CalculateFunding(FundingInput{
		SpotPrice:   testutil.Dec("100"),
		PerpPrice:   testutil.Dec("100.1"),
		Rate:        testutil.Dec("-0.001"),
		Size:        testutil.Dec("10"),
		SpotFeeRate: testutil.Dec("0.0002"),
		PerpFeeRate: testutil.Dec("0.0002"),
	})
	require.NoError(t, err)
	assert.True(t, negative.NetProfit.Equal(res.NetProfit), "funding income is symmetric in sign")

	_, err = CalculateFunding(FundingInput{SpotPrice: testutil.Dec("100"), PerpPrice: testutil.Dec("100"), Size: decimal.Zero})
	assert.True(t, errors.Is(err, types.ErrInvalidInput))
}

func TestFundingReturns(t *testing.T) {
	rate := testutil.Dec("0.0001")
	assert.True(t, FundingDailyReturnPercent(rate, 3).Equal(testutil.Dec("0.03")))
	assert.True(t, FundingAnnualizedReturnPercent(rate, 3).Equal(testutil.Dec("10.95")))
	assert.True(t, BasisPercent(testutil.Dec("100"), testutil.Dec("100.5")).Equal(testutil.Dec("0.5")))
}

func TestMaxExecutableSize(t *testing.T) {
	tests := []struct {
		name string
		asks []types.PriceLevel
		bids []types.PriceLevel
		want string
	}{
		{
			name: "crosses partially",
			asks: testutil.Levels("100", "1", "101", "2"),
			bids: testutil.Levels("102", "1.5", "100.5", "3"),
			want: "1.5",
		},
		{
			name: "no cross",
			asks: testutil.Levels("100", "1"),
			bids: testutil.Levels("100", "1"),
			want: "0",
		},
		{
			name: "bids deeper than asks",
			asks: testutil.Levels("100", "1", "100.5", "1"),
			bids: testutil.Levels("110", "10"),
			want: "2",
		},
		{
			name: "empty side",
			asks: nil,
			bids: testutil.Levels("110", "10"),
			want: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaxExecutableSize(tt.asks, tt.bids)
			assert.True(t, got.Equal(testutil.Dec(tt.want)), "expected %s, got %s", tt.want, got)
		})
	}
}
