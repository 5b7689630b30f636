package portfolio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EquityUSD tracks current equity.
	EquityUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_portfolio_equity_usd",
		Help: "Current simulated portfolio equity",
	})

	// DrawdownRatio tracks drawdown from peak equity in [0,1].
	DrawdownRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_portfolio_drawdown_ratio",
		Help: "Current drawdown from peak equity as a ratio",
	})

	// TotalExposureUSD tracks open notional across symbols.
	TotalExposureUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_portfolio_total_exposure_usd",
		Help: "Total notional exposure across symbols",
	})

	// TradesAppliedTotal counts executed trades settled into the portfolio.
	TradesAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_portfolio_trades_applied_total",
		Help: "Total number of executed paper trades applied to the portfolio",
	})
)
