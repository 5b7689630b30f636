package arbitrage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpportunitiesDetectedTotal tracks emitted opportunities by kind.
	OpportunitiesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_opportunities_detected_total",
			Help: "Total number of arbitrage opportunities detected",
		},
		[]string{"kind"},
	)

	// OpportunityNetProfitPercent tracks net profit as a percent of notional.
	OpportunityNetProfitPercent = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arb_opportunity_net_profit_percent",
			Help:    "Net profit of detected opportunities as a percent of notional",
			Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 2, 5},
		},
		[]string{"kind"},
	)

	// OpportunityNotionalUSD tracks opportunity notional.
	OpportunityNotionalUSD = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_opportunity_notional_usd",
		Help:    "Notional of detected opportunities in quote currency",
		Buckets: prometheus.ExponentialBuckets(10, 2, 10),
	})

	// SkipsTotal tracks pairs passed over, by reason.
	SkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_scan_skips_total",
			Help: "Total number of exchange pairs skipped during scans",
		},
		[]string{"reason"},
	)

	// PairsEvaluatedTotal tracks pair evaluations across scans.
	PairsEvaluatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_scan_pairs_evaluated_total",
		Help: "Total number of exchange pairs evaluated",
	})

	// ScanDurationSeconds tracks scan pass latency.
	ScanDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_scan_duration_seconds",
		Help:    "Duration of one detection scan pass",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})

	// ExcludedPairs tracks (exchange, symbol) pairs excluded for the run.
	ExcludedPairs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_excluded_pairs",
		Help: "Number of exchange/symbol pairs excluded as unsupported",
	})
)
