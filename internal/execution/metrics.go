package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TradesTotal tracks paper trades by opportunity kind and outcome.
	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_execution_trades_total",
			Help: "Total number of paper trades recorded",
		},
		[]string{"kind", "outcome"},
	)

	// ProfitRealizedUSD tracks cumulative simulated profit. It is a gauge
	// because losing trades move it down.
	ProfitRealizedUSD = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arb_execution_profit_realized_usd",
			Help: "Cumulative realized profit of executed paper trades",
		},
		[]string{"kind"},
	)

	// ExecutionDurationSeconds tracks execution latency.
	ExecutionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_execution_duration_seconds",
		Help:    "Duration of paper trade execution",
		Buckets: prometheus.DefBuckets,
	})

	// ExecutionErrorsTotal tracks execution failures.
	ExecutionErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_execution_errors_total",
		Help: "Total number of execution errors",
	})

	// OpportunitiesReceived tracks opportunities received by the trader.
	OpportunitiesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_execution_opportunities_received_total",
		Help: "Total number of opportunities received by the paper trader",
	})

	// OpportunitiesExecuted tracks opportunities that would have executed.
	OpportunitiesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_execution_opportunities_executed_total",
		Help: "Total number of opportunities that would have executed",
	})

	// OpportunitiesSkippedTotal tracks opportunities not executed, by reason.
	OpportunitiesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_execution_opportunities_skipped_total",
			Help: "Total number of opportunities not executed",
		},
		[]string{"reason"},
	)
)
