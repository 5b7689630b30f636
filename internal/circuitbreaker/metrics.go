package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Enabled indicates whether the breaker allows execution.
	Enabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_circuit_breaker_enabled",
		Help: "Whether the circuit breaker allows execution (1=enabled, 0=disabled)",
	})

	// Balance tracks the last checked available balance.
	Balance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_circuit_breaker_available_balance_usd",
		Help: "Last checked available balance (cash minus exposure)",
	})

	// DisableThreshold tracks the balance below which execution is disabled.
	DisableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_circuit_breaker_disable_threshold_usd",
		Help: "Available balance threshold for disabling execution",
	})

	// EnableThreshold tracks the balance at which execution is re-enabled.
	EnableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_circuit_breaker_enable_threshold_usd",
		Help: "Available balance threshold for re-enabling execution",
	})

	// AvgTradeSize tracks the rolling average trade notional.
	AvgTradeSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_circuit_breaker_avg_trade_size_usd",
		Help: "Rolling average notional of recent executed trades",
	})

	// StateChangesTotal counts enable/disable transitions.
	StateChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_circuit_breaker_state_changes_total",
		Help: "Total number of circuit breaker state changes",
	})

	// CheckDurationSeconds tracks balance check latency.
	CheckDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_circuit_breaker_check_duration_seconds",
		Help:    "Time taken to check the available balance",
		Buckets: prometheus.DefBuckets,
	})
)
