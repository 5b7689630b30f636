package marketdata

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal tracks cache writes by snapshot kind and exchange.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_marketdata_updates_total",
			Help: "Total number of market data snapshots written to the cache",
		},
		[]string{"kind", "exchange"},
	)

	// StaleReadsTotal tracks reads rejected by the freshness bound.
	StaleReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_marketdata_stale_reads_total",
			Help: "Total number of cache reads older than the freshness bound",
		},
		[]string{"kind"},
	)

	// KeysTracked tracks the number of (exchange, symbol) keys in memory.
	KeysTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_marketdata_keys_tracked",
		Help: "Number of exchange/symbol keys tracked by the cache",
	})

	// LockContentionDuration tracks time spent waiting for the key map write lock.
	LockContentionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_marketdata_lock_contention_seconds",
		Help:    "Time spent waiting to insert a new key",
		Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15),
	})
)
