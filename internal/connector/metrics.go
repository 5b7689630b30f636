package connector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal tracks connector fetches by exchange, kind and outcome.
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_connector_fetches_total",
			Help: "Total number of connector fetches",
		},
		[]string{"exchange", "kind", "outcome"},
	)

	// FetchDurationSeconds tracks fetch latency.
	FetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arb_connector_fetch_duration_seconds",
			Help:    "Connector fetch latency",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"exchange", "kind"},
	)

	// PollDurationSeconds tracks a full poll pass.
	PollDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_connector_poll_duration_seconds",
		Help:    "Duration of a full poll pass over all connectors and symbols",
		Buckets: prometheus.DefBuckets,
	})

	// ExcludedPairs tracks (exchange, symbol) pairs dropped as unsupported.
	ExcludedPairs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_connector_excluded_pairs",
		Help: "Number of exchange/symbol pairs excluded as unsupported",
	})

	// StreamBooksTotal tracks books decoded from the depth stream by outcome.
	StreamBooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_connector_stream_books_total",
			Help: "Total number of order books received from the depth stream",
		},
		[]string{"exchange", "outcome"},
	)
)
