package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PassesTotal tracks pipeline passes by outcome.
	PassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_pipeline_passes_total",
			Help: "Total number of poll-scan-admit passes",
		},
		[]string{"outcome"},
	)

	// PassDurationSeconds tracks a full pass, poll included.
	PassDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_pipeline_pass_duration_seconds",
		Help:    "Duration of one poll-scan-admit pass",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// OpportunitiesQueuedTotal tracks opportunities handed to the paper trader.
	OpportunitiesQueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_pipeline_opportunities_queued_total",
		Help: "Total number of admitted opportunities queued for paper execution",
	})

	// OpportunitiesDroppedTotal tracks admitted opportunities that never reached
	// the paper trader.
	OpportunitiesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_pipeline_opportunities_dropped_total",
			Help: "Total number of admitted opportunities dropped before execution",
		},
		[]string{"reason"},
	)

	// InflightExposureUSD tracks notional queued for, but not yet settled by,
	// the paper trader.
	InflightExposureUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_pipeline_inflight_exposure_usd",
		Help: "Notional of queued opportunities not yet settled by the paper trader",
	})

	// QueueDepth tracks queued opportunities awaiting execution.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_pipeline_queue_depth",
		Help: "Admitted opportunities waiting for the paper trader",
	})
)
