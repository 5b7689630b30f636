package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RejectionsTotal tracks rejected opportunities by reason.
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_risk_rejections_total",
			Help: "Total number of opportunities rejected by risk limits",
		},
		[]string{"reason"},
	)

	// AdmittedTotal tracks admitted opportunities.
	AdmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_risk_admitted_total",
		Help: "Total number of opportunities admitted by risk limits",
	})

	// RiskScore tracks the distribution of assigned risk scores.
	RiskScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_risk_score",
		Help:    "Risk score assigned to evaluated opportunities",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	// Halted is 1 while the trading halt is latched.
	Halted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_risk_halted",
		Help: "Whether trading is halted (1) or not (0)",
	})
)
