package validation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// VerdictsTotal tracks validation verdicts.
var VerdictsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "arb_validation_verdicts_total",
		Help: "Total number of validation verdicts by verdict and reason",
	},
	[]string{"verdict", "reason"},
)
