package execution

import (
	"testing"
)

// TestMetrics_Registration tests all metrics are initialized
func TestMetrics_Registration(t *testing.T) {
	if TradesTotal == nil {
		t.Error("TradesTotal not registered")
	}

	if ProfitRealizedUSD == nil {
		t.Error("ProfitRealizedUSD not registered")
	}

	if ExecutionDurationSeconds == nil {
		t.Error("ExecutionDurationSeconds not registered")
	}

	if ExecutionErrorsTotal == nil {
		t.Error("ExecutionErrorsTotal not registered")
	}

	if OpportunitiesReceived == nil {
		t.Error("OpportunitiesReceived not registered")
	}

	if OpportunitiesExecuted == nil {
		t.Error("OpportunitiesExecuted not registered")
	}

	if OpportunitiesSkippedTotal == nil {
		t.Error("OpportunitiesSkippedTotal not registered")
	}
}

// TestMetrics_Labels tests label values are accepted
func TestMetrics_Labels(t *testing.T) {
	TradesTotal.WithLabelValues("spread", "win").Inc()
	TradesTotal.WithLabelValues("funding", "STALE").Inc()

	ProfitRealizedUSD.WithLabelValues("spread").Add(5.0)
	ProfitRealizedUSD.WithLabelValues("spread").Add(-2.5)

	OpportunitiesSkippedTotal.WithLabelValues("WOULD_NOT_HAVE_EXECUTED").Inc()
	ExecutionDurationSeconds.Observe(0.01)
}
