package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks open stream connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_ws_active_connections",
		Help: "Number of open market data stream connections",
	})

	// ReconnectAttemptsTotal tracks reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_ws_reconnect_attempts_total",
		Help: "Total number of stream reconnection attempts",
	})

	// ReconnectFailuresTotal tracks failed reconnection attempts.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_ws_reconnect_failures_total",
		Help: "Total number of failed stream reconnection attempts",
	})

	// MessagesReceivedTotal tracks frames by kind (data, control).
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_ws_messages_received_total",
			Help: "Total number of stream frames received",
		},
		[]string{"kind"},
	)

	// MessagesDroppedTotal tracks frames dropped before delivery.
	MessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_ws_messages_dropped_total",
			Help: "Total number of stream frames dropped",
		},
		[]string{"reason"},
	)

	// SubscriptionCount tracks subscribed streams.
	SubscriptionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_ws_subscription_count",
		Help: "Number of subscribed streams",
	})

	// UnsubscriptionsTotal tracks unsubscribe requests.
	UnsubscriptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_ws_unsubscriptions_total",
		Help: "Total number of stream unsubscribe requests",
	})

	// ConnectionDuration tracks how long a connection lived before dropping.
	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_ws_connection_duration_seconds",
		Help:    "Lifetime of stream connections before disconnect",
		Buckets: []float64{1, 10, 60, 300, 1800, 3600, 14400, 43200, 86400},
	})
)
