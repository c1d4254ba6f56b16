// Package metrics exposes the fleet's Prometheus instrumentation. Grounded
// on the teacher's metrics/metrics.go (a package-level histogram registered
// once in init), expanded from the single per-elevator request-duration
// histogram to the counters and gauges the distributed auction/watchdog
// pipeline produces.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/slavakukuyev/elevator-fleet/internal/constants"
)

var (
	// OrdersCreated counts button presses turned into orders, by button type.
	OrdersCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "orders_created_total",
			Help:      "Orders created from button presses, by button type.",
		},
		[]string{"button_type"},
	)

	// OrdersCompleted counts orders completed by this node's lift.
	OrdersCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "orders_completed_total",
			Help:      "Orders completed by this node's lift, by button type.",
		},
		[]string{"button_type"},
	)

	// AuctionsRun counts auction rounds this node initiated, tagged by
	// whether this node won.
	AuctionsRun = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "auctions_total",
			Help:      "Auction rounds resolved, by outcome.",
		},
		[]string{"outcome"}, // "won", "lost", "aborted_completed"
	)

	// WatchdogReinjections counts every reinjection the local watchdog
	// triggered, tagged by cause.
	WatchdogReinjections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "watchdog_reinjections_total",
			Help:      "Orders reinjected by the local watchdog, by cause.",
		},
		[]string{"cause"}, // "deadline", "peer_down", "peer_up"
	)

	// WatchdogActiveOrders is a gauge of orders currently armed locally.
	WatchdogActiveOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "watchdog_active_orders",
			Help:      "Orders this node's watchdog currently holds a deadline timer for.",
		},
	)

	// WatchdogStandbyOrders is a gauge of cab orders parked for a down peer.
	WatchdogStandbyOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "watchdog_standby_orders",
			Help:      "Cab orders this node's watchdog is holding for a peer that is currently down.",
		},
	)

	// LiftQueueDepth is a gauge of the local order server's pending queue.
	LiftQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "lift_queue_depth",
			Help:      "Number of orders pending in the local order server's queue.",
		},
	)

	// RPCCallDuration times outbound inter-node RPCs.
	RPCCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "Duration of outbound inter-node RPC calls.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"method", "outcome"},
	)

	// RPCBreakerState is a gauge of each peer's circuit breaker state
	// (0=closed, 1=open, 2=half_open).
	RPCBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "rpc_breaker_state",
			Help:      "Circuit breaker state per peer (0=closed, 1=open, 2=half_open).",
		},
		[]string{"peer"},
	)

	// RPCBreakerTrips counts every open transition, by peer.
	RPCBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "rpc_breaker_trips_total",
			Help:      "Circuit breaker open transitions, by peer.",
		},
		[]string{"peer"},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersCreated,
		OrdersCompleted,
		AuctionsRun,
		WatchdogReinjections,
		WatchdogActiveOrders,
		WatchdogStandbyOrders,
		LiftQueueDepth,
		RPCCallDuration,
		RPCBreakerState,
		RPCBreakerTrips,
	)
}
