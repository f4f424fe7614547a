package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace prefixes every streamcast metric name.
const namespace = "streamcast"

// Metrics holds all collectors updated by the hub and the HTTP API.
type Metrics struct {
	// ConnectionsActive is the number of currently open WebSocket connections.
	ConnectionsActive prometheus.Gauge

	// SubscriptionsActive is the number of live (connection, stream) pairs.
	SubscriptionsActive prometheus.Gauge

	// BroadcastsTotal counts Broadcast calls, regardless of subscriber count.
	BroadcastsTotal prometheus.Counter

	// DeliveriesTotal counts per-connection write attempts that succeeded.
	DeliveriesTotal prometheus.Counter

	// DeliveryErrors counts per-connection write attempts that failed.
	// Failures are swallowed (best-effort delivery), so this is the only
	// place they remain visible.
	DeliveryErrors prometheus.Counter

	// HandshakeFailures counts upgrade requests that did not complete.
	HandshakeFailures prometheus.Counter

	// IngressRejected counts broadcast triggers refused by the loopback guard.
	IngressRejected prometheus.Counter
}

// New builds the collector set and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open WebSocket connections.",
		}),
		SubscriptionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions_active",
			Help:      "Number of live (connection, stream) subscription pairs.",
		}),
		BroadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Total broadcast dispatches.",
		}),
		DeliveriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-connection broadcast writes that succeeded.",
		}),
		DeliveryErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_errors_total",
			Help:      "Per-connection broadcast writes that failed.",
		}),
		HandshakeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_failures_total",
			Help:      "WebSocket upgrade requests that did not complete.",
		}),
		IngressRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingress_rejected_total",
			Help:      "Broadcast triggers rejected by the loopback guard.",
		}),
	}
}
