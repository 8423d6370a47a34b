package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type registerer = prometheus.Registerer

// metrics holds the gateway's Prometheus collectors. A nil registerer yields
// collectors on a private registry, so an unconfigured gateway records into
// the void instead of nil-checking at every site.
type metrics struct {
	applied        *prometheus.CounterVec
	rejected       *prometheus.CounterVec
	rooms          prometheus.Gauge
	sessions       prometheus.Gauge
	persistRetries prometheus.Counter
	applyLatency   prometheus.Histogram
}

func newMetrics(reg registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &metrics{
		applied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindsync",
			Subsystem: "gateway",
			Name:      "mutations_applied_total",
			Help:      "Mutations applied to authoritative trees, by operation.",
		}, []string{"op"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindsync",
			Subsystem: "gateway",
			Name:      "mutations_rejected_total",
			Help:      "Mutations refused by the gateway, by reason.",
		}, []string{"reason"}),
		rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mindsync",
			Subsystem: "gateway",
			Name:      "open_rooms",
			Help:      "Boards currently held in memory.",
		}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mindsync",
			Subsystem: "gateway",
			Name:      "connected_sessions",
			Help:      "Sessions currently subscribed to any room.",
		}),
		persistRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mindsync",
			Subsystem: "gateway",
			Name:      "persist_retries_total",
			Help:      "Retried board snapshot saves.",
		}),
		applyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mindsync",
			Subsystem: "gateway",
			Name:      "apply_seconds",
			Help:      "Time spent applying a mutation inside the room critical section.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 10, 6),
		}),
	}
}
