package metrics

import "github.com/prometheus/client_golang/prometheus"

// BroadcastMetrics holds Prometheus metrics for live fan-out to subscribers.
type BroadcastMetrics struct {
	ActiveSubscribers  prometheus.Gauge
	ReadingsPublished  prometheus.Counter
	Deliveries         prometheus.Counter
	QueueOverflows     prometheus.Counter
	SubscribersDropped *prometheus.CounterVec
	SendDuration       prometheus.Histogram
}

// NewBroadcastMetrics creates and registers broadcast metrics on the given registry.
func NewBroadcastMetrics(reg prometheus.Registerer) *BroadcastMetrics {
	m := &BroadcastMetrics{
		ActiveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "active_subscribers",
			Help:      "Number of live subscribers attached to the broadcaster.",
		}),
		ReadingsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "readings_published_total",
			Help:      "Total number of readings handed to the broadcaster.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Total number of readings written to subscriber sinks.",
		}),
		QueueOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "queue_overflows_total",
			Help:      "Readings dropped from the head of a full subscriber queue.",
		}),
		SubscribersDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers_removed_total",
			Help:      "Subscribers removed from the registry, by reason.",
		}, []string{"reason"}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "send_duration_seconds",
			Help:      "Time spent writing one reading to one sink.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
	}

	reg.MustRegister(m.ActiveSubscribers, m.ReadingsPublished, m.Deliveries, m.QueueOverflows, m.SubscribersDropped, m.SendDuration)
	return m
}
