package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics holds Prometheus metrics for ingestion, the durable log and
// the tail cursor.
type PipelineMetrics struct {
	LinesReceived   prometheus.Counter
	LinesAppended   prometheus.Counter
	AppendFailures  prometheus.Counter
	AppendBreaker   prometheus.Gauge
	MalformedFields prometheus.Counter
	LinesTailed     prometheus.Counter
	PollDuration    prometheus.Histogram
	PollErrors      prometheus.Counter
	IngestionActive prometheus.Gauge
	TailQueries     *prometheus.CounterVec
}

// NewPipelineMetrics creates and registers pipeline metrics on the given registry.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		LinesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "lines_received_total",
			Help:      "Non-blank lines received from the line producer.",
		}),
		LinesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "lines_appended_total",
			Help:      "Lines durably appended to the log file.",
		}),
		AppendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "append_failures_total",
			Help:      "Log appends that failed or were rejected by the open breaker.",
		}),
		AppendBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "append_breaker_state",
			Help:      "Append circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		MalformedFields: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tail",
			Name:      "malformed_fields_total",
			Help:      "Axis fields that failed to parse and were defaulted to zero.",
		}),
		LinesTailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tail",
			Name:      "lines_total",
			Help:      "Complete lines read by the tail cursor.",
		}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tail",
			Name:      "poll_duration_seconds",
			Help:      "Duration of one tail cursor poll including publish.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tail",
			Name:      "poll_errors_total",
			Help:      "Tail cursor polls that failed to read the log file.",
		}),
		IngestionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "active",
			Help:      "1 while an ingestion session is running.",
		}),
		TailQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "tail_queries_total",
			Help:      "Tail queries served, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.LinesReceived, m.LinesAppended, m.AppendFailures, m.AppendBreaker,
		m.MalformedFields, m.LinesTailed, m.PollDuration, m.PollErrors,
		m.IngestionActive, m.TailQueries,
	)
	return m
}
