package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the dispatcher's poll loop.
type Metrics struct {
	// PendingCount is a gauge showing current number of unprocessed events in outbox
	PendingCount prometheus.Gauge

	// InFlight is a gauge of messages currently held by an active batch
	InFlight prometheus.Gauge

	// ProcessedTotal is a counter of total successfully processed events
	ProcessedTotal prometheus.Counter

	// HandlerErrorsTotal is a counter of messages whose handler invocation
	// failed (counted once per failed message, retried or dead-lettered)
	HandlerErrorsTotal prometheus.Counter

	// RetryTotal is a counter of events rescheduled for another attempt
	RetryTotal prometheus.Counter

	// ProcessingDuration is a histogram of batch processing duration
	ProcessingDuration prometheus.Histogram

	// BatchSize is a histogram of actual batch sizes processed
	BatchSize prometheus.Histogram

	// DLQTotal is a counter of events moved to the dead-letter table
	DLQTotal prometheus.Counter
}

// NewMetrics creates and registers all dispatcher metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "outbox"
	}

	return &Metrics{
		PendingCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_count",
			Help:      "Current number of unprocessed events in the outbox table",
		}),

		InFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight",
			Help:      "Number of outbox messages currently leased by this worker",
		}),

		ProcessedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),

		HandlerErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Total number of outbox messages whose projection or external-effect handler invocation failed",
		}),

		RetryTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_total",
			Help:      "Total number of outbox events rescheduled after a handler failure",
		}),

		ProcessingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing a batch of events",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of events in each processed batch",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 200, 500},
		}),

		DLQTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dlq_total",
			Help:      "Total number of events moved to the dead-letter table",
		}),
	}
}

// DefaultMetrics is the default metrics instance used by the poll loop.
var DefaultMetrics = NewMetrics("outbox")
