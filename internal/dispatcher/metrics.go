package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "clipforge"

// Job outcome labels recorded on clipforge_jobs_total.
const (
	OutcomeDone        = "done"
	OutcomeRetried     = "retried"
	OutcomeFailed      = "failed"
	OutcomeInterrupted = "interrupted"
)

// Metrics holds the dispatcher's Prometheus collectors.
type Metrics struct {
	jobs     *prometheus.CounterVec
	running  *prometheus.GaugeVec
	duration *prometheus.HistogramVec
	enqueued *prometheus.CounterVec
}

// NewMetrics registers the dispatcher collectors with reg. A nil registerer
// yields collectors that are tracked but never exported.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		jobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "jobs_total",
				Help:      "Jobs finished by the dispatcher, by queue and outcome",
			},
			[]string{"queue", "outcome"},
		),
		running: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "jobs_running",
				Help:      "Jobs currently executing, by queue",
			},
			[]string{"queue"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "job_duration_seconds",
				Help:      "Handler execution time in seconds, by queue",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800, 3600},
			},
			[]string{"queue"},
		),
		enqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "jobs_enqueued_total",
				Help:      "Jobs accepted by Enqueue, by queue",
			},
			[]string{"queue"},
		),
	}
}
