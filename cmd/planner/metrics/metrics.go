// Package metrics provides Prometheus instrumentation for the planner.
//
// It exposes operational metrics about the evaluation pipeline: the duration
// of each stage (collect, plan), the state of the latest plan, and error
// tracking. All metrics are served on /metrics for Prometheus scraping.
//
// Metrics exposed:
//   - queuecap_collect_seconds: Histogram of metric collection duration
//   - queuecap_plan_seconds: Histogram of plan generation duration
//   - queuecap_target_workers: Gauge of the latest plan's worker target
//   - queuecap_plan_confidence: Gauge of the latest plan's confidence score
//   - queuecap_plan_age_seconds: Gauge of the current plan age
//   - queuecap_anomalies_total: Counter of anomalous ticks
//   - queuecap_errors_total: Counter of errors by component and reason
//
// All metrics carry the queue label.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the planner.
type Metrics struct {
	CollectSeconds prometheus.Histogram
	PlanSeconds    prometheus.Histogram
	TargetWorkers  prometheus.Gauge
	PlanConfidence prometheus.Gauge
	PlanAgeSeconds prometheus.Gauge
	AnomaliesTotal prometheus.Counter
	ErrorsTotal    *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New(queue string) *Metrics {
	return &Metrics{
		CollectSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "queuecap_collect_seconds",
			Help: "Time spent collecting metrics from the source",
			ConstLabels: prometheus.Labels{
				"queue": queue,
			},
			Buckets: prometheus.DefBuckets,
		}),

		PlanSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "queuecap_plan_seconds",
			Help: "Time spent generating a capacity plan",
			ConstLabels: prometheus.Labels{
				"queue": queue,
			},
			Buckets: prometheus.DefBuckets,
		}),

		TargetWorkers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "queuecap_target_workers",
			Help: "Worker target of the latest plan",
			ConstLabels: prometheus.Labels{
				"queue": queue,
			},
		}),

		PlanConfidence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "queuecap_plan_confidence",
			Help: "Confidence score of the latest plan",
			ConstLabels: prometheus.Labels{
				"queue": queue,
			},
		}),

		PlanAgeSeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "queuecap_plan_age_seconds",
			Help: "Age of the current plan in seconds",
			ConstLabels: prometheus.Labels{
				"queue": queue,
			},
		}),

		AnomaliesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "queuecap_anomalies_total",
			Help: "Total number of anomalous evaluation ticks",
			ConstLabels: prometheus.Labels{
				"queue": queue,
			},
		}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "queuecap_errors_total",
			Help: "Total number of errors by component and reason",
			ConstLabels: prometheus.Labels{
				"queue": queue,
			},
		}, []string{"component", "reason"}),
	}
}

// RecordCollect records the time spent collecting metrics.
func (m *Metrics) RecordCollect(seconds float64) {
	m.CollectSeconds.Observe(seconds)
}

// RecordPlan records the time spent generating a plan.
func (m *Metrics) RecordPlan(seconds float64) {
	m.PlanSeconds.Observe(seconds)
}

// SetTargetWorkers sets the latest plan's worker target.
func (m *Metrics) SetTargetWorkers(workers int) {
	m.TargetWorkers.Set(float64(workers))
}

// SetConfidence sets the latest plan's confidence score.
func (m *Metrics) SetConfidence(confidence float64) {
	m.PlanConfidence.Set(confidence)
}

// SetPlanAge sets the current plan age.
func (m *Metrics) SetPlanAge(seconds float64) {
	m.PlanAgeSeconds.Set(seconds)
}

// RecordAnomaly counts one anomalous tick.
func (m *Metrics) RecordAnomaly() {
	m.AnomaliesTotal.Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
