package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics records the outcome of processed jobs by agent category.
type WorkerMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	credits  *prometheus.CounterVec
}

// NewWorkerMetrics registers the job processor metrics on the provided registerer.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		return &WorkerMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of processed jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"category"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_success",
		Help: "Successfully completed jobs.",
	}, []string{"category"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_failure",
		Help: "Failed jobs.",
	}, []string{"category"})
	credits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_credits_consumed",
		Help: "Credits debited by completed jobs.",
	}, []string{"category"})
	reg.MustRegister(duration, success, failure, credits)
	return &WorkerMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		credits:  credits,
	}
}

// ObserveDuration records the duration for the given agent category.
func (w *WorkerMetrics) ObserveDuration(category string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(category)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the given agent category.
func (w *WorkerMetrics) IncSuccess(category string) {
	if w == nil || w.success == nil {
		return
	}
	w.success.WithLabelValues(normalizeLabel(category)).Inc()
}

// IncFailure increments the failure counter for the given agent category.
func (w *WorkerMetrics) IncFailure(category string) {
	if w == nil || w.failure == nil {
		return
	}
	w.failure.WithLabelValues(normalizeLabel(category)).Inc()
}

// AddCreditsConsumed adds the debited credits for the given agent category.
func (w *WorkerMetrics) AddCreditsConsumed(category string, credits int64) {
	if w == nil || w.credits == nil || credits <= 0 {
		return
	}
	w.credits.WithLabelValues(normalizeLabel(category)).Add(float64(credits))
}

func normalizeLabel(category string) string {
	if category == "" {
		return "unknown"
	}
	return category
}
