// Package metrics holds the prometheus collectors shared by the saga
// coordinator, the retry executor and the booking lock.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors.  A nil *Metrics is valid and records
// nothing, so components can take it as an optional dependency.
type Metrics struct {
	SagaTransactions *prometheus.CounterVec
	SagaDuration     prometheus.Histogram
	RetryAttempts    *prometheus.CounterVec
	RetrySessions    *prometheus.CounterVec
	LockAcquisitions *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.  Pass
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SagaTransactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "saga_transactions_total",
			Help:      "Saga executions by terminal status.",
		}, []string{"status"}),
		SagaDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "booking",
			Name:      "saga_duration_seconds",
			Help:      "Wall time of saga executions including rollback.",
			Buckets:   prometheus.DefBuckets,
		}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "retry_attempts_total",
			Help:      "Individual attempts made by the retry executor.",
		}, []string{"operation", "status"}),
		RetrySessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "retry_sessions_total",
			Help:      "Retry sessions by operation and final status.",
		}, []string{"operation", "status"}),
		LockAcquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "lock_acquisitions_total",
			Help:      "Booking lock acquisitions by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.SagaTransactions, m.SagaDuration, m.RetryAttempts, m.RetrySessions, m.LockAcquisitions)
	return m
}

func (m *Metrics) ObserveSaga(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.SagaTransactions.WithLabelValues(status).Inc()
	m.SagaDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveAttempt(operation, status string) {
	if m == nil {
		return
	}
	m.RetryAttempts.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) ObserveRetrySession(operation, status string) {
	if m == nil {
		return
	}
	m.RetrySessions.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) ObserveLock(result string) {
	if m == nil {
		return
	}
	m.LockAcquisitions.WithLabelValues(result).Inc()
}
