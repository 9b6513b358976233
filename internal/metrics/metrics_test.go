package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Observe(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSaga("COMMITTED", 20*time.Millisecond)
	m.ObserveSaga("ROLLED_BACK", time.Second)
	m.ObserveAttempt("payment_charge", "FAILED")
	m.ObserveAttempt("payment_charge", "FAILED")
	m.ObserveRetrySession("payment_charge", "FAILED")
	m.ObserveLock("timeout")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SagaTransactions.WithLabelValues("COMMITTED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetryAttempts.WithLabelValues("payment_charge", "FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetrySessions.WithLabelValues("payment_charge", "FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockAcquisitions.WithLabelValues("timeout")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSaga("COMMITTED", time.Second)
		m.ObserveAttempt("x", "y")
		m.ObserveRetrySession("x", "y")
		m.ObserveLock("acquired")
	})
}
