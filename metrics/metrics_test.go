package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/warp/payroll-engine/metrics"
)

func TestPayroll_RecordsOutcomes(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObservePaystub(metrics.OutcomeGenerated, "biweekly", 3*time.Millisecond)
	m.ObservePaystub(metrics.OutcomeGenerated, "biweekly", time.Millisecond)
	m.ObservePaystub(metrics.OutcomeInvariant, "weekly", time.Millisecond)
	m.ObserveBulkOutcome(metrics.OutcomeNotProcessed)
	m.AddNetPay(2366.60)
	m.AddNetPay(-5)
	m.IncrementDisbursementFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Paystubs.WithLabelValues(metrics.OutcomeGenerated, "biweekly")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Paystubs.WithLabelValues(metrics.OutcomeInvariant, "weekly")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BulkOutcomes.WithLabelValues(metrics.OutcomeNotProcessed)))
	assert.InDelta(t, 2366.60, testutil.ToFloat64(m.NetPayIssued), 0.001)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DisbursementFailures))
}

func TestPayroll_NilIsNoop(t *testing.T) {
	var m *metrics.Payroll
	assert.NotPanics(t, func() {
		m.ObservePaystub(metrics.OutcomeGenerated, "monthly", time.Second)
		m.ObserveBulkOutcome(metrics.OutcomeGenerated)
		m.ObserveBulkLatency(time.Second)
		m.AddNetPay(1)
		m.IncrementWageBaseReached()
		m.IncrementDisbursementFailure()
	})
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.New(prometheus.NewRegistry())
		metrics.New(prometheus.NewRegistry())
	})
}
