// Package metrics provides Prometheus observability for payroll runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for paystub attempts.
const (
	OutcomeGenerated    = "generated"
	OutcomeValidation   = "validation"
	OutcomeInvariant    = "invariant"
	OutcomeNotFound     = "not_found"
	OutcomeError        = "error"
	OutcomeNotProcessed = "not_processed"
)

// Payroll metrics. A nil *Payroll is valid and records nothing.
type Payroll struct {
	// Paystub attempts by outcome and pay frequency
	Paystubs *prometheus.CounterVec

	// Pipeline latency, compute through commit
	GenerateLatency prometheus.Histogram

	// Bulk run latency and per-employee outcomes
	BulkLatency  prometheus.Histogram
	BulkOutcomes *prometheus.CounterVec

	// Post-commit disbursement hand-off failures
	DisbursementFailures prometheus.Counter

	// Net pay issued, in currency units
	NetPayIssued prometheus.Counter

	// Employees whose social security wages reached the wage base
	SSWageBaseReached prometheus.Counter
}

// New registers all payroll metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Payroll {
	f := promauto.With(reg)
	return &Payroll{
		Paystubs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payroll_paystubs_total",
			Help: "Paystub generation attempts by outcome and pay frequency",
		}, []string{"outcome", "frequency"}),

		GenerateLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "payroll_generate_duration_seconds",
			Help:    "Duration of paystub generation including persistence",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		BulkLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "payroll_bulk_run_duration_seconds",
			Help:    "Duration of bulk payroll runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		BulkOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payroll_bulk_employees_total",
			Help: "Employees handled by bulk runs by outcome",
		}, []string{"outcome"}),

		DisbursementFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "payroll_disbursement_failures_total",
			Help: "Committed paystubs whose disbursement hand-off failed",
		}),

		NetPayIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "payroll_net_pay_issued_total",
			Help: "Sum of net pay on committed paystubs",
		}),

		SSWageBaseReached: f.NewCounter(prometheus.CounterOpts{
			Name: "payroll_ss_wage_base_reached_total",
			Help: "Paystubs on which year-to-date social security wages reached the wage base",
		}),
	}
}

// ObservePaystub records one generation attempt.
func (m *Payroll) ObservePaystub(outcome, frequency string, d time.Duration) {
	if m != nil {
		m.Paystubs.WithLabelValues(outcome, frequency).Inc()
		m.GenerateLatency.Observe(d.Seconds())
	}
}

// AddNetPay adds a committed stub's net pay.
func (m *Payroll) AddNetPay(amount float64) {
	if m != nil && amount > 0 {
		m.NetPayIssued.Add(amount)
	}
}

func (m *Payroll) IncrementWageBaseReached() {
	if m != nil {
		m.SSWageBaseReached.Inc()
	}
}

func (m *Payroll) IncrementDisbursementFailure() {
	if m != nil {
		m.DisbursementFailures.Inc()
	}
}

// ObserveBulkOutcome records one employee's result in a bulk run.
func (m *Payroll) ObserveBulkOutcome(outcome string) {
	if m != nil {
		m.BulkOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Payroll) ObserveBulkLatency(d time.Duration) {
	if m != nil {
		m.BulkLatency.Observe(d.Seconds())
	}
}
