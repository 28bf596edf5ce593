package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/payroll-engine/metrics"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// BULK RUNNER
// =============================================================================

// Generator is the part of Ledger the bulk runner needs.
type Generator interface {
	GeneratePaystub(ctx context.Context, employee payroll.Employee, period payroll.PayPeriod, hours *payroll.Hours) (payroll.Paystub, error)
}

// Skip records an employee the run could not pay and why.
type Skip struct {
	EmployeeID payroll.EmployeeID
	Code       string
	Reason     string
}

// BulkReport lists results in the order employees were given. Failed holds
// the employees whose error stopped the run.
type BulkReport struct {
	Paystubs     []payroll.Paystub
	Skips        []Skip
	Failed       []Skip
	NotProcessed []payroll.EmployeeID
}

type BulkRunner struct {
	ledger  Generator
	workers int
	logger  *slog.Logger
	metrics *metrics.Payroll
}

// NewBulkRunner runs at most workers employees at once. workers < 1 means 1.
func NewBulkRunner(ledger Generator, workers int, logger *slog.Logger, m *metrics.Payroll) *BulkRunner {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BulkRunner{ledger: ledger, workers: workers, logger: logger, metrics: m}
}

type bulkResult struct {
	stub    *payroll.Paystub
	skip    *Skip
	failed  *Skip
	outcome string
	started bool
}

// Run pays every employee for period. Validation errors, invariant
// violations and employees missing from the store become Skips and the run
// continues; any other error stops the run, is returned, and the employee
// that caused it is listed in Failed. On cancellation no new employee is started, employees
// already in flight finish, and the rest are reported as NotProcessed along
// with the context's error.
func (r *BulkRunner) Run(ctx context.Context, employees []payroll.Employee, period payroll.PayPeriod, hours map[payroll.EmployeeID]payroll.Hours) (BulkReport, error) {
	start := time.Now()
	defer func() { r.metrics.ObserveBulkLatency(time.Since(start)) }()

	results := make([]bulkResult, len(employees))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, emp := range employees {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// The slot may have opened after cancellation.
			if gctx.Err() != nil {
				return nil
			}
			results[i].started = true

			var h *payroll.Hours
			if v, ok := hours[emp.ID]; ok {
				h = &v
			}
			stub, err := r.ledger.GeneratePaystub(context.WithoutCancel(gctx), emp, period, h)
			switch {
			case err == nil:
				results[i].stub = &stub
				return nil
			case payroll.IsSkippable(err):
				results[i].skip = skipFor(emp.ID, err)
				results[i].outcome = outcomeOf(err)
				return nil
			default:
				results[i].failed = skipFor(emp.ID, err)
				return fmt.Errorf("employee %s: %w", emp.ID, err)
			}
		})
	}
	runErr := g.Wait()

	report := r.collect(employees, results)
	r.logger.Info("bulk payroll run finished",
		"pay_date", period.PayDate.Format(payroll.DateLayout),
		"employees", len(employees),
		"paystubs", len(report.Paystubs),
		"skipped", len(report.Skips),
		"failed", len(report.Failed),
		"not_processed", len(report.NotProcessed),
		"duration", time.Since(start))

	if runErr != nil {
		r.logger.Error("bulk payroll run aborted", "error", runErr)
		return report, runErr
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *BulkRunner) collect(employees []payroll.Employee, results []bulkResult) BulkReport {
	var report BulkReport
	for i, res := range results {
		switch {
		case res.stub != nil:
			report.Paystubs = append(report.Paystubs, *res.stub)
			r.metrics.ObserveBulkOutcome(metrics.OutcomeGenerated)
		case res.skip != nil:
			report.Skips = append(report.Skips, *res.skip)
			r.metrics.ObserveBulkOutcome(res.outcome)
			r.logger.Warn("employee skipped",
				"employee_id", res.skip.EmployeeID,
				"code", res.skip.Code,
				"reason", res.skip.Reason)
		case res.failed != nil:
			report.Failed = append(report.Failed, *res.failed)
			r.metrics.ObserveBulkOutcome(metrics.OutcomeError)
		case !res.started:
			report.NotProcessed = append(report.NotProcessed, employees[i].ID)
			r.metrics.ObserveBulkOutcome(metrics.OutcomeNotProcessed)
		}
	}
	return report
}

func skipFor(id payroll.EmployeeID, err error) *Skip {
	s := &Skip{EmployeeID: id, Reason: err.Error()}
	var verr *payroll.ValidationError
	var ierr *payroll.InvariantViolation
	switch {
	case errors.As(err, &verr):
		s.Code = verr.Code
	case errors.As(err, &ierr):
		s.Code = ierr.Code
	case errors.Is(err, payroll.ErrEmployeeNotFound):
		s.Code = payroll.CodeUnknownEmployee
	}
	return s
}
