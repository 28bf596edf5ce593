/*
Package ledger turns an employee and a pay period into an immutable paystub
and advances the employee's year-to-date counters.

PURPOSE:
  The ledger is the only writer of paystubs and YTD counters. Everything it
  persists for one paystub (check number, the stub itself and the YTD
  increment) lands in one store transaction or not at all.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: paystubs are never edited or deleted
  2. NO NEGATIVES: taxable gross and net pay are never negative
  3. WAGE BASE: YTD social security wages never exceed the year's base
  4. SINGLE WRITER: one paystub at a time per employee

PIPELINE (pipeline.go):
  gross -> deductions -> taxable -> withholding -> state tax -> net
  Each stage is a pure function over an immutable Computation. A failing
  stage stops the run before anything is written.

SERIALIZATION:
  A per-employee lock is held from reading the employee through commit, and
  the store transaction makes the writes atomic. Two paystubs for the same
  employee can therefore never read the same YTD.

DISBURSEMENT:
  After commit an optional Disburser receives the net pay. Its failure is
  logged and counted; the paystub stays.

SEE ALSO:
  - bulk.go: many employees, bounded parallelism
  - yearend.go: W-2 style aggregation over persisted stubs
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/metrics"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/taxtable"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store     payroll.Store
	tables    *taxtable.Registry
	locks     *keyedMutex
	overtime  OvertimeRule
	disburser Disburser
	logger    *slog.Logger
	metrics   *metrics.Payroll
	now       func() time.Time
	newID     func() string
}

type Option func(*Ledger)

func WithLogger(l *slog.Logger) Option       { return func(lg *Ledger) { lg.logger = l } }
func WithMetrics(m *metrics.Payroll) Option  { return func(lg *Ledger) { lg.metrics = m } }
func WithDisburser(d Disburser) Option       { return func(lg *Ledger) { lg.disburser = d } }
func WithOvertime(rule OvertimeRule) Option  { return func(lg *Ledger) { lg.overtime = rule } }
func WithClock(now func() time.Time) Option  { return func(lg *Ledger) { lg.now = now } }
func WithIDGenerator(f func() string) Option { return func(lg *Ledger) { lg.newID = f } }

func New(store payroll.Store, tables *taxtable.Registry, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		tables:   tables,
		locks:    newKeyedMutex(),
		overtime: DefaultOvertime(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// =============================================================================
// GENERATE
// =============================================================================

// GeneratePaystub computes and persists one paystub. employee identifies who
// is paid; the stored record (profile, deductions, YTD) is authoritative and
// is re-read under the employee's lock. hours is required for hourly
// employees and ignored for salaried ones.
//
// Errors: *payroll.ValidationError for bad input, *payroll.InvariantViolation
// for a computed state that must not be persisted, anything else from the
// store. Nothing is written unless the error is nil.
func (l *Ledger) GeneratePaystub(ctx context.Context, employee payroll.Employee, period payroll.PayPeriod, hours *payroll.Hours) (payroll.Paystub, error) {
	start := time.Now()
	stub, err := l.generate(ctx, employee.ID, period, hours)
	l.metrics.ObservePaystub(outcomeOf(err), string(employee.PayFrequency), time.Since(start))

	logger := l.logger.With("employee_id", employee.ID, "pay_date", period.PayDate.Format(payroll.DateLayout))
	switch {
	case err == nil:
		logger.Info("paystub generated",
			"paystub_id", stub.ID,
			"check", stub.CheckRef(),
			"gross", stub.Gross.StringFixed(2),
			"net", stub.NetPay.StringFixed(2))
	case payroll.IsSkippable(err):
		logger.Warn("paystub rejected", "error", err)
		return payroll.Paystub{}, err
	default:
		logger.Error("paystub generation failed", "error", err)
		return payroll.Paystub{}, err
	}

	net, _ := stub.NetPay.Float64()
	l.metrics.AddNetPay(net)
	l.disburse(ctx, stub)
	return stub, nil
}

// Preview runs the pipeline against the employee's current state without
// allocating a check number or writing anything.
func (l *Ledger) Preview(ctx context.Context, employeeID payroll.EmployeeID, period payroll.PayPeriod, hours *payroll.Hours) (Computation, error) {
	if err := period.Validate(); err != nil {
		return Computation{}, err
	}
	emp, err := l.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return Computation{}, err
	}
	deds, err := l.store.ListDeductions(ctx, employeeID, true)
	if err != nil {
		return Computation{}, fmt.Errorf("list deductions: %w", err)
	}
	return l.compute(emp, period, hours, deds)
}

func (l *Ledger) generate(ctx context.Context, id payroll.EmployeeID, period payroll.PayPeriod, hours *payroll.Hours) (payroll.Paystub, error) {
	if err := period.Validate(); err != nil {
		return payroll.Paystub{}, err
	}
	if err := ctx.Err(); err != nil {
		return payroll.Paystub{}, err
	}

	unlock := l.locks.Lock(id)
	defer unlock()

	var stub payroll.Paystub
	err := l.store.WithTx(ctx, func(tx payroll.Tx) error {
		emp, err := tx.GetEmployee(ctx, id)
		if err != nil {
			return err
		}
		deds, err := tx.ListDeductions(ctx, id, true)
		if err != nil {
			return fmt.Errorf("list deductions: %w", err)
		}
		c, err := l.compute(emp, period, hours, deds)
		if err != nil {
			return err
		}
		stub, err = l.persist(ctx, tx, c)
		return err
	})
	if err != nil {
		return payroll.Paystub{}, err
	}
	return stub, nil
}

// compute checks the employee can be paid for period and runs the pipeline.
func (l *Ledger) compute(emp payroll.Employee, period payroll.PayPeriod, hours *payroll.Hours, deds []payroll.Deduction) (Computation, error) {
	if emp.Status != payroll.StatusActive {
		return Computation{}, payroll.NewValidationError(payroll.CodeInactiveEmployee,
			fmt.Sprintf("employee %s is %s", emp.ID, emp.Status))
	}
	year := period.TaxYear()
	if emp.YTD.Year != 0 && emp.YTD.Year != year {
		return Computation{}, &payroll.ValidationError{
			Code:    payroll.CodeYTDYear,
			Message: fmt.Sprintf("employee %s has %d ytd counters, pay date is in %d", emp.ID, emp.YTD.Year, year),
			Err:     payroll.ErrYTDYearMismatch,
		}
	}
	table, err := l.tables.ForYear(year)
	if err != nil {
		return Computation{}, &payroll.ValidationError{
			Code:    payroll.CodeNoTaxTable,
			Message: fmt.Sprintf("no tax table for %d", year),
			Err:     err,
		}
	}

	c, err := Compute(Computation{
		Employee:   emp,
		Period:     period,
		Hours:      hours,
		Deductions: deds,
		Table:      table,
		Overtime:   l.overtime,
	})
	if err != nil {
		return Computation{}, err
	}
	if c.Resolution.OverAllocated() {
		l.logger.Warn("percentage deductions exceed gross",
			"employee_id", emp.ID,
			"percent_of_gross", c.Resolution.PercentOfGross.String())
	}
	return c, nil
}

// persist writes the stub, its check number and the YTD increment inside tx.
func (l *Ledger) persist(ctx context.Context, tx payroll.Tx, c Computation) (payroll.Paystub, error) {
	before := c.Employee.YTD
	after, err := tx.IncrementYTD(ctx, c.Employee.ID, c.YTDDelta())
	if err != nil {
		return payroll.Paystub{}, fmt.Errorf("increment ytd: %w", err)
	}
	if after.SSWages.GreaterThan(c.Table.SSWageBase) {
		return payroll.Paystub{}, payroll.NewInvariantViolation(payroll.CodeWageBaseExceed,
			fmt.Sprintf("ytd social security wages %s exceed wage base %s", after.SSWages.StringFixed(2), c.Table.SSWageBase.StringFixed(2)))
	}

	prior, err := tx.ListPaystubs(ctx, c.Employee.ID, c.Period.TaxYear())
	if err != nil {
		return payroll.Paystub{}, fmt.Errorf("list paystubs: %w", err)
	}
	check, err := tx.NextCheckNumber(ctx)
	if err != nil {
		return payroll.Paystub{}, fmt.Errorf("next check number: %w", err)
	}

	stub := buildPaystub(c, after, sumPrior(prior))
	stub.ID = payroll.PaystubID(l.newID())
	stub.CheckNumber = check
	stub.GeneratedAt = l.now()

	if err := tx.AppendPaystub(ctx, stub); err != nil {
		return payroll.Paystub{}, fmt.Errorf("append paystub: %w", err)
	}
	if before.SSWages.LessThan(c.Table.SSWageBase) && after.SSWages.Equal(c.Table.SSWageBase) {
		l.metrics.IncrementWageBaseReached()
	}
	return stub, nil
}

// =============================================================================
// PAYSTUB ASSEMBLY
// =============================================================================

type priorTotals struct {
	PreTax, PostTax, Net decimal.Decimal
}

func sumPrior(stubs []payroll.Paystub) priorTotals {
	t := priorTotals{PreTax: decimal.Zero, PostTax: decimal.Zero, Net: decimal.Zero}
	for _, s := range stubs {
		t.PreTax = t.PreTax.Add(s.PreTaxDeductions)
		t.PostTax = t.PostTax.Add(s.PostTaxDeductions)
		t.Net = t.Net.Add(s.NetPay)
	}
	return t
}

func buildPaystub(c Computation, ytd payroll.YTD, prior priorTotals) payroll.Paystub {
	emp := c.Employee
	w := c.Withholding
	ytdNet := prior.Net.Add(c.Net)

	grossLabel := "Salary"
	if emp.IsHourly() {
		grossLabel = fmt.Sprintf("Regular Pay (%sh)", c.RegularHours.String())
		if c.OvertimeHours.IsPositive() {
			grossLabel += fmt.Sprintf(" + Overtime (%sh)", c.OvertimeHours.String())
		}
	}

	lines := []payroll.PaystubLine{
		{Label: grossLabel, Amount: c.Gross, YTD: ytd.Gross},
		{Label: "Pre-Tax Deductions", Amount: c.Resolution.PreTax, YTD: prior.PreTax.Add(c.Resolution.PreTax), IsDeduction: true},
		{Label: "Federal Income Tax", Amount: w.FederalTax, YTD: ytd.FederalTax, IsDeduction: true},
		{Label: "Social Security Tax", Amount: w.SSTax, YTD: ytd.SSTax, IsDeduction: true},
		{Label: "Medicare Tax", Amount: w.MedicareTax, YTD: ytd.MedicareTax, IsDeduction: true},
		{Label: fmt.Sprintf("State Tax (%s)", emp.StateCode), Amount: c.StateTax, YTD: ytd.StateTax, IsDeduction: true},
		{Label: "Post-Tax Deductions", Amount: c.Resolution.PostTax, YTD: prior.PostTax.Add(c.Resolution.PostTax), IsDeduction: true},
	}

	return payroll.Paystub{
		EmployeeID:        emp.ID,
		EmployeeName:      emp.Name,
		Period:            c.Period,
		RegularHours:      c.RegularHours,
		OvertimeHours:     c.OvertimeHours,
		Gross:             c.Gross,
		PreTaxDeductions:  c.Resolution.PreTax,
		TaxableGross:      c.Taxable,
		FederalTax:        w.FederalTax,
		SSWages:           w.SSWages,
		SSTax:             w.SSTax,
		MedicareTax:       w.MedicareTax,
		StateTax:          c.StateTax,
		PostTaxDeductions: c.Resolution.PostTax,
		NetPay:            c.Net,
		YTDGross:          ytd.Gross,
		YTDNet:            ytdNet,
		Lines:             lines,
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeGenerated
	case errors.Is(err, payroll.ErrValidation):
		return metrics.OutcomeValidation
	case errors.Is(err, payroll.ErrInvariantViolation):
		return metrics.OutcomeInvariant
	case errors.Is(err, payroll.ErrEmployeeNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
