package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/taxtable"
	"github.com/warp/payroll-engine/withholding"
)

// =============================================================================
// COMPUTATION - immutable value threaded through the stages
// =============================================================================

// Computation is one paystub's figures as they are derived. Each stage
// receives a Computation by value and returns a new one; nothing is shared.
type Computation struct {
	// Inputs
	Employee   payroll.Employee
	Period     payroll.PayPeriod
	Hours      *payroll.Hours
	Deductions []payroll.Deduction
	Table      taxtable.Table
	Overtime   OvertimeRule

	// Derived
	RegularHours  decimal.Decimal
	OvertimeHours decimal.Decimal
	Gross         decimal.Decimal
	Resolution    deduction.Resolution
	Taxable       decimal.Decimal
	Withholding   withholding.Result
	StateTax      decimal.Decimal
	Net           decimal.Decimal
}

// OvertimeRule pays worked hours beyond Threshold at Multiplier x rate.
type OvertimeRule struct {
	Threshold  decimal.Decimal
	Multiplier decimal.Decimal
}

// DefaultOvertime is 1.5x beyond 40 hours.
func DefaultOvertime() OvertimeRule {
	return OvertimeRule{Threshold: decimal.NewFromInt(40), Multiplier: payroll.MustDecimal("1.5")}
}

type stage func(Computation) (Computation, error)

// stages run in this order; each may only read what earlier ones produced.
var stages = []stage{
	computeGross,
	resolveDeductions,
	computeTaxable,
	computeWithholding,
	computeStateTax,
	computeNet,
}

// Compute runs every stage over the inputs in c.
func Compute(c Computation) (Computation, error) {
	var err error
	for _, s := range stages {
		if c, err = s(c); err != nil {
			return Computation{}, err
		}
	}
	return c, nil
}

// =============================================================================
// STAGES
// =============================================================================

func computeGross(c Computation) (Computation, error) {
	emp := c.Employee
	periods := emp.PayFrequency.PeriodsPerYear()
	if periods == 0 {
		return c, payroll.NewValidationError(payroll.CodeInvalidField,
			fmt.Sprintf("unknown pay frequency %q", emp.PayFrequency))
	}

	c.RegularHours, c.OvertimeHours = decimal.Zero, decimal.Zero
	switch {
	case emp.AnnualSalary != nil:
		c.Gross = payroll.RoundCents(emp.AnnualSalary.Div(decimal.NewFromInt(int64(periods))))

	case emp.HourlyRate != nil:
		h := c.Hours
		if h == nil {
			return c, payroll.NewValidationError(payroll.CodeHoursRequired,
				fmt.Sprintf("hourly employee %s requires hours worked", emp.ID))
		}
		if h.Worked.IsNegative() || h.Overtime.IsNegative() {
			return c, payroll.NewValidationError(payroll.CodeInvalidField, "hours must not be negative")
		}
		c.RegularHours = decimal.Min(h.Worked, c.Overtime.Threshold)
		c.OvertimeHours = payroll.MaxZero(h.Worked.Sub(c.Overtime.Threshold)).Add(h.Overtime)

		rate := *emp.HourlyRate
		regular := c.RegularHours.Mul(rate)
		overtime := c.OvertimeHours.Mul(rate).Mul(c.Overtime.Multiplier)
		c.Gross = payroll.RoundCents(regular.Add(overtime))

	default:
		return c, payroll.NewValidationError(payroll.CodeCompensation, "no salary or hourly rate")
	}
	return c, nil
}

func resolveDeductions(c Computation) (Computation, error) {
	res, err := deduction.Resolve(c.Deductions, c.Gross)
	if err != nil {
		return c, err
	}
	c.Resolution = res
	return c, nil
}

func computeTaxable(c Computation) (Computation, error) {
	c.Taxable = c.Gross.Sub(c.Resolution.PreTax)
	if c.Taxable.IsNegative() {
		return c, payroll.NewInvariantViolation(payroll.CodeNegativeTaxable,
			fmt.Sprintf("pre-tax deductions %s exceed gross %s", c.Resolution.PreTax.StringFixed(2), c.Gross.StringFixed(2)))
	}
	return c, nil
}

func computeWithholding(c Computation) (Computation, error) {
	periods := c.Employee.PayFrequency.PeriodsPerYear()
	res, err := withholding.New(c.Table).Withhold(withholding.Input{
		PeriodGross:     c.Taxable,
		AnnualizedGross: c.Taxable.Mul(decimal.NewFromInt(int64(periods))),
		PeriodsPerYear:  periods,
		FilingStatus:    c.Employee.FilingStatus,
		Allowances:      c.Employee.Allowances,
		YTDSSWages:      c.Employee.YTD.SSWages,
	})
	if err != nil {
		return c, err
	}
	c.Withholding = res
	return c, nil
}

func computeStateTax(c Computation) (Computation, error) {
	c.StateTax = payroll.RoundCents(c.Table.StateRate(c.Employee.StateCode).Mul(c.Taxable))
	return c, nil
}

func computeNet(c Computation) (Computation, error) {
	c.Net = c.Taxable.
		Sub(c.Withholding.Total()).
		Sub(c.StateTax).
		Sub(c.Resolution.PostTax)
	if c.Net.IsNegative() {
		return c, payroll.NewInvariantViolation(payroll.CodeNegativeNet,
			fmt.Sprintf("net pay would be %s for employee %s", c.Net.StringFixed(2), c.Employee.ID))
	}
	return c, nil
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// YTDDelta is what this computation adds to the employee's counters.
func (c Computation) YTDDelta() payroll.YTD {
	return payroll.YTD{
		Year:        c.Period.TaxYear(),
		Gross:       c.Gross,
		FederalTax:  c.Withholding.FederalTax,
		SSTax:       c.Withholding.SSTax,
		MedicareTax: c.Withholding.MedicareTax,
		StateTax:    c.StateTax,
		Deductions:  c.Resolution.Total(),
		SSWages:     c.Withholding.SSWages,
	}
}
