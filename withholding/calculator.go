/*
Package withholding computes one period's federal income tax, social security
and Medicare withholding.

PURPOSE:
  Pure functions over a tax table. No I/O, no clock, no shared state: the
  same Input against the same Table always yields the same Result.

FEDERAL (annualized method):
  adjusted  = max(0, annualized - standard deduction - allowances x allowance)
  annual    = progressive brackets for the filing status
  per period = annual / periods, rounded once

SOCIAL SECURITY (cumulative rounding):
  wages = clamp(period gross, 0, max(0, wage base - ytd ss wages))
  tax   = round(rate x (ytd + wages)) - round(rate x ytd)
  Rounding the running total instead of each period means the year's tax
  can never exceed round(rate x wage base).

MEDICARE:
  rate x period gross + surtax rate x max(0, annualized - threshold) / periods
*/
package withholding

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/taxtable"
)

type Input struct {
	PeriodGross     decimal.Decimal // taxable gross for the period
	AnnualizedGross decimal.Decimal // PeriodGross x PeriodsPerYear
	PeriodsPerYear  int
	FilingStatus    payroll.FilingStatus
	Allowances      int
	YTDSSWages      decimal.Decimal // social security wages already taxed this year
}

// Result amounts are rounded to cents.
type Result struct {
	FederalTax     decimal.Decimal
	SSWages        decimal.Decimal
	SSTax          decimal.Decimal
	MedicareTax    decimal.Decimal
	MedicareSurtax decimal.Decimal // portion of MedicareTax, for reporting
}

// Total is federal + SS + Medicare.
func (r Result) Total() decimal.Decimal {
	return r.FederalTax.Add(r.SSTax).Add(r.MedicareTax)
}

type Calculator struct {
	table taxtable.Table
}

func New(table taxtable.Table) *Calculator {
	return &Calculator{table: table}
}

func (c *Calculator) Table() taxtable.Table { return c.table }

func (c *Calculator) Withhold(in Input) (Result, error) {
	if in.PeriodsPerYear <= 0 {
		return Result{}, payroll.NewValidationError(payroll.CodeInvalidField,
			fmt.Sprintf("periods per year must be positive, got %d", in.PeriodsPerYear))
	}
	if in.Allowances < 0 {
		return Result{}, payroll.NewValidationError(payroll.CodeInvalidField, "allowances must not be negative")
	}

	federal, err := c.federal(in)
	if err != nil {
		return Result{}, err
	}
	ssWages, ssTax := c.socialSecurity(in.PeriodGross, in.YTDSSWages)
	medicare, surtax := c.medicare(in)

	return Result{
		FederalTax:     federal,
		SSWages:        ssWages,
		SSTax:          ssTax,
		MedicareTax:    medicare,
		MedicareSurtax: surtax,
	}, nil
}

func (c *Calculator) federal(in Input) (decimal.Decimal, error) {
	std, err := c.table.StandardDeductionFor(in.FilingStatus)
	if err != nil {
		return decimal.Zero, err
	}
	allowances := c.table.AllowanceAmount.Mul(decimal.NewFromInt(int64(in.Allowances)))
	adjusted := payroll.MaxZero(in.AnnualizedGross.Sub(std).Sub(allowances))

	annual, err := c.table.IncomeTax(in.FilingStatus, adjusted)
	if err != nil {
		return decimal.Zero, err
	}
	periods := decimal.NewFromInt(int64(in.PeriodsPerYear))
	return payroll.MaxZero(payroll.RoundCents(annual.Div(periods))), nil
}

func (c *Calculator) socialSecurity(gross, ytdWages decimal.Decimal) (wages, tax decimal.Decimal) {
	ytdWages = payroll.MaxZero(ytdWages)
	headroom := payroll.MaxZero(c.table.SSWageBase.Sub(ytdWages))
	wages = decimal.Min(payroll.MaxZero(gross), headroom)

	before := payroll.RoundCents(c.table.SSRate.Mul(ytdWages))
	after := payroll.RoundCents(c.table.SSRate.Mul(ytdWages.Add(wages)))
	return payroll.RoundCents(wages), payroll.MaxZero(after.Sub(before))
}

func (c *Calculator) medicare(in Input) (total, surtax decimal.Decimal) {
	periods := decimal.NewFromInt(int64(in.PeriodsPerYear))
	base := c.table.MedicareRate.Mul(payroll.MaxZero(in.PeriodGross))
	over := payroll.MaxZero(in.AnnualizedGross.Sub(c.table.MedicareSurtaxThreshold))
	extra := c.table.MedicareSurtaxRate.Mul(over).Div(periods)
	return payroll.RoundCents(base.Add(extra)), payroll.RoundCents(extra)
}
