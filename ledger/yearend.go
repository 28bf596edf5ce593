package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/taxtable"
)

// =============================================================================
// YEAR-END AGGREGATOR
// =============================================================================

// Aggregator folds persisted paystubs into W-2 style totals. It only reads,
// so the same inputs always give the same summary.
type Aggregator struct {
	store  payroll.Store
	tables *taxtable.Registry
	logger *slog.Logger
}

func NewAggregator(store payroll.Store, tables *taxtable.Registry, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: store, tables: tables, logger: logger}
}

// Summarize aggregates the employee's paystubs paid in year.
func (a *Aggregator) Summarize(ctx context.Context, employeeID payroll.EmployeeID, year int) (payroll.YearEndSummary, error) {
	emp, err := a.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return payroll.YearEndSummary{}, err
	}
	table, err := a.tables.ForYear(year)
	if err != nil {
		return payroll.YearEndSummary{}, &payroll.ValidationError{
			Code:    payroll.CodeNoTaxTable,
			Message: fmt.Sprintf("no tax table for %d", year),
			Err:     err,
		}
	}
	stubs, err := a.store.ListPaystubs(ctx, employeeID, year)
	if err != nil {
		return payroll.YearEndSummary{}, fmt.Errorf("list paystubs: %w", err)
	}

	s := fold(stubs, table.SSWageBase)
	s.EmployeeID = emp.ID
	s.EmployeeName = emp.Name
	s.Year = year

	ssWages := decimal.Zero
	for _, p := range stubs {
		ssWages = ssWages.Add(p.SSWages)
	}
	if !ssWages.Equal(s.Box3) {
		// Only possible when YTD was seeded outside the ledger.
		a.logger.Warn("social security wages disagree with paystubs",
			"employee_id", emp.ID,
			"year", year,
			"box3", s.Box3.StringFixed(2),
			"stub_ss_wages", ssWages.StringFixed(2))
	}
	return s, nil
}

// SummarizeAll returns a summary for every employee paid in year, ordered by
// employee id.
func (a *Aggregator) SummarizeAll(ctx context.Context, year int) ([]payroll.YearEndSummary, error) {
	employees, err := a.store.ListEmployees(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	var out []payroll.YearEndSummary
	for _, e := range employees {
		s, err := a.Summarize(ctx, e.ID, year)
		if err != nil {
			return nil, err
		}
		if s.PaystubCount == 0 {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func fold(stubs []payroll.Paystub, wageBase decimal.Decimal) payroll.YearEndSummary {
	s := payroll.YearEndSummary{
		PaystubCount:      len(stubs),
		Gross:             decimal.Zero,
		FederalTax:        decimal.Zero,
		SSTax:             decimal.Zero,
		MedicareTax:       decimal.Zero,
		StateTax:          decimal.Zero,
		PreTaxDeductions:  decimal.Zero,
		PostTaxDeductions: decimal.Zero,
		NetPay:            decimal.Zero,
	}
	taxable := decimal.Zero
	for _, p := range stubs {
		s.Gross = s.Gross.Add(p.Gross)
		s.FederalTax = s.FederalTax.Add(p.FederalTax)
		s.SSTax = s.SSTax.Add(p.SSTax)
		s.MedicareTax = s.MedicareTax.Add(p.MedicareTax)
		s.StateTax = s.StateTax.Add(p.StateTax)
		s.PreTaxDeductions = s.PreTaxDeductions.Add(p.PreTaxDeductions)
		s.PostTaxDeductions = s.PostTaxDeductions.Add(p.PostTaxDeductions)
		s.NetPay = s.NetPay.Add(p.NetPay)
		taxable = taxable.Add(p.TaxableGross)
	}

	s.Box1 = s.Gross.Sub(s.PreTaxDeductions)
	s.Box2 = s.FederalTax
	s.Box3 = decimal.Min(taxable, wageBase)
	s.Box4 = s.SSTax
	s.Box5 = taxable
	s.Box6 = s.MedicareTax
	return s
}
