package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/payroll-engine/payroll"
)

const paystubColumns = `id, check_number, employee_id, employee_name, period_start, period_end, pay_date,
	regular_hours, overtime_hours, gross, pre_tax_deductions, taxable_gross, federal_tax,
	ss_wages, ss_tax, medicare_tax, state_tax, post_tax_deductions, net_pay, ytd_gross, ytd_net,
	lines_json, generated_at`

// lineRecord is the stored shape of a paystub line.
type lineRecord struct {
	Label       string `json:"label"`
	Amount      string `json:"amount"`
	YTD         string `json:"ytd"`
	IsDeduction bool   `json:"is_deduction,omitempty"`
}

func (s *Store) GetPaystub(ctx context.Context, id payroll.PaystubID) (payroll.Paystub, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+paystubColumns+" FROM paystubs WHERE id = ?", id)
	stub, err := scanPaystub(row)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.Paystub{}, fmt.Errorf("%w: %s", payroll.ErrPaystubNotFound, id)
	}
	return stub, err
}

func (s *Store) ListPaystubs(ctx context.Context, employeeID payroll.EmployeeID, year int) ([]payroll.Paystub, error) {
	return listPaystubs(ctx, s.db, employeeID, year)
}

// listPaystubs returns stubs ordered by pay date then check number. Year 0
// means every year.
func listPaystubs(ctx context.Context, q querier, employeeID payroll.EmployeeID, year int) ([]payroll.Paystub, error) {
	query := "SELECT " + paystubColumns + " FROM paystubs WHERE employee_id = ?"
	args := []any{employeeID}
	if year != 0 {
		query += " AND pay_date >= ? AND pay_date <= ?"
		args = append(args,
			payroll.StartOfYear(year).Format(payroll.DateLayout),
			payroll.EndOfYear(year).Format(payroll.DateLayout))
	}
	query += " ORDER BY pay_date, check_number"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stubs []payroll.Paystub
	for rows.Next() {
		stub, err := scanPaystub(rows)
		if err != nil {
			return nil, err
		}
		stubs = append(stubs, stub)
	}
	return stubs, rows.Err()
}

func appendPaystub(ctx context.Context, q querier, p payroll.Paystub) error {
	lines := make([]lineRecord, len(p.Lines))
	for i, l := range p.Lines {
		lines[i] = lineRecord{Label: l.Label, Amount: l.Amount.StringFixed(2), YTD: l.YTD.StringFixed(2), IsDeduction: l.IsDeduction}
	}
	linesJSON, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to marshal paystub lines: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO paystubs (`+paystubColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CheckNumber, p.EmployeeID, p.EmployeeName,
		p.Period.Start.Format(payroll.DateLayout),
		p.Period.End.Format(payroll.DateLayout),
		p.Period.PayDate.Format(payroll.DateLayout),
		p.RegularHours.String(), p.OvertimeHours.String(),
		p.Gross.String(), p.PreTaxDeductions.String(), p.TaxableGross.String(), p.FederalTax.String(),
		p.SSWages.String(), p.SSTax.String(), p.MedicareTax.String(), p.StateTax.String(),
		p.PostTaxDeductions.String(), p.NetPay.String(), p.YTDGross.String(), p.YTDNet.String(),
		string(linesJSON), p.GeneratedAt.UTC().Format(time.RFC3339Nano),
	)
	switch {
	case err == nil:
		return nil
	case isConstraint(err, sqlite3.ErrConstraintForeignKey):
		return fmt.Errorf("%w: %s", payroll.ErrEmployeeNotFound, p.EmployeeID)
	case isConstraint(err, sqlite3.ErrConstraintPrimaryKey), isConstraint(err, sqlite3.ErrConstraintUnique):
		return fmt.Errorf("%w: %s (%s)", payroll.ErrDuplicatePaystub, p.ID, p.CheckRef())
	default:
		return err
	}
}

func scanPaystub(row scanner) (payroll.Paystub, error) {
	var (
		p                      payroll.Paystub
		start, end, payDate    string
		regular, overtime      string
		gross, preTax, taxable string
		fed, ssWages, ss, med  string
		state, postTax, net    string
		ytdGross, ytdNet       string
		linesJSON, generatedAt string
	)
	err := row.Scan(&p.ID, &p.CheckNumber, &p.EmployeeID, &p.EmployeeName, &start, &end, &payDate,
		&regular, &overtime, &gross, &preTax, &taxable, &fed,
		&ssWages, &ss, &med, &state, &postTax, &net, &ytdGross, &ytdNet,
		&linesJSON, &generatedAt)
	if err != nil {
		return payroll.Paystub{}, err
	}

	p.Period = payroll.NewPayPeriod(parseDate(start), parseDate(end), parseDate(payDate))
	p.GeneratedAt, _ = time.Parse(time.RFC3339Nano, generatedAt)

	dp := &decimalParser{}
	p.RegularHours = dp.parse(regular)
	p.OvertimeHours = dp.parse(overtime)
	p.Gross = dp.parse(gross)
	p.PreTaxDeductions = dp.parse(preTax)
	p.TaxableGross = dp.parse(taxable)
	p.FederalTax = dp.parse(fed)
	p.SSWages = dp.parse(ssWages)
	p.SSTax = dp.parse(ss)
	p.MedicareTax = dp.parse(med)
	p.StateTax = dp.parse(state)
	p.PostTaxDeductions = dp.parse(postTax)
	p.NetPay = dp.parse(net)
	p.YTDGross = dp.parse(ytdGross)
	p.YTDNet = dp.parse(ytdNet)

	var lines []lineRecord
	if err := json.Unmarshal([]byte(linesJSON), &lines); err != nil {
		return payroll.Paystub{}, fmt.Errorf("paystub %s: failed to unmarshal lines: %w", p.ID, err)
	}
	p.Lines = make([]payroll.PaystubLine, len(lines))
	for i, l := range lines {
		p.Lines[i] = payroll.PaystubLine{
			Label:       l.Label,
			Amount:      dp.parse(l.Amount),
			YTD:         dp.parse(l.YTD),
			IsDeduction: l.IsDeduction,
		}
	}
	if dp.err != nil {
		return payroll.Paystub{}, fmt.Errorf("paystub %s: %w", p.ID, dp.err)
	}
	return p, nil
}
