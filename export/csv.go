// Package export renders paystubs and year-end summaries for people and
// downstream systems: CSV for spreadsheets and payroll imports, PDF for the
// printed stub.
//
// Money is always rendered with exactly two decimals.
package export

import (
	"io"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// PaystubRow is one CSV row per paystub. Column names are stable.
type PaystubRow struct {
	CheckNumber       string `csv:"check_number"`
	PaystubID         string `csv:"paystub_id"`
	EmployeeID        string `csv:"employee_id"`
	EmployeeName      string `csv:"employee_name"`
	PeriodStart       string `csv:"period_start"`
	PeriodEnd         string `csv:"period_end"`
	PayDate           string `csv:"pay_date"`
	RegularHours      string `csv:"regular_hours"`
	OvertimeHours     string `csv:"overtime_hours"`
	Gross             string `csv:"gross"`
	PreTaxDeductions  string `csv:"pre_tax_deductions"`
	TaxableGross      string `csv:"taxable_gross"`
	FederalTax        string `csv:"federal_tax"`
	SSWages           string `csv:"ss_wages"`
	SSTax             string `csv:"ss_tax"`
	MedicareTax       string `csv:"medicare_tax"`
	StateTax          string `csv:"state_tax"`
	PostTaxDeductions string `csv:"post_tax_deductions"`
	NetPay            string `csv:"net_pay"`
	YTDGross          string `csv:"ytd_gross"`
	YTDNet            string `csv:"ytd_net"`
}

// YearEndRow is one CSV row per employee summary.
type YearEndRow struct {
	EmployeeID        string `csv:"employee_id"`
	EmployeeName      string `csv:"employee_name"`
	Year              string `csv:"year"`
	PaystubCount      string `csv:"paystub_count"`
	Gross             string `csv:"gross"`
	PreTaxDeductions  string `csv:"pre_tax_deductions"`
	PostTaxDeductions string `csv:"post_tax_deductions"`
	NetPay            string `csv:"net_pay"`
	Box1              string `csv:"box1_wages"`
	Box2              string `csv:"box2_federal_tax"`
	Box3              string `csv:"box3_ss_wages"`
	Box4              string `csv:"box4_ss_tax"`
	Box5              string `csv:"box5_medicare_wages"`
	Box6              string `csv:"box6_medicare_tax"`
	StateTax          string `csv:"state_tax"`
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// NewPaystubRow flattens a paystub for CSV output.
func NewPaystubRow(p payroll.Paystub) PaystubRow {
	return PaystubRow{
		CheckNumber:       p.CheckRef(),
		PaystubID:         string(p.ID),
		EmployeeID:        string(p.EmployeeID),
		EmployeeName:      p.EmployeeName,
		PeriodStart:       p.Period.Start.Format(payroll.DateLayout),
		PeriodEnd:         p.Period.End.Format(payroll.DateLayout),
		PayDate:           p.Period.PayDate.Format(payroll.DateLayout),
		RegularHours:      money(p.RegularHours),
		OvertimeHours:     money(p.OvertimeHours),
		Gross:             money(p.Gross),
		PreTaxDeductions:  money(p.PreTaxDeductions),
		TaxableGross:      money(p.TaxableGross),
		FederalTax:        money(p.FederalTax),
		SSWages:           money(p.SSWages),
		SSTax:             money(p.SSTax),
		MedicareTax:       money(p.MedicareTax),
		StateTax:          money(p.StateTax),
		PostTaxDeductions: money(p.PostTaxDeductions),
		NetPay:            money(p.NetPay),
		YTDGross:          money(p.YTDGross),
		YTDNet:            money(p.YTDNet),
	}
}

// NewYearEndRow flattens a summary for CSV output.
func NewYearEndRow(s payroll.YearEndSummary) YearEndRow {
	return YearEndRow{
		EmployeeID:        string(s.EmployeeID),
		EmployeeName:      s.EmployeeName,
		Year:              strconv.Itoa(s.Year),
		PaystubCount:      strconv.Itoa(s.PaystubCount),
		Gross:             money(s.Gross),
		PreTaxDeductions:  money(s.PreTaxDeductions),
		PostTaxDeductions: money(s.PostTaxDeductions),
		NetPay:            money(s.NetPay),
		Box1:              money(s.Box1),
		Box2:              money(s.Box2),
		Box3:              money(s.Box3),
		Box4:              money(s.Box4),
		Box5:              money(s.Box5),
		Box6:              money(s.Box6),
		StateTax:          money(s.StateTax),
	}
}

// WritePaystubsCSV writes a header and one row per stub, in the given order.
func WritePaystubsCSV(w io.Writer, stubs []payroll.Paystub) error {
	rows := make([]PaystubRow, len(stubs))
	for i, p := range stubs {
		rows[i] = NewPaystubRow(p)
	}
	return gocsv.Marshal(rows, w)
}

// WriteYearEndCSV writes a header and one row per summary.
func WriteYearEndCSV(w io.Writer, summaries []payroll.YearEndSummary) error {
	rows := make([]YearEndRow, len(summaries))
	for i, s := range summaries {
		rows[i] = NewYearEndRow(s)
	}
	return gocsv.Marshal(rows, w)
}
