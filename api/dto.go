/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Responses render money as strings with exactly two decimals ("3076.92").
  Requests accept either a JSON number or a quoted decimal string; both are
  decoded straight into decimal.Decimal, never through float64.

DATES:
  YYYY-MM-DD everywhere.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/ledger"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeRequest creates or replaces an employee profile. YTD counters are
// never accepted from clients.
type EmployeeRequest struct {
	ID           string           `json:"id,omitempty"`
	Name         string           `json:"name"`
	Email        string           `json:"email,omitempty"`
	Department   string           `json:"department,omitempty"`
	Title        string           `json:"title,omitempty"`
	HireDate     string           `json:"hire_date,omitempty"`
	AnnualSalary *decimal.Decimal `json:"annual_salary,omitempty"`
	HourlyRate   *decimal.Decimal `json:"hourly_rate,omitempty"`
	PayFrequency string           `json:"pay_frequency"`
	FilingStatus string           `json:"filing_status"`
	Allowances   int              `json:"allowances"`
	StateCode    string           `json:"state_code"`
	Status       string           `json:"status,omitempty"`
}

func (r EmployeeRequest) toEmployee(id payroll.EmployeeID) (payroll.Employee, error) {
	e := payroll.Employee{
		ID:           id,
		Name:         r.Name,
		Email:        r.Email,
		Department:   r.Department,
		Title:        r.Title,
		AnnualSalary: r.AnnualSalary,
		HourlyRate:   r.HourlyRate,
		PayFrequency: payroll.PayFrequency(r.PayFrequency),
		FilingStatus: payroll.FilingStatus(r.FilingStatus),
		Allowances:   r.Allowances,
		StateCode:    r.StateCode,
		Status:       payroll.EmployeeStatus(r.Status),
	}
	if e.Status == "" {
		e.Status = payroll.StatusActive
	}
	if r.HireDate != "" {
		t, err := time.Parse(payroll.DateLayout, r.HireDate)
		if err != nil {
			return payroll.Employee{}, payroll.NewValidationError(payroll.CodeInvalidField, "hire_date must be YYYY-MM-DD")
		}
		e.HireDate = t
	}
	return e, e.Validate()
}

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email,omitempty"`
	Department   string  `json:"department,omitempty"`
	Title        string  `json:"title,omitempty"`
	HireDate     string  `json:"hire_date,omitempty"`
	AnnualSalary *string `json:"annual_salary,omitempty"`
	HourlyRate   *string `json:"hourly_rate,omitempty"`
	PayFrequency string  `json:"pay_frequency"`
	FilingStatus string  `json:"filing_status"`
	Allowances   int     `json:"allowances"`
	StateCode    string  `json:"state_code"`
	Status       string  `json:"status"`
	YTD          YTDDTO  `json:"ytd"`
}

// YTDDTO is an employee's running totals for one tax year.
type YTDDTO struct {
	Year        int    `json:"year"`
	Gross       string `json:"gross"`
	FederalTax  string `json:"federal_tax"`
	SSTax       string `json:"ss_tax"`
	MedicareTax string `json:"medicare_tax"`
	StateTax    string `json:"state_tax"`
	Deductions  string `json:"deductions"`
	SSWages     string `json:"ss_wages"`
}

// =============================================================================
// DEDUCTIONS
// =============================================================================

// DeductionRequest creates a recurring deduction for an employee.
type DeductionRequest struct {
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	IsPercentage bool            `json:"is_percentage"`
	Description  string          `json:"description,omitempty"`
}

type DeductionDTO struct {
	ID           string `json:"id"`
	EmployeeID   string `json:"employee_id"`
	Type         string `json:"type"`
	Category     string `json:"category"`
	Amount       string `json:"amount"`
	IsPercentage bool   `json:"is_percentage"`
	Description  string `json:"description,omitempty"`
	Active       bool   `json:"active"`
	CreatedAt    string `json:"created_at"`
}

// =============================================================================
// PAYSTUBS
// =============================================================================

// PeriodRequest identifies a pay period.
type PeriodRequest struct {
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	PayDate     string `json:"pay_date"`
}

func (r PeriodRequest) toPeriod() (payroll.PayPeriod, error) {
	return payroll.ParsePayPeriod(r.PeriodStart, r.PeriodEnd, r.PayDate)
}

// HoursRequest carries hours for hourly employees.
type HoursRequest struct {
	Worked   decimal.Decimal `json:"worked"`
	Overtime decimal.Decimal `json:"overtime"`
}

func (h *HoursRequest) toHours() *payroll.Hours {
	if h == nil {
		return nil
	}
	return &payroll.Hours{Worked: h.Worked, Overtime: h.Overtime}
}

// GeneratePaystubRequest asks for one employee's paystub.
type GeneratePaystubRequest struct {
	PeriodRequest
	Hours *HoursRequest `json:"hours,omitempty"`
}

// BulkRunRequest pays a period for many employees. With no employee_ids,
// every active employee is paid.
type BulkRunRequest struct {
	PeriodRequest
	EmployeeIDs []string                `json:"employee_ids,omitempty"`
	Hours       map[string]HoursRequest `json:"hours,omitempty"`
}

type PaystubLineDTO struct {
	Label       string `json:"label"`
	Amount      string `json:"amount"`
	YTD         string `json:"ytd"`
	IsDeduction bool   `json:"is_deduction"`
}

type PaystubDTO struct {
	ID                string           `json:"id"`
	CheckNumber       string           `json:"check_number"`
	EmployeeID        string           `json:"employee_id"`
	EmployeeName      string           `json:"employee_name"`
	PeriodStart       string           `json:"period_start"`
	PeriodEnd         string           `json:"period_end"`
	PayDate           string           `json:"pay_date"`
	RegularHours      string           `json:"regular_hours"`
	OvertimeHours     string           `json:"overtime_hours"`
	Gross             string           `json:"gross"`
	PreTaxDeductions  string           `json:"pre_tax_deductions"`
	TaxableGross      string           `json:"taxable_gross"`
	FederalTax        string           `json:"federal_tax"`
	SSWages           string           `json:"ss_wages"`
	SSTax             string           `json:"ss_tax"`
	MedicareTax       string           `json:"medicare_tax"`
	StateTax          string           `json:"state_tax"`
	PostTaxDeductions string           `json:"post_tax_deductions"`
	NetPay            string           `json:"net_pay"`
	YTDGross          string           `json:"ytd_gross"`
	YTDNet            string           `json:"ytd_net"`
	Lines             []PaystubLineDTO `json:"lines"`
	GeneratedAt       string           `json:"generated_at"`
}

// PreviewDTO is a computed but unsaved paystub.
type PreviewDTO struct {
	EmployeeID        string `json:"employee_id"`
	PayDate           string `json:"pay_date"`
	RegularHours      string `json:"regular_hours"`
	OvertimeHours     string `json:"overtime_hours"`
	Gross             string `json:"gross"`
	PreTaxDeductions  string `json:"pre_tax_deductions"`
	TaxableGross      string `json:"taxable_gross"`
	FederalTax        string `json:"federal_tax"`
	SSWages           string `json:"ss_wages"`
	SSTax             string `json:"ss_tax"`
	MedicareTax       string `json:"medicare_tax"`
	StateTax          string `json:"state_tax"`
	PostTaxDeductions string `json:"post_tax_deductions"`
	NetPay            string `json:"net_pay"`
	OverAllocated     bool   `json:"deductions_over_allocated,omitempty"`
}

type SkipDTO struct {
	EmployeeID string `json:"employee_id"`
	Code       string `json:"code"`
	Reason     string `json:"reason"`
}

type BulkRunResponse struct {
	Paystubs     []PaystubDTO `json:"paystubs"`
	Skips        []SkipDTO    `json:"skips"`
	Failed       []SkipDTO    `json:"failed,omitempty"`
	NotProcessed []string     `json:"not_processed"`
}

// =============================================================================
// YEAR END
// =============================================================================

type YearEndDTO struct {
	EmployeeID        string `json:"employee_id"`
	EmployeeName      string `json:"employee_name"`
	Year              int    `json:"year"`
	PaystubCount      int    `json:"paystub_count"`
	Gross             string `json:"gross"`
	FederalTax        string `json:"federal_tax"`
	SSTax             string `json:"ss_tax"`
	MedicareTax       string `json:"medicare_tax"`
	StateTax          string `json:"state_tax"`
	PreTaxDeductions  string `json:"pre_tax_deductions"`
	PostTaxDeductions string `json:"post_tax_deductions"`
	NetPay            string `json:"net_pay"`
	Box1              string `json:"box1_wages"`
	Box2              string `json:"box2_federal_tax"`
	Box3              string `json:"box3_ss_wages"`
	Box4              string `json:"box4_ss_tax"`
	Box5              string `json:"box5_medicare_wages"`
	Box6              string `json:"box6_medicare_tax"`
}

type RolloverRequest struct {
	Year int `json:"year"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func optionalMoney(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money(*d)
	return &s
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(payroll.DateLayout)
}

func toEmployeeDTO(e payroll.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:           string(e.ID),
		Name:         e.Name,
		Email:        e.Email,
		Department:   e.Department,
		Title:        e.Title,
		HireDate:     formatDate(e.HireDate),
		AnnualSalary: optionalMoney(e.AnnualSalary),
		HourlyRate:   optionalMoney(e.HourlyRate),
		PayFrequency: string(e.PayFrequency),
		FilingStatus: string(e.FilingStatus),
		Allowances:   e.Allowances,
		StateCode:    e.StateCode,
		Status:       string(e.Status),
		YTD: YTDDTO{
			Year:        e.YTD.Year,
			Gross:       money(e.YTD.Gross),
			FederalTax:  money(e.YTD.FederalTax),
			SSTax:       money(e.YTD.SSTax),
			MedicareTax: money(e.YTD.MedicareTax),
			StateTax:    money(e.YTD.StateTax),
			Deductions:  money(e.YTD.Deductions),
			SSWages:     money(e.YTD.SSWages),
		},
	}
}

func toDeductionDTO(d payroll.Deduction) DeductionDTO {
	amount := money(d.Amount)
	if d.IsPercentage {
		amount = d.Amount.String()
	}
	return DeductionDTO{
		ID:           string(d.ID),
		EmployeeID:   string(d.EmployeeID),
		Type:         string(d.Type),
		Category:     string(d.Type.Category()),
		Amount:       amount,
		IsPercentage: d.IsPercentage,
		Description:  d.Description,
		Active:       d.Active,
		CreatedAt:    d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toPaystubDTO(p payroll.Paystub) PaystubDTO {
	lines := make([]PaystubLineDTO, len(p.Lines))
	for i, l := range p.Lines {
		lines[i] = PaystubLineDTO{Label: l.Label, Amount: money(l.Amount), YTD: money(l.YTD), IsDeduction: l.IsDeduction}
	}
	return PaystubDTO{
		ID:                string(p.ID),
		CheckNumber:       p.CheckRef(),
		EmployeeID:        string(p.EmployeeID),
		EmployeeName:      p.EmployeeName,
		PeriodStart:       formatDate(p.Period.Start),
		PeriodEnd:         formatDate(p.Period.End),
		PayDate:           formatDate(p.Period.PayDate),
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
		Lines:             lines,
		GeneratedAt:       p.GeneratedAt.UTC().Format(time.RFC3339),
	}
}

func toPaystubDTOs(stubs []payroll.Paystub) []PaystubDTO {
	dtos := make([]PaystubDTO, len(stubs))
	for i, p := range stubs {
		dtos[i] = toPaystubDTO(p)
	}
	return dtos
}

func toPreviewDTO(c ledger.Computation) PreviewDTO {
	return PreviewDTO{
		EmployeeID:        string(c.Employee.ID),
		PayDate:           formatDate(c.Period.PayDate),
		RegularHours:      money(c.RegularHours),
		OvertimeHours:     money(c.OvertimeHours),
		Gross:             money(c.Gross),
		PreTaxDeductions:  money(c.Resolution.PreTax),
		TaxableGross:      money(c.Taxable),
		FederalTax:        money(c.Withholding.FederalTax),
		SSWages:           money(c.Withholding.SSWages),
		SSTax:             money(c.Withholding.SSTax),
		MedicareTax:       money(c.Withholding.MedicareTax),
		StateTax:          money(c.StateTax),
		PostTaxDeductions: money(c.Resolution.PostTax),
		NetPay:            money(c.Net),
		OverAllocated:     c.Resolution.OverAllocated(),
	}
}

func toBulkRunResponse(r ledger.BulkReport) BulkRunResponse {
	resp := BulkRunResponse{
		Paystubs:     toPaystubDTOs(r.Paystubs),
		Skips:        make([]SkipDTO, len(r.Skips)),
		NotProcessed: make([]string, len(r.NotProcessed)),
	}
	for i, s := range r.Skips {
		resp.Skips[i] = SkipDTO{EmployeeID: string(s.EmployeeID), Code: s.Code, Reason: s.Reason}
	}
	for _, s := range r.Failed {
		resp.Failed = append(resp.Failed, SkipDTO{EmployeeID: string(s.EmployeeID), Code: s.Code, Reason: s.Reason})
	}
	for i, id := range r.NotProcessed {
		resp.NotProcessed[i] = string(id)
	}
	return resp
}

func toYearEndDTO(s payroll.YearEndSummary) YearEndDTO {
	return YearEndDTO{
		EmployeeID:        string(s.EmployeeID),
		EmployeeName:      s.EmployeeName,
		Year:              s.Year,
		PaystubCount:      s.PaystubCount,
		Gross:             money(s.Gross),
		FederalTax:        money(s.FederalTax),
		SSTax:             money(s.SSTax),
		MedicareTax:       money(s.MedicareTax),
		StateTax:          money(s.StateTax),
		PreTaxDeductions:  money(s.PreTaxDeductions),
		PostTaxDeductions: money(s.PostTaxDeductions),
		NetPay:            money(s.NetPay),
		Box1:              money(s.Box1),
		Box2:              money(s.Box2),
		Box3:              money(s.Box3),
		Box4:              money(s.Box4),
		Box5:              money(s.Box5),
		Box6:              money(s.Box6),
	}
}
