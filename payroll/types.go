/*
Package payroll provides the domain model shared by the payroll engine.

PURPOSE:
  This package holds the types every other package speaks: employees, pay
  periods, deductions, paystubs and year-end summaries, together with the
  money helpers and the closed enumerations (pay frequency, filing status,
  deduction type, employee status). It has no behavior beyond validation and
  small value-level helpers.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal.Decimal rounded to cents only at output boundaries
  - Enumerations: typed strings with their data (periods per year, tax
    category) attached in lookup tables
  - Employee: compensation, W-4 data and year-to-date counters
  - Paystub: an immutable fact, appended once and never edited

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float64
  2. Immutability: paystubs are append-only; corrections are out of scope
  3. Controlled state: YTD counters change only through the ledger's atomic
     increment (see store.go), never through setters

SEE ALSO:
  - errors.go: validation and invariant errors
  - store.go: persistence contract
  - ledger/ledger.go: the paystub pipeline
*/
package payroll

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// Cents is the number of decimal places money is rounded to.
const Cents int32 = 2

var hundred = decimal.NewFromInt(100)

// RoundCents rounds to the smallest currency unit, half away from zero.
// For the non-negative amounts payroll deals in this is round-half-up.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(Cents)
}

// Percent converts a percentage (e.g. 6 for 6%) into a rate (0.06).
func Percent(p decimal.Decimal) decimal.Decimal {
	return p.Div(hundred)
}

// MustDecimal parses s or panics. Intended for constants and tests.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("payroll: invalid decimal %q: %v", s, err))
	}
	return d
}

// MaxZero returns d, or zero when d is negative.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type DeductionID string
type PaystubID string

// =============================================================================
// PAY FREQUENCY
// =============================================================================

type PayFrequency string

const (
	Weekly      PayFrequency = "weekly"
	Biweekly    PayFrequency = "biweekly"
	SemiMonthly PayFrequency = "semi_monthly"
	Monthly     PayFrequency = "monthly"
)

var periodsPerYear = map[PayFrequency]int{
	Weekly:      52,
	Biweekly:    26,
	SemiMonthly: 24,
	Monthly:     12,
}

// PeriodsPerYear returns how many pay periods the frequency yields per year,
// or 0 for an unknown frequency.
func (f PayFrequency) PeriodsPerYear() int { return periodsPerYear[f] }

func (f PayFrequency) Valid() bool { return periodsPerYear[f] > 0 }

func ParsePayFrequency(s string) (PayFrequency, error) {
	f := PayFrequency(s)
	if !f.Valid() {
		return "", NewValidationError(CodeInvalidField, fmt.Sprintf("unknown pay frequency %q", s))
	}
	return f, nil
}

// =============================================================================
// FILING STATUS
// =============================================================================

type FilingStatus string

const (
	Single          FilingStatus = "single"
	MarriedJoint    FilingStatus = "married"
	HeadOfHousehold FilingStatus = "head_of_household"
)

// FilingStatuses lists every filing status the tax tables must cover.
func FilingStatuses() []FilingStatus {
	return []FilingStatus{Single, MarriedJoint, HeadOfHousehold}
}

func (s FilingStatus) Valid() bool {
	switch s {
	case Single, MarriedJoint, HeadOfHousehold:
		return true
	}
	return false
}

func ParseFilingStatus(s string) (FilingStatus, error) {
	fs := FilingStatus(s)
	if !fs.Valid() {
		return "", NewValidationError(CodeInvalidField, fmt.Sprintf("unknown filing status %q", s))
	}
	return fs, nil
}

// =============================================================================
// EMPLOYEE STATUS
// =============================================================================

type EmployeeStatus string

const (
	StatusActive     EmployeeStatus = "active"
	StatusTerminated EmployeeStatus = "terminated"
	StatusOnLeave    EmployeeStatus = "on_leave"
)

func (s EmployeeStatus) Valid() bool {
	switch s {
	case StatusActive, StatusTerminated, StatusOnLeave:
		return true
	}
	return false
}

func ParseEmployeeStatus(s string) (EmployeeStatus, error) {
	st := EmployeeStatus(s)
	if !st.Valid() {
		return "", NewValidationError(CodeInvalidField, fmt.Sprintf("unknown employee status %q", s))
	}
	return st, nil
}

// =============================================================================
// DEDUCTION TYPE - closed set, partitioned by tax category
// =============================================================================

type TaxCategory string

const (
	PreTax  TaxCategory = "pre_tax"
	PostTax TaxCategory = "post_tax"
)

type DeductionType string

const (
	Deduction401k        DeductionType = "pre_tax_401k"
	DeductionHSA         DeductionType = "pre_tax_hsa"
	DeductionFSA         DeductionType = "pre_tax_fsa"
	DeductionHealth      DeductionType = "pre_tax_health"
	DeductionRoth        DeductionType = "post_tax_roth"
	DeductionGarnishment DeductionType = "post_tax_garnishment"
	DeductionOther       DeductionType = "post_tax_other"
)

var deductionCategories = map[DeductionType]TaxCategory{
	Deduction401k:        PreTax,
	DeductionHSA:         PreTax,
	DeductionFSA:         PreTax,
	DeductionHealth:      PreTax,
	DeductionRoth:        PostTax,
	DeductionGarnishment: PostTax,
	DeductionOther:       PostTax,
}

// DeductionTypes returns all seven deduction kinds.
func DeductionTypes() []DeductionType {
	return []DeductionType{
		Deduction401k, DeductionHSA, DeductionFSA, DeductionHealth,
		DeductionRoth, DeductionGarnishment, DeductionOther,
	}
}

// Category reports whether the deduction reduces taxable gross.
// Unknown types report an empty category.
func (t DeductionType) Category() TaxCategory { return deductionCategories[t] }

func (t DeductionType) Valid() bool { _, ok := deductionCategories[t]; return ok }

func ParseDeductionType(s string) (DeductionType, error) {
	t := DeductionType(s)
	if !t.Valid() {
		return "", NewValidationError(CodeInvalidField, fmt.Sprintf("unknown deduction type %q", s))
	}
	return t, nil
}

// =============================================================================
// DEDUCTION
// =============================================================================

// Deduction is a recurring per-period deduction owned by one employee.
// Inactive deductions are kept for audit and ignored by computation.
type Deduction struct {
	ID           DeductionID
	EmployeeID   EmployeeID
	Type         DeductionType
	Amount       decimal.Decimal // currency, or percent of gross when IsPercentage
	IsPercentage bool
	Description  string
	Active       bool
	CreatedAt    time.Time
}

func (d Deduction) Validate() error {
	if d.EmployeeID == "" {
		return NewValidationError(CodeInvalidField, "deduction employee id is required")
	}
	if !d.Type.Valid() {
		return NewValidationError(CodeInvalidField, fmt.Sprintf("unknown deduction type %q", d.Type))
	}
	if d.Amount.IsNegative() {
		return NewValidationError(CodeInvalidField, "deduction amount must not be negative")
	}
	return nil
}

// =============================================================================
// YEAR-TO-DATE COUNTERS
// =============================================================================

// YTD holds an employee's cumulative totals for one tax year.
// Year is zero until the first paystub of a year is recorded.
type YTD struct {
	Year        int
	Gross       decimal.Decimal
	FederalTax  decimal.Decimal
	SSTax       decimal.Decimal
	MedicareTax decimal.Decimal
	StateTax    decimal.Decimal
	Deductions  decimal.Decimal
	SSWages     decimal.Decimal
}

// Add returns the counters advanced by delta. The year of the receiver wins
// unless it is unset.
func (y YTD) Add(delta YTD) YTD {
	year := y.Year
	if year == 0 {
		year = delta.Year
	}
	return YTD{
		Year:        year,
		Gross:       y.Gross.Add(delta.Gross),
		FederalTax:  y.FederalTax.Add(delta.FederalTax),
		SSTax:       y.SSTax.Add(delta.SSTax),
		MedicareTax: y.MedicareTax.Add(delta.MedicareTax),
		StateTax:    y.StateTax.Add(delta.StateTax),
		Deductions:  y.Deductions.Add(delta.Deductions),
		SSWages:     y.SSWages.Add(delta.SSWages),
	}
}

// IsZero reports whether nothing has been accumulated yet.
func (y YTD) IsZero() bool {
	return y.Gross.IsZero() && y.FederalTax.IsZero() && y.SSTax.IsZero() &&
		y.MedicareTax.IsZero() && y.StateTax.IsZero() && y.Deductions.IsZero() &&
		y.SSWages.IsZero()
}

// Equal compares all counters by value.
func (y YTD) Equal(o YTD) bool {
	return y.Year == o.Year &&
		y.Gross.Equal(o.Gross) &&
		y.FederalTax.Equal(o.FederalTax) &&
		y.SSTax.Equal(o.SSTax) &&
		y.MedicareTax.Equal(o.MedicareTax) &&
		y.StateTax.Equal(o.StateTax) &&
		y.Deductions.Equal(o.Deductions) &&
		y.SSWages.Equal(o.SSWages)
}

// NewYTD returns empty counters for year.
func NewYTD(year int) YTD {
	return YTD{
		Year:        year,
		Gross:       decimal.Zero,
		FederalTax:  decimal.Zero,
		SSTax:       decimal.Zero,
		MedicareTax: decimal.Zero,
		StateTax:    decimal.Zero,
		Deductions:  decimal.Zero,
		SSWages:     decimal.Zero,
	}
}

// =============================================================================
// EMPLOYEE
// =============================================================================

// Employee is paid either by annual salary or by hourly rate, never both.
type Employee struct {
	ID           EmployeeID
	Name         string
	Email        string
	Department   string
	Title        string
	HireDate     time.Time
	AnnualSalary *decimal.Decimal
	HourlyRate   *decimal.Decimal
	PayFrequency PayFrequency
	FilingStatus FilingStatus
	Allowances   int
	StateCode    string
	Status       EmployeeStatus

	// YTD is read-only for callers. Stores ignore it on upsert; only the
	// ledger's atomic increment and an explicit rollover change it.
	YTD YTD
}

func (e Employee) IsHourly() bool { return e.HourlyRate != nil }

func (e Employee) Validate() error {
	if e.ID == "" {
		return NewValidationError(CodeInvalidField, "employee id is required")
	}
	if e.Name == "" {
		return NewValidationError(CodeInvalidField, "employee name is required")
	}
	switch {
	case e.AnnualSalary == nil && e.HourlyRate == nil:
		return NewValidationError(CodeCompensation, "either annual salary or hourly rate must be set")
	case e.AnnualSalary != nil && e.HourlyRate != nil:
		return NewValidationError(CodeCompensation, "annual salary and hourly rate are mutually exclusive")
	case e.AnnualSalary != nil && e.AnnualSalary.IsNegative():
		return NewValidationError(CodeCompensation, "annual salary must not be negative")
	case e.HourlyRate != nil && e.HourlyRate.IsNegative():
		return NewValidationError(CodeCompensation, "hourly rate must not be negative")
	}
	if !e.PayFrequency.Valid() {
		return NewValidationError(CodeInvalidField, fmt.Sprintf("unknown pay frequency %q", e.PayFrequency))
	}
	if !e.FilingStatus.Valid() {
		return NewValidationError(CodeInvalidField, fmt.Sprintf("unknown filing status %q", e.FilingStatus))
	}
	if !e.Status.Valid() {
		return NewValidationError(CodeInvalidField, fmt.Sprintf("unknown employee status %q", e.Status))
	}
	if e.Allowances < 0 {
		return NewValidationError(CodeInvalidField, "allowances must not be negative")
	}
	return nil
}

// =============================================================================
// HOURS
// =============================================================================

// Hours worked in a period by an hourly employee. Worked hours beyond the
// overtime threshold are paid at the overtime multiplier; Overtime carries
// additional hours already classified as overtime.
type Hours struct {
	Worked   decimal.Decimal
	Overtime decimal.Decimal
}

// =============================================================================
// PAYSTUB
// =============================================================================

// PaystubLine is one printed row of a paystub.
type PaystubLine struct {
	Label       string
	Amount      decimal.Decimal
	YTD         decimal.Decimal
	IsDeduction bool
}

// Paystub is an immutable record of one payroll run for one employee.
type Paystub struct {
	ID           PaystubID
	CheckNumber  int64
	EmployeeID   EmployeeID
	EmployeeName string
	Period       PayPeriod

	RegularHours  decimal.Decimal
	OvertimeHours decimal.Decimal

	Gross             decimal.Decimal
	PreTaxDeductions  decimal.Decimal
	TaxableGross      decimal.Decimal
	FederalTax        decimal.Decimal
	SSWages           decimal.Decimal
	SSTax             decimal.Decimal
	MedicareTax       decimal.Decimal
	StateTax          decimal.Decimal
	PostTaxDeductions decimal.Decimal
	NetPay            decimal.Decimal

	// YTD snapshot after this stub was applied.
	YTDGross decimal.Decimal
	YTDNet   decimal.Decimal

	Lines       []PaystubLine
	GeneratedAt time.Time
}

// CheckRef renders the check number the way it is printed.
func (p Paystub) CheckRef() string { return FormatCheckNumber(p.CheckNumber) }

func FormatCheckNumber(n int64) string { return fmt.Sprintf("CHK-%06d", n) }

// TotalTaxes is federal + SS + Medicare + state.
func (p Paystub) TotalTaxes() decimal.Decimal {
	return p.FederalTax.Add(p.SSTax).Add(p.MedicareTax).Add(p.StateTax)
}

// =============================================================================
// YEAR-END SUMMARY
// =============================================================================

// YearEndSummary is derived from an employee's paystubs for one year and is
// never persisted.
type YearEndSummary struct {
	EmployeeID   EmployeeID
	EmployeeName string
	Year         int
	PaystubCount int

	Gross             decimal.Decimal
	FederalTax        decimal.Decimal
	SSTax             decimal.Decimal
	MedicareTax       decimal.Decimal
	StateTax          decimal.Decimal
	PreTaxDeductions  decimal.Decimal
	PostTaxDeductions decimal.Decimal
	NetPay            decimal.Decimal

	Box1 decimal.Decimal // wages, tips, other compensation
	Box2 decimal.Decimal // federal income tax withheld
	Box3 decimal.Decimal // social security wages
	Box4 decimal.Decimal // social security tax withheld
	Box5 decimal.Decimal // medicare wages and tips
	Box6 decimal.Decimal // medicare tax withheld
}
