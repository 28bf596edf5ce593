/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Computation packages return these; the API maps them to status codes.

ERROR CATEGORIES:
  1. Validation errors - bad input, rejected before anything is computed
  2. Invariant violations - a computed value broke a payroll rule
     (negative net pay, SS wages over the wage base). Nothing is persisted.
  3. Store errors - not found, conflicts, persistence failures

USAGE:
  var verr *payroll.ValidationError
  if errors.As(err, &verr) {
      // verr.Code is stable and safe to show to clients
  }

  if errors.Is(err, payroll.ErrInvariantViolation) {
      // skip this employee, keep the run going
  }

SEE ALSO:
  - ledger/pipeline.go: raises invariant violations
  - api/handlers.go: maps errors to HTTP status
*/
package payroll

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the parent of every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrInvariantViolation is the parent of every InvariantViolation.
	ErrInvariantViolation = errors.New("computation invariant violated")

	// ErrEmployeeNotFound is returned when a referenced employee doesn't exist.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrDeductionNotFound is returned when a referenced deduction doesn't exist.
	ErrDeductionNotFound = errors.New("deduction not found")

	// ErrPaystubNotFound is returned when a referenced paystub doesn't exist.
	ErrPaystubNotFound = errors.New("paystub not found")

	// ErrDuplicatePaystub is returned when a paystub id or check number is reused.
	ErrDuplicatePaystub = errors.New("duplicate paystub")

	// ErrEmployeeHasPaystubs is returned when deleting an employee that has
	// been paid. Paystubs are never orphaned.
	ErrEmployeeHasPaystubs = errors.New("employee has paystubs")

	// ErrYTDYearMismatch is returned when a pay date falls in a different tax
	// year than the employee's YTD counters. Roll the counters over first.
	ErrYTDYearMismatch = errors.New("pay date year does not match ytd year")
)

// =============================================================================
// ERROR CODES
// =============================================================================

const (
	CodeInvalidField     = "invalid_field"
	CodeCompensation     = "invalid_compensation"
	CodeInvalidPeriod    = "invalid_period"
	CodeInactiveEmployee = "employee_not_active"
	CodeHoursRequired    = "hours_required"
	CodeYTDYear          = "ytd_year_mismatch"
	CodeNoTaxTable       = "tax_table_missing"
	CodeUnknownEmployee  = "employee_not_found"

	CodeNegativeTaxable = "negative_taxable_gross"
	CodeNegativeNet     = "negative_net_pay"
	CodeWageBaseExceed  = "ss_wage_base_exceeded"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError rejects input before any computation or write.
type ValidationError struct {
	Code    string
	Message string
	Err     error // optional cause
}

func NewValidationError(code, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes both ErrValidation and the optional cause.
func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// InvariantViolation reports a computed state that must never be persisted.
type InvariantViolation struct {
	Code    string
	Message string
}

func NewInvariantViolation(code, message string) *InvariantViolation {
	return &InvariantViolation{Code: code, Message: message}
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InvariantViolation) Unwrap() error {
	return ErrInvariantViolation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvariantViolation) ||
		errors.Is(err, ErrEmployeeHasPaystubs)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrDeductionNotFound) ||
		errors.Is(err, ErrPaystubNotFound)
}

// IsSkippable reports whether a bulk run may record the error against one
// employee and continue with the rest. An employee removed after the run's
// list was read is skippable.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvariantViolation) ||
		errors.Is(err, ErrEmployeeNotFound)
}
