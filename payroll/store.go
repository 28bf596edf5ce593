/*
store.go - Persistence contract for employees, deductions and paystubs

PURPOSE:
  Defines the interface between the payroll ledger and the database.
  Paystubs are append-only. YTD counters move only through IncrementYTD
  inside a transaction, or through an explicit RolloverYTD.

KEY INTERFACES:
  Reader: reads shared by the store and its transactions
  Tx:     the atomic unit the ledger persists a paystub in
  Store:  Reader plus administration and WithTx

APPEND-ONLY CONTRACT:
  - AppendPaystub(): the only paystub write
  - NO UpdatePaystub() or DeletePaystub() methods exist
  - DeleteEmployee() fails with ErrEmployeeHasPaystubs once a stub exists

ATOMIC PAYSTUB:
  A paystub, its check number and the YTD increment are written in one
  WithTx call. Either all three land or none do.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - payroll/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger/ledger.go: the only caller of IncrementYTD
*/
package payroll

import "context"

// =============================================================================
// READER - Shared by Store and Tx
// =============================================================================

type Reader interface {
	// GetEmployee returns ErrEmployeeNotFound when id is unknown.
	GetEmployee(ctx context.Context, id EmployeeID) (Employee, error)

	// ListDeductions returns an employee's deductions in creation order.
	ListDeductions(ctx context.Context, employeeID EmployeeID, activeOnly bool) ([]Deduction, error)

	// ListPaystubs returns stubs ordered by pay date then check number.
	// year 0 means every year; otherwise stubs whose pay date falls in year.
	ListPaystubs(ctx context.Context, employeeID EmployeeID, year int) ([]Paystub, error)
}

// =============================================================================
// TX - Atomic paystub persistence
// =============================================================================

type Tx interface {
	Reader

	// NextCheckNumber allocates the next number of a strictly increasing,
	// store-wide sequence. Rolled-back allocations may leave gaps.
	NextCheckNumber(ctx context.Context) (int64, error)

	// AppendPaystub persists an immutable stub.
	AppendPaystub(ctx context.Context, stub Paystub) error

	// IncrementYTD adds delta to the employee's counters and returns the
	// updated counters. delta.Year sets the year when counters are empty.
	IncrementYTD(ctx context.Context, id EmployeeID, delta YTD) (YTD, error)
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	Reader

	// ListEmployees returns employees ordered by id. A nil status lists all.
	ListEmployees(ctx context.Context, status *EmployeeStatus) ([]Employee, error)

	// UpsertEmployee creates or replaces an employee's profile. The YTD
	// field is ignored: new employees start with empty counters and
	// existing counters are preserved.
	UpsertEmployee(ctx context.Context, e Employee) error

	// DeleteEmployee removes an employee and their deductions.
	// Returns ErrEmployeeHasPaystubs if any paystub references them.
	DeleteEmployee(ctx context.Context, id EmployeeID) error

	// SaveDeduction creates or replaces a deduction. The employee must exist.
	SaveDeduction(ctx context.Context, d Deduction) error

	// DeactivateDeduction keeps the record but stops it applying.
	DeactivateDeduction(ctx context.Context, id DeductionID) error

	GetPaystub(ctx context.Context, id PaystubID) (Paystub, error)

	// RolloverYTD resets an employee's counters to an empty year. The new
	// year must be later than the current one.
	RolloverYTD(ctx context.Context, id EmployeeID, year int) error

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Tx) error) error
}
