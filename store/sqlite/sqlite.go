/*
Package sqlite provides a SQLite-backed payroll.Store.

PURPOSE:
  Persists employees, deductions and paystubs. The same patterns apply to
  PostgreSQL with minor dialect differences.

APPEND-ONLY ENFORCEMENT:
  Paystubs are protected twice:
  - The Go API has no update or delete for them
  - BEFORE UPDATE / BEFORE DELETE triggers abort any such statement
  Employees referenced by a paystub cannot be deleted (ON DELETE RESTRICT).

KEY TABLES:
  employees:      profile, compensation, W-4 data and YTD counters
  deductions:     recurring deductions, cascade with their employee
  paystubs:       immutable stubs, lines stored as JSON
  check_sequence: single-row counter for check numbers

MONEY:
  Stored as TEXT decimal strings and parsed with shopspring/decimal, so no
  value ever passes through a float.

CONCURRENCY:
  The pool is limited to one connection. Writers serialize on it and an
  in-memory database stays a single database. Inside WithTx every statement
  goes through the sql.Tx, never the pool, so a transaction cannot wait on
  itself.

WAL MODE:
  File databases are opened with WAL for crash recovery; readers of other
  processes don't block the writer.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - payroll/store.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// Store implements payroll.Store using SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ payroll.Store = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		department TEXT,
		title TEXT,
		hire_date TEXT,
		annual_salary TEXT,
		hourly_rate TEXT,
		pay_frequency TEXT NOT NULL,
		filing_status TEXT NOT NULL,
		allowances INTEGER NOT NULL DEFAULT 0,
		state_code TEXT NOT NULL DEFAULT 'CA',
		status TEXT NOT NULL DEFAULT 'active',
		ytd_year INTEGER NOT NULL DEFAULT 0,
		ytd_gross TEXT NOT NULL DEFAULT '0',
		ytd_federal_tax TEXT NOT NULL DEFAULT '0',
		ytd_ss_tax TEXT NOT NULL DEFAULT '0',
		ytd_medicare_tax TEXT NOT NULL DEFAULT '0',
		ytd_state_tax TEXT NOT NULL DEFAULT '0',
		ytd_deductions TEXT NOT NULL DEFAULT '0',
		ytd_ss_wages TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK ((annual_salary IS NULL) <> (hourly_rate IS NULL))
	);

	CREATE INDEX IF NOT EXISTS idx_employees_status ON employees(status);

	CREATE TABLE IF NOT EXISTS deductions (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
		deduction_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		is_percentage INTEGER NOT NULL DEFAULT 0,
		description TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deductions_employee ON deductions(employee_id, active);

	-- Paystubs (append-only)
	CREATE TABLE IF NOT EXISTS paystubs (
		id TEXT PRIMARY KEY,
		check_number INTEGER NOT NULL UNIQUE,
		employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE RESTRICT,
		employee_name TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		pay_date TEXT NOT NULL,
		regular_hours TEXT NOT NULL,
		overtime_hours TEXT NOT NULL,
		gross TEXT NOT NULL,
		pre_tax_deductions TEXT NOT NULL,
		taxable_gross TEXT NOT NULL,
		federal_tax TEXT NOT NULL,
		ss_wages TEXT NOT NULL,
		ss_tax TEXT NOT NULL,
		medicare_tax TEXT NOT NULL,
		state_tax TEXT NOT NULL,
		post_tax_deductions TEXT NOT NULL,
		net_pay TEXT NOT NULL,
		ytd_gross TEXT NOT NULL,
		ytd_net TEXT NOT NULL,
		lines_json TEXT NOT NULL,
		generated_at TEXT NOT NULL
	);

	-- Year-end and per-employee history (hot path)
	CREATE INDEX IF NOT EXISTS idx_paystubs_employee_pay_date
		ON paystubs(employee_id, pay_date, check_number);

	CREATE TRIGGER IF NOT EXISTS paystubs_no_update
		BEFORE UPDATE ON paystubs
		BEGIN SELECT RAISE(ABORT, 'paystubs are append-only'); END;

	CREATE TRIGGER IF NOT EXISTS paystubs_no_delete
		BEFORE DELETE ON paystubs
		BEGIN SELECT RAISE(ABORT, 'paystubs are append-only'); END;

	CREATE TABLE IF NOT EXISTS check_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO check_sequence (id, last) VALUES (1, 0);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
func (s *Store) WithTx(ctx context.Context, fn func(payroll.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, now: s.now}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore is the payroll.Tx view. It only ever touches tx.
type txStore struct {
	tx  *sql.Tx
	now func() time.Time
}

func (ts *txStore) GetEmployee(ctx context.Context, id payroll.EmployeeID) (payroll.Employee, error) {
	return getEmployee(ctx, ts.tx, id)
}

func (ts *txStore) ListDeductions(ctx context.Context, employeeID payroll.EmployeeID, activeOnly bool) ([]payroll.Deduction, error) {
	return listDeductions(ctx, ts.tx, employeeID, activeOnly)
}

func (ts *txStore) ListPaystubs(ctx context.Context, employeeID payroll.EmployeeID, year int) ([]payroll.Paystub, error) {
	return listPaystubs(ctx, ts.tx, employeeID, year)
}

func (ts *txStore) NextCheckNumber(ctx context.Context) (int64, error) {
	var n int64
	err := ts.tx.QueryRowContext(ctx,
		"UPDATE check_sequence SET last = last + 1 WHERE id = 1 RETURNING last",
	).Scan(&n)
	return n, err
}

func (ts *txStore) AppendPaystub(ctx context.Context, stub payroll.Paystub) error {
	return appendPaystub(ctx, ts.tx, stub)
}

func (ts *txStore) IncrementYTD(ctx context.Context, id payroll.EmployeeID, delta payroll.YTD) (payroll.YTD, error) {
	emp, err := getEmployee(ctx, ts.tx, id)
	if err != nil {
		return payroll.YTD{}, err
	}
	if emp.YTD.Year != 0 && delta.Year != 0 && emp.YTD.Year != delta.Year {
		return payroll.YTD{}, fmt.Errorf("%w: counters are %d, increment is %d", payroll.ErrYTDYearMismatch, emp.YTD.Year, delta.Year)
	}
	ytd := emp.YTD.Add(delta)
	if err := writeYTD(ctx, ts.tx, id, ytd, ts.now()); err != nil {
		return payroll.YTD{}, err
	}
	return ytd, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

const employeeColumns = `id, name, email, department, title, hire_date, annual_salary, hourly_rate,
	pay_frequency, filing_status, allowances, state_code, status,
	ytd_year, ytd_gross, ytd_federal_tax, ytd_ss_tax, ytd_medicare_tax, ytd_state_tax, ytd_deductions, ytd_ss_wages`

func (s *Store) GetEmployee(ctx context.Context, id payroll.EmployeeID) (payroll.Employee, error) {
	return getEmployee(ctx, s.db, id)
}

func getEmployee(ctx context.Context, q querier, id payroll.EmployeeID) (payroll.Employee, error) {
	row := q.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", id)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.Employee{}, fmt.Errorf("%w: %s", payroll.ErrEmployeeNotFound, id)
	}
	return emp, err
}

// ListEmployees returns employees ordered by id.
func (s *Store) ListEmployees(ctx context.Context, status *payroll.EmployeeStatus) ([]payroll.Employee, error) {
	query := "SELECT " + employeeColumns + " FROM employees"
	var args []any
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []payroll.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

// UpsertEmployee saves the profile and leaves YTD counters alone.
func (s *Store) UpsertEmployee(ctx context.Context, e payroll.Employee) error {
	if err := e.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO employees (id, name, email, department, title, hire_date, annual_salary, hourly_rate,
			pay_frequency, filing_status, allowances, state_code, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			department = excluded.department,
			title = excluded.title,
			hire_date = excluded.hire_date,
			annual_salary = excluded.annual_salary,
			hourly_rate = excluded.hourly_rate,
			pay_frequency = excluded.pay_frequency,
			filing_status = excluded.filing_status,
			allowances = excluded.allowances,
			state_code = excluded.state_code,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	now := s.now().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Name, nullString(e.Email), nullString(e.Department), nullString(e.Title),
		formatDate(e.HireDate), nullDecimal(e.AnnualSalary), nullDecimal(e.HourlyRate),
		string(e.PayFrequency), string(e.FilingStatus), e.Allowances, e.StateCode, string(e.Status),
		now, now,
	)
	return err
}

// DeleteEmployee removes an employee and their deductions.
func (s *Store) DeleteEmployee(ctx context.Context, id payroll.EmployeeID) error {
	var stubs int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM paystubs WHERE employee_id = ?", id).Scan(&stubs); err != nil {
		return err
	}
	if stubs > 0 {
		return fmt.Errorf("%w: %s", payroll.ErrEmployeeHasPaystubs, id)
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM employees WHERE id = ?", id)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return fmt.Errorf("%w: %s", payroll.ErrEmployeeHasPaystubs, id)
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", payroll.ErrEmployeeNotFound, id)
	}
	return nil
}

// RolloverYTD starts empty counters for year.
func (s *Store) RolloverYTD(ctx context.Context, id payroll.EmployeeID, year int) error {
	return s.WithTx(ctx, func(tx payroll.Tx) error {
		ts := tx.(*txStore)
		emp, err := getEmployee(ctx, ts.tx, id)
		if err != nil {
			return err
		}
		if emp.YTD.Year != 0 && year <= emp.YTD.Year {
			return payroll.NewValidationError(payroll.CodeYTDYear,
				fmt.Sprintf("cannot roll ytd from %d back to %d", emp.YTD.Year, year))
		}
		return writeYTD(ctx, ts.tx, id, payroll.NewYTD(year), ts.now())
	})
}

func writeYTD(ctx context.Context, q querier, id payroll.EmployeeID, y payroll.YTD, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		UPDATE employees SET
			ytd_year = ?, ytd_gross = ?, ytd_federal_tax = ?, ytd_ss_tax = ?, ytd_medicare_tax = ?,
			ytd_state_tax = ?, ytd_deductions = ?, ytd_ss_wages = ?, updated_at = ?
		WHERE id = ?`,
		y.Year, y.Gross.String(), y.FederalTax.String(), y.SSTax.String(), y.MedicareTax.String(),
		y.StateTax.String(), y.Deductions.String(), y.SSWages.String(), now.Format(time.RFC3339), id,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (payroll.Employee, error) {
	var (
		e                        payroll.Employee
		email, dept, title, hire sql.NullString
		salary, rate             sql.NullString
		freq, filing, status     string
		ytdGross, ytdFed, ytdSS  string
		ytdMed, ytdState, ytdDed string
		ytdWages                 string
	)
	err := row.Scan(&e.ID, &e.Name, &email, &dept, &title, &hire, &salary, &rate,
		&freq, &filing, &e.Allowances, &e.StateCode, &status,
		&e.YTD.Year, &ytdGross, &ytdFed, &ytdSS, &ytdMed, &ytdState, &ytdDed, &ytdWages)
	if err != nil {
		return payroll.Employee{}, err
	}

	e.Email, e.Department, e.Title = email.String, dept.String, title.String
	e.HireDate = parseDate(hire.String)
	e.PayFrequency = payroll.PayFrequency(freq)
	e.FilingStatus = payroll.FilingStatus(filing)
	e.Status = payroll.EmployeeStatus(status)

	p := &decimalParser{}
	e.AnnualSalary = p.optional(salary)
	e.HourlyRate = p.optional(rate)
	e.YTD.Gross = p.parse(ytdGross)
	e.YTD.FederalTax = p.parse(ytdFed)
	e.YTD.SSTax = p.parse(ytdSS)
	e.YTD.MedicareTax = p.parse(ytdMed)
	e.YTD.StateTax = p.parse(ytdState)
	e.YTD.Deductions = p.parse(ytdDed)
	e.YTD.SSWages = p.parse(ytdWages)
	if p.err != nil {
		return payroll.Employee{}, fmt.Errorf("employee %s: %w", e.ID, p.err)
	}
	return e, nil
}

// =============================================================================
// DEDUCTIONS
// =============================================================================

func (s *Store) SaveDeduction(ctx context.Context, d payroll.Deduction) error {
	if err := d.Validate(); err != nil {
		return err
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	query := `
		INSERT INTO deductions (id, employee_id, deduction_type, amount, is_percentage, description, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			deduction_type = excluded.deduction_type,
			amount = excluded.amount,
			is_percentage = excluded.is_percentage,
			description = excluded.description,
			active = excluded.active
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.EmployeeID, string(d.Type), d.Amount.String(), d.IsPercentage,
		nullString(d.Description), d.Active, createdAt.Format(time.RFC3339Nano),
	)
	if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
		return fmt.Errorf("%w: %s", payroll.ErrEmployeeNotFound, d.EmployeeID)
	}
	return err
}

func (s *Store) DeactivateDeduction(ctx context.Context, id payroll.DeductionID) error {
	res, err := s.db.ExecContext(ctx, "UPDATE deductions SET active = 0 WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", payroll.ErrDeductionNotFound, id)
	}
	return nil
}

func (s *Store) ListDeductions(ctx context.Context, employeeID payroll.EmployeeID, activeOnly bool) ([]payroll.Deduction, error) {
	return listDeductions(ctx, s.db, employeeID, activeOnly)
}

func listDeductions(ctx context.Context, q querier, employeeID payroll.EmployeeID, activeOnly bool) ([]payroll.Deduction, error) {
	query := `SELECT id, employee_id, deduction_type, amount, is_percentage, description, active, created_at
		FROM deductions WHERE employee_id = ?`
	if activeOnly {
		query += " AND active = 1"
	}
	query += " ORDER BY rowid"

	rows, err := q.QueryContext(ctx, query, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []payroll.Deduction
	for rows.Next() {
		var (
			d               payroll.Deduction
			typ, amount, at string
			desc            sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.EmployeeID, &typ, &amount, &d.IsPercentage, &desc, &d.Active, &at); err != nil {
			return nil, err
		}
		d.Type = payroll.DeductionType(typ)
		d.Description = desc.String
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, at)
		if d.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("deduction %s: %w", d.ID, err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func formatDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(payroll.DateLayout), Valid: true}
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(payroll.DateLayout, s)
	return t
}

// decimalParser keeps the first parse failure so column decoding reads
// linearly.
type decimalParser struct {
	err error
}

func (p *decimalParser) parse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return d
}

func (p *decimalParser) optional(s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	d := p.parse(s.String)
	return &d
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}
