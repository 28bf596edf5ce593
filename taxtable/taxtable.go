/*
Package taxtable holds the statutory numbers payroll withholding depends on,
versioned by tax year.

PURPOSE:
  Brackets, standard deductions, FICA rates and wage base, the Medicare
  surtax threshold and state flat rates all change yearly. A Table carries
  one year's values; a Registry resolves the table for a pay date's year.

LOOKUP RULE:
  ForYear returns the table for exactly that year. A missing year is an
  error (ErrTableNotFound), never a silent fallback to a neighboring year.

SOURCES:
  - builtin.go: the 2024 table compiled into the binary
  - yaml.go: additional years loaded from a YAML file
*/
package taxtable

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

var ErrTableNotFound = errors.New("tax table not found")

// =============================================================================
// TABLE
// =============================================================================

// Bracket taxes income above Floor at Rate, up to the next bracket's floor.
type Bracket struct {
	Floor decimal.Decimal
	Rate  decimal.Decimal
}

type Table struct {
	Year int

	SSRate     decimal.Decimal
	SSWageBase decimal.Decimal

	MedicareRate            decimal.Decimal
	MedicareSurtaxRate      decimal.Decimal
	MedicareSurtaxThreshold decimal.Decimal

	// AllowanceAmount is subtracted from annualized wages per W-4 allowance.
	AllowanceAmount decimal.Decimal

	StandardDeduction map[payroll.FilingStatus]decimal.Decimal
	Brackets          map[payroll.FilingStatus][]Bracket

	// StateRates overrides DefaultStateRate by upper-case state code.
	StateRates       map[string]decimal.Decimal
	DefaultStateRate decimal.Decimal
}

// Validate checks every filing status is covered and brackets ascend from 0.
func (t Table) Validate() error {
	if t.Year <= 0 {
		return fmt.Errorf("tax table: invalid year %d", t.Year)
	}
	if !t.SSWageBase.IsPositive() {
		return fmt.Errorf("tax table %d: social security wage base must be positive", t.Year)
	}
	for _, r := range []decimal.Decimal{t.SSRate, t.MedicareRate, t.MedicareSurtaxRate, t.DefaultStateRate} {
		if r.IsNegative() {
			return fmt.Errorf("tax table %d: negative rate %s", t.Year, r)
		}
	}
	for _, fs := range payroll.FilingStatuses() {
		if _, ok := t.StandardDeduction[fs]; !ok {
			return fmt.Errorf("tax table %d: missing standard deduction for %s", t.Year, fs)
		}
		brackets := t.Brackets[fs]
		if len(brackets) == 0 {
			return fmt.Errorf("tax table %d: missing brackets for %s", t.Year, fs)
		}
		if !brackets[0].Floor.IsZero() {
			return fmt.Errorf("tax table %d: first %s bracket must start at 0", t.Year, fs)
		}
		for i := 1; i < len(brackets); i++ {
			if !brackets[i].Floor.GreaterThan(brackets[i-1].Floor) {
				return fmt.Errorf("tax table %d: %s brackets not ascending at %s", t.Year, fs, brackets[i].Floor)
			}
		}
	}
	return nil
}

// IncomeTax applies the progressive brackets for fs to an annual adjusted
// income. The result is unrounded.
func (t Table) IncomeTax(fs payroll.FilingStatus, adjusted decimal.Decimal) (decimal.Decimal, error) {
	brackets, ok := t.Brackets[fs]
	if !ok {
		return decimal.Zero, payroll.NewValidationError(payroll.CodeInvalidField,
			fmt.Sprintf("no %d brackets for filing status %q", t.Year, fs))
	}
	tax := decimal.Zero
	for i, b := range brackets {
		if !adjusted.GreaterThan(b.Floor) {
			break
		}
		upper := adjusted
		if i+1 < len(brackets) && brackets[i+1].Floor.LessThan(adjusted) {
			upper = brackets[i+1].Floor
		}
		tax = tax.Add(upper.Sub(b.Floor).Mul(b.Rate))
	}
	return tax, nil
}

func (t Table) StandardDeductionFor(fs payroll.FilingStatus) (decimal.Decimal, error) {
	d, ok := t.StandardDeduction[fs]
	if !ok {
		return decimal.Zero, payroll.NewValidationError(payroll.CodeInvalidField,
			fmt.Sprintf("no %d standard deduction for filing status %q", t.Year, fs))
	}
	return d, nil
}

// StateRate returns the flat rate for a state code, falling back to the
// table default.
func (t Table) StateRate(code string) decimal.Decimal {
	if r, ok := t.StateRates[strings.ToUpper(code)]; ok {
		return r
	}
	return t.DefaultStateRate
}

// SSMaxTax is the most social security tax one employee can owe in the year.
func (t Table) SSMaxTax() decimal.Decimal {
	return payroll.RoundCents(t.SSRate.Mul(t.SSWageBase))
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tables map[int]Table
}

// NewRegistry returns a registry holding tables. Later tables replace
// earlier ones for the same year.
func NewRegistry(tables ...Table) (*Registry, error) {
	r := &Registry{tables: make(map[int]Table)}
	for _, t := range tables {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Default returns a registry with the built-in tables.
func Default() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Register(t Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[t.Year] = t
	return nil
}

func (r *Registry) ForYear(year int) (Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[year]
	if !ok {
		return Table{}, fmt.Errorf("%w: %d", ErrTableNotFound, year)
	}
	return t, nil
}

// Years lists registered years in ascending order.
func (r *Registry) Years() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	years := make([]int, 0, len(r.tables))
	for y := range r.tables {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
