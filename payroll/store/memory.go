// Package store provides an in-memory payroll.Store.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	employees  map[payroll.EmployeeID]payroll.Employee
	deductions map[payroll.DeductionID]payroll.Deduction
	dedOrder   []payroll.DeductionID
	paystubs   map[payroll.EmployeeID][]payroll.Paystub
	byID       map[payroll.PaystubID]payroll.EmployeeID
	checkSeq   int64
}

var _ payroll.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		employees:  make(map[payroll.EmployeeID]payroll.Employee),
		deductions: make(map[payroll.DeductionID]payroll.Deduction),
		paystubs:   make(map[payroll.EmployeeID][]payroll.Paystub),
		byID:       make(map[payroll.PaystubID]payroll.EmployeeID),
	}
}

// -----------------------------------------------------------------------------
// Employees
// -----------------------------------------------------------------------------

func (m *Memory) GetEmployee(_ context.Context, id payroll.EmployeeID) (payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEmployeeLocked(id)
}

func (m *Memory) getEmployeeLocked(id payroll.EmployeeID) (payroll.Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return payroll.Employee{}, fmt.Errorf("%w: %s", payroll.ErrEmployeeNotFound, id)
	}
	return e, nil
}

func (m *Memory) ListEmployees(_ context.Context, status *payroll.EmployeeStatus) ([]payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]payroll.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		if status != nil && e.Status != *status {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) UpsertEmployee(_ context.Context, e payroll.Employee) error {
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.employees[e.ID]; ok {
		e.YTD = existing.YTD
	} else {
		e.YTD = payroll.NewYTD(0)
	}
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) DeleteEmployee(_ context.Context, id payroll.EmployeeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.employees[id]; !ok {
		return fmt.Errorf("%w: %s", payroll.ErrEmployeeNotFound, id)
	}
	if len(m.paystubs[id]) > 0 {
		return fmt.Errorf("%w: %s", payroll.ErrEmployeeHasPaystubs, id)
	}
	delete(m.employees, id)

	kept := m.dedOrder[:0]
	for _, did := range m.dedOrder {
		if m.deductions[did].EmployeeID == id {
			delete(m.deductions, did)
			continue
		}
		kept = append(kept, did)
	}
	m.dedOrder = kept
	return nil
}

func (m *Memory) RolloverYTD(_ context.Context, id payroll.EmployeeID, year int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.getEmployeeLocked(id)
	if err != nil {
		return err
	}
	if e.YTD.Year != 0 && year <= e.YTD.Year {
		return payroll.NewValidationError(payroll.CodeYTDYear,
			fmt.Sprintf("cannot roll ytd from %d back to %d", e.YTD.Year, year))
	}
	e.YTD = payroll.NewYTD(year)
	m.employees[id] = e
	return nil
}

// -----------------------------------------------------------------------------
// Deductions
// -----------------------------------------------------------------------------

func (m *Memory) SaveDeduction(_ context.Context, d payroll.Deduction) error {
	if err := d.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.employees[d.EmployeeID]; !ok {
		return fmt.Errorf("%w: %s", payroll.ErrEmployeeNotFound, d.EmployeeID)
	}
	if _, ok := m.deductions[d.ID]; !ok {
		m.dedOrder = append(m.dedOrder, d.ID)
	}
	m.deductions[d.ID] = d
	return nil
}

func (m *Memory) DeactivateDeduction(_ context.Context, id payroll.DeductionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deductions[id]
	if !ok {
		return fmt.Errorf("%w: %s", payroll.ErrDeductionNotFound, id)
	}
	d.Active = false
	m.deductions[id] = d
	return nil
}

func (m *Memory) ListDeductions(_ context.Context, employeeID payroll.EmployeeID, activeOnly bool) ([]payroll.Deduction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listDeductionsLocked(employeeID, activeOnly), nil
}

func (m *Memory) listDeductionsLocked(employeeID payroll.EmployeeID, activeOnly bool) []payroll.Deduction {
	var result []payroll.Deduction
	for _, did := range m.dedOrder {
		d := m.deductions[did]
		if d.EmployeeID != employeeID || (activeOnly && !d.Active) {
			continue
		}
		result = append(result, d)
	}
	return result
}

// -----------------------------------------------------------------------------
// Paystubs
// -----------------------------------------------------------------------------

func (m *Memory) GetPaystub(_ context.Context, id payroll.PaystubID) (payroll.Paystub, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	eid, ok := m.byID[id]
	if ok {
		for _, p := range m.paystubs[eid] {
			if p.ID == id {
				return clonePaystub(p), nil
			}
		}
	}
	return payroll.Paystub{}, fmt.Errorf("%w: %s", payroll.ErrPaystubNotFound, id)
}

func (m *Memory) ListPaystubs(_ context.Context, employeeID payroll.EmployeeID, year int) ([]payroll.Paystub, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPaystubsLocked(employeeID, year), nil
}

func (m *Memory) listPaystubsLocked(employeeID payroll.EmployeeID, year int) []payroll.Paystub {
	var result []payroll.Paystub
	for _, p := range m.paystubs[employeeID] {
		if year != 0 && p.Period.TaxYear() != year {
			continue
		}
		result = append(result, clonePaystub(p))
	}
	return result
}

func (m *Memory) appendPaystubLocked(stub payroll.Paystub) error {
	if _, ok := m.employees[stub.EmployeeID]; !ok {
		return fmt.Errorf("%w: %s", payroll.ErrEmployeeNotFound, stub.EmployeeID)
	}
	if _, dup := m.byID[stub.ID]; dup {
		return fmt.Errorf("%w: id %s", payroll.ErrDuplicatePaystub, stub.ID)
	}
	for _, stubs := range m.paystubs {
		for _, p := range stubs {
			if p.CheckNumber == stub.CheckNumber {
				return fmt.Errorf("%w: check %s", payroll.ErrDuplicatePaystub, stub.CheckRef())
			}
		}
	}

	stubs := m.paystubs[stub.EmployeeID]
	// Keep (pay date, check number) order with a binary search for the slot.
	i := sort.Search(len(stubs), func(i int) bool {
		a := stubs[i]
		if !a.Period.PayDate.Equal(stub.Period.PayDate) {
			return a.Period.PayDate.After(stub.Period.PayDate)
		}
		return a.CheckNumber > stub.CheckNumber
	})
	stubs = append(stubs, payroll.Paystub{})
	copy(stubs[i+1:], stubs[i:])
	stubs[i] = clonePaystub(stub)
	m.paystubs[stub.EmployeeID] = stubs
	m.byID[stub.ID] = stub.EmployeeID
	return nil
}

func (m *Memory) incrementYTDLocked(id payroll.EmployeeID, delta payroll.YTD) (payroll.YTD, error) {
	e, err := m.getEmployeeLocked(id)
	if err != nil {
		return payroll.YTD{}, err
	}
	if e.YTD.Year != 0 && delta.Year != 0 && e.YTD.Year != delta.Year {
		return payroll.YTD{}, fmt.Errorf("%w: counters are %d, increment is %d", payroll.ErrYTDYearMismatch, e.YTD.Year, delta.Year)
	}
	e.YTD = e.YTD.Add(delta)
	m.employees[id] = e
	return e.YTD, nil
}

func clonePaystub(p payroll.Paystub) payroll.Paystub {
	p.Lines = append([]payroll.PaystubLine(nil), p.Lines...)
	return p
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The write lock is held for the whole call, so transactions serialize.
func (m *Memory) WithTx(ctx context.Context, fn func(payroll.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	if err := ctx.Err(); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	employees map[payroll.EmployeeID]payroll.Employee
	paystubs  map[payroll.EmployeeID][]payroll.Paystub
	byID      map[payroll.PaystubID]payroll.EmployeeID
	checkSeq  int64
}

// Deductions are not writable inside a Tx, so they are not captured.
func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		employees: make(map[payroll.EmployeeID]payroll.Employee, len(m.employees)),
		paystubs:  make(map[payroll.EmployeeID][]payroll.Paystub, len(m.paystubs)),
		byID:      make(map[payroll.PaystubID]payroll.EmployeeID, len(m.byID)),
		checkSeq:  m.checkSeq,
	}
	for k, v := range m.employees {
		s.employees[k] = v
	}
	for k, v := range m.paystubs {
		s.paystubs[k] = append([]payroll.Paystub(nil), v...)
	}
	for k, v := range m.byID {
		s.byID[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.employees = s.employees
	m.paystubs = s.paystubs
	m.byID = s.byID
	m.checkSeq = s.checkSeq
}

// txView operates on the parent's maps directly; the parent's write lock is
// already held by WithTx.
type txView struct {
	parent *Memory
}

func (tv *txView) GetEmployee(_ context.Context, id payroll.EmployeeID) (payroll.Employee, error) {
	return tv.parent.getEmployeeLocked(id)
}

func (tv *txView) ListDeductions(_ context.Context, employeeID payroll.EmployeeID, activeOnly bool) ([]payroll.Deduction, error) {
	return tv.parent.listDeductionsLocked(employeeID, activeOnly), nil
}

func (tv *txView) ListPaystubs(_ context.Context, employeeID payroll.EmployeeID, year int) ([]payroll.Paystub, error) {
	return tv.parent.listPaystubsLocked(employeeID, year), nil
}

func (tv *txView) NextCheckNumber(_ context.Context) (int64, error) {
	tv.parent.checkSeq++
	return tv.parent.checkSeq, nil
}

func (tv *txView) AppendPaystub(_ context.Context, stub payroll.Paystub) error {
	return tv.parent.appendPaystubLocked(stub)
}

func (tv *txView) IncrementYTD(_ context.Context, id payroll.EmployeeID, delta payroll.YTD) (payroll.YTD, error) {
	return tv.parent.incrementYTDLocked(id, delta)
}
