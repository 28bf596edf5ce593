// Package storetest holds the behavioral contract every payroll.Store must
// satisfy. Store packages run it from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

// Factory returns a fresh, empty store. Cleanup belongs to the factory.
type Factory func(t *testing.T) payroll.Store

// Run executes the full contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("UpsertPreservesYTD", func(t *testing.T) { testUpsertPreservesYTD(t, newStore(t)) })
	t.Run("GetUnknownEmployee", func(t *testing.T) { testGetUnknownEmployee(t, newStore(t)) })
	t.Run("ListEmployeesByStatus", func(t *testing.T) { testListEmployeesByStatus(t, newStore(t)) })
	t.Run("Deductions", func(t *testing.T) { testDeductions(t, newStore(t)) })
	t.Run("DeductionRequiresEmployee", func(t *testing.T) { testDeductionRequiresEmployee(t, newStore(t)) })
	t.Run("AppendAndQueryPaystubs", func(t *testing.T) { testAppendAndQueryPaystubs(t, newStore(t)) })
	t.Run("PaystubRequiresEmployee", func(t *testing.T) { testPaystubRequiresEmployee(t, newStore(t)) })
	t.Run("DuplicatePaystubRejected", func(t *testing.T) { testDuplicatePaystubRejected(t, newStore(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollbackOnError(t, newStore(t)) })
	t.Run("CheckNumbersIncrease", func(t *testing.T) { testCheckNumbersIncrease(t, newStore(t)) })
	t.Run("DeleteEmployee", func(t *testing.T) { testDeleteEmployee(t, newStore(t)) })
	t.Run("RolloverYTD", func(t *testing.T) { testRolloverYTD(t, newStore(t)) })
	t.Run("ConcurrentIncrements", func(t *testing.T) { testConcurrentIncrements(t, newStore(t)) })
}

// =============================================================================
// FIXTURES
// =============================================================================

// Employee returns a valid salaried employee.
func Employee(id string) payroll.Employee {
	salary := decimal.NewFromInt(80000)
	return payroll.Employee{
		ID:           payroll.EmployeeID(id),
		Name:         "Employee " + id,
		Email:        id + "@example.com",
		Department:   "Engineering",
		Title:        "Engineer",
		HireDate:     time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC),
		AnnualSalary: &salary,
		PayFrequency: payroll.Biweekly,
		FilingStatus: payroll.Single,
		StateCode:    "CA",
		Status:       payroll.StatusActive,
	}
}

// Paystub returns a minimal stub paid on payDate.
func Paystub(id string, employeeID string, check int64, payDate time.Time) payroll.Paystub {
	gross := decimal.RequireFromString("3076.92")
	return payroll.Paystub{
		ID:           payroll.PaystubID(id),
		CheckNumber:  check,
		EmployeeID:   payroll.EmployeeID(employeeID),
		EmployeeName: "Employee " + employeeID,
		Period:       payroll.NewPayPeriod(payDate.AddDate(0, 0, -14), payDate.AddDate(0, 0, -1), payDate),
		RegularHours: decimal.Zero, OvertimeHours: decimal.Zero,
		Gross: gross, PreTaxDeductions: decimal.Zero, TaxableGross: gross,
		FederalTax: decimal.RequireFromString("321.08"), SSWages: gross,
		SSTax: decimal.RequireFromString("190.77"), MedicareTax: decimal.RequireFromString("44.62"),
		StateTax: decimal.RequireFromString("153.85"), PostTaxDeductions: decimal.Zero,
		NetPay:   decimal.RequireFromString("2366.60"),
		YTDGross: gross, YTDNet: decimal.RequireFromString("2366.60"),
		Lines: []payroll.PaystubLine{
			{Label: "Gross Pay", Amount: gross, YTD: gross},
			{Label: "Federal Income Tax", Amount: decimal.RequireFromString("321.08"), YTD: decimal.RequireFromString("321.08"), IsDeduction: true},
		},
		GeneratedAt: payDate,
	}
}

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func appendStub(t *testing.T, s payroll.Store, stub payroll.Paystub) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx payroll.Tx) error {
		return tx.AppendPaystub(context.Background(), stub)
	})
	require.NoError(t, err)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func testUpsertPreservesYTD(t *testing.T, s payroll.Store) {
	// GIVEN: An employee with accumulated YTD
	// WHEN: The profile is upserted with a zeroed YTD
	// THEN: Counters are untouched and profile changes apply
	ctx := context.Background()
	emp := Employee("e1")
	require.NoError(t, s.UpsertEmployee(ctx, emp))

	err := s.WithTx(ctx, func(tx payroll.Tx) error {
		_, err := tx.IncrementYTD(ctx, emp.ID, payroll.YTD{Year: 2024, Gross: decimal.NewFromInt(1000), SSWages: decimal.NewFromInt(1000)})
		return err
	})
	require.NoError(t, err)

	emp.Title = "Senior Engineer"
	emp.YTD = payroll.YTD{Year: 2030, Gross: decimal.NewFromInt(5)}
	require.NoError(t, s.UpsertEmployee(ctx, emp))

	got, err := s.GetEmployee(ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Senior Engineer", got.Title)
	assert.Equal(t, 2024, got.YTD.Year)
	assert.True(t, got.YTD.Gross.Equal(decimal.NewFromInt(1000)), "gross ytd: %s", got.YTD.Gross)
	assert.True(t, got.YTD.SSWages.Equal(decimal.NewFromInt(1000)))
	require.NotNil(t, got.AnnualSalary)
	assert.True(t, got.AnnualSalary.Equal(decimal.NewFromInt(80000)))
	assert.Nil(t, got.HourlyRate)
}

func testGetUnknownEmployee(t *testing.T, s payroll.Store) {
	_, err := s.GetEmployee(context.Background(), "missing")
	assert.ErrorIs(t, err, payroll.ErrEmployeeNotFound)
	assert.True(t, payroll.IsNotFound(err))
}

func testListEmployeesByStatus(t *testing.T, s payroll.Store) {
	ctx := context.Background()
	for _, id := range []string{"b", "a", "c"} {
		e := Employee(id)
		if id == "c" {
			e.Status = payroll.StatusTerminated
		}
		require.NoError(t, s.UpsertEmployee(ctx, e))
	}

	all, err := s.ListEmployees(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, payroll.EmployeeID("a"), all[0].ID)
	assert.Equal(t, payroll.EmployeeID("b"), all[1].ID)

	active := payroll.StatusActive
	onlyActive, err := s.ListEmployees(ctx, &active)
	require.NoError(t, err)
	assert.Len(t, onlyActive, 2)
}

// =============================================================================
// DEDUCTIONS
// =============================================================================

func testDeductions(t *testing.T, s payroll.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertEmployee(ctx, Employee("e1")))

	first := payroll.Deduction{ID: "d1", EmployeeID: "e1", Type: payroll.Deduction401k, Amount: decimal.NewFromInt(6), IsPercentage: true, Active: true, CreatedAt: date(2024, 1, 1)}
	second := payroll.Deduction{ID: "d2", EmployeeID: "e1", Type: payroll.DeductionRoth, Amount: decimal.NewFromInt(100), Description: "roth", Active: true, CreatedAt: date(2024, 1, 2)}
	require.NoError(t, s.SaveDeduction(ctx, first))
	require.NoError(t, s.SaveDeduction(ctx, second))

	require.NoError(t, s.DeactivateDeduction(ctx, "d1"))

	active, err := s.ListDeductions(ctx, "e1", true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, payroll.DeductionID("d2"), active[0].ID)
	assert.Equal(t, "roth", active[0].Description)

	all, err := s.ListDeductions(ctx, "e1", false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, payroll.DeductionID("d1"), all[0].ID)
	assert.False(t, all[0].Active)
	assert.True(t, all[0].IsPercentage)
	assert.True(t, all[0].Amount.Equal(decimal.NewFromInt(6)))

	err = s.DeactivateDeduction(ctx, "nope")
	assert.ErrorIs(t, err, payroll.ErrDeductionNotFound)
}

func testDeductionRequiresEmployee(t *testing.T, s payroll.Store) {
	err := s.SaveDeduction(context.Background(), payroll.Deduction{ID: "d1", EmployeeID: "ghost", Type: payroll.DeductionHSA, Amount: decimal.NewFromInt(50), Active: true})
	assert.ErrorIs(t, err, payroll.ErrEmployeeNotFound)
}

// =============================================================================
// PAYSTUBS
// =============================================================================

func testAppendAndQueryPaystubs(t *testing.T, s payroll.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertEmployee(ctx, Employee("e1")))

	appendStub(t, s, Paystub("p2", "e1", 2, date(2024, 2, 2)))
	appendStub(t, s, Paystub("p1", "e1", 1, date(2024, 1, 19)))
	appendStub(t, s, Paystub("p3", "e1", 3, date(2025, 1, 3)))

	all, err := s.ListPaystubs(ctx, "e1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, payroll.PaystubID("p1"), all[0].ID)
	assert.Equal(t, payroll.PaystubID("p3"), all[2].ID)

	in2024, err := s.ListPaystubs(ctx, "e1", 2024)
	require.NoError(t, err)
	assert.Len(t, in2024, 2)

	got, err := s.GetPaystub(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "CHK-000002", got.CheckRef())
	assert.True(t, got.NetPay.Equal(decimal.RequireFromString("2366.60")))
	assert.True(t, got.Period.PayDate.Equal(date(2024, 2, 2)))
	require.Len(t, got.Lines, 2)
	assert.True(t, got.Lines[1].IsDeduction)

	_, err = s.GetPaystub(ctx, "missing")
	assert.ErrorIs(t, err, payroll.ErrPaystubNotFound)
}

func testPaystubRequiresEmployee(t *testing.T, s payroll.Store) {
	err := s.WithTx(context.Background(), func(tx payroll.Tx) error {
		return tx.AppendPaystub(context.Background(), Paystub("p1", "ghost", 1, date(2024, 1, 5)))
	})
	assert.Error(t, err)
}

func testDuplicatePaystubRejected(t *testing.T, s payroll.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertEmployee(ctx, Employee("e1")))
	appendStub(t, s, Paystub("p1", "e1", 1, date(2024, 1, 5)))

	err := s.WithTx(ctx, func(tx payroll.Tx) error {
		return tx.AppendPaystub(ctx, Paystub("p1", "e1", 2, date(2024, 1, 19)))
	})
	assert.ErrorIs(t, err, payroll.ErrDuplicatePaystub)

	stubs, err := s.ListPaystubs(ctx, "e1", 0)
	require.NoError(t, err)
	assert.Len(t, stubs, 1)
}

func testRollbackOnError(t *testing.T, s payroll.Store) {
	// GIVEN: A transaction that appends a stub and bumps YTD
	// WHEN: The callback fails afterwards
	// THEN: Neither the stub nor the increment is visible
	ctx := context.Background()
	require.NoError(t, s.UpsertEmployee(ctx, Employee("e1")))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx payroll.Tx) error {
		if err := tx.AppendPaystub(ctx, Paystub("p1", "e1", 1, date(2024, 1, 5))); err != nil {
			return err
		}
		if _, err := tx.IncrementYTD(ctx, "e1", payroll.YTD{Year: 2024, Gross: decimal.NewFromInt(10)}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stubs, err := s.ListPaystubs(ctx, "e1", 0)
	require.NoError(t, err)
	assert.Empty(t, stubs)

	emp, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, emp.YTD.Gross.IsZero())
	assert.Equal(t, 0, emp.YTD.Year)
}

func testCheckNumbersIncrease(t *testing.T, s payroll.Store) {
	ctx := context.Background()
	var last int64
	for i := 0; i < 5; i++ {
		var n int64
		err := s.WithTx(ctx, func(tx payroll.Tx) error {
			var err error
			n, err = tx.NextCheckNumber(ctx)
			return err
		})
		require.NoError(t, err)
		assert.Greater(t, n, last)
		last = n
	}
}

func testDeleteEmployee(t *testing.T, s payroll.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertEmployee(ctx, Employee("paid")))
	require.NoError(t, s.UpsertEmployee(ctx, Employee("unpaid")))
	require.NoError(t, s.SaveDeduction(ctx, payroll.Deduction{ID: "d1", EmployeeID: "unpaid", Type: payroll.DeductionHSA, Amount: decimal.NewFromInt(50), Active: true}))
	appendStub(t, s, Paystub("p1", "paid", 1, date(2024, 1, 5)))

	err := s.DeleteEmployee(ctx, "paid")
	assert.ErrorIs(t, err, payroll.ErrEmployeeHasPaystubs)

	require.NoError(t, s.DeleteEmployee(ctx, "unpaid"))
	_, err = s.GetEmployee(ctx, "unpaid")
	assert.ErrorIs(t, err, payroll.ErrEmployeeNotFound)
	deds, err := s.ListDeductions(ctx, "unpaid", false)
	require.NoError(t, err)
	assert.Empty(t, deds)

	assert.ErrorIs(t, s.DeleteEmployee(ctx, "unpaid"), payroll.ErrEmployeeNotFound)
}

func testRolloverYTD(t *testing.T, s payroll.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertEmployee(ctx, Employee("e1")))
	err := s.WithTx(ctx, func(tx payroll.Tx) error {
		_, err := tx.IncrementYTD(ctx, "e1", payroll.YTD{Year: 2024, Gross: decimal.NewFromInt(500)})
		return err
	})
	require.NoError(t, err)

	err = s.RolloverYTD(ctx, "e1", 2023)
	assert.ErrorIs(t, err, payroll.ErrValidation)

	require.NoError(t, s.RolloverYTD(ctx, "e1", 2025))
	emp, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 2025, emp.YTD.Year)
	assert.True(t, emp.YTD.IsZero())
}

func testConcurrentIncrements(t *testing.T, s payroll.Store) {
	// GIVEN: Many writers incrementing the same employee
	// THEN: No increment is lost
	ctx := context.Background()
	require.NoError(t, s.UpsertEmployee(ctx, Employee("e1")))

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(tx payroll.Tx) error {
				_, err := tx.IncrementYTD(ctx, "e1", payroll.YTD{Year: 2024, Gross: decimal.RequireFromString("10.01")})
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	emp, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, emp.YTD.Gross.Equal(decimal.RequireFromString("200.20")), "got %s", emp.YTD.Gross)
}
