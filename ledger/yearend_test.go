package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/ledger"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/taxtable"
)

func TestSummarize_HighEarnerBoxes(t *testing.T) {
	// GIVEN: A $400,000 earner paid all 26 periods of 2024
	// WHEN: The year is summarized
	// THEN: Box 3 is capped at the wage base and equals the stubs' SS wages;
	//       Box 4 is exactly the maximum SS tax
	l, mem := newTestLedger(t)
	ctx := context.Background()
	emp := hire(t, mem, salaried("e1", "400000"))

	ssWages := decimal.Zero
	for i := 0; i < 26; i++ {
		stub, err := l.GeneratePaystub(ctx, emp, biweeklyPeriod(i), nil)
		require.NoError(t, err, "period %d", i)
		ssWages = ssWages.Add(stub.SSWages)
	}

	s, err := ledger.NewAggregator(mem, taxtable.Default(), nil).Summarize(ctx, emp.ID, 2024)
	require.NoError(t, err)

	assert.Equal(t, 26, s.PaystubCount)
	assertMoney(t, "400000.12", s.Box5, "box 5")
	assertMoney(t, "400000.12", s.Box1, "box 1")
	assertMoney(t, "168600.00", s.Box3, "box 3")
	assert.True(t, s.Box3.Equal(ssWages), "box 3 %s vs stub ss wages %s", s.Box3, ssWages)
	assertMoney(t, "10453.20", s.Box4, "box 4")
	assert.True(t, s.Box2.Equal(s.FederalTax))
	assert.True(t, s.Box6.Equal(s.MedicareTax))
	assert.Equal(t, "Salaried e1", s.EmployeeName)

	stored, err := mem.GetEmployee(ctx, emp.ID)
	require.NoError(t, err)
	assert.True(t, stored.YTD.SSTax.Equal(s.Box4))
	assert.True(t, stored.YTD.Gross.Equal(s.Gross))
}

func TestSummarize_PreTaxExcludedFromBox1(t *testing.T) {
	l, mem := newTestLedger(t)
	ctx := context.Background()
	emp := hire(t, mem, salaried("e1", "80000"))
	addDeduction(t, mem, "hsa", emp, payroll.DeductionHSA, "100", false)
	addDeduction(t, mem, "roth", emp, payroll.DeductionRoth, "50", false)

	for i := 0; i < 3; i++ {
		_, err := l.GeneratePaystub(ctx, emp, biweeklyPeriod(i), nil)
		require.NoError(t, err)
	}

	s, err := ledger.NewAggregator(mem, taxtable.Default(), nil).Summarize(ctx, emp.ID, 2024)
	require.NoError(t, err)
	assertMoney(t, "9230.76", s.Gross, "gross")
	assertMoney(t, "300.00", s.PreTaxDeductions, "pre-tax")
	assertMoney(t, "150.00", s.PostTaxDeductions, "post-tax")
	assertMoney(t, "8930.76", s.Box1, "box 1")
	assertMoney(t, "8930.76", s.Box3, "box 3")
}

func TestSummarize_Idempotent(t *testing.T) {
	l, mem := newTestLedger(t)
	ctx := context.Background()
	emp := hire(t, mem, salaried("e1", "80000"))
	for i := 0; i < 4; i++ {
		_, err := l.GeneratePaystub(ctx, emp, biweeklyPeriod(i), nil)
		require.NoError(t, err)
	}
	agg := ledger.NewAggregator(mem, taxtable.Default(), nil)

	first, err := agg.Summarize(ctx, emp.ID, 2024)
	require.NoError(t, err)
	second, err := agg.Summarize(ctx, emp.ID, 2024)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSummarize_OtherYearIsEmpty(t *testing.T) {
	l, mem := newTestLedger(t)
	ctx := context.Background()
	emp := hire(t, mem, salaried("e1", "80000"))
	_, err := l.GeneratePaystub(ctx, emp, biweeklyPeriod(0), nil)
	require.NoError(t, err)

	tables := taxtable.Default()
	prev, err := tables.ForYear(2024)
	require.NoError(t, err)
	prev.Year = 2023
	require.NoError(t, tables.Register(prev))

	s, err := ledger.NewAggregator(mem, tables, nil).Summarize(ctx, emp.ID, 2023)
	require.NoError(t, err)
	assert.Equal(t, 0, s.PaystubCount)
	assert.True(t, s.Box1.IsZero())
}

func TestSummarize_Errors(t *testing.T) {
	_, mem := newTestLedger(t)
	ctx := context.Background()
	agg := ledger.NewAggregator(mem, taxtable.Default(), nil)

	_, err := agg.Summarize(ctx, "ghost", 2024)
	assert.ErrorIs(t, err, payroll.ErrEmployeeNotFound)

	emp := hire(t, mem, salaried("e1", "80000"))
	_, err = agg.Summarize(ctx, emp.ID, 1999)
	assert.ErrorIs(t, err, taxtable.ErrTableNotFound)
}

func TestSummarizeAll_OnlyPaidEmployees(t *testing.T) {
	l, mem := newTestLedger(t)
	ctx := context.Background()
	paid := hire(t, mem, salaried("b", "80000"))
	hire(t, mem, salaried("a", "80000"))
	_, err := l.GeneratePaystub(ctx, paid, biweeklyPeriod(0), nil)
	require.NoError(t, err)

	all, err := ledger.NewAggregator(mem, taxtable.Default(), nil).SummarizeAll(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, payroll.EmployeeID("b"), all[0].EmployeeID)
}
