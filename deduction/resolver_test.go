package deduction_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/payroll"
)

func ded(id string, typ payroll.DeductionType, amount string, pct bool) payroll.Deduction {
	return payroll.Deduction{
		ID:           payroll.DeductionID(id),
		EmployeeID:   "e1",
		Type:         typ,
		Amount:       decimal.RequireFromString(amount),
		IsPercentage: pct,
		Active:       true,
	}
}

func TestResolve_SplitsByCategory(t *testing.T) {
	// GIVEN: 6% 401k, flat HSA, flat Roth
	// WHEN: Resolved against $3,076.92
	// THEN: 401k and HSA are pre-tax; Roth is post-tax
	res, err := deduction.Resolve([]payroll.Deduction{
		ded("k", payroll.Deduction401k, "6", true),
		ded("h", payroll.DeductionHSA, "100", false),
		ded("r", payroll.DeductionRoth, "150", false),
	}, decimal.RequireFromString("3076.92"))
	require.NoError(t, err)

	// 184.6152 + 100
	assert.Equal(t, "284.62", res.PreTax.StringFixed(2))
	assert.Equal(t, "150.00", res.PostTax.StringFixed(2))
	assert.Len(t, res.Items, 3)
	assert.True(t, res.PercentOfGross.Equal(decimal.NewFromInt(6)))
	assert.False(t, res.OverAllocated())
}

func TestResolve_SkipsInactive(t *testing.T) {
	inactive := ded("f", payroll.DeductionFSA, "50", false)
	inactive.Active = false

	res, err := deduction.Resolve([]payroll.Deduction{inactive}, decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.True(t, res.Total().IsZero())
	assert.Empty(t, res.Items)
}

func TestResolve_RoundsCategoryTotalOnce(t *testing.T) {
	// Three 0.5% deductions of $1.01: each is 0.00505, together 0.01515.
	// Rounding each first would give 0.03; rounding the total gives 0.02.
	gross := decimal.RequireFromString("1.01")
	res, err := deduction.Resolve([]payroll.Deduction{
		ded("a", payroll.Deduction401k, "0.5", true),
		ded("b", payroll.DeductionHSA, "0.5", true),
		ded("c", payroll.DeductionHealth, "0.5", true),
	}, gross)
	require.NoError(t, err)
	assert.Equal(t, "0.02", res.PreTax.StringFixed(2))
}

func TestResolve_OrderDoesNotMatter(t *testing.T) {
	gross := decimal.RequireFromString("2500.55")
	ds := []payroll.Deduction{
		ded("a", payroll.Deduction401k, "3.3", true),
		ded("b", payroll.DeductionGarnishment, "77.77", false),
		ded("c", payroll.DeductionHealth, "12.345", false),
		ded("d", payroll.DeductionOther, "1.5", true),
	}
	forward, err := deduction.Resolve(ds, gross)
	require.NoError(t, err)

	reversed := []payroll.Deduction{ds[3], ds[2], ds[1], ds[0]}
	backward, err := deduction.Resolve(reversed, gross)
	require.NoError(t, err)

	assert.True(t, forward.PreTax.Equal(backward.PreTax))
	assert.True(t, forward.PostTax.Equal(backward.PostTax))
}

func TestResolve_OverAllocatedIsFlaggedNotClamped(t *testing.T) {
	res, err := deduction.Resolve([]payroll.Deduction{
		ded("a", payroll.Deduction401k, "80", true),
		ded("b", payroll.DeductionRoth, "30", true),
	}, decimal.NewFromInt(1000))
	require.NoError(t, err)

	assert.True(t, res.OverAllocated())
	assert.Equal(t, "800.00", res.PreTax.StringFixed(2))
	assert.Equal(t, "300.00", res.PostTax.StringFixed(2))
}

func TestResolve_RejectsUnknownType(t *testing.T) {
	_, err := deduction.Resolve([]payroll.Deduction{ded("x", "bonus", "1", false)}, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, payroll.ErrValidation)
}
