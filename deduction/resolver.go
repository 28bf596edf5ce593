// Package deduction resolves an employee's recurring deductions against one
// period's gross pay.
package deduction

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// Item is one deduction's resolved amount for the period, unrounded.
type Item struct {
	Deduction payroll.Deduction
	Amount    decimal.Decimal
}

type Resolution struct {
	PreTax  decimal.Decimal // rounded to cents
	PostTax decimal.Decimal // rounded to cents
	Items   []Item

	// PercentOfGross sums every active percentage deduction. Flat amounts
	// are not included.
	PercentOfGross decimal.Decimal
}

var hundredPercent = decimal.NewFromInt(100)

// OverAllocated reports percentage deductions adding up to more than the
// whole gross. The amounts are kept as configured; callers decide.
func (r Resolution) OverAllocated() bool {
	return r.PercentOfGross.GreaterThan(hundredPercent)
}

// Total is pre-tax plus post-tax.
func (r Resolution) Total() decimal.Decimal { return r.PreTax.Add(r.PostTax) }

// Resolve splits active deductions into pre- and post-tax totals. Summation
// order does not matter; each category total is rounded once.
func Resolve(deductions []payroll.Deduction, gross decimal.Decimal) (Resolution, error) {
	res := Resolution{PreTax: decimal.Zero, PostTax: decimal.Zero, PercentOfGross: decimal.Zero}
	pre, post := decimal.Zero, decimal.Zero

	for _, d := range deductions {
		if !d.Active {
			continue
		}
		if err := d.Validate(); err != nil {
			return Resolution{}, err
		}

		amount := d.Amount
		if d.IsPercentage {
			amount = payroll.Percent(d.Amount).Mul(gross)
			res.PercentOfGross = res.PercentOfGross.Add(d.Amount)
		}

		switch d.Type.Category() {
		case payroll.PreTax:
			pre = pre.Add(amount)
		case payroll.PostTax:
			post = post.Add(amount)
		}
		res.Items = append(res.Items, Item{Deduction: d, Amount: amount})
	}

	res.PreTax = payroll.RoundCents(pre)
	res.PostTax = payroll.RoundCents(post)
	return res, nil
}
