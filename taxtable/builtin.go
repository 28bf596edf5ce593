package taxtable

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// Builtin returns the tables compiled into the binary.
func Builtin() []Table {
	return []Table{table2024()}
}

var rates2024 = []string{"0.10", "0.12", "0.22", "0.24", "0.32", "0.35", "0.37"}

func brackets(floors ...int64) []Bracket {
	out := make([]Bracket, len(floors))
	for i, f := range floors {
		out[i] = Bracket{Floor: decimal.NewFromInt(f), Rate: payroll.MustDecimal(rates2024[i])}
	}
	return out
}

func table2024() Table {
	return Table{
		Year:                    2024,
		SSRate:                  payroll.MustDecimal("0.062"),
		SSWageBase:              decimal.NewFromInt(168600),
		MedicareRate:            payroll.MustDecimal("0.0145"),
		MedicareSurtaxRate:      payroll.MustDecimal("0.009"),
		MedicareSurtaxThreshold: decimal.NewFromInt(200000),
		AllowanceAmount:         decimal.NewFromInt(4300),
		StandardDeduction: map[payroll.FilingStatus]decimal.Decimal{
			payroll.Single:          decimal.NewFromInt(14600),
			payroll.MarriedJoint:    decimal.NewFromInt(29200),
			payroll.HeadOfHousehold: decimal.NewFromInt(21900),
		},
		Brackets: map[payroll.FilingStatus][]Bracket{
			payroll.Single:          brackets(0, 11600, 47150, 100525, 191950, 243725, 609350),
			payroll.MarriedJoint:    brackets(0, 23200, 94300, 201050, 383900, 487450, 731200),
			payroll.HeadOfHousehold: brackets(0, 16550, 63100, 100500, 191950, 243700, 609350),
		},
		StateRates:       map[string]decimal.Decimal{},
		DefaultStateRate: payroll.MustDecimal("0.05"),
	}
}
