package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// Disbursement is what a committed paystub hands to the payment side.
// The engine itself never moves money.
type Disbursement struct {
	PaystubID   payroll.PaystubID
	CheckNumber int64
	EmployeeID  payroll.EmployeeID
	NetPay      decimal.Decimal
	PayDate     string // YYYY-MM-DD
}

// Disburser receives net pay after a paystub commits.
type Disburser interface {
	Disburse(ctx context.Context, d Disbursement) error
}

// DisburserFunc adapts a function to Disburser.
type DisburserFunc func(ctx context.Context, d Disbursement) error

func (f DisburserFunc) Disburse(ctx context.Context, d Disbursement) error { return f(ctx, d) }

// disburse never fails the caller: the stub is already committed.
func (l *Ledger) disburse(ctx context.Context, stub payroll.Paystub) {
	if l.disburser == nil {
		return
	}
	d := Disbursement{
		PaystubID:   stub.ID,
		CheckNumber: stub.CheckNumber,
		EmployeeID:  stub.EmployeeID,
		NetPay:      stub.NetPay,
		PayDate:     stub.Period.PayDate.Format(payroll.DateLayout),
	}
	if err := l.disburser.Disburse(context.WithoutCancel(ctx), d); err != nil {
		l.metrics.IncrementDisbursementFailure()
		l.logger.Error("disbursement failed",
			"paystub_id", stub.ID,
			"check", stub.CheckRef(),
			"employee_id", stub.EmployeeID,
			"error", err)
	}
}
