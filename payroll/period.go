package payroll

import (
	"fmt"
	"time"
)

// =============================================================================
// PAY PERIOD
// =============================================================================

// PayPeriod is the work window a paystub covers and the date it is paid.
// Tax-year selection is always by PayDate.
type PayPeriod struct {
	Start   time.Time
	End     time.Time
	PayDate time.Time
}

// NewPayPeriod builds a period from calendar dates at UTC midnight.
func NewPayPeriod(start, end, payDate time.Time) PayPeriod {
	return PayPeriod{Start: day(start), End: day(end), PayDate: day(payDate)}
}

// ParsePayPeriod parses YYYY-MM-DD dates.
func ParsePayPeriod(start, end, payDate string) (PayPeriod, error) {
	var out [3]time.Time
	for i, s := range []string{start, end, payDate} {
		t, err := time.Parse(DateLayout, s)
		if err != nil {
			return PayPeriod{}, NewValidationError(CodeInvalidPeriod, fmt.Sprintf("invalid date %q (use YYYY-MM-DD)", s))
		}
		out[i] = t
	}
	return NewPayPeriod(out[0], out[1], out[2]), nil
}

// Validate enforces Start <= End <= PayDate.
func (p PayPeriod) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() || p.PayDate.IsZero() {
		return NewValidationError(CodeInvalidPeriod, "period start, end and pay date are required")
	}
	if p.End.Before(p.Start) {
		return NewValidationError(CodeInvalidPeriod, fmt.Sprintf("period end %s is before start %s", p.End.Format(DateLayout), p.Start.Format(DateLayout)))
	}
	if p.PayDate.Before(p.End) {
		return NewValidationError(CodeInvalidPeriod, fmt.Sprintf("pay date %s is before period end %s", p.PayDate.Format(DateLayout), p.End.Format(DateLayout)))
	}
	return nil
}

// TaxYear is the year whose tables and YTD counters apply.
func (p PayPeriod) TaxYear() int { return p.PayDate.Year() }

func (p PayPeriod) String() string {
	return "[" + p.Start.Format(DateLayout) + ", " + p.End.Format(DateLayout) + "] paid " + p.PayDate.Format(DateLayout)
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

const DateLayout = "2006-01-02"

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func StartOfYear(year int) time.Time { return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC) }
func EndOfYear(year int) time.Time   { return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC) }
