package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/ledger"
	"github.com/warp/payroll-engine/metrics"
	"github.com/warp/payroll-engine/payroll"
)

func TestBulkRun_SkipsInactiveEmployee(t *testing.T) {
	// GIVEN: Three employees, the second one terminated
	// WHEN: A bulk run pays the period
	// THEN: Two stubs in input order and one recorded skip
	l, mem := newTestLedger(t)
	a := hire(t, mem, salaried("a", "80000"))
	b := salaried("b", "90000")
	b.Status = payroll.StatusTerminated
	hire(t, mem, b)
	c := hire(t, mem, salaried("c", "70000"))

	m := metrics.New(prometheus.NewRegistry())
	runner := ledger.NewBulkRunner(l, 4, nil, m)
	report, err := runner.Run(context.Background(), []payroll.Employee{a, b, c}, biweeklyPeriod(0), nil)
	require.NoError(t, err)

	require.Len(t, report.Paystubs, 2)
	assert.Equal(t, payroll.EmployeeID("a"), report.Paystubs[0].EmployeeID)
	assert.Equal(t, payroll.EmployeeID("c"), report.Paystubs[1].EmployeeID)
	require.Len(t, report.Skips, 1)
	assert.Equal(t, payroll.EmployeeID("b"), report.Skips[0].EmployeeID)
	assert.Equal(t, payroll.CodeInactiveEmployee, report.Skips[0].Code)
	assert.Empty(t, report.NotProcessed)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BulkOutcomes.WithLabelValues(metrics.OutcomeGenerated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BulkOutcomes.WithLabelValues(metrics.OutcomeValidation)))
}

func TestBulkRun_HoursByEmployee(t *testing.T) {
	l, mem := newTestLedger(t)
	withHours := hire(t, mem, hourly("h1", "20"))
	without := hire(t, mem, hourly("h2", "20"))

	runner := ledger.NewBulkRunner(l, 2, nil, nil)
	report, err := runner.Run(context.Background(), []payroll.Employee{withHours, without}, biweeklyPeriod(0),
		map[payroll.EmployeeID]payroll.Hours{"h1": {Worked: d("40"), Overtime: d("0")}})
	require.NoError(t, err)

	require.Len(t, report.Paystubs, 1)
	assertMoney(t, "800.00", report.Paystubs[0].Gross, "gross")
	require.Len(t, report.Skips, 1)
	assert.Equal(t, payroll.CodeHoursRequired, report.Skips[0].Code)
}

func TestBulkRun_InvariantViolationIsSkipped(t *testing.T) {
	l, mem := newTestLedger(t)
	ok := hire(t, mem, salaried("ok", "80000"))
	broke := hire(t, mem, salaried("broke", "80000"))
	addDeduction(t, mem, "g", broke, payroll.DeductionGarnishment, "9000", false)

	report, err := ledger.NewBulkRunner(l, 2, nil, nil).Run(context.Background(), []payroll.Employee{ok, broke}, biweeklyPeriod(0), nil)
	require.NoError(t, err)
	assert.Len(t, report.Paystubs, 1)
	require.Len(t, report.Skips, 1)
	assert.Equal(t, payroll.CodeNegativeNet, report.Skips[0].Code)
}

// fakeGenerator returns canned results and can hold callers until released.
type fakeGenerator struct {
	mu       sync.Mutex
	fail     map[payroll.EmployeeID]error
	started  chan payroll.EmployeeID
	release  chan struct{}
	ctxErrs  []error
	received []payroll.EmployeeID
}

func (f *fakeGenerator) GeneratePaystub(ctx context.Context, e payroll.Employee, p payroll.PayPeriod, _ *payroll.Hours) (payroll.Paystub, error) {
	if f.started != nil {
		f.started <- e.ID
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.received = append(f.received, e.ID)
	f.mu.Unlock()
	if err := f.fail[e.ID]; err != nil {
		return payroll.Paystub{}, err
	}
	return payroll.Paystub{EmployeeID: e.ID, Period: p}, nil
}

func TestBulkRun_StoreErrorAborts(t *testing.T) {
	// GIVEN: A persistence failure for one employee
	// THEN: The run returns the error instead of skipping
	diskFull := errors.New("disk full")
	gen := &fakeGenerator{fail: map[payroll.EmployeeID]error{"b": diskFull}}

	report, err := ledger.NewBulkRunner(gen, 1, nil, nil).Run(context.Background(),
		[]payroll.Employee{salaried("a", "1"), salaried("b", "1"), salaried("c", "1")}, biweeklyPeriod(0), nil)

	assert.ErrorIs(t, err, diskFull)
	assert.ErrorContains(t, err, "employee b")

	// AND: The partial report names the employee that stopped the run
	require.Len(t, report.Paystubs, 1)
	assert.Empty(t, report.Skips)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, payroll.EmployeeID("b"), report.Failed[0].EmployeeID)
	assert.Contains(t, report.Failed[0].Reason, "disk full")
	assert.Equal(t, []payroll.EmployeeID{"c"}, report.NotProcessed)
}

func TestBulkRun_MissingEmployeeIsSkipped(t *testing.T) {
	// GIVEN: A run list naming an employee that is no longer stored
	// WHEN: The run pays the list one at a time
	// THEN: The missing employee is skipped and the rest are paid
	l, mem := newTestLedger(t)
	a := hire(t, mem, salaried("a", "80000"))
	ghost := salaried("ghost", "80000")
	c := hire(t, mem, salaried("c", "70000"))

	m := metrics.New(prometheus.NewRegistry())
	report, err := ledger.NewBulkRunner(l, 1, nil, m).Run(context.Background(),
		[]payroll.Employee{a, ghost, c}, biweeklyPeriod(0), nil)
	require.NoError(t, err)

	require.Len(t, report.Paystubs, 2)
	assert.Equal(t, payroll.EmployeeID("a"), report.Paystubs[0].EmployeeID)
	assert.Equal(t, payroll.EmployeeID("c"), report.Paystubs[1].EmployeeID)
	require.Len(t, report.Skips, 1)
	assert.Equal(t, payroll.EmployeeID("ghost"), report.Skips[0].EmployeeID)
	assert.Equal(t, payroll.CodeUnknownEmployee, report.Skips[0].Code)
	assert.Empty(t, report.Failed)
	assert.Empty(t, report.NotProcessed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BulkOutcomes.WithLabelValues(metrics.OutcomeNotFound)))
}

func TestBulkRun_CancellationFinishesInFlight(t *testing.T) {
	// GIVEN: One worker busy with the first employee
	// WHEN: The run is cancelled
	// THEN: The in-flight employee finishes with a live context,
	//       the rest are not processed, and the cancellation is returned
	gen := &fakeGenerator{started: make(chan payroll.EmployeeID, 3), release: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	employees := []payroll.Employee{salaried("a", "1"), salaried("b", "1"), salaried("c", "1")}
	type result struct {
		report ledger.BulkReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		r, err := ledger.NewBulkRunner(gen, 1, nil, nil).Run(ctx, employees, biweeklyPeriod(0), nil)
		done <- result{r, err}
	}()

	assert.Equal(t, payroll.EmployeeID("a"), <-gen.started)
	cancel()
	close(gen.release)
	res := <-done

	assert.ErrorIs(t, res.err, context.Canceled)
	require.Len(t, res.report.Paystubs, 1)
	assert.Equal(t, payroll.EmployeeID("a"), res.report.Paystubs[0].EmployeeID)
	assert.Equal(t, []payroll.EmployeeID{"b", "c"}, res.report.NotProcessed)
	assert.Equal(t, []error{nil}, gen.ctxErrs)
}

func TestBulkRun_EmptyInput(t *testing.T) {
	report, err := ledger.NewBulkRunner(&fakeGenerator{}, 0, nil, nil).Run(context.Background(), nil, biweeklyPeriod(0), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Paystubs)
	assert.Empty(t, report.Skips)
	assert.Empty(t, report.NotProcessed)
}
