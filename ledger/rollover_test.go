package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/ledger"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
	"github.com/warp/payroll-engine/taxtable"
)

func TestRolloverScheduler_RollsPastYears(t *testing.T) {
	// GIVEN: One employee paid in 2024 and one never paid
	// WHEN: A pass runs on January 2, 2025
	// THEN: Only the paid employee gets fresh 2025 counters; a second pass is a no-op
	l, mem := newTestLedger(t)
	ctx := context.Background()
	paid := hire(t, mem, salaried("paid", "80000"))
	hire(t, mem, salaried("new", "80000"))
	_, err := l.GeneratePaystub(ctx, paid, biweeklyPeriod(0), nil)
	require.NoError(t, err)

	rs := ledger.NewRolloverScheduler(mem, time.Hour, nil).
		WithClock(func() time.Time { return time.Date(2025, time.January, 2, 9, 0, 0, 0, time.UTC) })

	res, err := rs.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.RolloverResult{Year: 2025, Rolled: 1, Current: 1}, res)

	emp, err := mem.GetEmployee(ctx, "paid")
	require.NoError(t, err)
	assert.Equal(t, 2025, emp.YTD.Year)
	assert.True(t, emp.YTD.IsZero())

	stubs, err := mem.ListPaystubs(ctx, "paid", 2024)
	require.NoError(t, err)
	assert.Len(t, stubs, 1, "history is untouched")

	res, err = rs.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rolled)
}

func TestRolloverScheduler_NextYearPaystubAfterRollover(t *testing.T) {
	tables := taxtable.Default()
	next, err := tables.ForYear(2024)
	require.NoError(t, err)
	next.Year = 2025
	require.NoError(t, tables.Register(next))

	mem := store.NewMemory()
	l := ledger.New(mem, tables)
	ctx := context.Background()
	emp := hire(t, mem, salaried("e1", "80000"))
	_, err = l.GeneratePaystub(ctx, emp, biweeklyPeriod(0), nil)
	require.NoError(t, err)

	_, err = ledger.NewRolloverScheduler(mem, time.Hour, nil).
		WithClock(func() time.Time { return time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC) }).
		RunNow(ctx)
	require.NoError(t, err)

	pay := time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC)
	stub, err := l.GeneratePaystub(ctx, emp, payroll.NewPayPeriod(pay.AddDate(0, 0, -18), pay.AddDate(0, 0, -5), pay), nil)
	require.NoError(t, err)
	assertMoney(t, "3076.92", stub.YTDGross, "ytd restarts")
}

func TestRolloverScheduler_StartStop(t *testing.T) {
	mem := store.NewMemory()
	rs := ledger.NewRolloverScheduler(mem, 10*time.Millisecond, nil)
	rs.Start()
	rs.Start()
	time.Sleep(25 * time.Millisecond)
	rs.Stop()
	rs.Stop()
}
