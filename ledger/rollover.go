package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/payroll-engine/payroll"
)

// RolloverScheduler periodically starts new YTD counters for employees
// whose counters belong to a past year. It is the scheduled form of
// Store.RolloverYTD; nothing else ever resets counters.
//
// USAGE:
//
//	rs := ledger.NewRolloverScheduler(store, time.Hour, logger)
//	rs.Start()
//	defer rs.Stop()
type RolloverScheduler struct {
	store    payroll.Store
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// RolloverResult counts one pass.
type RolloverResult struct {
	Year    int
	Rolled  int
	Current int
	Failed  int
}

// NewRolloverScheduler checks every interval. A nil logger means
// slog.Default().
//
// The target year comes from the scheduler's clock, not from pay dates. Once
// counters roll in January, a late paystub for a December pay date is
// rejected with ytd_year_mismatch; run such periods before the first tick of
// the new year or leave the scheduler off and roll over explicitly.
func NewRolloverScheduler(store payroll.Store, interval time.Duration, logger *slog.Logger) *RolloverScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RolloverScheduler{
		store:    store,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the scheduler's clock.
func (rs *RolloverScheduler) WithClock(now func() time.Time) *RolloverScheduler {
	rs.now = now
	return rs
}

// Start runs one pass immediately, then one per interval, until Stop.
// Calling Start on a running scheduler does nothing.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.ticker != nil || rs.interval <= 0 {
		return
	}

	rs.ticker = time.NewTicker(rs.interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run(rs.ticker, rs.stop)

	rs.logger.Info("ytd rollover scheduler started", "interval", rs.interval)
}

// Stop halts the scheduler and waits for an in-flight pass.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker = nil
	rs.logger.Info("ytd rollover scheduler stopped")
}

func (rs *RolloverScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	rs.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			rs.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow rolls every employee whose counters predate the current year.
// Failures are logged per employee and do not stop the pass.
func (rs *RolloverScheduler) RunNow(ctx context.Context) (RolloverResult, error) {
	result := RolloverResult{Year: rs.now().Year()}

	employees, err := rs.store.ListEmployees(ctx, nil)
	if err != nil {
		rs.logger.Error("ytd rollover: list employees", "error", err)
		return result, err
	}

	for _, emp := range employees {
		if emp.YTD.Year == 0 || emp.YTD.Year >= result.Year {
			result.Current++
			continue
		}
		if err := rs.store.RolloverYTD(ctx, emp.ID, result.Year); err != nil {
			rs.logger.Error("ytd rollover failed", "employee_id", emp.ID, "from", emp.YTD.Year, "to", result.Year, "error", err)
			result.Failed++
			continue
		}
		result.Rolled++
	}

	if result.Rolled > 0 || result.Failed > 0 {
		rs.logger.Info("ytd rollover pass complete",
			"year", result.Year, "rolled", result.Rolled, "failed", result.Failed)
	}
	return result, nil
}
