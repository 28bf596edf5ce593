/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment configuration, then apply command-line flags
  2. Build the logger
  3. Initialize SQLite store
  4. Load tax tables (built-in years plus an optional YAML file)
  5. Wire metrics, ledger, bulk runner, year-end aggregator
  6. Start the optional YTD rollover scheduler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS (override environment):
  -addr        HTTP listen address        (PAYROLL_ADDR, default :8080)
  -db          SQLite database path       (PAYROLL_DB, default payroll.db)
               Use ":memory:" for an in-memory database
  -tax-tables  YAML tax table file        (PAYROLL_TAX_TABLES)
  -workers     Bulk run concurrency       (PAYROLL_BULK_WORKERS, default 8)

ENVIRONMENT:
  See config/config.go for the full list.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SERVER_SHUTDOWN_TIMEOUT)
  3. Stop the rollover scheduler
  4. Close database connection

EXAMPLES:
  ./server -db="./data/payroll.db"
  ./server -db=":memory:" -addr=":3000"
  LOG_FORMAT=json ./server -tax-tables=./tables/2025.yaml

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/ledger"
	"github.com/warp/payroll-engine/metrics"
	"github.com/warp/payroll-engine/store/sqlite"
	"github.com/warp/payroll-engine/taxtable"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "payroll-engine: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags
	flag.StringVar(&cfg.HTTP.Addr, "addr", cfg.HTTP.Addr, "HTTP listen address")
	flag.StringVar(&cfg.Payroll.DBPath, "db", cfg.Payroll.DBPath, "SQLite database path")
	flag.StringVar(&cfg.Payroll.TaxTablesPath, "tax-tables", cfg.Payroll.TaxTablesPath, "YAML file with additional tax tables")
	flag.IntVar(&cfg.Payroll.BulkWorkers, "workers", cfg.Payroll.BulkWorkers, "Concurrent employees per bulk run")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := config.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Initialize store
	store, err := sqlite.New(cfg.Payroll.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	tables := taxtable.Default()
	if cfg.Payroll.TaxTablesPath != "" {
		if err := tables.LoadFile(cfg.Payroll.TaxTablesPath); err != nil {
			return fmt.Errorf("load tax tables: %w", err)
		}
	}
	logger.Info("tax tables loaded", "years", tables.Years())

	var (
		m       *metrics.Payroll
		scraper http.Handler
	)
	if cfg.HTTP.MetricsEnabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		scraper = promhttp.Handler()
	}

	l := ledger.New(store, tables,
		ledger.WithLogger(logger),
		ledger.WithMetrics(m),
		ledger.WithOvertime(ledger.OvertimeRule{
			Threshold:  cfg.Payroll.OvertimeThreshold,
			Multiplier: cfg.Payroll.OvertimeMultiplier,
		}),
		ledger.WithDisburser(logDisburser(logger)),
	)
	bulk := ledger.NewBulkRunner(l, cfg.Payroll.BulkWorkers, logger, m)
	agg := ledger.NewAggregator(store, tables, logger)

	rollover := ledger.NewRolloverScheduler(store, cfg.Payroll.RolloverInterval, logger)
	rollover.Start()
	defer rollover.Stop()

	handler := api.NewHandler(store, l, bulk, agg, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Metrics:        scraper,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.HTTP.Addr, "db", cfg.Payroll.DBPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// logDisburser records each committed paystub's payment instruction. A real
// deployment swaps in a bank or payments client here.
func logDisburser(logger *slog.Logger) ledger.Disburser {
	return ledger.DisburserFunc(func(ctx context.Context, d ledger.Disbursement) error {
		logger.InfoContext(ctx, "disbursement queued",
			"paystub_id", d.PaystubID,
			"check", d.CheckNumber,
			"employee_id", d.EmployeeID,
			"net_pay", d.NetPay,
			"pay_date", d.PayDate)
		return nil
	})
}
