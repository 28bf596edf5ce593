// Package config loads server settings from the environment. Command-line
// flags in cmd/server override anything loaded here.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP    HTTPConfig
	Payroll PayrollConfig
	Logging LoggingConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
	AllowedOrigins  []string
}

// PayrollConfig holds storage and engine settings.
type PayrollConfig struct {
	DBPath             string
	TaxTablesPath      string // optional YAML file merged over the built-in tables
	BulkWorkers        int
	OvertimeThreshold  decimal.Decimal
	OvertimeMultiplier decimal.Decimal
	RolloverInterval   time.Duration // 0 disables scheduled YTD rollover
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level  string
	Format string // text|json
}

const (
	defaultAddr            = ":8080"
	defaultDBPath          = "payroll.db"
	defaultBulkWorkers     = 8
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second
	defaultLoggingLevel    = "info"
	defaultLoggingFormat   = "text"
)

var (
	defaultOvertimeThreshold  = decimal.NewFromInt(40)
	defaultOvertimeMultiplier = decimal.RequireFromString("1.5")
)

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            defaultAddr,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			IdleTimeout:     defaultIdleTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
			MetricsEnabled:  true,
		},
		Payroll: PayrollConfig{
			DBPath:             defaultDBPath,
			BulkWorkers:        defaultBulkWorkers,
			OvertimeThreshold:  defaultOvertimeThreshold,
			OvertimeMultiplier: defaultOvertimeMultiplier,
		},
		Logging: LoggingConfig{
			Level:  defaultLoggingLevel,
			Format: defaultLoggingFormat,
		},
	}
}

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Default()
	cfg.HTTP.Addr = valueOrDefault("PAYROLL_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.MetricsEnabled = parseBoolWithDefault("PAYROLL_METRICS_ENABLED", cfg.HTTP.MetricsEnabled)
	cfg.HTTP.AllowedOrigins = splitCSV(os.Getenv("PAYROLL_ALLOWED_ORIGINS"))
	cfg.Payroll.DBPath = valueOrDefault("PAYROLL_DB", cfg.Payroll.DBPath)
	cfg.Payroll.TaxTablesPath = os.Getenv("PAYROLL_TAX_TABLES")
	cfg.Logging.Level = valueOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = valueOrDefault("LOG_FORMAT", cfg.Logging.Format)

	var err error
	if cfg.Payroll.BulkWorkers, err = parseInt("PAYROLL_BULK_WORKERS", cfg.Payroll.BulkWorkers); err != nil {
		return Config{}, err
	}
	if cfg.Payroll.OvertimeThreshold, err = parseDecimal("PAYROLL_OVERTIME_THRESHOLD", cfg.Payroll.OvertimeThreshold); err != nil {
		return Config{}, err
	}
	if cfg.Payroll.OvertimeMultiplier, err = parseDecimal("PAYROLL_OVERTIME_MULTIPLIER", cfg.Payroll.OvertimeMultiplier); err != nil {
		return Config{}, err
	}
	if cfg.Payroll.RolloverInterval, err = parseDuration("PAYROLL_YTD_ROLLOVER_INTERVAL", cfg.Payroll.RolloverInterval); err != nil {
		return Config{}, err
	}
	if cfg.HTTP.ShutdownTimeout, err = parseDuration("SERVER_SHUTDOWN_TIMEOUT", cfg.HTTP.ShutdownTimeout); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	if c.Payroll.DBPath == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.Payroll.BulkWorkers < 1 {
		errs = append(errs, fmt.Errorf("bulk workers must be at least 1, got %d", c.Payroll.BulkWorkers))
	}
	if !c.Payroll.OvertimeThreshold.IsPositive() {
		errs = append(errs, fmt.Errorf("overtime threshold must be positive, got %s", c.Payroll.OvertimeThreshold))
	}
	if c.Payroll.OvertimeMultiplier.LessThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("overtime multiplier must be at least 1, got %s", c.Payroll.OvertimeMultiplier))
	}
	if c.Payroll.RolloverInterval < 0 {
		errs = append(errs, errors.New("ytd rollover interval must not be negative"))
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return n, nil
}

func parseDecimal(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return d, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
