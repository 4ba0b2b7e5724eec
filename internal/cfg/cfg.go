package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/vitallink/internal/vitals"
)

// Store backends, in the order they are preferred when configured.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	SQLitePath            string
	SOSMaxContacts        int
	SeedContacts          bool
	CORSAllowedOrigins    string
	DBMaxConns            int
	DBLogSlowMs           int
	HeartRateRange        string
	SpO2Range             string
	TemperatureRange      string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 3000, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (takes precedence over -sqlite-path)")
	fs.StringVar(&c.SQLitePath, "sqlite-path", "", "SQLite database file, created if missing (empty with no database URL = in-memory store)")
	fs.IntVar(&c.SOSMaxContacts, "sos-max-contacts", 3, "contacts notified per SOS, by ascending priority (1..100)")
	fs.BoolVar(&c.SeedContacts, "seed-contacts", true, "seed default emergency contacts into an empty store at startup")
	fs.StringVar(&c.CORSAllowedOrigins, "cors-allowed-origins", "*", "comma-separated origins allowed to call the API")
	fs.IntVar(&c.DBMaxConns, "db-max-conns", 0, "maximum PostgreSQL pool connections (0 = pgx default, up to 1000)")
	fs.IntVar(&c.DBLogSlowMs, "db-log-slow-ms", 0, "log successful queries at or above this many milliseconds (0 = log every query, up to 60000)")
	fs.StringVar(&c.HeartRateRange, "sos-heart-rate-range", vitals.DefaultRanges.HeartRate.String(), "normal heart rate in bpm, min:max")
	fs.StringVar(&c.SpO2Range, "sos-spo2-range", vitals.DefaultRanges.SpO2.String(), "normal SpO2 in percent, min:max")
	fs.StringVar(&c.TemperatureRange, "sos-temperature-range", vitals.DefaultRanges.Temperature.String(), "normal body temperature in °C, min:max")
}

// DBLogSlow is the slow-query log threshold as a duration.
func (c *Config) DBLogSlow() time.Duration {
	return time.Duration(c.DBLogSlowMs) * time.Millisecond
}

// Ranges parses the three reference range flags.
func (c *Config) Ranges() (vitals.Ranges, error) {
	var (
		r    vitals.Ranges
		errs []error
		err  error
	)
	if r.HeartRate, err = vitals.ParseRange(c.HeartRateRange); err != nil {
		errs = append(errs, fmt.Errorf("invalid SOS_HEART_RATE_RANGE: %w", err))
	}
	if r.SpO2, err = vitals.ParseRange(c.SpO2Range); err != nil {
		errs = append(errs, fmt.Errorf("invalid SOS_SPO2_RANGE: %w", err))
	}
	if r.Temperature, err = vitals.ParseRange(c.TemperatureRange); err != nil {
		errs = append(errs, fmt.Errorf("invalid SOS_TEMPERATURE_RANGE: %w", err))
	}
	return r, errors.Join(errs...)
}

// Store reports which backend the configuration selects.
func (c *Config) Store() string {
	switch {
	case c.DatabaseURL != "":
		return StorePostgres
	case c.SQLitePath != "":
		return StoreSQLite
	default:
		return StoreMemory
	}
}

// AllowedOrigins splits CORSAllowedOrigins into trimmed, non-empty entries.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for o := range strings.SplitSeq(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.SOSMaxContacts <= 0 || c.SOSMaxContacts > 100 {
		errs = append(errs, fmt.Errorf("invalid SOS_MAX_CONTACTS %d (must be 1..100)", c.SOSMaxContacts))
	}

	if c.DatabaseURL != "" && !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		errs = append(errs, errors.New("DATABASE_URL must be a postgres:// or postgresql:// URL"))
	}

	if c.DBMaxConns < 0 || c.DBMaxConns > 1000 {
		errs = append(errs, fmt.Errorf("invalid DB_MAX_CONNS %d (must be 0..1000)", c.DBMaxConns))
	}
	if c.DBLogSlowMs < 0 || c.DBLogSlowMs > 60000 {
		errs = append(errs, fmt.Errorf("invalid DB_LOG_SLOW_MS %d (must be 0..60000)", c.DBLogSlowMs))
	}

	if _, err := c.Ranges(); err != nil {
		errs = append(errs, err)
	}

	if len(c.AllowedOrigins()) == 0 {
		errs = append(errs, errors.New("CORS_ALLOWED_ORIGINS must name at least one origin"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
