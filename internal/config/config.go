// Package config loads and validates engine configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all engine-wide settings. Per-session knobs live in
// model.SessionConfig; everything here applies to the whole engine.
type Config struct {
	// Scheduler settings.
	DefaultInterval        time.Duration // Used when a session config leaves Interval zero.
	StopTimeout            time.Duration // How long Stop waits for a worker before abandoning it.
	MaxConsecutiveFailures int           // Consecutive failed cycles before a session escalates to error.
	MaxErrorLog            int           // Per-session cap on retained cycle error summaries.
	MaxStoredItems         int           // Used when a session config leaves MaxStoredItems zero.
	CleanupThreshold       int           // Used when a session config leaves CleanupThreshold zero.
	ArchiveCapacity        int           // Deleted sessions kept for inspection.
	NotifyTimeout          time.Duration // Deadline for host notification callbacks.

	// Monitoring settings.
	PerformanceWindow    time.Duration // Sliding window for rate and duration metrics.
	RetentionMultiple    int           // Events older than window*multiple are pruned.
	MinAlertSamples      int           // Cycles required in window before rate alerts fire.
	FailureRateAlert     float64       // Failure rate above this raises an alert.
	GenerationDelayAlert time.Duration // No success for longer than this raises an alert.
	ErrorCountAlert      int           // Failures in window above this raises an alert.
	MinGenerationRate    float64       // Successes/hour below this raises an alert; 0 disables.
	MaxAlerts            int           // Process-wide cap on retained alerts.

	// Tournament settings.
	TournamentHistory int // Completed tournaments retained per engine.

	// Snapshot settings.
	SnapshotDriver string // "", "sqlite", or "postgres". Empty disables persistence.
	SnapshotPath   string // SQLite database path.
	DatabaseURL    string // Postgres URL for the postgres driver.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible
// defaults. Invalid values fail loudly rather than falling back, and
// all of them are reported at once.
func Load() (Config, error) {
	var errs []error
	collectInt := func(key string, def int) int {
		v, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	collectFloat := func(key string, def float64) float64 {
		v, err := envFloat(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	collectDuration := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	collectBool := func(key string, def bool) bool {
		v, err := envBool(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := Config{
		DefaultInterval:        collectDuration("CONTGEN_DEFAULT_INTERVAL", 30*time.Second),
		StopTimeout:            collectDuration("CONTGEN_STOP_TIMEOUT", 5*time.Second),
		MaxConsecutiveFailures: collectInt("CONTGEN_MAX_CONSECUTIVE_FAILURES", 3),
		MaxErrorLog:            collectInt("CONTGEN_MAX_ERROR_LOG", 50),
		MaxStoredItems:         collectInt("CONTGEN_MAX_STORED_ITEMS", 50),
		CleanupThreshold:       collectInt("CONTGEN_CLEANUP_THRESHOLD", 60),
		ArchiveCapacity:        collectInt("CONTGEN_ARCHIVE_CAPACITY", 50),
		NotifyTimeout:          collectDuration("CONTGEN_NOTIFY_TIMEOUT", 10*time.Second),
		PerformanceWindow:      collectDuration("CONTGEN_PERFORMANCE_WINDOW", time.Hour),
		RetentionMultiple:      collectInt("CONTGEN_RETENTION_MULTIPLE", 2),
		MinAlertSamples:        collectInt("CONTGEN_MIN_ALERT_SAMPLES", 5),
		FailureRateAlert:       collectFloat("CONTGEN_FAILURE_RATE_ALERT", 0.5),
		GenerationDelayAlert:   collectDuration("CONTGEN_GENERATION_DELAY_ALERT", 10*time.Minute),
		ErrorCountAlert:        collectInt("CONTGEN_ERROR_COUNT_ALERT", 10),
		MinGenerationRate:      collectFloat("CONTGEN_MIN_GENERATION_RATE", 0),
		MaxAlerts:              collectInt("CONTGEN_MAX_ALERTS", 1000),
		TournamentHistory:      collectInt("CONTGEN_TOURNAMENT_HISTORY", 100),
		SnapshotDriver:         envStr("CONTGEN_SNAPSHOT_DRIVER", ""),
		SnapshotPath:           envStr("CONTGEN_SNAPSHOT_PATH", "contgen.db"),
		DatabaseURL:            envStr("DATABASE_URL", ""),
		OTELEndpoint:           envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:           collectBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:            envStr("OTEL_SERVICE_NAME", "contgen"),
		LogLevel:               envStr("CONTGEN_LOG_LEVEL", "info"),
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that settings are internally coherent.
func (c Config) Validate() error {
	if c.DefaultInterval <= 0 {
		return fmt.Errorf("config: CONTGEN_DEFAULT_INTERVAL must be positive")
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("config: CONTGEN_STOP_TIMEOUT must be positive")
	}
	if c.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("config: CONTGEN_MAX_CONSECUTIVE_FAILURES must be >= 1")
	}
	if c.MaxErrorLog < 1 {
		return fmt.Errorf("config: CONTGEN_MAX_ERROR_LOG must be >= 1")
	}
	if c.MaxStoredItems < 1 {
		return fmt.Errorf("config: CONTGEN_MAX_STORED_ITEMS must be >= 1")
	}
	if c.CleanupThreshold < c.MaxStoredItems {
		return fmt.Errorf("config: CONTGEN_CLEANUP_THRESHOLD must be >= CONTGEN_MAX_STORED_ITEMS")
	}
	if c.ArchiveCapacity < 0 {
		return fmt.Errorf("config: CONTGEN_ARCHIVE_CAPACITY must not be negative")
	}
	if c.PerformanceWindow <= 0 {
		return fmt.Errorf("config: CONTGEN_PERFORMANCE_WINDOW must be positive")
	}
	if c.RetentionMultiple < 1 {
		return fmt.Errorf("config: CONTGEN_RETENTION_MULTIPLE must be >= 1")
	}
	if c.FailureRateAlert <= 0 || c.FailureRateAlert > 1 {
		return fmt.Errorf("config: CONTGEN_FAILURE_RATE_ALERT must be in (0,1]")
	}
	if c.GenerationDelayAlert <= 0 {
		return fmt.Errorf("config: CONTGEN_GENERATION_DELAY_ALERT must be positive")
	}
	if c.ErrorCountAlert < 1 {
		return fmt.Errorf("config: CONTGEN_ERROR_COUNT_ALERT must be >= 1")
	}
	if c.MinGenerationRate < 0 {
		return fmt.Errorf("config: CONTGEN_MIN_GENERATION_RATE must not be negative")
	}
	if c.MaxAlerts < 1 {
		return fmt.Errorf("config: CONTGEN_MAX_ALERTS must be >= 1")
	}
	if c.TournamentHistory < 1 {
		return fmt.Errorf("config: CONTGEN_TOURNAMENT_HISTORY must be >= 1")
	}
	switch c.SnapshotDriver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: CONTGEN_SNAPSHOT_DRIVER must be empty, \"sqlite\", or \"postgres\", got %q", c.SnapshotDriver)
	}
	if c.SnapshotDriver == "sqlite" && c.SnapshotPath == "" {
		return fmt.Errorf("config: CONTGEN_SNAPSHOT_PATH is required for the sqlite driver")
	}
	if c.SnapshotDriver == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required for the postgres driver")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}
