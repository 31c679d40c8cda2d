package contgen

import (
	"log/slog"
	"time"
)

// Option configures an Engine.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	logger          *slog.Logger
	version         string
	defaultInterval time.Duration
	snapshotDriver  string
	snapshotPath    string
	databaseURL     string
	producer        Producer
	comparator      Comparator
	estimator       CostEstimator
	accept          AcceptanceFilter
	notifiers       []NotifyFunc
	alertFns        []AlertFunc
}

// WithLogger sets the structured logger for the Engine.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in telemetry and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithDefaultInterval overrides the engine-wide default cycle interval
// from config (CONTGEN_DEFAULT_INTERVAL env var). Sessions that set
// their own Interval are unaffected.
func WithDefaultInterval(d time.Duration) Option {
	return func(o *resolvedOptions) { o.defaultInterval = d }
}

// WithSnapshotDriver overrides the snapshot persistence driver from
// config (CONTGEN_SNAPSHOT_DRIVER env var). Valid values are "sqlite"
// and "postgres"; when neither config nor option sets a driver the
// engine keeps all state in memory.
func WithSnapshotDriver(driver string) Option {
	return func(o *resolvedOptions) { o.snapshotDriver = driver }
}

// WithSnapshotPath overrides the SQLite database path from config
// (CONTGEN_SNAPSHOT_PATH env var). Only meaningful with the sqlite
// driver.
func WithSnapshotPath(path string) Option {
	return func(o *resolvedOptions) { o.snapshotPath = path }
}

// WithDatabaseURL overrides the Postgres connection string from config
// (DATABASE_URL env var). Only meaningful with the postgres driver.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithProducer registers the host's item producer. Required for
// sessions to generate anything; an engine without a producer records
// every cycle as failed.
// Only the last call wins; if multiple are registered, only the last
// takes effect.
func WithProducer(p Producer) Option {
	return func(o *resolvedOptions) { o.producer = p }
}

// WithComparator registers the pairwise judge used by tournaments.
// Without one, tournaments (automatic and manual) abort with
// ErrNoComparator.
// Only the last call wins.
func WithComparator(c Comparator) Option {
	return func(o *resolvedOptions) { o.comparator = c }
}

// WithCostEstimator registers the pre-cycle cost predictor used for
// budget admission control. Without one, cycles are never skipped for
// budget reasons.
// Only the last call wins.
func WithCostEstimator(e CostEstimator) Option {
	return func(o *resolvedOptions) { o.estimator = e }
}

// WithAcceptanceFilter replaces the built-in quality-threshold filter.
// Only the last call wins.
func WithAcceptanceFilter(f AcceptanceFilter) Option {
	return func(o *resolvedOptions) { o.accept = f }
}

// WithNotifier registers a callback for each cycle's accepted items.
// Multiple notifiers may be registered; all receive every batch.
func WithNotifier(fn NotifyFunc) Option {
	return func(o *resolvedOptions) { o.notifiers = append(o.notifiers, fn) }
}

// WithAlertHandler registers a callback for raised monitoring alerts.
// Multiple handlers may be registered; all receive every alert.
func WithAlertHandler(fn AlertFunc) Option {
	return func(o *resolvedOptions) { o.alertFns = append(o.alertFns, fn) }
}
