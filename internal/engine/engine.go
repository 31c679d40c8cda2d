// Package engine owns the session registry and the per-session workers
// that drive continuous generation.
//
// Each running session gets one goroutine with its own ticker. A cycle
// admits itself against the session budget, invokes the host's producer,
// filters the batch, evicts old items, and feeds the monitor; every few
// cycles it asks the tournament trigger whether a bracket should run.
// Workers stop through context cancellation with a bounded join, so a
// stuck producer cannot wedge Close.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	otelmetric "go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/model"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/monitor"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/snapshot"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/spend"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/telemetry"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/tournament"
)

var (
	// ErrSessionNotFound is returned for ids that are unknown or already
	// deleted.
	ErrSessionNotFound = errors.New("engine: session not found")

	// ErrInvalidConfig wraps the validation failure of a session config.
	ErrInvalidConfig = errors.New("engine: invalid session config")

	// ErrSessionNotRunning is returned by pause and resume when the
	// session is not in the state the transition needs.
	ErrSessionNotRunning = errors.New("engine: session not running")

	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("engine: closed")
)

var (
	meter  = telemetry.Meter("contgen/engine")
	tracer = telemetry.Tracer("contgen/engine")
)

// Producer is the host callback that generates one batch of candidate
// items. The engine assigns IDs, sequence numbers, and timestamps; the
// producer only fills content and quality.
type Producer interface {
	Produce(ctx context.Context, sessionID uuid.UUID, cfg model.SessionConfig) ([]model.Item, error)
}

// CostEstimator prices a producer batch in the host's cost units. It is
// consulted before a cycle for budget admission and after for ledger
// attribution.
type CostEstimator interface {
	EstimateCost(batchSize int) float64
}

// AcceptFunc decides whether a produced item is stored. The default
// keeps items whose Quality meets the session threshold or that the
// producer marked Accepted.
type AcceptFunc func(item model.Item, cfg model.SessionConfig) bool

// NotifyFunc receives the accepted batch after each successful cycle.
// It runs on its own goroutine under a watchdog timeout and must not be
// assumed to finish before the next cycle.
type NotifyFunc func(sessionID uuid.UUID, items []model.Item)

// Config tunes engine behavior shared by all sessions.
type Config struct {
	// DefaultInterval is used when a session config leaves Interval zero.
	DefaultInterval time.Duration

	// StopTimeout bounds how long stop and Close wait for a worker to
	// exit before abandoning it.
	StopTimeout time.Duration

	// MaxConsecutiveFailures is the default escalation threshold for
	// sessions that do not set their own.
	MaxConsecutiveFailures int

	// MaxErrorLog is the default bound on per-session retained errors.
	MaxErrorLog int

	// MaxStoredItems is the default retained-item cap for sessions
	// that do not set their own.
	MaxStoredItems int

	// CleanupThreshold is the default eviction trigger for sessions
	// that do not set their own.
	CleanupThreshold int

	// ArchiveCapacity bounds the completed-session archive.
	ArchiveCapacity int

	// NotifyTimeout is the watchdog for host notification callbacks.
	NotifyTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = 30 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 3
	}
	if c.MaxErrorLog <= 0 {
		c.MaxErrorLog = 50
	}
	if c.MaxStoredItems <= 0 {
		c.MaxStoredItems = 50
	}
	if c.CleanupThreshold <= 0 {
		c.CleanupThreshold = 60
	}
	if c.ArchiveCapacity <= 0 {
		c.ArchiveCapacity = 50
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 10 * time.Second
	}
	return c
}

// Deps are the collaborators an Engine drives. Producer is required for
// sessions to make progress; everything else degrades to a safe no-op
// when nil.
type Deps struct {
	Producer  Producer
	Estimator CostEstimator
	Accept    AcceptFunc
	Notify    NotifyFunc
	Monitor   *monitor.Monitor
	Tracker   spend.Tracker
	Executor  *tournament.Executor
	Store     snapshot.Store
}

// Engine is the session registry plus the workers it spawns. All
// methods are safe for concurrent use.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	producer  Producer
	estimator CostEstimator
	accept    AcceptFunc
	notify    NotifyFunc
	monitor   *monitor.Monitor
	tracker   spend.Tracker
	executor  *tournament.Executor
	store     snapshot.Store

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
	archive  []model.Session
	closed   bool
}

// session pairs persistent state with the runtime plumbing of its
// worker. state is guarded by mu; cancel and done belong to the most
// recently spawned worker.
type session struct {
	mu      sync.Mutex
	state   model.Session
	deleted bool

	cancel context.CancelFunc
	done   chan struct{}
}

// workerAlive reports whether the last spawned worker is still running.
// Callers hold s.mu.
func (s *session) workerAlive() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// New creates an engine. Nil deps other than Producer are replaced with
// inert defaults so hosts only wire what they use.
func New(cfg Config, deps Deps, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	if deps.Monitor == nil {
		deps.Monitor = monitor.New(monitor.Config{}, logger)
	}
	if deps.Tracker == nil {
		deps.Tracker = spend.Noop{}
	}
	if deps.Executor == nil {
		deps.Executor = tournament.New(nil, 0, logger)
	}
	if deps.Accept == nil {
		deps.Accept = defaultAccept
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		producer:   deps.Producer,
		estimator:  deps.Estimator,
		accept:     deps.Accept,
		notify:     deps.Notify,
		monitor:    deps.Monitor,
		tracker:    deps.Tracker,
		executor:   deps.Executor,
		store:      deps.Store,
		baseCtx:    ctx,
		cancelBase: cancel,
		sessions:   make(map[uuid.UUID]*session),
	}
	e.registerGauges()
	return e
}

// defaultAccept keeps items at or above the session quality threshold,
// plus anything the producer already marked Accepted. A zero threshold
// disables filtering entirely.
func defaultAccept(item model.Item, cfg model.SessionConfig) bool {
	if cfg.QualityThreshold == 0 || item.Accepted {
		return true
	}
	return item.Quality >= cfg.QualityThreshold
}

func (e *Engine) registerGauges() {
	if gauge, err := meter.Int64ObservableGauge("contgen.sessions.active",
		otelmetric.WithDescription("sessions currently running or paused")); err == nil {
		_, _ = meter.RegisterCallback(func(_ context.Context, o otelmetric.Observer) error {
			o.ObserveInt64(gauge, e.countActive())
			return nil
		}, gauge)
	}
	if gauge, err := meter.Int64ObservableGauge("contgen.items.stored",
		otelmetric.WithDescription("items held across all sessions")); err == nil {
		_, _ = meter.RegisterCallback(func(_ context.Context, o otelmetric.Observer) error {
			o.ObserveInt64(gauge, e.countStored())
			return nil
		}, gauge)
	}
}

func (e *Engine) countActive() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var n int64
	for _, s := range e.sessions {
		s.mu.Lock()
		if s.state.Status == model.StatusRunning || s.state.Status == model.StatusPaused {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

func (e *Engine) countStored() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var n int64
	for _, s := range e.sessions {
		s.mu.Lock()
		n += int64(len(s.state.Items))
		s.mu.Unlock()
	}
	return n
}

func (e *Engine) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

func (e *Engine) lookup(id uuid.UUID) (*session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close stops every worker, persists final session states, and shuts
// the snapshot store. It is idempotent; the engine is unusable after.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	open := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		open = append(open, s)
	}
	e.mu.Unlock()

	e.cancelBase()
	var g errgroup.Group
	for _, s := range open {
		g.Go(func() error {
			return e.stop(s)
		})
	}
	err := g.Wait()

	if e.store != nil {
		if cerr := e.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	e.logger.Info("engine: closed", "sessions", len(open))
	return err
}
