// Package contgen is the public API for embedding the continuous
// generation engine.
//
// Hosts construct an Engine with New(), register their callbacks as
// options, and drive sessions through the lifecycle methods:
//
//	eng, err := contgen.New(
//	    contgen.WithProducer(myProducer{}),
//	    contgen.WithComparator(myJudge{}),
//	    contgen.WithLogger(logger),
//	)
//	if err != nil { ... }
//	defer eng.Close()
//
//	sess, err := eng.CreateSession("headline ideas", contgen.SessionConfig{
//	    Interval:         time.Minute,
//	    ItemsPerBatch:    3,
//	    MaxStoredItems:   50,
//	    CleanupThreshold: 60,
//	})
//	if err != nil { ... }
//	if err := eng.StartSession(sess.ID); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: contgen (root)
// imports internal/*, but internal/* never imports contgen. Public
// types (Session, Item, TournamentRecord, ...) are standalone structs
// with no internal imports; conversion helpers (toPublicSession,
// toPublicRecord, ...) live here because this is the only file that
// sees both sides of the boundary.
package contgen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/config"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/engine"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/model"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/monitor"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/snapshot"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/spend"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/telemetry"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/tournament"
	"github.com/fredzannarbor/xcu-my-apps-sub009/migrations"
)

// Engine owns the session registry and workers, the performance
// monitor, the spending ledger, and the tournament executor. Construct
// with New(), release with Close(). Engine has no public fields; use
// New() options to configure it. All methods are safe for concurrent
// use.
type Engine struct {
	cfg          config.Config
	eng          *engine.Engine
	mon          *monitor.Monitor
	ledger       *spend.Ledger
	executor     *tournament.Executor
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the engine. It loads configuration, opens the
// snapshot store when one is configured, restores persisted sessions,
// and wires the host's callbacks. It does NOT start any generation
// workers; sessions run only after StartSession.
func New(opts ...Option) (*Engine, error) {
	// Apply options.
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.defaultInterval > 0 {
		cfg.DefaultInterval = o.defaultInterval
	}
	if o.snapshotDriver != "" {
		cfg.SnapshotDriver = o.snapshotDriver
	}
	if o.snapshotPath != "" {
		cfg.SnapshotPath = o.snapshotPath
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	// Overrides may change which settings are required, so re-check.
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("contgen starting", "version", version, "snapshot_driver", cfg.SnapshotDriver)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Open the snapshot store. An empty driver keeps all state in
	// memory and sessions do not survive a restart.
	var store snapshot.Store
	switch cfg.SnapshotDriver {
	case "sqlite":
		store, err = snapshot.NewSQLite(context.Background(), cfg.SnapshotPath, logger)
	case "postgres":
		store, err = snapshot.NewPostgres(context.Background(), cfg.DatabaseURL, migrations.FS, logger)
	}
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	// Monitor, with the host's alert handlers fanned out behind one
	// callback.
	monCfg := monitor.Config{
		Window:            cfg.PerformanceWindow,
		RetentionMultiple: cfg.RetentionMultiple,
		MinSamples:        cfg.MinAlertSamples,
		FailureRate:       cfg.FailureRateAlert,
		GenerationDelay:   cfg.GenerationDelayAlert,
		ErrorCount:        cfg.ErrorCountAlert,
		MinGenerationRate: cfg.MinGenerationRate,
		MaxAlerts:         cfg.MaxAlerts,
		CallbackTimeout:   cfg.NotifyTimeout,
	}
	if len(o.alertFns) > 0 {
		fns := o.alertFns
		monCfg.OnAlert = func(a model.Alert) {
			pub := toPublicAlert(a)
			for _, fn := range fns {
				fn(pub)
			}
		}
	}
	mon := monitor.New(monCfg, logger)

	ledger := spend.NewLedger()

	// Tournament executor. A nil comparator is allowed; tournaments
	// then abort with ErrNoComparator when requested.
	var cmp tournament.Comparator
	if o.comparator != nil {
		cmp = &comparatorAdapter{c: o.comparator}
	}
	executor := tournament.New(cmp, cfg.TournamentHistory, logger)

	deps := engine.Deps{
		Monitor:  mon,
		Tracker:  ledger,
		Executor: executor,
		Store:    store,
	}
	if o.producer != nil {
		deps.Producer = &producerAdapter{p: o.producer}
	}
	if o.estimator != nil {
		deps.Estimator = o.estimator
	}
	if o.accept != nil {
		fn := o.accept
		deps.Accept = func(it model.Item, c model.SessionConfig) bool {
			return fn(toPublicItem(it), toPublicConfig(c))
		}
	}
	if len(o.notifiers) > 0 {
		fns := o.notifiers
		deps.Notify = func(sid uuid.UUID, items []model.Item) {
			pub := toPublicItems(items)
			for _, fn := range fns {
				fn(sid, pub)
			}
		}
	}

	eng := engine.New(engine.Config{
		DefaultInterval:        cfg.DefaultInterval,
		StopTimeout:            cfg.StopTimeout,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		MaxErrorLog:            cfg.MaxErrorLog,
		MaxStoredItems:         cfg.MaxStoredItems,
		CleanupThreshold:       cfg.CleanupThreshold,
		ArchiveCapacity:        cfg.ArchiveCapacity,
		NotifyTimeout:          cfg.NotifyTimeout,
	}, deps, logger)

	// Reload persisted sessions and tournament history. Restored
	// sessions come back stopped regardless of the state they were
	// saved in; the host decides what to start.
	if store != nil {
		n, err := eng.RestoreFromStore(context.Background())
		if err != nil {
			_ = eng.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("restore: %w", err)
		}
		if n > 0 {
			logger.Info("contgen restored persisted sessions", "count", n)
		}
	}

	return &Engine{
		cfg:          cfg,
		eng:          eng,
		mon:          mon,
		ledger:       ledger,
		executor:     executor,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Version reports the version string the engine was constructed with.
func (e *Engine) Version() string { return e.version }

// ── Session lifecycle ──────────────────────────────────────────────────────────

// CreateSession registers a new session in the stopped state. The
// config is validated and engine defaults are applied; the returned
// Session carries the effective config.
func (e *Engine) CreateSession(name string, cfg SessionConfig) (Session, error) {
	s, err := e.eng.CreateSession(name, fromPublicConfig(cfg))
	if err != nil {
		return Session{}, err
	}
	return toPublicSession(s), nil
}

// StartSession spawns the session's generation worker. Starting a
// running session is a no-op; starting a paused session resumes it.
func (e *Engine) StartSession(id uuid.UUID) error {
	return e.eng.StartSession(id)
}

// StopSession halts the session's worker and waits for it to exit, up
// to the configured stop timeout.
func (e *Engine) StopSession(id uuid.UUID) error {
	return e.eng.StopSession(id)
}

// PauseSession suspends generation without releasing the worker. The
// clock keeps ticking; paused intervals are skipped, not queued.
func (e *Engine) PauseSession(id uuid.UUID) error {
	return e.eng.PauseSession(id)
}

// ResumeSession lifts a pause. Generation continues on the next tick.
func (e *Engine) ResumeSession(id uuid.UUID) error {
	return e.eng.ResumeSession(id)
}

// DeleteSession stops the session and removes it from the registry.
// Its final state moves to the completed-session archive.
func (e *Engine) DeleteSession(id uuid.UUID) error {
	return e.eng.DeleteSession(id)
}

// Status returns a point-in-time operational view of one session.
func (e *Engine) Status(id uuid.UUID) (Status, error) {
	st, err := e.eng.SessionStatus(id)
	if err != nil {
		return Status{}, err
	}
	return toPublicStatus(st), nil
}

// Items returns the session's most recent items in generation order,
// oldest first. A non-positive limit returns all retained items.
func (e *Engine) Items(id uuid.UUID, limit int) ([]Item, error) {
	items, err := e.eng.SessionItems(id, limit)
	if err != nil {
		return nil, err
	}
	return toPublicItems(items), nil
}

// Sessions returns snapshots of every live session, oldest first.
func (e *Engine) Sessions() []Session {
	return toPublicSessions(e.eng.Sessions())
}

// CompletedSessions returns the archive of deleted sessions' final
// states, oldest first.
func (e *Engine) CompletedSessions() []Session {
	return toPublicSessions(e.eng.CompletedSessions())
}

// ── Tournaments ────────────────────────────────────────────────────────────────

// RunTournament runs a bracket over the session's current items right
// now, regardless of trigger configuration. With fewer items than the
// bracket minimum it returns (nil, nil): a quiet no-op, not an error.
func (e *Engine) RunTournament(ctx context.Context, id uuid.UUID) (*TournamentRecord, error) {
	rec, err := e.eng.RunTournament(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	pub := toPublicRecord(*rec)
	return &pub, nil
}

// TournamentHistory returns retained tournament records, oldest first.
// A zero sessionID returns every session's records.
func (e *Engine) TournamentHistory(sessionID uuid.UUID) []TournamentRecord {
	recs := e.executor.History(sessionID)
	out := make([]TournamentRecord, len(recs))
	for i, r := range recs {
		out[i] = toPublicRecord(r)
	}
	return out
}

// TournamentStats aggregates retained tournament history. A zero
// sessionID aggregates across all sessions.
func (e *Engine) TournamentStats(sessionID uuid.UUID) TournamentStats {
	return TournamentStats(e.executor.Statistics(sessionID))
}

// ── Monitoring ─────────────────────────────────────────────────────────────────

// Performance computes the session's generation metrics over the
// trailing window.
func (e *Engine) Performance(sessionID uuid.UUID) Metrics {
	return toPublicMetrics(e.mon.Performance(sessionID))
}

// CheckAlerts evaluates the session's thresholds, records any
// violations, and returns the newly raised alerts.
func (e *Engine) CheckAlerts(sessionID uuid.UUID) []Alert {
	return toPublicAlerts(e.mon.CheckAlerts(sessionID))
}

// Alerts returns accumulated alerts. A zero sessionID returns every
// session's alerts.
func (e *Engine) Alerts(sessionID uuid.UUID) []Alert {
	return toPublicAlerts(e.mon.Alerts(sessionID))
}

// ClearAlerts removes accumulated alerts and reports how many were
// dropped. A zero sessionID clears the whole list.
func (e *Engine) ClearAlerts(sessionID uuid.UUID) int {
	return e.mon.ClearAlerts(sessionID)
}

// SystemHealth re-runs the threshold checks for every monitored
// session and aggregates them. Read-only: nothing is recorded and no
// alert handlers fire.
func (e *Engine) SystemHealth() Health {
	return toPublicHealth(e.mon.SystemHealth())
}

// ── Spending ───────────────────────────────────────────────────────────────────

// SpendingStatus reports the ledger's rolling totals across all
// sessions.
func (e *Engine) SpendingStatus() SpendingStatus {
	return SpendingStatus(e.ledger.Status())
}

// Close stops every session's worker, persists final state, and shuts
// down the snapshot store and telemetry providers. The engine is
// unusable afterwards.
func (e *Engine) Close() error {
	err := e.eng.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if otelErr := e.otelShutdown(shutdownCtx); otelErr != nil && err == nil {
		err = otelErr
	}

	e.logger.Info("contgen stopped")
	return err
}

// ── Adapters (defined here because this file imports both sides) ───────────────

// producerAdapter wraps a contgen.Producer to satisfy engine.Producer.
// It converts internal model types to public contgen types at the
// boundary.
type producerAdapter struct {
	p Producer
}

func (a *producerAdapter) Produce(ctx context.Context, sessionID uuid.UUID, cfg model.SessionConfig) ([]model.Item, error) {
	items, err := a.p.Produce(ctx, sessionID, toPublicConfig(cfg))
	if err != nil {
		return nil, err
	}
	return fromPublicItems(items), nil
}

// comparatorAdapter wraps a contgen.Comparator to satisfy
// tournament.Comparator.
type comparatorAdapter struct {
	c Comparator
}

func (a *comparatorAdapter) Compare(ctx context.Context, x, y model.Item, criteria string) (tournament.Verdict, error) {
	v, err := a.c.Compare(ctx, toPublicItem(x), toPublicItem(y), criteria)
	if err != nil {
		return tournament.Verdict{}, err
	}
	return tournament.Verdict{Winner: v.Winner, Rationale: v.Rationale}, nil
}

// ── Type converters ────────────────────────────────────────────────────────────

func fromPublicConfig(c SessionConfig) model.SessionConfig {
	return model.SessionConfig{
		Interval:               c.Interval,
		ItemsPerBatch:          c.ItemsPerBatch,
		MaxStoredItems:         c.MaxStoredItems,
		CleanupThreshold:       c.CleanupThreshold,
		QualityThreshold:       c.QualityThreshold,
		TournamentEnabled:      c.TournamentEnabled,
		TournamentFrequency:    c.TournamentFrequency,
		Tournament:             fromPublicTournamentConfig(c.Tournament),
		Budget:                 model.SpendingLimits(c.Budget),
		MaxConsecutiveFailures: c.MaxConsecutiveFailures,
		MaxErrorLog:            c.MaxErrorLog,
	}
}

func toPublicConfig(c model.SessionConfig) SessionConfig {
	return SessionConfig{
		Interval:               c.Interval,
		ItemsPerBatch:          c.ItemsPerBatch,
		MaxStoredItems:         c.MaxStoredItems,
		CleanupThreshold:       c.CleanupThreshold,
		QualityThreshold:       c.QualityThreshold,
		TournamentEnabled:      c.TournamentEnabled,
		TournamentFrequency:    c.TournamentFrequency,
		Tournament:             toPublicTournamentConfig(c.Tournament),
		Budget:                 SpendingLimits(c.Budget),
		MaxConsecutiveFailures: c.MaxConsecutiveFailures,
		MaxErrorLog:            c.MaxErrorLog,
	}
}

// TournamentConfig carries a named TriggerType field on both sides, so
// it cannot be converted as a whole struct the way Item can.
func fromPublicTournamentConfig(c TournamentConfig) model.TournamentConfig {
	return model.TournamentConfig{
		Trigger:         model.TriggerType(c.Trigger),
		TriggerCount:    c.TriggerCount,
		TriggerInterval: c.TriggerInterval,
		TriggerQuality:  c.TriggerQuality,
		Size:            c.Size,
		MinConcepts:     c.MinConcepts,
		Criteria:        c.Criteria,
	}
}

func toPublicTournamentConfig(c model.TournamentConfig) TournamentConfig {
	return TournamentConfig{
		Trigger:         TriggerType(c.Trigger),
		TriggerCount:    c.TriggerCount,
		TriggerInterval: c.TriggerInterval,
		TriggerQuality:  c.TriggerQuality,
		Size:            c.Size,
		MinConcepts:     c.MinConcepts,
		Criteria:        c.Criteria,
	}
}

func toPublicItem(it model.Item) Item {
	return Item(it)
}

func toPublicItems(items []model.Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = Item(it)
	}
	return out
}

func fromPublicItems(items []Item) []model.Item {
	out := make([]model.Item, len(items))
	for i, it := range items {
		out[i] = model.Item(it)
	}
	return out
}

func toPublicSession(s model.Session) Session {
	return Session{
		ID:                    s.ID,
		Name:                  s.Name,
		Config:                toPublicConfig(s.Config),
		Status:                SessionStatus(s.Status),
		CreatedAt:             s.CreatedAt,
		StartedAt:             s.StartedAt,
		LastGenerationAt:      s.LastGenerationAt,
		TotalGenerations:      s.TotalGenerations,
		SuccessfulGenerations: s.SuccessfulGenerations,
		FailedGenerations:     s.FailedGenerations,
		Items:                 toPublicItems(s.Items),
		Errors:                s.Errors,
		LastTournamentAt:      s.LastTournamentAt,
		TournamentCount:       s.TournamentCount,
	}
}

func toPublicSessions(sessions []model.Session) []Session {
	out := make([]Session, len(sessions))
	for i, s := range sessions {
		out[i] = toPublicSession(s)
	}
	return out
}

func toPublicStatus(st engine.Status) Status {
	return Status{
		ID:                    st.ID,
		Name:                  st.Name,
		Status:                SessionStatus(st.Status),
		CreatedAt:             st.CreatedAt,
		StartedAt:             st.StartedAt,
		Runtime:               st.Runtime,
		TotalGenerations:      st.TotalGenerations,
		SuccessfulGenerations: st.SuccessfulGenerations,
		FailedGenerations:     st.FailedGenerations,
		ItemCount:             st.ItemCount,
		LastGenerationAt:      st.LastGenerationAt,
		NextGenerationAt:      st.NextGenerationAt,
		LastTournamentAt:      st.LastTournamentAt,
		TournamentCount:       st.TournamentCount,
		Errors:                st.Errors,
	}
}

func toPublicRecord(r model.TournamentRecord) TournamentRecord {
	rounds := make([][]MatchResult, len(r.Rounds))
	for i, round := range r.Rounds {
		rounds[i] = make([]MatchResult, len(round))
		for j, m := range round {
			rounds[i][j] = MatchResult(m)
		}
	}
	return TournamentRecord{
		ID:           r.ID,
		SessionID:    r.SessionID,
		CreatedAt:    r.CreatedAt,
		Participants: r.Participants,
		WinnerID:     r.WinnerID,
		WinnerTitle:  r.WinnerTitle,
		Rounds:       rounds,
		Config:       toPublicTournamentConfig(r.Config),
	}
}

func toPublicAlert(a model.Alert) Alert {
	return Alert{
		ID:        a.ID,
		SessionID: a.SessionID,
		Type:      AlertType(a.Type),
		Severity:  AlertSeverity(a.Severity),
		Message:   a.Message,
		CreatedAt: a.CreatedAt,
	}
}

func toPublicAlerts(alerts []model.Alert) []Alert {
	out := make([]Alert, len(alerts))
	for i, a := range alerts {
		out[i] = toPublicAlert(a)
	}
	return out
}

func toPublicMetrics(m monitor.Metrics) Metrics {
	return Metrics{
		Status:           m.Status,
		Window:           m.Window,
		SuccessCount:     m.SuccessCount,
		FailureCount:     m.FailureCount,
		TotalCount:       m.TotalCount,
		SuccessRate:      m.SuccessRate,
		FailureRate:      m.FailureRate,
		GenerationRate:   m.GenerationRate,
		AvgCycleDuration: m.AvgCycleDuration,
		FirstEventAt:     m.FirstEventAt,
		LastSuccessAt:    m.LastSuccessAt,
		TimeSinceSuccess: m.TimeSinceSuccess,
	}
}

func toPublicHealth(h monitor.Health) Health {
	out := Health{
		Status:   h.Status,
		Sessions: make(map[uuid.UUID]SessionHealth, len(h.Sessions)),
	}
	for id, sh := range h.Sessions {
		out.Sessions[id] = SessionHealth(sh)
	}
	return out
}
