package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/model"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/tournament"
)

const storeTimeout = 5 * time.Second

var errProducerPanic = errors.New("producer panicked")

type cycleOutcome int

const (
	cycleSucceeded cycleOutcome = iota
	cycleFailed
	cycleBudgetSkipped
	cycleAborted
)

// runWorker is the per-session generation loop. It owns the escalation
// streak and the tournament cadence counter; both reset when a fresh
// worker is spawned.
func (e *Engine) runWorker(ctx context.Context, cancel context.CancelFunc, s *session, cfg model.SessionConfig, done chan struct{}) {
	defer close(done)
	defer cancel()

	s.mu.Lock()
	id := s.state.ID
	name := s.state.Name
	s.mu.Unlock()

	logger := e.logger.With("session_id", id, "session", name)
	logger.Info("engine: worker running", "interval", cfg.Interval)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	frequency := cfg.TournamentFrequency
	if frequency < 1 {
		frequency = 1
	}

	streak := 0
	sinceCheck := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("engine: worker exiting")
			return
		case <-ticker.C:
		}

		// Paused sessions keep ticking without generating, so resume
		// picks up at the next natural tick instead of bursting.
		s.mu.Lock()
		status := s.state.Status
		s.mu.Unlock()
		if status != model.StatusRunning {
			continue
		}

		switch e.runCycle(ctx, s, cfg, logger) {
		case cycleSucceeded:
			streak = 0
		case cycleFailed:
			streak++
		case cycleBudgetSkipped:
			// Budget exhaustion is transient and clears on its own as
			// the spending window slides; it does not feed escalation.
		case cycleAborted:
			continue
		}

		if streak >= cfg.MaxConsecutiveFailures {
			e.escalate(s, logger, streak)
			return
		}

		if cfg.TournamentEnabled {
			sinceCheck++
			if sinceCheck >= frequency {
				sinceCheck = 0
				e.maybeTournament(ctx, s, cfg, logger)
			}
		}
	}
}

// runCycle performs one generation attempt end to end: budget
// admission, producer call, quality filter, storage append with FIFO
// eviction, ledger attribution, and monitor bookkeeping.
func (e *Engine) runCycle(ctx context.Context, s *session, cfg model.SessionConfig, logger *slog.Logger) cycleOutcome {
	s.mu.Lock()
	id := s.state.ID
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "contgen.cycle",
		oteltrace.WithAttributes(attribute.String("session.id", id.String())))
	defer span.End()

	start := time.Now()

	if cfg.Budget.Enabled() && e.estimator != nil {
		estimate := e.estimator.EstimateCost(cfg.ItemsPerBatch)
		if !e.tracker.CanSpend(estimate, cfg.Budget) {
			e.recordFailure(s, cfg, model.ReasonBudgetExceeded,
				fmt.Sprintf("estimated cost %.4f exceeds remaining budget", estimate), 0)
			logger.Warn("engine: cycle skipped, budget exhausted", "estimated_cost", estimate)
			span.SetAttributes(attribute.String("cycle.outcome", "budget_skipped"))
			return cycleBudgetSkipped
		}
	}

	batch, err := e.produce(ctx, id, cfg)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug("engine: cycle aborted by shutdown")
			return cycleAborted
		}
		reason := model.ReasonProducerFailure
		if errors.Is(err, errProducerPanic) {
			reason = model.ReasonProducerPanic
		}
		e.recordFailure(s, cfg, reason, err.Error(), time.Since(start))
		logger.Error("engine: generation failed", "reason", reason, "error", err)
		span.SetAttributes(attribute.String("cycle.outcome", reason))
		return cycleFailed
	}

	// Ledger attribution covers the whole batch before filtering:
	// rejected candidates cost as much to produce as accepted ones.
	if cfg.Budget.Enabled() && e.estimator != nil && len(batch) > 0 {
		cost := e.estimator.EstimateCost(len(batch))
		if rerr := e.tracker.Record(id, cost, cfg.Budget); rerr != nil {
			logger.Warn("engine: spend not recorded", "cost", cost, "error", rerr)
		}
	}

	accepted := make([]model.Item, 0, len(batch))
	for _, item := range batch {
		if e.accept(item, cfg) {
			accepted = append(accepted, item)
		}
	}

	now := time.Now()
	s.mu.Lock()
	for i := range accepted {
		if accepted[i].ID == uuid.Nil {
			accepted[i].ID = uuid.New()
		}
		accepted[i].SessionID = id
		s.state.NextSequence++
		accepted[i].Sequence = s.state.NextSequence
		if accepted[i].CreatedAt.IsZero() {
			accepted[i].CreatedAt = now
		}
	}
	s.state.Items = append(s.state.Items, accepted...)
	evicted := 0
	if len(s.state.Items) > cfg.CleanupThreshold {
		evicted = len(s.state.Items) - cfg.MaxStoredItems
		s.state.Items = append(s.state.Items[:0], s.state.Items[evicted:]...)
	}
	s.state.TotalGenerations++
	s.state.SuccessfulGenerations++
	s.state.LastGenerationAt = &now
	snap := s.state.Clone()
	s.mu.Unlock()

	elapsed := time.Since(start)
	e.monitor.RecordEvent(model.Event{
		ID:         uuid.New(),
		SessionID:  id,
		Type:       model.EventGenerationCompleted,
		OccurredAt: now,
		Duration:   elapsed,
		Facts: map[string]any{
			"produced": len(batch),
			"accepted": len(accepted),
			"evicted":  evicted,
		},
	})
	logger.Info("engine: cycle completed",
		"produced", len(batch), "accepted", len(accepted),
		"evicted", evicted, "stored", len(snap.Items), "duration", elapsed)
	if counter, cerr := meter.Int64Counter("contgen.cycles"); cerr == nil {
		counter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", "completed")))
	}
	if counter, cerr := meter.Int64Counter("contgen.items.accepted"); cerr == nil {
		counter.Add(ctx, int64(len(accepted)))
	}
	span.SetAttributes(
		attribute.String("cycle.outcome", "completed"),
		attribute.Int("cycle.accepted", len(accepted)),
		attribute.Int("cycle.evicted", evicted))

	_ = e.saveSession(snap)
	if e.notify != nil && len(accepted) > 0 {
		e.notifyAsync(id, accepted)
	}
	return cycleSucceeded
}

// produce shields the worker from a panicking host producer.
func (e *Engine) produce(ctx context.Context, id uuid.UUID, cfg model.SessionConfig) (items []model.Item, err error) {
	if e.producer == nil {
		return nil, errors.New("engine: no producer configured")
	}
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = fmt.Errorf("%w: %v", errProducerPanic, r)
		}
	}()
	return e.producer.Produce(ctx, id, cfg)
}

// recordFailure updates counters and the bounded error log, and feeds
// the monitor. Budget skips pass zero duration; the monitor keeps those
// out of its cycle-time averages.
func (e *Engine) recordFailure(s *session, cfg model.SessionConfig, reason, detail string, took time.Duration) {
	now := time.Now()
	s.mu.Lock()
	id := s.state.ID
	s.state.TotalGenerations++
	s.state.FailedGenerations++
	s.state.LastGenerationAt = &now
	s.state.Errors = append(s.state.Errors, fmt.Sprintf("%s: %s", reason, detail))
	if over := len(s.state.Errors) - cfg.MaxErrorLog; over > 0 {
		s.state.Errors = append(s.state.Errors[:0], s.state.Errors[over:]...)
	}
	snap := s.state.Clone()
	s.mu.Unlock()

	e.monitor.RecordEvent(model.Event{
		ID:         uuid.New(),
		SessionID:  id,
		Type:       model.EventGenerationFailed,
		OccurredAt: now,
		Duration:   took,
		Facts:      map[string]any{"reason": reason},
	})
	if counter, err := meter.Int64Counter("contgen.cycles"); err == nil {
		counter.Add(context.Background(), 1,
			otelmetric.WithAttributes(attribute.String("outcome", reason)))
	}
	_ = e.saveSession(snap)
}

func (e *Engine) escalate(s *session, logger *slog.Logger, streak int) {
	s.mu.Lock()
	s.state.Status = model.StatusError
	snap := s.state.Clone()
	s.mu.Unlock()

	logger.Error("engine: session escalated to error, worker halting",
		"consecutive_failures", streak)
	if counter, err := meter.Int64Counter("contgen.sessions.escalated"); err == nil {
		counter.Add(context.Background(), 1)
	}
	_ = e.saveSession(snap)
}

// maybeTournament consults the session trigger and runs a bracket when
// it fires. A broken comparator must not take the generation loop down
// with it, so failures only log.
func (e *Engine) maybeTournament(ctx context.Context, s *session, cfg model.SessionConfig, logger *slog.Logger) {
	s.mu.Lock()
	id := s.state.ID
	items := make([]model.Item, len(s.state.Items))
	copy(items, s.state.Items)
	lastAt := copyTime(s.state.LastTournamentAt)
	s.mu.Unlock()

	if !tournament.ShouldRun(cfg.Tournament, items, lastAt, time.Now()) {
		return
	}
	rec, err := e.executor.Execute(ctx, id, items, cfg.Tournament)
	if err != nil {
		logger.Warn("engine: tournament failed", "error", err)
		return
	}
	if rec == nil {
		return
	}

	s.mu.Lock()
	at := rec.CreatedAt
	s.state.LastTournamentAt = &at
	s.state.TournamentCount++
	snap := s.state.Clone()
	s.mu.Unlock()

	_ = e.saveSession(snap)
	e.saveTournament(*rec)
}

// notifyAsync runs the host callback off the worker goroutine under a
// watchdog, so a slow or panicking host cannot stall generation.
func (e *Engine) notifyAsync(id uuid.UUID, items []model.Item) {
	go func() {
		finished := make(chan struct{})
		go func() {
			defer close(finished)
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("engine: notify callback panicked",
						"session_id", id, "panic", r)
				}
			}()
			e.notify(id, items)
		}()
		select {
		case <-finished:
		case <-time.After(e.cfg.NotifyTimeout):
			e.logger.Warn("engine: notify callback exceeded timeout",
				"session_id", id, "timeout", e.cfg.NotifyTimeout)
		}
	}()
}

// saveSession persists one snapshot, best effort. Errors are logged and
// returned; cycle-time callers drop them, Close propagates the last.
func (e *Engine) saveSession(s model.Session) error {
	if e.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := e.store.SaveSession(ctx, s); err != nil {
		e.logger.Warn("engine: snapshot save failed", "session_id", s.ID, "error", err)
		return err
	}
	return nil
}

func (e *Engine) saveTournament(r model.TournamentRecord) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := e.store.SaveTournament(ctx, r); err != nil {
		e.logger.Warn("engine: tournament snapshot failed",
			"tournament_id", r.ID, "error", err)
	}
}
