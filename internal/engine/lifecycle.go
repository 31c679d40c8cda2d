package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/model"
)

// CreateSession registers a new session in the Stopped state. Zero
// Interval, MaxConsecutiveFailures, and MaxErrorLog pick up the engine
// defaults before validation.
func (e *Engine) CreateSession(name string, cfg model.SessionConfig) (model.Session, error) {
	if e.isClosed() {
		return model.Session{}, ErrClosed
	}
	if cfg.Interval <= 0 {
		cfg.Interval = e.cfg.DefaultInterval
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = e.cfg.MaxConsecutiveFailures
	}
	if cfg.MaxErrorLog <= 0 {
		cfg.MaxErrorLog = e.cfg.MaxErrorLog
	}
	if cfg.MaxStoredItems <= 0 {
		cfg.MaxStoredItems = e.cfg.MaxStoredItems
	}
	if cfg.CleanupThreshold <= 0 {
		cfg.CleanupThreshold = e.cfg.CleanupThreshold
		// A raised cap with an unset threshold gets cap == threshold
		// instead of a validation error.
		if cfg.CleanupThreshold < cfg.MaxStoredItems {
			cfg.CleanupThreshold = cfg.MaxStoredItems
		}
	}
	if err := cfg.Validate(); err != nil {
		return model.Session{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s := &session{state: model.Session{
		ID:        uuid.New(),
		Name:      name,
		Config:    cfg,
		Status:    model.StatusStopped,
		CreatedAt: time.Now(),
	}}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return model.Session{}, ErrClosed
	}
	e.sessions[s.state.ID] = s
	e.mu.Unlock()

	out := s.state.Clone()
	_ = e.saveSession(out)
	e.logger.Info("engine: session created",
		"session_id", out.ID, "session", name, "interval", cfg.Interval)
	return out, nil
}

// StartSession spawns the session worker. Starting a Running session is
// a no-op, starting a Paused one resumes it, and starting from Error
// clears the status and begins a fresh failure streak.
func (e *Engine) StartSession(id uuid.UUID) error {
	if e.isClosed() {
		return ErrClosed
	}
	s, err := e.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	switch s.state.Status {
	case model.StatusRunning:
		s.mu.Unlock()
		return nil
	case model.StatusPaused:
		s.state.Status = model.StatusRunning
		snap := s.state.Clone()
		s.mu.Unlock()
		_ = e.saveSession(snap)
		e.logger.Info("engine: session resumed", "session_id", id)
		return nil
	}

	if s.workerAlive() {
		e.logger.Warn("engine: replacing abandoned worker", "session_id", id)
	}
	now := time.Now()
	ctx, cancel := context.WithCancel(e.baseCtx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.state.Status = model.StatusRunning
	s.state.StartedAt = &now
	cfg := s.state.Config
	snap := s.state.Clone()
	s.mu.Unlock()

	go e.runWorker(ctx, cancel, s, cfg, done)
	_ = e.saveSession(snap)
	e.logger.Info("engine: session started", "session_id", id, "interval", cfg.Interval)
	return nil
}

// StopSession cancels the worker and waits up to StopTimeout for it to
// exit. A worker that misses the deadline is abandoned; the session is
// marked Stopped either way. Safe to call from any state.
func (e *Engine) StopSession(id uuid.UUID) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	return e.stop(s)
}

func (e *Engine) stop(s *session) error {
	s.mu.Lock()
	id := s.state.ID
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(e.cfg.StopTimeout):
			e.logger.Warn("engine: worker missed stop deadline, abandoning",
				"session_id", id, "timeout", e.cfg.StopTimeout)
		}
	}

	s.mu.Lock()
	stopped := s.state.Status != model.StatusStopped
	s.state.Status = model.StatusStopped
	snap := s.state.Clone()
	s.mu.Unlock()

	if stopped {
		e.logger.Info("engine: session stopped", "session_id", id)
	}
	return e.saveSession(snap)
}

// PauseSession suspends generation without stopping the worker. The
// ticker keeps elapsing while paused, so resuming never produces a
// catch-up burst of cycles.
func (e *Engine) PauseSession(id uuid.UUID) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.state.Status != model.StatusRunning {
		status := s.state.Status
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot pause a %s session", ErrSessionNotRunning, status)
	}
	s.state.Status = model.StatusPaused
	snap := s.state.Clone()
	s.mu.Unlock()

	_ = e.saveSession(snap)
	e.logger.Info("engine: session paused", "session_id", id)
	return nil
}

// ResumeSession moves a Paused session back to Running.
func (e *Engine) ResumeSession(id uuid.UUID) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.state.Status != model.StatusPaused {
		status := s.state.Status
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot resume a %s session", ErrSessionNotRunning, status)
	}
	s.state.Status = model.StatusRunning
	snap := s.state.Clone()
	s.mu.Unlock()

	_ = e.saveSession(snap)
	e.logger.Info("engine: session resumed", "session_id", id)
	return nil
}

// DeleteSession stops the worker, removes the session, and archives a
// final copy. The monitor forgets the session's event journal; alerts
// already raised stay visible until cleared.
func (e *Engine) DeleteSession(id uuid.UUID) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	_ = e.stop(s)

	s.mu.Lock()
	s.deleted = true
	final := s.state.Clone()
	s.mu.Unlock()

	e.mu.Lock()
	delete(e.sessions, id)
	e.archive = append(e.archive, final)
	if over := len(e.archive) - e.cfg.ArchiveCapacity; over > 0 {
		e.archive = append(e.archive[:0], e.archive[over:]...)
	}
	e.mu.Unlock()

	e.monitor.Forget(id)
	if e.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if derr := e.store.DeleteSession(ctx, id); derr != nil {
			e.logger.Warn("engine: snapshot delete failed", "session_id", id, "error", derr)
		}
	}
	e.logger.Info("engine: session deleted", "session_id", id, "items", len(final.Items))
	return nil
}

// Status is a point-in-time view of one session.
type Status struct {
	ID        uuid.UUID           `json:"id"`
	Name      string              `json:"name"`
	Status    model.SessionStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	StartedAt *time.Time          `json:"started_at,omitempty"`

	// Runtime is how long ago the current worker started. Zero unless
	// the session is Running or Paused.
	Runtime time.Duration `json:"runtime"`

	TotalGenerations      int `json:"total_generations"`
	SuccessfulGenerations int `json:"successful_generations"`
	FailedGenerations     int `json:"failed_generations"`
	ItemCount             int `json:"item_count"`

	LastGenerationAt *time.Time `json:"last_generation_at,omitempty"`

	// NextGenerationAt estimates the next cycle. Set only while Running.
	NextGenerationAt *time.Time `json:"next_generation_at,omitempty"`

	LastTournamentAt *time.Time `json:"last_tournament_at,omitempty"`
	TournamentCount  int        `json:"tournament_count"`

	Errors []string `json:"errors,omitempty"`
}

// SessionStatus reports the current state of one session.
func (e *Engine) SessionStatus(id uuid.UUID) (Status, error) {
	s, err := e.lookup(id)
	if err != nil {
		return Status{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		ID:                    s.state.ID,
		Name:                  s.state.Name,
		Status:                s.state.Status,
		CreatedAt:             s.state.CreatedAt,
		StartedAt:             copyTime(s.state.StartedAt),
		TotalGenerations:      s.state.TotalGenerations,
		SuccessfulGenerations: s.state.SuccessfulGenerations,
		FailedGenerations:     s.state.FailedGenerations,
		ItemCount:             len(s.state.Items),
		LastGenerationAt:      copyTime(s.state.LastGenerationAt),
		LastTournamentAt:      copyTime(s.state.LastTournamentAt),
		TournamentCount:       s.state.TournamentCount,
		Errors:                append([]string(nil), s.state.Errors...),
	}

	active := st.Status == model.StatusRunning || st.Status == model.StatusPaused
	if active && st.StartedAt != nil {
		st.Runtime = time.Since(*st.StartedAt)
	}
	if st.Status == model.StatusRunning {
		base := st.StartedAt
		if st.LastGenerationAt != nil {
			base = st.LastGenerationAt
		}
		if base != nil {
			next := base.Add(s.state.Config.Interval)
			st.NextGenerationAt = &next
		}
	}
	return st, nil
}

// SessionItems returns up to limit of the most recently stored items in
// generation order. limit <= 0 returns everything.
func (e *Engine) SessionItems(id uuid.UUID, limit int) ([]model.Item, error) {
	s, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.state.Items
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	out := make([]model.Item, len(items))
	copy(out, items)
	return out, nil
}

// Sessions returns a copy of every live session, oldest first.
func (e *Engine) Sessions() []model.Session {
	e.mu.RLock()
	list := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		list = append(list, s)
	}
	e.mu.RUnlock()

	out := make([]model.Session, 0, len(list))
	for _, s := range list {
		s.mu.Lock()
		out = append(out, s.state.Clone())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// CompletedSessions returns the bounded archive of deleted sessions,
// oldest first.
func (e *Engine) CompletedSessions() []model.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.Session, 0, len(e.archive))
	for i := range e.archive {
		out = append(out, e.archive[i].Clone())
	}
	return out
}

// RunTournament runs one bracket immediately, regardless of the
// session's automatic trigger settings. It returns (nil, nil) when the
// session holds too few items to pair.
func (e *Engine) RunTournament(ctx context.Context, id uuid.UUID) (*model.TournamentRecord, error) {
	s, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	items := make([]model.Item, len(s.state.Items))
	copy(items, s.state.Items)
	cfg := s.state.Config
	s.mu.Unlock()

	rec, err := e.executor.Execute(ctx, id, items, cfg.Tournament)
	if err != nil || rec == nil {
		return nil, err
	}

	s.mu.Lock()
	at := rec.CreatedAt
	s.state.LastTournamentAt = &at
	s.state.TournamentCount++
	snap := s.state.Clone()
	s.mu.Unlock()

	_ = e.saveSession(snap)
	e.saveTournament(*rec)
	return rec, nil
}

// RestoreFromStore loads persisted sessions and tournament history into
// the registry. Restored sessions come back Stopped no matter what
// status they were saved with; the host decides what to start again.
// Returns the number of sessions loaded.
func (e *Engine) RestoreFromStore(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	saved, err := e.store.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore sessions: %w", err)
	}
	records, err := e.store.ListTournaments(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore tournaments: %w", err)
	}

	e.mu.Lock()
	loaded := 0
	for _, st := range saved {
		if _, ok := e.sessions[st.ID]; ok {
			continue
		}
		st.Status = model.StatusStopped
		e.sessions[st.ID] = &session{state: st}
		loaded++
	}
	e.mu.Unlock()

	e.executor.Restore(records)
	if loaded > 0 || len(records) > 0 {
		e.logger.Info("engine: state restored",
			"sessions", loaded, "tournaments", len(records))
	}
	return loaded, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
