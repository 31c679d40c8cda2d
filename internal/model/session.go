// Package model defines the core domain types for the continuous
// generation scheduler: sessions, generated items, monitor events,
// tournament records, and spending entries.
//
// Types use strong typing (UUIDs, time.Time, enums) and avoid
// interface{} wherever possible. Everything here is passive data;
// behavior lives in internal/engine, internal/monitor,
// internal/tournament, and internal/spend.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a generation session.
type SessionStatus string

const (
	StatusStopped SessionStatus = "stopped"
	StatusRunning SessionStatus = "running"
	StatusPaused  SessionStatus = "paused"
	StatusError   SessionStatus = "error"
)

// SpendingLimits caps how much a session may spend against the shared
// ledger, in cost units. A zero limit disables that window's check.
type SpendingLimits struct {
	Daily  float64 `json:"daily,omitempty"`
	Hourly float64 `json:"hourly,omitempty"`
}

// Enabled reports whether any budget window is configured.
func (l SpendingLimits) Enabled() bool {
	return l.Daily > 0 || l.Hourly > 0
}

// SessionConfig is the immutable configuration of a generation session.
// It is plain serializable data: host callbacks (producer, comparator,
// notifier) are registered on the engine, never stored here, so hosts
// can persist and reload configs verbatim.
type SessionConfig struct {
	// Interval between generation cycles. Zero means the engine default.
	Interval time.Duration `json:"interval"`

	// ItemsPerBatch is how many candidates the producer is asked for
	// per cycle. Must be >= 1.
	ItemsPerBatch int `json:"items_per_batch"`

	// MaxStoredItems is the number of items retained after eviction.
	MaxStoredItems int `json:"max_stored_items"`

	// CleanupThreshold is the item count that triggers FIFO eviction
	// down to MaxStoredItems. Must be >= MaxStoredItems.
	CleanupThreshold int `json:"cleanup_threshold"`

	// QualityThreshold in [0,1]; candidates below it are discarded.
	// Zero disables filtering.
	QualityThreshold float64 `json:"quality_threshold,omitempty"`

	// TournamentEnabled turns automatic tournaments on.
	TournamentEnabled bool `json:"tournament_enabled"`

	// TournamentFrequency is the number of generation cycles between
	// automatic trigger checks. Zero means check after every cycle.
	TournamentFrequency int `json:"tournament_frequency,omitempty"`

	// Tournament configures trigger and bracket parameters. Ignored
	// unless TournamentEnabled is set.
	Tournament TournamentConfig `json:"tournament,omitempty"`

	// Budget caps spending attributed to this session's cycles.
	Budget SpendingLimits `json:"budget,omitempty"`

	// MaxConsecutiveFailures before a session transitions to Error and
	// its worker halts. Zero means the engine default.
	MaxConsecutiveFailures int `json:"max_consecutive_failures,omitempty"`

	// MaxErrorLog bounds the session's retained error messages.
	// Zero means the engine default.
	MaxErrorLog int `json:"max_error_log,omitempty"`
}

// Validate checks the parts of a config that make a session unrunnable.
// Defaults (Interval, MaxConsecutiveFailures, MaxErrorLog) are applied
// by the engine, not here.
func (c SessionConfig) Validate() error {
	if c.ItemsPerBatch < 1 {
		return fmt.Errorf("model: items_per_batch must be >= 1, got %d", c.ItemsPerBatch)
	}
	if c.Interval < 0 {
		return fmt.Errorf("model: interval must not be negative, got %s", c.Interval)
	}
	if c.MaxStoredItems < 1 {
		return fmt.Errorf("model: max_stored_items must be >= 1, got %d", c.MaxStoredItems)
	}
	if c.CleanupThreshold < c.MaxStoredItems {
		return fmt.Errorf("model: cleanup_threshold (%d) must be >= max_stored_items (%d)",
			c.CleanupThreshold, c.MaxStoredItems)
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return fmt.Errorf("model: quality_threshold must be in [0,1], got %g", c.QualityThreshold)
	}
	if c.Budget.Daily < 0 || c.Budget.Hourly < 0 {
		return fmt.Errorf("model: budget limits must not be negative")
	}
	if c.TournamentEnabled {
		if err := c.Tournament.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Session is the full state of one generation session. The engine's
// worker owns the live instance; everyone else sees copies via Clone.
type Session struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Config    SessionConfig `json:"config"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	StartedAt *time.Time    `json:"started_at,omitempty"`

	// LastGenerationAt is the completion time of the most recent cycle,
	// successful or not.
	LastGenerationAt *time.Time `json:"last_generation_at,omitempty"`

	// Counters. Invariant: Successful + Failed == Total.
	TotalGenerations      int `json:"total_generations"`
	SuccessfulGenerations int `json:"successful_generations"`
	FailedGenerations     int `json:"failed_generations"`

	// Items in generation order (oldest first). Bounded by eviction.
	Items []Item `json:"items"`

	// Errors is a bounded log of recent cycle error summaries.
	Errors []string `json:"errors,omitempty"`

	// Tournament bookkeeping.
	LastTournamentAt *time.Time `json:"last_tournament_at,omitempty"`
	TournamentCount  int        `json:"tournament_count"`

	// NextSequence numbers items monotonically within the session so
	// ordering survives eviction and snapshot restore.
	NextSequence int64 `json:"next_sequence"`
}

// Clone returns a deep copy safe to hand across goroutine boundaries.
func (s *Session) Clone() Session {
	out := *s
	out.StartedAt = cloneTime(s.StartedAt)
	out.LastGenerationAt = cloneTime(s.LastGenerationAt)
	out.LastTournamentAt = cloneTime(s.LastTournamentAt)
	if s.Items != nil {
		out.Items = make([]Item, len(s.Items))
		copy(out.Items, s.Items)
	}
	if s.Errors != nil {
		out.Errors = make([]string, len(s.Errors))
		copy(out.Errors, s.Errors)
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
