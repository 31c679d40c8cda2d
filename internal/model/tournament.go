package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TriggerType decides when an automatic tournament runs.
type TriggerType string

const (
	// TriggerConceptCount fires once the session holds at least
	// TriggerCount items.
	TriggerConceptCount TriggerType = "concept_count"

	// TriggerTimeInterval fires once TriggerInterval has elapsed since
	// the session's previous tournament (or since its first item when
	// none has run yet).
	TriggerTimeInterval TriggerType = "time_interval"

	// TriggerQuality fires once at least MinConcepts items score at or
	// above TriggerQuality.
	TriggerQuality TriggerType = "quality_threshold"

	// TriggerManual never fires automatically; the host calls
	// Engine.RunTournament.
	TriggerManual TriggerType = "manual"
)

// TournamentConfig controls automatic tournaments for one session.
// Trigger values are typed per trigger kind rather than overloading a
// single numeric field.
type TournamentConfig struct {
	Trigger TriggerType `json:"trigger"`

	// TriggerCount applies to TriggerConceptCount.
	TriggerCount int `json:"trigger_count,omitempty"`

	// TriggerInterval applies to TriggerTimeInterval.
	TriggerInterval time.Duration `json:"trigger_interval,omitempty"`

	// TriggerQuality applies to TriggerQuality, in [0,1].
	TriggerQuality float64 `json:"trigger_quality,omitempty"`

	// Size is the maximum bracket size; the most recent Size items
	// participate.
	Size int `json:"size"`

	// MinConcepts is the minimum participant count; below it the
	// executor declines to run (a normal no-op, not an error).
	MinConcepts int `json:"min_concepts"`

	// Criteria is an opaque description passed to the comparator for
	// context (e.g. "originality and commercial potential").
	Criteria string `json:"criteria,omitempty"`
}

// Validate checks bracket parameters and the active trigger's value.
func (c TournamentConfig) Validate() error {
	if c.Size < 2 {
		return fmt.Errorf("model: tournament size must be >= 2, got %d", c.Size)
	}
	if c.MinConcepts < 2 {
		return fmt.Errorf("model: tournament min_concepts must be >= 2, got %d", c.MinConcepts)
	}
	switch c.Trigger {
	case TriggerConceptCount:
		if c.TriggerCount < 1 {
			return fmt.Errorf("model: concept_count trigger requires trigger_count >= 1")
		}
	case TriggerTimeInterval:
		if c.TriggerInterval <= 0 {
			return fmt.Errorf("model: time_interval trigger requires a positive trigger_interval")
		}
	case TriggerQuality:
		if c.TriggerQuality <= 0 || c.TriggerQuality > 1 {
			return fmt.Errorf("model: quality_threshold trigger requires trigger_quality in (0,1]")
		}
	case TriggerManual:
	default:
		return fmt.Errorf("model: unknown tournament trigger %q", c.Trigger)
	}
	return nil
}

// MatchResult is one resolved pairing in a bracket round. A bye is
// recorded as a match with Bye set, an empty B side, and the lone
// participant as winner.
type MatchResult struct {
	Round     int       `json:"round"`
	ItemAID   uuid.UUID `json:"item_a_id"`
	ItemA     string    `json:"item_a"`
	ItemBID   uuid.UUID `json:"item_b_id,omitempty"`
	ItemB     string    `json:"item_b,omitempty"`
	WinnerID  uuid.UUID `json:"winner_id"`
	Winner    string    `json:"winner"`
	Rationale string    `json:"rationale,omitempty"`
	Bye       bool      `json:"bye,omitempty"`
}

// TournamentRecord is the immutable result of one completed bracket.
type TournamentRecord struct {
	ID           uuid.UUID        `json:"id"`
	SessionID    uuid.UUID        `json:"session_id"`
	CreatedAt    time.Time        `json:"created_at"`
	Participants int              `json:"participants"`
	WinnerID     uuid.UUID        `json:"winner_id"`
	WinnerTitle  string           `json:"winner_title"`
	Rounds       [][]MatchResult  `json:"rounds"`
	Config       TournamentConfig `json:"config"`
}

// TournamentStats aggregates history, optionally for one session.
type TournamentStats struct {
	Count               int     `json:"count"`
	TotalParticipants   int     `json:"total_participants"`
	AverageParticipants float64 `json:"average_participants"`
}
