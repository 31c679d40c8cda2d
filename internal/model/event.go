package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the category of a monitor event.
type EventType string

const (
	EventGenerationCompleted EventType = "generation_completed"
	EventGenerationFailed    EventType = "generation_failed"
)

// Failure reasons recorded in Event.Facts under "reason".
const (
	ReasonBudgetExceeded  = "budget_exceeded"
	ReasonProducerFailure = "producer_failure"
	ReasonProducerPanic   = "producer_panic"
)

// Event is one append-only entry in a session's generation journal.
// Never mutated after recording; pruned only by retention.
type Event struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`

	// Duration is the cycle's wall time. Zero when not applicable
	// (e.g. a budget-skipped cycle).
	Duration time.Duration `json:"duration"`

	// Facts carries free-form details: batch_size, accepted, reason,
	// error. Keys are strings; values stay JSON-friendly.
	Facts map[string]any `json:"facts,omitempty"`
}
