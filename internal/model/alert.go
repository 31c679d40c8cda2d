package model

import (
	"time"

	"github.com/google/uuid"
)

// AlertSeverity ranks how bad an alert is. Error-severity alerts drive
// the overall system health to "error".
type AlertSeverity string

const (
	SeverityWarning AlertSeverity = "warning"
	SeverityError   AlertSeverity = "error"
)

// AlertType identifies which threshold check raised an alert.
type AlertType string

const (
	AlertHighFailureRate   AlertType = "high_failure_rate"
	AlertGenerationDelay   AlertType = "generation_delay"
	AlertHighErrorCount    AlertType = "high_error_count"
	AlertLowGenerationRate AlertType = "low_generation_rate"
)

// Alert is one raised threshold violation. Accumulated in a
// process-wide list; callers may filter or clear by session.
type Alert struct {
	ID        uuid.UUID     `json:"id"`
	SessionID uuid.UUID     `json:"session_id"`
	Type      AlertType     `json:"type"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"created_at"`
}
