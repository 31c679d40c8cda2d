package model

import (
	"time"

	"github.com/google/uuid"
)

// Item is one generated candidate. The scheduler treats the body as
// opaque; Title exists so tournament match results read well, and
// Quality/Accepted carry the producer's own assessment for filtering.
type Item struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`

	// Sequence is the per-session generation order, assigned by the
	// engine. Strictly increasing; never reused after eviction.
	Sequence int64 `json:"sequence"`

	Title string `json:"title"`
	Body  string `json:"body"`

	// Quality in [0,1] as reported by the producer. Compared against
	// the session's quality threshold when filtering is enabled.
	Quality float64 `json:"quality"`

	// Accepted lets a producer mark a candidate as passing its own
	// acceptance check regardless of the numeric score.
	Accepted bool `json:"accepted"`

	CreatedAt time.Time `json:"created_at"`
}
