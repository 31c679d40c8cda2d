package contgen

import (
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

// SpendingLimits caps how much a session may spend against the shared
// ledger, in cost units. A zero limit disables that window's check.
type SpendingLimits struct {
	Daily  float64
	Hourly float64
}

// TournamentConfig controls automatic tournaments for one session.
type TournamentConfig struct {
	Trigger TriggerType

	// TriggerCount applies to TriggerConceptCount.
	TriggerCount int

	// TriggerInterval applies to TriggerTimeInterval.
	TriggerInterval time.Duration

	// TriggerQuality applies to TriggerQuality, in [0,1].
	TriggerQuality float64

	// Size is the maximum bracket size; the most recent Size items
	// participate.
	Size int

	// MinConcepts is the minimum participant count; below it a
	// tournament quietly declines to run.
	MinConcepts int

	// Criteria is an opaque description passed to the comparator for
	// context (e.g. "originality and commercial potential").
	Criteria string
}

// SessionConfig is the immutable configuration of a generation session.
// It is plain data: callbacks (producer, comparator, notifiers) are
// registered on the engine via options, never stored here.
type SessionConfig struct {
	// Interval between generation cycles. Zero means the engine default.
	Interval time.Duration

	// ItemsPerBatch is how many candidates the producer is asked for
	// per cycle. Must be >= 1.
	ItemsPerBatch int

	// MaxStoredItems is the number of items retained after eviction.
	// Zero means the engine default.
	MaxStoredItems int

	// CleanupThreshold is the item count that triggers FIFO eviction
	// down to MaxStoredItems. Must be >= MaxStoredItems when both are
	// set. Zero means the engine default.
	CleanupThreshold int

	// QualityThreshold in [0,1]; candidates below it are discarded.
	// Zero disables filtering.
	QualityThreshold float64

	// TournamentEnabled turns automatic tournaments on.
	TournamentEnabled bool

	// TournamentFrequency is the number of generation cycles between
	// automatic trigger checks. Zero means check after every cycle.
	TournamentFrequency int

	// Tournament configures trigger and bracket parameters. Ignored
	// unless TournamentEnabled is set.
	Tournament TournamentConfig

	// Budget caps spending attributed to this session's cycles.
	Budget SpendingLimits

	// MaxConsecutiveFailures before the session transitions to Error
	// and its worker halts. Zero means the engine default.
	MaxConsecutiveFailures int

	// MaxErrorLog bounds the session's retained error messages.
	// Zero means the engine default.
	MaxErrorLog int
}

// Item is one generated candidate. The engine treats the body as
// opaque; Title exists so tournament match results read well, and
// Quality/Accepted carry the producer's own assessment for filtering.
type Item struct {
	ID        uuid.UUID
	SessionID uuid.UUID

	// Sequence is the per-session generation order, assigned by the
	// engine. Strictly increasing; never reused after eviction.
	Sequence int64

	Title string
	Body  string

	// Quality in [0,1] as reported by the producer. Compared against
	// the session's quality threshold when filtering is enabled.
	Quality float64

	// Accepted lets a producer mark a candidate as passing its own
	// acceptance check regardless of the numeric score.
	Accepted bool

	CreatedAt time.Time
}

// Session is a snapshot of one generation session's full state,
// including its retained items and recent errors.
type Session struct {
	ID        uuid.UUID
	Name      string
	Config    SessionConfig
	Status    SessionStatus
	CreatedAt time.Time
	StartedAt *time.Time

	// LastGenerationAt is the completion time of the most recent cycle,
	// successful or not.
	LastGenerationAt *time.Time

	TotalGenerations      int
	SuccessfulGenerations int
	FailedGenerations     int

	// Items in generation order (oldest first). Bounded by eviction.
	Items []Item

	// Errors is a bounded log of recent cycle error summaries.
	Errors []string

	LastTournamentAt *time.Time
	TournamentCount  int
}

// Status is a point-in-time operational view of one session, lighter
// than a full Session snapshot (no item bodies).
type Status struct {
	ID        uuid.UUID
	Name      string
	Status    SessionStatus
	CreatedAt time.Time
	StartedAt *time.Time

	// Runtime is how long ago the current worker started. Zero unless
	// the session is Running or Paused.
	Runtime time.Duration

	TotalGenerations      int
	SuccessfulGenerations int
	FailedGenerations     int
	ItemCount             int

	LastGenerationAt *time.Time

	// NextGenerationAt estimates the next cycle. Set only while Running.
	NextGenerationAt *time.Time

	LastTournamentAt *time.Time
	TournamentCount  int

	Errors []string
}

// Verdict is a comparator's resolution of one pairing. Winner must be
// the ID of one of the two compared items.
type Verdict struct {
	Winner    uuid.UUID
	Rationale string
}

// MatchResult is one resolved pairing in a bracket round. A bye is
// recorded as a match with Bye set, an empty B side, and the lone
// participant as winner.
type MatchResult struct {
	Round     int
	ItemAID   uuid.UUID
	ItemA     string
	ItemBID   uuid.UUID
	ItemB     string
	WinnerID  uuid.UUID
	Winner    string
	Rationale string
	Bye       bool
}

// TournamentRecord is the immutable result of one completed bracket.
type TournamentRecord struct {
	ID           uuid.UUID
	SessionID    uuid.UUID
	CreatedAt    time.Time
	Participants int
	WinnerID     uuid.UUID
	WinnerTitle  string
	Rounds       [][]MatchResult
	Config       TournamentConfig
}

// TournamentStats aggregates tournament history, optionally for one
// session.
type TournamentStats struct {
	Count               int
	TotalParticipants   int
	AverageParticipants float64
}

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

// Alert is one raised threshold violation.
type Alert struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Type      AlertType
	Severity  AlertSeverity
	Message   string
	CreatedAt time.Time
}

// Metrics summarizes a session's generation activity over the trailing
// performance window. When no events fall inside the window, Status is
// "no_data" and every other field is zero; callers must not read the
// zeros as a healthy session.
type Metrics struct {
	Status string // ok | no_data
	Window time.Duration

	SuccessCount int
	FailureCount int
	TotalCount   int
	SuccessRate  float64
	FailureRate  float64

	// GenerationRate is successful cycles per hour, normalized by the
	// window length rather than the session's age.
	GenerationRate float64

	// AvgCycleDuration is the mean of recorded cycle durations in the
	// window. Skipped cycles carry no duration and are excluded.
	AvgCycleDuration time.Duration

	FirstEventAt     *time.Time
	LastSuccessAt    *time.Time
	TimeSinceSuccess time.Duration
}

// SessionHealth is one session's slice of the system health report.
type SessionHealth struct {
	Status   string // healthy | warning | error
	Warnings int
	Errors   int
}

// Health aggregates the alert checks across all monitored sessions.
type Health struct {
	Status   string // healthy | warning | error
	Sessions map[uuid.UUID]SessionHealth
}

// SpendingStatus is a point-in-time view of ledger totals over the two
// rolling budget windows.
type SpendingStatus struct {
	HourTotal float64
	DayTotal  float64
	Entries   int
}
