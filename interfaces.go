package contgen

import (
	"context"

	"github.com/google/uuid"
)

// Producer generates one batch of candidate items per cycle. It is the
// only required callback; sessions cannot make progress without one.
// The engine fills in ID, SessionID, Sequence, and CreatedAt when the
// producer leaves them zero; Quality and Accepted are the producer's
// own assessment and feed the acceptance filter.
//
// Produce runs on the session's worker goroutine. The context is
// cancelled when the session stops or the engine closes; slow producers
// should honor it. A panic inside Produce is contained and counted as a
// failed cycle.
type Producer interface {
	Produce(ctx context.Context, sessionID uuid.UUID, cfg SessionConfig) ([]Item, error)
}

// Comparator judges one tournament pairing against the session's
// evaluation criteria. It may do arbitrary slow work (an LLM call, a
// human queue); the context bounds it. An error aborts the tournament
// without touching the generation loop.
type Comparator interface {
	Compare(ctx context.Context, a, b Item, criteria string) (Verdict, error)
}

// CostEstimator predicts the cost of producing a batch before the
// producer is invoked, in the same cost units as SpendingLimits. The
// engine skips a cycle when the estimate does not fit the session's
// remaining budget. When no estimator is registered, budget admission
// control is disabled and only post-hoc recording applies.
type CostEstimator interface {
	EstimateCost(batchSize int) float64
}

// AcceptanceFilter decides whether a candidate is kept. Replaces the
// built-in rule (keep when Accepted is set or Quality meets the
// session's threshold). Only the last registered filter takes effect.
type AcceptanceFilter func(item Item, cfg SessionConfig) bool

// NotifyFunc receives the accepted items of a completed cycle. Called
// asynchronously after the cycle commits; a slow or panicking notifier
// is logged and abandoned without blocking the worker. Multiple
// notifiers may be registered; all receive every batch.
type NotifyFunc func(sessionID uuid.UUID, items []Item)

// AlertFunc receives every raised monitoring alert asynchronously.
// Multiple handlers may be registered; all receive every alert.
type AlertFunc func(alert Alert)
