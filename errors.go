package contgen

import (
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/engine"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/spend"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/tournament"
)

// Sentinel errors surfaced by Engine methods. Aliased from the
// internal packages that produce them so errors.Is works across the
// public boundary.
var (
	// ErrSessionNotFound means no live session has the given ID.
	ErrSessionNotFound = engine.ErrSessionNotFound

	// ErrInvalidConfig wraps the specific validation failure of a
	// rejected session config.
	ErrInvalidConfig = engine.ErrInvalidConfig

	// ErrSessionNotRunning means a lifecycle transition does not apply
	// to the session's current state.
	ErrSessionNotRunning = engine.ErrSessionNotRunning

	// ErrClosed means the engine has been closed.
	ErrClosed = engine.ErrClosed

	// ErrBudgetExceeded means recording a charge would push a rolling
	// window over its limit.
	ErrBudgetExceeded = spend.ErrBudgetExceeded

	// ErrNoComparator means a tournament was requested but no
	// comparator is registered.
	ErrNoComparator = tournament.ErrNoComparator

	// ErrComparatorFailed means a tournament aborted because a pairing
	// could not be resolved.
	ErrComparatorFailed = tournament.ErrComparatorFailed
)
