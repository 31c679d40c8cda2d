// Package spend enforces rolling spending budgets for generation work.
//
// A single ledger is shared by every session worker in the process;
// per-session limits are evaluated against it at admission time. The
// Tracker interface is the contract so hosts that meter costs elsewhere
// can substitute their own implementation.
package spend

import (
	"errors"

	"github.com/google/uuid"

	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/model"
)

// ErrBudgetExceeded is returned when recording an amount would push a
// rolling window past its limit. The ledger is left unchanged.
var ErrBudgetExceeded = errors.New("spend: budget exceeded")

// Tracker answers "can this much more be spent right now?" and records
// what was spent. Implementations must be safe for concurrent use.
type Tracker interface {
	// CanSpend reports whether amount fits under both rolling windows.
	// Limits of zero are unlimited.
	CanSpend(amount float64, limits model.SpendingLimits) bool

	// Record appends an entry attributed to sessionID. It re-checks the
	// windows under the same lock and returns ErrBudgetExceeded, without
	// recording, if the amount no longer fits.
	Record(sessionID uuid.UUID, amount float64, limits model.SpendingLimits) error

	// Status reports current rolling totals.
	Status() model.SpendingStatus
}

// Noop tracks nothing and permits everything. Used when spending
// control is disabled.
type Noop struct{}

// CanSpend always returns true.
func (Noop) CanSpend(float64, model.SpendingLimits) bool { return true }

// Record discards the entry.
func (Noop) Record(uuid.UUID, float64, model.SpendingLimits) error { return nil }

// Status reports an empty ledger.
func (Noop) Status() model.SpendingStatus { return model.SpendingStatus{} }
