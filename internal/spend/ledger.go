package spend

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/model"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/telemetry"
)

const (
	dayWindow  = 24 * time.Hour
	hourWindow = time.Hour
)

var meter = telemetry.Meter("contgen/spend")

// Ledger is an in-memory Tracker holding a rolling record of spending
// entries. Entries older than the 24h window are pruned inline on each
// call, so memory stays bounded by recent activity without a cleanup
// goroutine.
type Ledger struct {
	mu      sync.Mutex
	entries []model.SpendingEntry
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// CanSpend reports whether amount fits under both rolling windows.
func (l *Ledger) CanSpend(amount float64, limits model.SpendingLimits) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.pruneLocked(now)
	return l.fitsLocked(now, amount, limits)
}

// Record appends an entry for sessionID, rejecting amounts that would
// breach either window. A rejected attempt leaves the ledger unchanged.
func (l *Ledger) Record(sessionID uuid.UUID, amount float64, limits model.SpendingLimits) error {
	l.mu.Lock()
	now := time.Now()
	l.pruneLocked(now)
	if !l.fitsLocked(now, amount, limits) {
		l.mu.Unlock()
		if counter, err := meter.Int64Counter("contgen.spend.rejected"); err == nil {
			counter.Add(context.Background(), 1)
		}
		return ErrBudgetExceeded
	}
	l.entries = append(l.entries, model.SpendingEntry{
		At:        now,
		Amount:    amount,
		SessionID: sessionID,
	})
	l.mu.Unlock()

	if counter, err := meter.Float64Counter("contgen.spend.recorded"); err == nil {
		counter.Add(context.Background(), amount)
	}
	return nil
}

// Status reports the current rolling totals.
func (l *Ledger) Status() model.SpendingStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.pruneLocked(now)

	hourCutoff := now.Add(-hourWindow)
	st := model.SpendingStatus{Entries: len(l.entries)}
	for _, e := range l.entries {
		st.DayTotal += e.Amount
		if e.At.After(hourCutoff) {
			st.HourTotal += e.Amount
		}
	}
	return st
}

// fitsLocked checks amount against both windows. Caller holds mu and
// has already pruned, so every remaining entry is within the day window.
func (l *Ledger) fitsLocked(now time.Time, amount float64, limits model.SpendingLimits) bool {
	if !limits.Enabled() {
		return true
	}

	hourCutoff := now.Add(-hourWindow)
	var dayTotal, hourTotal float64
	for _, e := range l.entries {
		dayTotal += e.Amount
		if e.At.After(hourCutoff) {
			hourTotal += e.Amount
		}
	}

	if limits.Daily > 0 && dayTotal+amount > limits.Daily {
		return false
	}
	if limits.Hourly > 0 && hourTotal+amount > limits.Hourly {
		return false
	}
	return true
}

// pruneLocked drops entries that have aged out of the day window.
// Entries are appended in time order, so the first survivor marks the
// cut point. Caller holds mu.
func (l *Ledger) pruneLocked(now time.Time) {
	cutoff := now.Add(-dayWindow)
	i := 0
	for i < len(l.entries) && !l.entries[i].At.After(cutoff) {
		i++
	}
	if i > 0 {
		l.entries = append(l.entries[:0], l.entries[i:]...)
	}
}
