package model

import (
	"time"

	"github.com/google/uuid"
)

// SpendingEntry is one recorded charge against the shared ledger.
type SpendingEntry struct {
	At        time.Time `json:"at"`
	Amount    float64   `json:"amount"`
	SessionID uuid.UUID `json:"session_id"`
}

// SpendingStatus is a point-in-time view of ledger totals over the two
// rolling windows.
type SpendingStatus struct {
	HourTotal float64 `json:"hour_total"`
	DayTotal  float64 `json:"day_total"`
	Entries   int     `json:"entries"`
}
