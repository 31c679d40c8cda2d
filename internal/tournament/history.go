package tournament

import (
	"github.com/google/uuid"

	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/model"
)

// History returns copies of retained records, oldest first. A zero
// sessionID returns every session's records.
func (e *Executor) History(sessionID uuid.UUID) []model.TournamentRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.TournamentRecord, 0, len(e.history))
	for _, r := range e.history {
		if sessionID != uuid.Nil && r.SessionID != sessionID {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Statistics aggregates the retained history, optionally filtered to
// one session.
func (e *Executor) Statistics(sessionID uuid.UUID) model.TournamentStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	var stats model.TournamentStats
	for _, r := range e.history {
		if sessionID != uuid.Nil && r.SessionID != sessionID {
			continue
		}
		stats.Count++
		stats.TotalParticipants += r.Participants
	}
	if stats.Count > 0 {
		stats.AverageParticipants = float64(stats.TotalParticipants) / float64(stats.Count)
	}
	return stats
}

// Restore seeds the history from persisted records, oldest first,
// keeping the capacity bound. Used when a snapshot store reloads state.
func (e *Executor) Restore(records []model.TournamentRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history[:0], records...)
	if over := len(e.history) - e.historyCap; over > 0 {
		e.history = append(e.history[:0], e.history[over:]...)
	}
}
