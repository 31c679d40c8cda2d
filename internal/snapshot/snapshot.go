// Package snapshot persists session and tournament state so a host can
// survive a process restart.
//
// Persistence is host-opt-in: the engine runs fully in memory unless a
// Store is configured. Two backends ship, an embedded SQLite file and a
// Postgres pool; both serialize the JSON-tagged model types rather than
// exploding them across columns, since snapshots are read back whole.
package snapshot

import (
	"context"

	"github.com/google/uuid"

	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/model"
)

// Store is the persistence contract. Implementations must be safe for
// concurrent use by all session workers.
type Store interface {
	// SaveSession upserts one session snapshot.
	SaveSession(ctx context.Context, s model.Session) error

	// DeleteSession removes a session snapshot. Deleting an unknown id
	// is not an error.
	DeleteSession(ctx context.Context, id uuid.UUID) error

	// ListSessions returns every persisted session.
	ListSessions(ctx context.Context) ([]model.Session, error)

	// SaveTournament appends one immutable tournament record.
	SaveTournament(ctx context.Context, r model.TournamentRecord) error

	// ListTournaments returns persisted records, oldest first.
	ListTournaments(ctx context.Context) ([]model.TournamentRecord, error)

	// Close releases the underlying database handles.
	Close() error
}
