package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/model"
)

// SQLiteStore persists snapshots in an embedded database file, the
// default for single-process hosts that want durability without
// operating a database server.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS contgen_sessions (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	state      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS contgen_tournaments (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	record     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contgen_tournaments_session
	ON contgen_tournaments (session_id, created_at);
`

// NewSQLite opens the database at path, creating it and the schema as
// needed. The pool is capped at one connection: SQLite allows a single
// writer, and session workers save concurrently.
func NewSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("snapshot: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("snapshot: ensure schema: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess model.Session) error {
	state, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("snapshot: encode session: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contgen_sessions (id, name, status, created_at, updated_at, state)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE
		 SET name = excluded.name,
		     status = excluded.status,
		     updated_at = excluded.updated_at,
		     state = excluded.state`,
		sess.ID.String(), sess.Name, string(sess.Status),
		sess.CreatedAt.UTC().Format(time.RFC3339Nano), now, string(state),
	)
	if err != nil {
		return fmt.Errorf("snapshot: save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM contgen_sessions WHERE id = ?`, id.String(),
	); err != nil {
		return fmt.Errorf("snapshot: delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state FROM contgen_sessions ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("snapshot: scan session: %w", err)
		}
		var sess model.Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			return nil, fmt.Errorf("snapshot: decode session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveTournament(ctx context.Context, r model.TournamentRecord) error {
	record, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("snapshot: encode tournament: %w", err)
	}
	// Records are immutable; replaying a save is a no-op.
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO contgen_tournaments (id, session_id, created_at, record)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		r.ID.String(), r.SessionID.String(),
		r.CreatedAt.UTC().Format(time.RFC3339Nano), string(record),
	); err != nil {
		return fmt.Errorf("snapshot: save tournament: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListTournaments(ctx context.Context) ([]model.TournamentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM contgen_tournaments ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list tournaments: %w", err)
	}
	defer rows.Close()

	var out []model.TournamentRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("snapshot: scan tournament: %w", err)
		}
		var rec model.TournamentRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("snapshot: decode tournament: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
