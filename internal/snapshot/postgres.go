package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/model"
)

// PostgresStore persists snapshots in Postgres. Table names carry a
// contgen_ prefix so the store can share a host application's database.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres connects a pool, verifies connectivity, and applies any
// unapplied migrations from migrationsFS.
func NewPostgres(ctx context.Context, dsn string, migrationsFS fs.FS, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("snapshot: parse DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("snapshot: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("snapshot: ping: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if migrationsFS != nil {
		if err := s.migrate(ctx, migrationsFS); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// migrate executes unapplied .sql files from migrationsFS in name order,
// tracking them in contgen_schema_migrations so each runs at most once.
func (s *PostgresStore) migrate(ctx context.Context, migrationsFS fs.FS) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS contgen_schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("snapshot: create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.pool.Query(ctx, `SELECT version FROM contgen_schema_migrations`)
	if err != nil {
		return fmt.Errorf("snapshot: load applied migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("snapshot: scan migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("snapshot: load applied migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("snapshot: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		if applied[name] {
			s.logger.Debug("snapshot: migration already applied", "file", name)
			continue
		}
		content, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("snapshot: read migration %s: %w", name, err)
		}
		s.logger.Info("snapshot: running migration", "file", name)
		if _, err := s.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("snapshot: execute migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO contgen_schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, name,
		); err != nil {
			return fmt.Errorf("snapshot: record migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess model.Session) error {
	state, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("snapshot: encode session: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO contgen_sessions (id, name, status, created_at, state)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name,
		     status = EXCLUDED.status,
		     state = EXCLUDED.state,
		     updated_at = now()`,
		sess.ID, sess.Name, string(sess.Status), sess.CreatedAt, state,
	)
	if err != nil {
		return fmt.Errorf("snapshot: save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM contgen_sessions WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("snapshot: delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT state FROM contgen_sessions ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("snapshot: scan session: %w", err)
		}
		var sess model.Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			return nil, fmt.Errorf("snapshot: decode session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveTournament(ctx context.Context, r model.TournamentRecord) error {
	record, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("snapshot: encode tournament: %w", err)
	}
	// Records are immutable; replaying a save is a no-op.
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO contgen_tournaments (id, session_id, created_at, record)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		r.ID, r.SessionID, r.CreatedAt, record,
	); err != nil {
		return fmt.Errorf("snapshot: save tournament: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTournaments(ctx context.Context) ([]model.TournamentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM contgen_tournaments ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list tournaments: %w", err)
	}
	defer rows.Close()

	var out []model.TournamentRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("snapshot: scan tournament: %w", err)
		}
		var rec model.TournamentRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("snapshot: decode tournament: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
