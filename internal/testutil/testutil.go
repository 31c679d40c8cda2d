// Package testutil provides shared infrastructure for integration tests
// that need a real Postgres instance.
//
// Usage in TestMain:
//
//	func TestMain(m *testing.M) {
//	    pc, err := testutil.StartPostgres()
//	    if err == nil {
//	        testDSN = pc.DSN
//	    }
//	    code := m.Run()
//	    if pc != nil {
//	        pc.Terminate()
//	    }
//	    os.Exit(code)
//	}
//
// Tests then skip when the DSN stayed empty, so the suite passes on
// machines without Docker.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a started container plus the DSN to reach it.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
}

// StartPostgres launches a disposable Postgres container. An error back
// usually means no Docker on the host; callers should skip, not fail.
func StartPostgres() (*PostgresContainer, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "contgen",
			"POSTGRES_PASSWORD": "contgen",
			"POSTGRES_DB":       "contgen",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("testutil: start postgres: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("testutil: container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("testutil: container port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://contgen:contgen@%s:%s/contgen?sslmode=disable", host, port.Port())
	return &PostgresContainer{Container: container, DSN: dsn}, nil
}

// Terminate stops and removes the container.
func (pc *PostgresContainer) Terminate() {
	_ = pc.Container.Terminate(context.Background())
}

// TestLogger returns a logger that stays quiet below warnings.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
