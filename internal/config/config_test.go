package config

import (
	"strings"
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvFloatValid(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.75")
	v, err := envFloat("TEST_FLOAT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0.75 {
		t.Fatalf("expected 0.75, got %g", v)
	}
}

func TestEnvFloatInvalid(t *testing.T) {
	t.Setenv("TEST_FLOAT_BAD", "half")
	_, err := envFloat("TEST_FLOAT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-numeric value, got nil")
	}
	if got := err.Error(); got != `TEST_FLOAT_BAD="half" is not a valid number` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadFailsOnInvalidInterval(t *testing.T) {
	t.Setenv("CONTGEN_DEFAULT_INTERVAL", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid CONTGEN_DEFAULT_INTERVAL")
	}
	// Error should mention the variable name and value.
	if got := err.Error(); !strings.Contains(got, "CONTGEN_DEFAULT_INTERVAL") || !strings.Contains(got, "abc") {
		t.Fatalf("error should mention CONTGEN_DEFAULT_INTERVAL and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("CONTGEN_MAX_ALERTS", "lots")
	t.Setenv("CONTGEN_STOP_TIMEOUT", "soon")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !strings.Contains(got, "CONTGEN_MAX_ALERTS") {
		t.Fatalf("error should mention CONTGEN_MAX_ALERTS, got: %s", got)
	}
	if !strings.Contains(got, "CONTGEN_STOP_TIMEOUT") {
		t.Fatalf("error should mention CONTGEN_STOP_TIMEOUT, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	// Pin the asserted variables so a configured host environment cannot
	// perturb the defaults.
	t.Setenv("CONTGEN_DEFAULT_INTERVAL", "")
	t.Setenv("CONTGEN_MAX_CONSECUTIVE_FAILURES", "")
	t.Setenv("CONTGEN_MAX_STORED_ITEMS", "")
	t.Setenv("CONTGEN_CLEANUP_THRESHOLD", "")
	t.Setenv("CONTGEN_SNAPSHOT_DRIVER", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.DefaultInterval != 30*time.Second {
		t.Fatalf("expected default interval 30s, got %s", cfg.DefaultInterval)
	}
	if cfg.MaxConsecutiveFailures != 3 {
		t.Fatalf("expected default failure escalation at 3, got %d", cfg.MaxConsecutiveFailures)
	}
	if cfg.SnapshotDriver != "" {
		t.Fatalf("expected persistence disabled by default, got %q", cfg.SnapshotDriver)
	}
}

func TestValidateRejectsBadDriver(t *testing.T) {
	t.Setenv("CONTGEN_SNAPSHOT_DRIVER", "mysql")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to reject unknown snapshot driver")
	}
	if got := err.Error(); !strings.Contains(got, "CONTGEN_SNAPSHOT_DRIVER") {
		t.Fatalf("error should mention CONTGEN_SNAPSHOT_DRIVER, got: %s", got)
	}
}

func TestValidateRequiresDatabaseURLForPostgres(t *testing.T) {
	t.Setenv("CONTGEN_SNAPSHOT_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to require DATABASE_URL for the postgres driver")
	}
	if got := err.Error(); !strings.Contains(got, "DATABASE_URL") {
		t.Fatalf("error should mention DATABASE_URL, got: %s", got)
	}
}

func TestValidateRejectsIncoherentEviction(t *testing.T) {
	t.Setenv("CONTGEN_MAX_STORED_ITEMS", "100")
	t.Setenv("CONTGEN_CLEANUP_THRESHOLD", "40")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to reject a cleanup threshold below the item cap")
	}
	if got := err.Error(); !strings.Contains(got, "CONTGEN_CLEANUP_THRESHOLD") {
		t.Fatalf("error should mention CONTGEN_CLEANUP_THRESHOLD, got: %s", got)
	}
}
