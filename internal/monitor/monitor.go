// Package monitor tracks generation health per session over a sliding
// window and raises threshold alerts.
//
// Each session gets an event journal; metrics restrict to the trailing
// performance window, while the journal retains a multiple of it so a
// freshly rolled window is not empty. Alerts accumulate in one
// process-wide bounded list shared by every session worker.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/model"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/telemetry"
)

// Config carries the thresholds for the four alert checks plus journal
// and alert-list bounds. Zero values fall back to defaults.
type Config struct {
	Window            time.Duration // Sliding metrics window. Default 1h.
	RetentionMultiple int           // Journal keeps Window times this. Default 2.
	MinSamples        int           // Cycles in window before rate checks apply. Default 5.
	FailureRate       float64       // Failure rate above this alerts. Default 0.5.
	GenerationDelay   time.Duration // No success for longer than this alerts. Default 10m.
	ErrorCount        int           // Failures in window above this alerts. Default 10.
	MinGenerationRate float64       // Successes/hour below this alerts. 0 disables.
	MaxAlerts         int           // Cap on the process-wide alert list. Default 1000.
	CallbackTimeout   time.Duration // Watchdog deadline for OnAlert. Default 10s.

	// OnAlert, when set, receives every raised alert asynchronously.
	OnAlert func(model.Alert)
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = time.Hour
	}
	if c.RetentionMultiple < 1 {
		c.RetentionMultiple = 2
	}
	if c.MinSamples < 1 {
		c.MinSamples = 5
	}
	if c.FailureRate <= 0 {
		c.FailureRate = 0.5
	}
	if c.GenerationDelay <= 0 {
		c.GenerationDelay = 10 * time.Minute
	}
	if c.ErrorCount < 1 {
		c.ErrorCount = 10
	}
	if c.MaxAlerts < 1 {
		c.MaxAlerts = 1000
	}
	if c.CallbackTimeout <= 0 {
		c.CallbackTimeout = 10 * time.Second
	}
	return c
}

// Monitor owns the per-session event journals and the shared alert
// list. Safe for concurrent use by all session workers.
type Monitor struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	events map[uuid.UUID][]model.Event
	alerts []model.Alert
}

var meter = telemetry.Meter("contgen/monitor")

// New creates a monitor. A nil logger falls back to slog.Default().
func New(cfg Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:    cfg.withDefaults(),
		logger: logger,
		events: make(map[uuid.UUID][]model.Event),
	}
}

// RecordEvent appends a generation event to the session's journal and
// prunes entries that have aged out of the retention horizon.
func (m *Monitor) RecordEvent(e model.Event) {
	retention := m.cfg.Window * time.Duration(m.cfg.RetentionMultiple)
	cutoff := time.Now().Add(-retention)

	m.mu.Lock()
	journal := append(m.events[e.SessionID], e)
	// Events arrive in time order per session, so pruning is a cut at
	// the first entry still inside the horizon.
	i := 0
	for i < len(journal) && journal[i].OccurredAt.Before(cutoff) {
		i++
	}
	if i > 0 {
		journal = append(journal[:0], journal[i:]...)
	}
	m.events[e.SessionID] = journal
	m.mu.Unlock()

	if counter, err := meter.Int64Counter("contgen.monitor.events"); err == nil {
		counter.Add(context.Background(), 1,
			otelmetric.WithAttributes(attribute.String("type", string(e.Type))))
	}
}

// Forget drops a session's journal. Raised alerts stay in the shared
// list until cleared.
func (m *Monitor) Forget(sessionID uuid.UUID) {
	m.mu.Lock()
	delete(m.events, sessionID)
	m.mu.Unlock()
}

// CheckAlerts evaluates the four threshold checks against the session's
// current metrics. Raised alerts are appended to the process-wide list
// and pushed to the alert callback; the new alerts are returned.
func (m *Monitor) CheckAlerts(sessionID uuid.UUID) []model.Alert {
	now := time.Now()

	m.mu.Lock()
	metrics := m.performanceLocked(sessionID, now)
	raised := evaluate(m.cfg, sessionID, metrics, now)
	for _, a := range raised {
		m.appendAlertLocked(a)
	}
	m.mu.Unlock()

	for _, a := range raised {
		m.dispatch(a)
		if counter, err := meter.Int64Counter("contgen.alerts.raised"); err == nil {
			counter.Add(context.Background(), 1, otelmetric.WithAttributes(
				attribute.String("type", string(a.Type)),
				attribute.String("severity", string(a.Severity)),
			))
		}
	}
	return raised
}

// Alerts returns a copy of the accumulated alerts, oldest first. A zero
// sessionID returns every session's alerts.
func (m *Monitor) Alerts(sessionID uuid.UUID) []model.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if sessionID != uuid.Nil && a.SessionID != sessionID {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ClearAlerts removes accumulated alerts and reports how many were
// dropped. A zero sessionID clears the whole list.
func (m *Monitor) ClearAlerts(sessionID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID == uuid.Nil {
		n := len(m.alerts)
		m.alerts = nil
		return n
	}
	kept := m.alerts[:0]
	removed := 0
	for _, a := range m.alerts {
		if a.SessionID == sessionID {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	m.alerts = kept
	return removed
}

// SystemHealth re-runs the threshold checks for every session with a
// journal and aggregates them. Read-only: nothing is appended to the
// alert list and the callback does not fire.
func (m *Monitor) SystemHealth() Health {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	h := Health{
		Status:   HealthHealthy,
		Sessions: make(map[uuid.UUID]SessionHealth, len(m.events)),
	}
	for sid := range m.events {
		metrics := m.performanceLocked(sid, now)
		sh := SessionHealth{Status: HealthHealthy}
		for _, a := range evaluate(m.cfg, sid, metrics, now) {
			switch a.Severity {
			case model.SeverityError:
				sh.Errors++
			case model.SeverityWarning:
				sh.Warnings++
			}
		}
		if sh.Errors > 0 {
			sh.Status = HealthError
		} else if sh.Warnings > 0 {
			sh.Status = HealthWarning
		}
		h.Sessions[sid] = sh

		if sh.Status == HealthError {
			h.Status = HealthError
		} else if sh.Status == HealthWarning && h.Status == HealthHealthy {
			h.Status = HealthWarning
		}
	}
	return h
}

// appendAlertLocked adds an alert, dropping the oldest past MaxAlerts.
// Caller holds mu.
func (m *Monitor) appendAlertLocked(a model.Alert) {
	m.alerts = append(m.alerts, a)
	if over := len(m.alerts) - m.cfg.MaxAlerts; over > 0 {
		m.alerts = append(m.alerts[:0], m.alerts[over:]...)
	}
}

// dispatch pushes an alert to the host callback without blocking the
// caller. A watchdog logs callbacks that overrun their deadline; a
// panicking callback is contained and logged.
func (m *Monitor) dispatch(a model.Alert) {
	if m.cfg.OnAlert == nil {
		return
	}
	go func() {
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("monitor: alert callback panicked",
						"alert_type", a.Type, "session_id", a.SessionID, "panic", r)
				}
			}()
			m.cfg.OnAlert(a)
		}()
		select {
		case <-done:
		case <-time.After(m.cfg.CallbackTimeout):
			m.logger.Warn("monitor: alert callback timed out",
				"alert_type", a.Type, "session_id", a.SessionID, "timeout", m.cfg.CallbackTimeout)
		}
	}()
}
