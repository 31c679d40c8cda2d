package monitor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/model"
)

// Metrics status values.
const (
	StatusOK     = "ok"
	StatusNoData = "no_data"
)

// System health status values.
const (
	HealthHealthy = "healthy"
	HealthWarning = "warning"
	HealthError   = "error"
)

// Metrics summarizes a session's generation activity over the trailing
// performance window. When no events fall inside the window, Status is
// StatusNoData and every other field is zero; callers must not read the
// zeros as a healthy session.
type Metrics struct {
	Status string        `json:"status"` // ok, no_data
	Window time.Duration `json:"window"`

	SuccessCount int     `json:"success_count"`
	FailureCount int     `json:"failure_count"`
	TotalCount   int     `json:"total_count"`
	SuccessRate  float64 `json:"success_rate"`
	FailureRate  float64 `json:"failure_rate"`

	// GenerationRate is successful cycles per hour, normalized by the
	// window length rather than the session's age.
	GenerationRate float64 `json:"generation_rate"`

	// AvgCycleDuration is the mean of recorded cycle durations in the
	// window. Skipped cycles carry no duration and are excluded.
	AvgCycleDuration time.Duration `json:"avg_cycle_duration"`

	// FirstEventAt and LastSuccessAt come from the full retention
	// journal, so a success just outside the window is still visible.
	FirstEventAt     *time.Time    `json:"first_event_at,omitempty"`
	LastSuccessAt    *time.Time    `json:"last_success_at,omitempty"`
	TimeSinceSuccess time.Duration `json:"time_since_success,omitempty"`
}

// SessionHealth is one session's slice of the system health report.
type SessionHealth struct {
	Status   string `json:"status"` // healthy, warning, error
	Warnings int    `json:"warnings"`
	Errors   int    `json:"errors"`
}

// Health aggregates the alert checks across all monitored sessions.
type Health struct {
	Status   string                      `json:"status"` // healthy, warning, error
	Sessions map[uuid.UUID]SessionHealth `json:"sessions"`
}

// Performance computes the session's metrics over the trailing window.
func (m *Monitor) Performance(sessionID uuid.UUID) Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.performanceLocked(sessionID, time.Now())
}

// performanceLocked does the window math. Caller holds mu.
func (m *Monitor) performanceLocked(sessionID uuid.UUID, now time.Time) Metrics {
	out := Metrics{Status: StatusNoData, Window: m.cfg.Window}
	journal := m.events[sessionID]
	if len(journal) == 0 {
		return out
	}

	first := journal[0].OccurredAt
	out.FirstEventAt = &first

	cutoff := now.Add(-m.cfg.Window)
	var durTotal time.Duration
	var durCount int
	for i := range journal {
		e := &journal[i]
		if e.Type == model.EventGenerationCompleted {
			t := e.OccurredAt
			out.LastSuccessAt = &t
		}
		if !e.OccurredAt.After(cutoff) {
			continue
		}
		switch e.Type {
		case model.EventGenerationCompleted:
			out.SuccessCount++
		case model.EventGenerationFailed:
			out.FailureCount++
		}
		if e.Duration > 0 {
			durTotal += e.Duration
			durCount++
		}
	}

	out.TotalCount = out.SuccessCount + out.FailureCount
	if out.TotalCount == 0 {
		return out
	}
	out.Status = StatusOK
	out.SuccessRate = float64(out.SuccessCount) / float64(out.TotalCount)
	out.FailureRate = float64(out.FailureCount) / float64(out.TotalCount)
	out.GenerationRate = float64(out.SuccessCount) / m.cfg.Window.Hours()
	if durCount > 0 {
		out.AvgCycleDuration = durTotal / time.Duration(durCount)
	}
	if out.LastSuccessAt != nil {
		out.TimeSinceSuccess = now.Sub(*out.LastSuccessAt)
	}
	return out
}

// evaluate runs the four threshold checks against a metrics snapshot.
// Pure: no monitor state beyond the configured thresholds is consulted,
// and nothing is recorded.
func evaluate(cfg Config, sessionID uuid.UUID, metrics Metrics, now time.Time) []model.Alert {
	if metrics.Status == StatusNoData {
		return nil
	}

	var out []model.Alert
	raise := func(t model.AlertType, sev model.AlertSeverity, msg string) {
		out = append(out, model.Alert{
			ID:        uuid.New(),
			SessionID: sessionID,
			Type:      t,
			Severity:  sev,
			Message:   msg,
			CreatedAt: now,
		})
	}

	if metrics.TotalCount >= cfg.MinSamples && metrics.FailureRate > cfg.FailureRate {
		raise(model.AlertHighFailureRate, model.SeverityError,
			fmt.Sprintf("failure rate %.0f%% over the last %s", metrics.FailureRate*100, cfg.Window))
	}

	switch {
	case metrics.LastSuccessAt != nil && metrics.TimeSinceSuccess > cfg.GenerationDelay:
		raise(model.AlertGenerationDelay, model.SeverityWarning,
			fmt.Sprintf("no successful generation for %s", metrics.TimeSinceSuccess.Round(time.Second)))
	case metrics.LastSuccessAt == nil && metrics.FirstEventAt != nil && now.Sub(*metrics.FirstEventAt) > cfg.GenerationDelay:
		raise(model.AlertGenerationDelay, model.SeverityWarning,
			fmt.Sprintf("no successful generation since activity began %s ago", now.Sub(*metrics.FirstEventAt).Round(time.Second)))
	}

	if metrics.FailureCount > cfg.ErrorCount {
		raise(model.AlertHighErrorCount, model.SeverityError,
			fmt.Sprintf("%d failed cycles in the last %s", metrics.FailureCount, cfg.Window))
	}

	if cfg.MinGenerationRate > 0 && metrics.TotalCount >= cfg.MinSamples && metrics.GenerationRate < cfg.MinGenerationRate {
		raise(model.AlertLowGenerationRate, model.SeverityWarning,
			fmt.Sprintf("generation rate %.1f/h below minimum %.1f/h", metrics.GenerationRate, cfg.MinGenerationRate))
	}

	return out
}
