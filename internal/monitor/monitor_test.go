package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/model"
)

func event(sid uuid.UUID, typ model.EventType, at time.Time, dur time.Duration) model.Event {
	return model.Event{
		ID:         uuid.New(),
		SessionID:  sid,
		Type:       typ,
		OccurredAt: at,
		Duration:   dur,
	}
}

func TestPerformanceNoData(t *testing.T) {
	m := New(Config{}, nil)
	got := m.Performance(uuid.New())
	if got.Status != StatusNoData {
		t.Fatalf("expected no_data for unknown session, got %q", got.Status)
	}
	if got.TotalCount != 0 || got.SuccessRate != 0 {
		t.Fatalf("no_data metrics must be zero, got %+v", got)
	}
}

func TestPerformanceMetrics(t *testing.T) {
	m := New(Config{}, nil)
	sid := uuid.New()
	now := time.Now()

	m.RecordEvent(event(sid, model.EventGenerationCompleted, now.Add(-30*time.Minute), 100*time.Millisecond))
	m.RecordEvent(event(sid, model.EventGenerationCompleted, now.Add(-20*time.Minute), 100*time.Millisecond))
	m.RecordEvent(event(sid, model.EventGenerationFailed, now.Add(-10*time.Minute), 100*time.Millisecond))
	m.RecordEvent(event(sid, model.EventGenerationCompleted, now.Add(-5*time.Minute), 100*time.Millisecond))

	got := m.Performance(sid)
	if got.Status != StatusOK {
		t.Fatalf("expected ok status, got %q", got.Status)
	}
	if got.SuccessCount != 3 || got.FailureCount != 1 || got.TotalCount != 4 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	if got.SuccessRate != 0.75 || got.FailureRate != 0.25 {
		t.Fatalf("unexpected rates: success=%g failure=%g", got.SuccessRate, got.FailureRate)
	}
	// 3 successes in a 1h window.
	if got.GenerationRate != 3 {
		t.Fatalf("expected generation rate 3/h, got %g", got.GenerationRate)
	}
	if got.AvgCycleDuration != 100*time.Millisecond {
		t.Fatalf("expected avg duration 100ms, got %s", got.AvgCycleDuration)
	}
	if got.LastSuccessAt == nil {
		t.Fatal("expected last success timestamp")
	}
	if got.TimeSinceSuccess < 4*time.Minute || got.TimeSinceSuccess > 6*time.Minute {
		t.Fatalf("expected ~5m since last success, got %s", got.TimeSinceSuccess)
	}
}

func TestPerformanceWindowExcludesOldEvents(t *testing.T) {
	m := New(Config{}, nil)
	sid := uuid.New()
	now := time.Now()

	// Inside retention (2h) but outside the 1h window.
	m.RecordEvent(event(sid, model.EventGenerationCompleted, now.Add(-90*time.Minute), time.Second))

	got := m.Performance(sid)
	if got.Status != StatusNoData {
		t.Fatalf("expected no_data when all events fall outside the window, got %q", got.Status)
	}
	// The retained journal still knows about the old success.
	if got.LastSuccessAt == nil {
		t.Fatal("expected last success from the retention journal")
	}
}

func TestRecordEventPrunesJournal(t *testing.T) {
	m := New(Config{}, nil)
	sid := uuid.New()
	now := time.Now()

	// Older than window * retention multiple (2h).
	m.RecordEvent(event(sid, model.EventGenerationCompleted, now.Add(-3*time.Hour), time.Second))
	m.RecordEvent(event(sid, model.EventGenerationCompleted, now, time.Second))

	m.mu.Lock()
	n := len(m.events[sid])
	m.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected aged event to be pruned, journal has %d entries", n)
	}
}

func TestCheckAlertsNoFalseAlertOnEmptySession(t *testing.T) {
	m := New(Config{}, nil)
	if raised := m.CheckAlerts(uuid.New()); len(raised) != 0 {
		t.Fatalf("expected no alerts for a session with zero events, got %v", raised)
	}
}

func TestCheckAlertsFailureRate(t *testing.T) {
	m := New(Config{}, nil)
	sid := uuid.New()
	now := time.Now()
	for i := 0; i < 6; i++ {
		m.RecordEvent(event(sid, model.EventGenerationFailed, now.Add(-time.Duration(6-i)*time.Second), time.Second))
	}

	raised := m.CheckAlerts(sid)
	if len(raised) != 1 {
		t.Fatalf("expected exactly one alert, got %d: %v", len(raised), raised)
	}
	if raised[0].Type != model.AlertHighFailureRate {
		t.Fatalf("expected high_failure_rate, got %q", raised[0].Type)
	}
	if raised[0].Severity != model.SeverityError {
		t.Fatalf("expected error severity, got %q", raised[0].Severity)
	}
	if raised[0].SessionID != sid {
		t.Fatal("alert carries the wrong session")
	}
}

func TestCheckAlertsRespectsMinSamples(t *testing.T) {
	m := New(Config{}, nil)
	sid := uuid.New()
	now := time.Now()
	// Two failures: 100% failure rate, but below the sample floor.
	m.RecordEvent(event(sid, model.EventGenerationFailed, now.Add(-2*time.Second), time.Second))
	m.RecordEvent(event(sid, model.EventGenerationFailed, now.Add(-time.Second), time.Second))

	if raised := m.CheckAlerts(sid); len(raised) != 0 {
		t.Fatalf("expected no alerts below the sample floor, got %v", raised)
	}
}

func TestCheckAlertsGenerationDelay(t *testing.T) {
	m := New(Config{}, nil)
	sid := uuid.New()
	// One success, 20 minutes ago, against a 10 minute delay threshold.
	m.RecordEvent(event(sid, model.EventGenerationCompleted, time.Now().Add(-20*time.Minute), time.Second))

	raised := m.CheckAlerts(sid)
	if len(raised) != 1 {
		t.Fatalf("expected exactly one alert, got %d: %v", len(raised), raised)
	}
	if raised[0].Type != model.AlertGenerationDelay {
		t.Fatalf("expected generation_delay, got %q", raised[0].Type)
	}
	if raised[0].Severity != model.SeverityWarning {
		t.Fatalf("expected warning severity, got %q", raised[0].Severity)
	}
}

func TestCheckAlertsErrorCount(t *testing.T) {
	m := New(Config{}, nil)
	sid := uuid.New()
	now := time.Now()
	// 12 recent failures: failure-rate and error-count both trip, but
	// activity began too recently for the delay check.
	for i := 0; i < 12; i++ {
		m.RecordEvent(event(sid, model.EventGenerationFailed, now.Add(-time.Duration(12-i)*time.Second), time.Second))
	}

	raised := m.CheckAlerts(sid)
	if len(raised) != 2 {
		t.Fatalf("expected two alerts, got %d: %v", len(raised), raised)
	}
	types := map[model.AlertType]bool{}
	for _, a := range raised {
		types[a.Type] = true
	}
	if !types[model.AlertHighFailureRate] || !types[model.AlertHighErrorCount] {
		t.Fatalf("expected failure-rate and error-count alerts, got %v", types)
	}
}

func TestCheckAlertsLowGenerationRate(t *testing.T) {
	m := New(Config{MinGenerationRate: 10}, nil)
	sid := uuid.New()
	now := time.Now()
	// 6 successes in the window: 6/h, below the 10/h floor.
	for i := 0; i < 6; i++ {
		m.RecordEvent(event(sid, model.EventGenerationCompleted, now.Add(-time.Duration(6-i)*time.Second), time.Second))
	}

	raised := m.CheckAlerts(sid)
	if len(raised) != 1 {
		t.Fatalf("expected exactly one alert, got %d: %v", len(raised), raised)
	}
	if raised[0].Type != model.AlertLowGenerationRate {
		t.Fatalf("expected low_generation_rate, got %q", raised[0].Type)
	}
}

func TestAlertsFilterAndClearBySession(t *testing.T) {
	m := New(Config{}, nil)
	a := uuid.New()
	b := uuid.New()
	now := time.Now()
	for _, sid := range []uuid.UUID{a, b} {
		for i := 0; i < 6; i++ {
			m.RecordEvent(event(sid, model.EventGenerationFailed, now.Add(-time.Duration(6-i)*time.Second), time.Second))
		}
		m.CheckAlerts(sid)
	}

	if got := len(m.Alerts(uuid.Nil)); got != 2 {
		t.Fatalf("expected 2 accumulated alerts, got %d", got)
	}
	if got := len(m.Alerts(a)); got != 1 {
		t.Fatalf("expected 1 alert for session a, got %d", got)
	}

	if removed := m.ClearAlerts(a); removed != 1 {
		t.Fatalf("expected to clear 1 alert, cleared %d", removed)
	}
	if got := len(m.Alerts(uuid.Nil)); got != 1 {
		t.Fatalf("expected 1 alert left, got %d", got)
	}
	if got := len(m.Alerts(b)); got != 1 {
		t.Fatal("session b's alert should survive clearing session a")
	}

	if removed := m.ClearAlerts(uuid.Nil); removed != 1 {
		t.Fatalf("expected full clear to remove 1, removed %d", removed)
	}
	if got := len(m.Alerts(uuid.Nil)); got != 0 {
		t.Fatalf("expected empty alert list, got %d", got)
	}
}

func TestAlertListBounded(t *testing.T) {
	m := New(Config{MaxAlerts: 3}, nil)
	sid := uuid.New()
	now := time.Now()
	for i := 0; i < 6; i++ {
		m.RecordEvent(event(sid, model.EventGenerationFailed, now.Add(-time.Duration(6-i)*time.Second), time.Second))
	}

	// Each check re-raises the persistent condition.
	for i := 0; i < 5; i++ {
		m.CheckAlerts(sid)
	}

	alerts := m.Alerts(uuid.Nil)
	if len(alerts) != 3 {
		t.Fatalf("expected alert list capped at 3, got %d", len(alerts))
	}
}

func TestAlertCallback(t *testing.T) {
	ch := make(chan model.Alert, 4)
	m := New(Config{OnAlert: func(a model.Alert) { ch <- a }}, nil)
	sid := uuid.New()
	now := time.Now()
	for i := 0; i < 6; i++ {
		m.RecordEvent(event(sid, model.EventGenerationFailed, now.Add(-time.Duration(6-i)*time.Second), time.Second))
	}

	m.CheckAlerts(sid)

	select {
	case a := <-ch:
		if a.Type != model.AlertHighFailureRate {
			t.Fatalf("callback received unexpected alert type %q", a.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alert callback was not invoked")
	}
}

func TestAlertCallbackPanicContained(t *testing.T) {
	m := New(Config{OnAlert: func(model.Alert) { panic("host bug") }}, nil)
	sid := uuid.New()
	now := time.Now()
	for i := 0; i < 6; i++ {
		m.RecordEvent(event(sid, model.EventGenerationFailed, now.Add(-time.Duration(6-i)*time.Second), time.Second))
	}

	// Must not crash the process.
	m.CheckAlerts(sid)
	time.Sleep(50 * time.Millisecond)
}

func TestSystemHealth(t *testing.T) {
	m := New(Config{}, nil)
	healthy := uuid.New()
	broken := uuid.New()
	now := time.Now()

	for i := 0; i < 3; i++ {
		m.RecordEvent(event(healthy, model.EventGenerationCompleted, now.Add(-time.Duration(3-i)*time.Second), time.Second))
	}
	for i := 0; i < 6; i++ {
		m.RecordEvent(event(broken, model.EventGenerationFailed, now.Add(-time.Duration(6-i)*time.Second), time.Second))
	}

	h := m.SystemHealth()
	if h.Status != HealthError {
		t.Fatalf("expected system status error, got %q", h.Status)
	}
	if h.Sessions[healthy].Status != HealthHealthy {
		t.Fatalf("expected healthy session, got %+v", h.Sessions[healthy])
	}
	if h.Sessions[broken].Status != HealthError || h.Sessions[broken].Errors == 0 {
		t.Fatalf("expected erroring session, got %+v", h.Sessions[broken])
	}

	// Health polling is read-only: no alerts accumulated, no dispatch.
	if got := len(m.Alerts(uuid.Nil)); got != 0 {
		t.Fatalf("SystemHealth must not append alerts, found %d", got)
	}
}

func TestSystemHealthWarningOnly(t *testing.T) {
	m := New(Config{}, nil)
	sid := uuid.New()
	// A stale success inside the window: delay warning, nothing else.
	m.RecordEvent(event(sid, model.EventGenerationCompleted, time.Now().Add(-20*time.Minute), time.Second))

	h := m.SystemHealth()
	if h.Status != HealthWarning {
		t.Fatalf("expected system status warning, got %q", h.Status)
	}
	if h.Sessions[sid].Warnings != 1 {
		t.Fatalf("expected one warning, got %+v", h.Sessions[sid])
	}
}

func TestForgetDropsJournal(t *testing.T) {
	m := New(Config{}, nil)
	sid := uuid.New()
	m.RecordEvent(event(sid, model.EventGenerationCompleted, time.Now(), time.Second))

	m.Forget(sid)
	if got := m.Performance(sid); got.Status != StatusNoData {
		t.Fatalf("expected no_data after Forget, got %q", got.Status)
	}
}

func TestMonitorConcurrent(t *testing.T) {
	m := New(Config{}, nil)
	sid := uuid.New()

	var wg sync.WaitGroup
	for g := 0; g < 5; g++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				m.RecordEvent(event(sid, model.EventGenerationCompleted, time.Now(), time.Millisecond))
				m.CheckAlerts(sid)
				m.Performance(sid)
				m.Alerts(sid)
			}
		}(g)
	}
	wg.Wait()

	got := m.Performance(sid)
	if got.SuccessCount != 100 {
		t.Fatalf("expected 100 recorded successes, got %d", got.SuccessCount)
	}
}

func TestEvaluateIsPure(t *testing.T) {
	cfg := Config{}.withDefaults()
	sid := uuid.New()
	now := time.Now()
	past := now.Add(-30 * time.Minute)
	metrics := Metrics{
		Status:           StatusOK,
		Window:           cfg.Window,
		SuccessCount:     1,
		TotalCount:       1,
		SuccessRate:      1,
		GenerationRate:   1,
		FirstEventAt:     &past,
		LastSuccessAt:    &past,
		TimeSinceSuccess: 30 * time.Minute,
	}

	first := evaluate(cfg, sid, metrics, now)
	second := evaluate(cfg, sid, metrics, now)
	if len(first) != len(second) {
		t.Fatalf("evaluate not deterministic: %d vs %d alerts", len(first), len(second))
	}
	for i := range first {
		if first[i].Type != second[i].Type || first[i].Severity != second[i].Severity {
			t.Fatalf("evaluate produced different alerts across calls: %v vs %v", first[i], second[i])
		}
	}
	if metrics.Status != StatusOK {
		t.Fatal("evaluate must not mutate the metrics snapshot")
	}
}
