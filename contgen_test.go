package contgen_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	contgen "github.com/fredzannarbor/xcu-my-apps-sub009"
)

const (
	waitFor = 5 * time.Second
	tick    = 5 * time.Millisecond
)

// pinEnv blanks the engine's environment knobs so CONTGEN_* or OTEL_*
// vars on the host machine cannot leak into the test. t.Setenv restores
// the originals afterwards.
func pinEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONTGEN_DEFAULT_INTERVAL",
		"CONTGEN_MAX_STORED_ITEMS",
		"CONTGEN_CLEANUP_THRESHOLD",
		"CONTGEN_SNAPSHOT_DRIVER",
		"CONTGEN_SNAPSHOT_PATH",
		"DATABASE_URL",
		"OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// titleProducer fills each batch with numbered concepts at a fixed
// quality.
type titleProducer struct {
	mu      sync.Mutex
	quality float64
	calls   int
}

func (p *titleProducer) Produce(_ context.Context, _ uuid.UUID, cfg contgen.SessionConfig) ([]contgen.Item, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.mu.Unlock()

	items := make([]contgen.Item, cfg.ItemsPerBatch)
	for i := range items {
		items[i] = contgen.Item{
			Title:   fmt.Sprintf("concept %d.%d", n, i+1),
			Body:    "a premise worth pitching",
			Quality: p.quality,
		}
	}
	return items, nil
}

type failingProducer struct{}

func (failingProducer) Produce(context.Context, uuid.UUID, contgen.SessionConfig) ([]contgen.Item, error) {
	return nil, errors.New("upstream model unavailable")
}

// qualityJudge prefers the higher-quality item, breaking ties toward
// the first contestant.
type qualityJudge struct{}

func (qualityJudge) Compare(_ context.Context, a, b contgen.Item, _ string) (contgen.Verdict, error) {
	if b.Quality > a.Quality {
		return contgen.Verdict{Winner: b.ID, Rationale: "higher quality"}, nil
	}
	return contgen.Verdict{Winner: a.ID, Rationale: "higher quality"}, nil
}

type flatEstimator struct{ perItem float64 }

func (f flatEstimator) EstimateCost(batchSize int) float64 {
	return f.perItem * float64(batchSize)
}

func TestEngineEndToEnd(t *testing.T) {
	pinEnv(t)

	first := make(chan []contgen.Item, 16)
	second := make(chan []contgen.Item, 16)

	eng, err := contgen.New(
		contgen.WithLogger(quietLogger()),
		contgen.WithVersion("test"),
		contgen.WithDefaultInterval(10*time.Millisecond),
		contgen.WithProducer(&titleProducer{quality: 0.9}),
		contgen.WithComparator(qualityJudge{}),
		contgen.WithCostEstimator(flatEstimator{perItem: 0.5}),
		contgen.WithNotifier(func(_ uuid.UUID, items []contgen.Item) { first <- items }),
		contgen.WithNotifier(func(_ uuid.UUID, items []contgen.Item) { second <- items }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	require.Equal(t, "test", eng.Version())

	sess, err := eng.CreateSession("headlines", contgen.SessionConfig{
		ItemsPerBatch: 2,
		// Roomy retention so the first item is still around when the
		// assertions below read it.
		MaxStoredItems:   500,
		CleanupThreshold: 600,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, sess.ID)
	require.Equal(t, contgen.StatusStopped, sess.Status)

	require.ErrorIs(t, eng.StartSession(uuid.New()), contgen.ErrSessionNotFound)

	require.NoError(t, eng.StartSession(sess.ID))
	require.Eventually(t, func() bool {
		st, err := eng.Status(sess.ID)
		return err == nil && st.SuccessfulGenerations >= 2
	}, waitFor, tick)

	items, err := eng.Items(sess.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, items)
	require.Equal(t, sess.ID, items[0].SessionID)
	require.Equal(t, int64(1), items[0].Sequence)

	// Both registered notifiers see batches.
	for _, ch := range []chan []contgen.Item{first, second} {
		select {
		case batch := <-ch:
			require.NotEmpty(t, batch)
		case <-time.After(waitFor):
			t.Fatal("notifier never received a batch")
		}
	}

	// Manual tournament judged through the registered comparator.
	rec, err := eng.RunTournament(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, sess.ID, rec.SessionID)
	require.NotEqual(t, uuid.Nil, rec.WinnerID)
	require.NotEmpty(t, rec.Rounds)

	judged := false
	for _, round := range rec.Rounds {
		for _, m := range round {
			if !m.Bye {
				require.Equal(t, "higher quality", m.Rationale)
				judged = true
			}
		}
	}
	require.True(t, judged, "bracket resolved without a single judged match")

	hist := eng.TournamentHistory(sess.ID)
	require.Len(t, hist, 1)
	require.Equal(t, rec.ID, hist[0].ID)
	require.Equal(t, 1, eng.TournamentStats(uuid.Nil).Count)

	// Estimated costs were attributed to the ledger.
	require.Greater(t, eng.SpendingStatus().DayTotal, 0.0)

	perf := eng.Performance(sess.ID)
	require.Equal(t, "ok", perf.Status)
	require.GreaterOrEqual(t, perf.SuccessCount, 2)

	health := eng.SystemHealth()
	require.Contains(t, health.Sessions, sess.ID)
	require.Equal(t, "healthy", health.Sessions[sess.ID].Status)

	require.NoError(t, eng.PauseSession(sess.ID))
	st, err := eng.Status(sess.ID)
	require.NoError(t, err)
	require.Equal(t, contgen.StatusPaused, st.Status)
	require.NoError(t, eng.ResumeSession(sess.ID))

	require.Len(t, eng.Sessions(), 1)

	require.NoError(t, eng.StopSession(sess.ID))
	require.NoError(t, eng.DeleteSession(sess.ID))
	require.Empty(t, eng.Sessions())

	done := eng.CompletedSessions()
	require.Len(t, done, 1)
	require.Equal(t, sess.ID, done[0].ID)
	require.Equal(t, contgen.StatusStopped, done[0].Status)

	_, err = eng.Status(sess.ID)
	require.ErrorIs(t, err, contgen.ErrSessionNotFound)
}

func TestAcceptanceFilterOption(t *testing.T) {
	pinEnv(t)

	eng, err := contgen.New(
		contgen.WithLogger(quietLogger()),
		contgen.WithDefaultInterval(10*time.Millisecond),
		contgen.WithProducer(&titleProducer{quality: 0.9}),
		contgen.WithAcceptanceFilter(func(contgen.Item, contgen.SessionConfig) bool {
			return false
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	sess, err := eng.CreateSession("picky", contgen.SessionConfig{
		ItemsPerBatch:    2,
		MaxStoredItems:   10,
		CleanupThreshold: 12,
	})
	require.NoError(t, err)
	require.NoError(t, eng.StartSession(sess.ID))

	require.Eventually(t, func() bool {
		st, err := eng.Status(sess.ID)
		return err == nil && st.SuccessfulGenerations >= 2
	}, waitFor, tick)

	// Everything was produced, nothing was kept.
	items, err := eng.Items(sess.ID, 0)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestAlertHandlerReceivesRaisedAlerts(t *testing.T) {
	pinEnv(t)

	received := make(chan contgen.Alert, 16)

	eng, err := contgen.New(
		contgen.WithLogger(quietLogger()),
		contgen.WithDefaultInterval(10*time.Millisecond),
		contgen.WithProducer(failingProducer{}),
		contgen.WithAlertHandler(func(a contgen.Alert) { received <- a }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	sess, err := eng.CreateSession("flaky", contgen.SessionConfig{
		ItemsPerBatch:    1,
		MaxStoredItems:   5,
		CleanupThreshold: 5,
		// Keep the worker failing long enough to cross the alert
		// sample minimum.
		MaxConsecutiveFailures: 100,
	})
	require.NoError(t, err)
	require.NoError(t, eng.StartSession(sess.ID))

	require.Eventually(t, func() bool {
		st, err := eng.Status(sess.ID)
		return err == nil && st.FailedGenerations >= 6
	}, waitFor, tick)
	require.NoError(t, eng.StopSession(sess.ID))

	raised := eng.CheckAlerts(sess.ID)
	require.NotEmpty(t, raised)

	var types []contgen.AlertType
	for _, a := range raised {
		types = append(types, a.Type)
	}
	require.Contains(t, types, contgen.AlertHighFailureRate)

	select {
	case a := <-received:
		require.Equal(t, sess.ID, a.SessionID)
	case <-time.After(waitFor):
		t.Fatal("alert handler never fired")
	}

	require.NotEmpty(t, eng.Alerts(sess.ID))
	require.Greater(t, eng.ClearAlerts(uuid.Nil), 0)
	require.Empty(t, eng.Alerts(uuid.Nil))
}

func TestSQLitePersistenceAcrossRestart(t *testing.T) {
	pinEnv(t)

	path := filepath.Join(t.TempDir(), "contgen.db")
	open := func() *contgen.Engine {
		eng, err := contgen.New(
			contgen.WithLogger(quietLogger()),
			contgen.WithDefaultInterval(10*time.Millisecond),
			contgen.WithProducer(&titleProducer{quality: 0.8}),
			contgen.WithSnapshotDriver("sqlite"),
			contgen.WithSnapshotPath(path),
		)
		require.NoError(t, err)
		return eng
	}

	eng := open()
	sess, err := eng.CreateSession("durable", contgen.SessionConfig{
		ItemsPerBatch:    1,
		MaxStoredItems:   10,
		CleanupThreshold: 12,
	})
	require.NoError(t, err)
	require.NoError(t, eng.StartSession(sess.ID))
	require.Eventually(t, func() bool {
		st, err := eng.Status(sess.ID)
		return err == nil && st.ItemCount >= 1
	}, waitFor, tick)
	require.NoError(t, eng.Close())

	reopened := open()
	t.Cleanup(func() { _ = reopened.Close() })

	sessions := reopened.Sessions()
	require.Len(t, sessions, 1)
	require.Equal(t, sess.ID, sessions[0].ID)
	require.Equal(t, contgen.StatusStopped, sessions[0].Status)
	require.NotEmpty(t, sessions[0].Items)
}

func TestNewRejectsInvalidEnvironment(t *testing.T) {
	pinEnv(t)
	t.Setenv("CONTGEN_DEFAULT_INTERVAL", "not-a-duration")

	_, err := contgen.New(contgen.WithLogger(quietLogger()))
	require.Error(t, err)
	require.Contains(t, err.Error(), "CONTGEN_DEFAULT_INTERVAL")
}
