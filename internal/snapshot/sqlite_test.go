package snapshot_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/model"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/snapshot"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/testutil"
)

func fixtureSession(name string) model.Session {
	now := time.Now().UTC().Truncate(time.Millisecond)
	sid := uuid.New()
	started := now.Add(-time.Minute)
	return model.Session{
		ID:   sid,
		Name: name,
		Config: model.SessionConfig{
			Interval:         30 * time.Second,
			ItemsPerBatch:    2,
			MaxStoredItems:   10,
			CleanupThreshold: 12,
			QualityThreshold: 0.5,
		},
		Status:                model.StatusRunning,
		CreatedAt:             now.Add(-time.Hour),
		StartedAt:             &started,
		TotalGenerations:      4,
		SuccessfulGenerations: 3,
		FailedGenerations:     1,
		Items: []model.Item{
			{ID: uuid.New(), SessionID: sid, Sequence: 1, Title: "alpha", Body: "first draft", Quality: 0.8, CreatedAt: now.Add(-30 * time.Minute)},
			{ID: uuid.New(), SessionID: sid, Sequence: 2, Title: "beta", Body: "second draft", Quality: 0.9, CreatedAt: now.Add(-20 * time.Minute)},
		},
		Errors:       []string{"producer_failure: model unavailable"},
		NextSequence: 2,
	}
}

func fixtureRecord(sid uuid.UUID, at time.Time) model.TournamentRecord {
	a, b := uuid.New(), uuid.New()
	return model.TournamentRecord{
		ID:           uuid.New(),
		SessionID:    sid,
		CreatedAt:    at,
		Participants: 2,
		WinnerID:     b,
		WinnerTitle:  "beta",
		Rounds: [][]model.MatchResult{{{
			Round:     1,
			ItemAID:   a,
			ItemA:     "alpha",
			ItemBID:   b,
			ItemB:     "beta",
			WinnerID:  b,
			Winner:    "beta",
			Rationale: "stronger hook",
		}}},
		Config: model.TournamentConfig{Trigger: model.TriggerManual, Size: 2, MinConcepts: 2},
	}
}

func newSQLite(t *testing.T, path string) *snapshot.SQLiteStore {
	t.Helper()
	store, err := snapshot.NewSQLite(context.Background(), path, testutil.TestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t, filepath.Join(t.TempDir(), "contgen.db"))

	sess := fixtureSession("durable")
	require.NoError(t, store.SaveSession(ctx, sess))

	list, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got := list[0]
	require.Equal(t, sess.ID, got.ID)
	require.Equal(t, "durable", got.Name)
	require.Equal(t, model.StatusRunning, got.Status)
	require.Equal(t, sess.Config, got.Config)
	require.True(t, sess.CreatedAt.Equal(got.CreatedAt))
	require.NotNil(t, got.StartedAt)
	require.True(t, sess.StartedAt.Equal(*got.StartedAt))
	require.Equal(t, 4, got.TotalGenerations)
	require.Equal(t, sess.Errors, got.Errors)
	require.Len(t, got.Items, 2)
	require.Equal(t, "beta", got.Items[1].Title)
	require.Equal(t, int64(2), got.Items[1].Sequence)
	require.Equal(t, int64(2), got.NextSequence)
}

func TestSQLiteSaveSessionUpserts(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t, filepath.Join(t.TempDir(), "contgen.db"))

	sess := fixtureSession("mutable")
	require.NoError(t, store.SaveSession(ctx, sess))

	sess.Status = model.StatusStopped
	sess.TotalGenerations = 9
	sess.Items = append(sess.Items, model.Item{
		ID: uuid.New(), SessionID: sess.ID, Sequence: 3, Title: "gamma", Quality: 0.7,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, store.SaveSession(ctx, sess))

	list, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, model.StatusStopped, list[0].Status)
	require.Equal(t, 9, list[0].TotalGenerations)
	require.Len(t, list[0].Items, 3)
}

func TestSQLiteDeleteSession(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t, filepath.Join(t.TempDir(), "contgen.db"))

	sess := fixtureSession("doomed")
	require.NoError(t, store.SaveSession(ctx, sess))
	require.NoError(t, store.DeleteSession(ctx, sess.ID))

	list, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Empty(t, list)

	// Deleting something that is already gone is fine.
	require.NoError(t, store.DeleteSession(ctx, sess.ID))
	require.NoError(t, store.DeleteSession(ctx, uuid.New()))
}

func TestSQLiteTournamentLog(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t, filepath.Join(t.TempDir(), "contgen.db"))

	sid := uuid.New()
	base := time.Now().UTC().Truncate(time.Millisecond)
	first := fixtureRecord(sid, base.Add(-time.Hour))
	second := fixtureRecord(sid, base)

	// Saved newest first; listed oldest first.
	require.NoError(t, store.SaveTournament(ctx, second))
	require.NoError(t, store.SaveTournament(ctx, first))

	list, err := store.ListTournaments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, first.ID, list[0].ID)
	require.Equal(t, second.ID, list[1].ID)

	got := list[0]
	require.Equal(t, sid, got.SessionID)
	require.Equal(t, 2, got.Participants)
	require.Len(t, got.Rounds, 1)
	require.Equal(t, "stronger hook", got.Rounds[0][0].Rationale)
	require.Equal(t, first.WinnerID, got.WinnerID)

	// Records are immutable: replaying a save changes nothing.
	require.NoError(t, store.SaveTournament(ctx, first))
	list, err = store.ListTournaments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "contgen.db")

	first, err := snapshot.NewSQLite(ctx, path, testutil.TestLogger())
	require.NoError(t, err)
	sess := fixtureSession("persistent")
	require.NoError(t, first.SaveSession(ctx, sess))
	require.NoError(t, first.SaveTournament(ctx, fixtureRecord(sess.ID, time.Now().UTC())))
	require.NoError(t, first.Close())

	second, err := snapshot.NewSQLite(ctx, path, testutil.TestLogger())
	require.NoError(t, err)
	defer second.Close()

	sessions, err := second.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, sess.ID, sessions[0].ID)

	tournaments, err := second.ListTournaments(ctx)
	require.NoError(t, err)
	require.Len(t, tournaments, 1)
}
