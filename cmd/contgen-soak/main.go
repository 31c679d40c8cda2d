// contgen-soak runs the generation engine against synthetic producers
// so scheduler, tournament, budget, and alert behavior can be watched
// end to end without a real model behind it. Stop it with Ctrl-C.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	contgen "github.com/fredzannarbor/xcu-my-apps-sub009"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	sessions := flag.Int("sessions", 2, "generation sessions to run")
	interval := flag.Duration("interval", 2*time.Second, "cycle interval per session")
	batch := flag.Int("batch", 3, "candidates per cycle")
	statusEvery := flag.Duration("status-every", 10*time.Second, "status report period")
	flag.Parse()

	level := slog.LevelInfo
	if os.Getenv("CONTGEN_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, *sessions, *interval, *batch, *statusEvery); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger, sessions int, interval time.Duration, batch int, statusEvery time.Duration) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	eng, err := contgen.New(
		contgen.WithLogger(logger),
		contgen.WithVersion(version),
		contgen.WithProducer(soakProducer{}),
		contgen.WithComparator(qualityJudge{}),
		contgen.WithCostEstimator(tokenEstimator{}),
		contgen.WithNotifier(func(id uuid.UUID, items []contgen.Item) {
			logger.Debug("batch accepted", "session_id", id, "count", len(items))
		}),
		contgen.WithAlertHandler(func(a contgen.Alert) {
			logger.Warn("alert raised",
				"type", a.Type,
				"severity", a.Severity,
				"session_id", a.SessionID,
				"message", a.Message,
			)
		}),
	)
	if err != nil {
		return err
	}

	ids := make([]uuid.UUID, 0, sessions)
	for i := 0; i < sessions; i++ {
		sess, err := eng.CreateSession(fmt.Sprintf("soak-%d", i+1), contgen.SessionConfig{
			Interval:            interval,
			ItemsPerBatch:       batch,
			MaxStoredItems:      100,
			CleanupThreshold:    120,
			QualityThreshold:    0.5,
			TournamentEnabled:   true,
			TournamentFrequency: 5,
			Tournament: contgen.TournamentConfig{
				Trigger:      contgen.TriggerConceptCount,
				TriggerCount: 8,
				Size:         8,
				MinConcepts:  4,
				Criteria:     "hook strength and production feasibility",
			},
			Budget: contgen.SpendingLimits{Hourly: 5},
		})
		if err != nil {
			_ = eng.Close()
			return fmt.Errorf("create session: %w", err)
		}
		if err := eng.StartSession(sess.ID); err != nil {
			_ = eng.Close()
			return fmt.Errorf("start session: %w", err)
		}
		ids = append(ids, sess.ID)
	}

	logger.Info("soak running", "version", version, "sessions", len(ids), "interval", interval.String())

	ticker := time.NewTicker(statusEvery)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			for _, id := range ids {
				st, err := eng.Status(id)
				if err != nil {
					continue
				}
				logger.Info("session status",
					"name", st.Name,
					"status", st.Status,
					"generated", st.TotalGenerations,
					"failed", st.FailedGenerations,
					"items", st.ItemCount,
					"tournaments", st.TournamentCount,
				)
				eng.CheckAlerts(id)
			}
			sp := eng.SpendingStatus()
			logger.Info("ledger", "hour_total", sp.HourTotal, "day_total", sp.DayTotal, "entries", sp.Entries)
		}
	}

	fmt.Println()
	logger.Info("contgen-soak shutting down")

	// Final report before teardown.
	for _, id := range ids {
		st, err := eng.Status(id)
		if err != nil {
			continue
		}
		logger.Info("final session",
			"name", st.Name,
			"generated", st.TotalGenerations,
			"items", st.ItemCount,
			"tournaments", st.TournamentCount,
		)
		if hist := eng.TournamentHistory(id); len(hist) > 0 {
			last := hist[len(hist)-1]
			logger.Info("reigning champion",
				"session", st.Name,
				"title", last.WinnerTitle,
				"participants", last.Participants,
			)
		}
	}
	health := eng.SystemHealth()
	logger.Info("system health", "status", health.Status, "sessions", len(health.Sessions))

	return eng.Close()
}

// soakProducer fabricates show-pitch concepts with randomized quality,
// standing in for whatever model a real host would call.
type soakProducer struct{}

var (
	moods    = []string{"Midnight", "Neon", "Paper", "Iron", "Hollow", "Golden"}
	subjects = []string{"Harbor", "Orchard", "Signal", "Archive", "Parade", "Meridian"}
)

func (soakProducer) Produce(ctx context.Context, _ uuid.UUID, cfg contgen.SessionConfig) ([]contgen.Item, error) {
	items := make([]contgen.Item, cfg.ItemsPerBatch)
	for i := range items {
		items[i] = contgen.Item{
			Title:   fmt.Sprintf("%s %s", moods[rand.IntN(len(moods))], subjects[rand.IntN(len(subjects))]),
			Body:    "one-line premise for the writers' room",
			Quality: 0.4 + 0.6*rand.Float64(),
		}
	}

	// Simulate a slow upstream call without ignoring shutdown.
	select {
	case <-time.After(time.Duration(rand.IntN(150)) * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return items, nil
}

// qualityJudge prefers the higher-quality item, breaking ties toward
// the first contestant.
type qualityJudge struct{}

func (qualityJudge) Compare(_ context.Context, a, b contgen.Item, _ string) (contgen.Verdict, error) {
	if b.Quality > a.Quality {
		return contgen.Verdict{Winner: b.ID, Rationale: "scored higher"}, nil
	}
	return contgen.Verdict{Winner: a.ID, Rationale: "scored higher"}, nil
}

// tokenEstimator charges a flat per-candidate rate, roughly what a
// small completion costs.
type tokenEstimator struct{}

func (tokenEstimator) EstimateCost(batchSize int) float64 {
	return 0.002 * float64(batchSize)
}
