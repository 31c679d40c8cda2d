// Package tournament runs single-elimination brackets over a session's
// generated items.
//
// The bracket is deterministic: participants are the most recent items
// in session order, pairs resolve left to right, and an odd tail
// receives a bye into the next round. All judgment is delegated to the
// host's comparator; the executor never invents a winner.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/model"
	"github.com/fredzannarbor/xcu-my-apps-sub009/internal/telemetry"
)

var (
	// ErrNoComparator means Execute was called without a comparator.
	ErrNoComparator = errors.New("tournament: no comparator configured")

	// ErrComparatorFailed means a pairing could not be resolved; the
	// tournament aborts and no record is stored.
	ErrComparatorFailed = errors.New("tournament: comparator failed")
)

// Verdict is a comparator's resolution of one pairing. Winner must be
// the ID of one of the two compared items.
type Verdict struct {
	Winner    uuid.UUID
	Rationale string
}

// Comparator judges one pairing against the session's evaluation
// criteria. It may do arbitrary slow work (an LLM call, a human queue);
// the context bounds it.
type Comparator interface {
	Compare(ctx context.Context, a, b model.Item, criteria string) (Verdict, error)
}

// ShouldRun evaluates a session's trigger condition against its current
// items. Every trigger also requires at least MinConcepts items; the
// manual trigger never fires automatically.
func ShouldRun(cfg model.TournamentConfig, items []model.Item, lastAt *time.Time, now time.Time) bool {
	if len(items) < cfg.MinConcepts {
		return false
	}
	switch cfg.Trigger {
	case model.TriggerConceptCount:
		return len(items) >= cfg.TriggerCount
	case model.TriggerTimeInterval:
		// Anchor at the previous tournament, or at the oldest item when
		// none has run yet.
		anchor := items[0].CreatedAt
		if lastAt != nil {
			anchor = *lastAt
		}
		return now.Sub(anchor) >= cfg.TriggerInterval
	case model.TriggerQuality:
		qualified := 0
		for _, it := range items {
			if it.Quality >= cfg.TriggerQuality {
				qualified++
			}
		}
		return qualified >= cfg.MinConcepts
	default:
		return false
	}
}

// Executor runs brackets and keeps a bounded history of their records.
// Safe for concurrent use; only one history list exists per engine.
type Executor struct {
	cmp        Comparator
	logger     *slog.Logger
	historyCap int

	mu      sync.Mutex
	history []model.TournamentRecord
}

var meter = telemetry.Meter("contgen/tournament")

// New creates an executor. historyCap bounds the retained records; a
// nil logger falls back to slog.Default().
func New(cmp Comparator, historyCap int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if historyCap < 1 {
		historyCap = 100
	}
	return &Executor{cmp: cmp, logger: logger, historyCap: historyCap}
}

// Execute runs one bracket over the most recent cfg.Size items. With
// fewer than cfg.MinConcepts eligible items it returns (nil, nil): a
// normal no-op, not an error. On a comparator failure it aborts with
// ErrComparatorFailed and stores nothing.
func (e *Executor) Execute(ctx context.Context, sessionID uuid.UUID, items []model.Item, cfg model.TournamentConfig) (*model.TournamentRecord, error) {
	if len(items) < cfg.MinConcepts || len(items) < 2 {
		return nil, nil
	}
	if e.cmp == nil {
		return nil, ErrNoComparator
	}

	// Recency bias: newer material reflects the producer's current
	// quality. Items arrive oldest first, so take the tail.
	selected := items
	if cfg.Size > 0 && len(selected) > cfg.Size {
		selected = selected[len(selected)-cfg.Size:]
	}

	start := time.Now()
	current := make([]model.Item, len(selected))
	copy(current, selected)

	var rounds [][]model.MatchResult
	for round := 1; len(current) > 1; round++ {
		var results []model.MatchResult
		var next []model.Item

		for i := 0; i+1 < len(current); i += 2 {
			a, b := current[i], current[i+1]
			verdict, err := e.cmp.Compare(ctx, a, b, cfg.Criteria)
			if err != nil {
				return nil, fmt.Errorf("%w: round %d, %q vs %q: %v", ErrComparatorFailed, round, a.Title, b.Title, err)
			}
			var winner model.Item
			switch verdict.Winner {
			case a.ID:
				winner = a
			case b.ID:
				winner = b
			default:
				return nil, fmt.Errorf("%w: round %d: verdict names %s, which is neither contestant", ErrComparatorFailed, round, verdict.Winner)
			}
			results = append(results, model.MatchResult{
				Round:     round,
				ItemAID:   a.ID,
				ItemA:     a.Title,
				ItemBID:   b.ID,
				ItemB:     b.Title,
				WinnerID:  winner.ID,
				Winner:    winner.Title,
				Rationale: verdict.Rationale,
			})
			next = append(next, winner)
		}

		// Odd tail advances on a bye.
		if len(current)%2 == 1 {
			lone := current[len(current)-1]
			results = append(results, model.MatchResult{
				Round:    round,
				ItemAID:  lone.ID,
				ItemA:    lone.Title,
				WinnerID: lone.ID,
				Winner:   lone.Title,
				Bye:      true,
			})
			next = append(next, lone)
		}

		rounds = append(rounds, results)
		current = next
	}

	champion := current[0]
	record := model.TournamentRecord{
		ID:           uuid.New(),
		SessionID:    sessionID,
		CreatedAt:    time.Now(),
		Participants: len(selected),
		WinnerID:     champion.ID,
		WinnerTitle:  champion.Title,
		Rounds:       rounds,
		Config:       cfg,
	}

	e.mu.Lock()
	e.history = append(e.history, record)
	if over := len(e.history) - e.historyCap; over > 0 {
		e.history = append(e.history[:0], e.history[over:]...)
	}
	e.mu.Unlock()

	elapsed := time.Since(start)
	e.logger.Info("tournament: completed",
		"session_id", sessionID,
		"participants", record.Participants,
		"rounds", len(rounds),
		"winner", record.WinnerTitle,
		"duration", elapsed,
	)
	if counter, err := meter.Int64Counter("contgen.tournaments.run"); err == nil {
		counter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.Int("participants", record.Participants)))
	}
	if hist, err := meter.Float64Histogram("contgen.tournament.duration",
		otelmetric.WithUnit("ms")); err == nil {
		hist.Record(ctx, float64(elapsed.Milliseconds()))
	}

	return &record, nil
}
