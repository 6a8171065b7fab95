// Package recommend composes feature building, scoring and session logging
// into the top-k recommendation used by interactive requests and reminders.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/slotwise/internal/features"
	"github.com/kalambet/slotwise/internal/metrics"
	"github.com/kalambet/slotwise/internal/ranking"
	"github.com/kalambet/slotwise/internal/storage"
)

// Store is the read side the Orchestrator needs. Implemented by storage.Store.
type Store interface {
	BookingHistory(ctx context.Context, primaryUserID, secondaryUserID int64, limit int) ([]storage.Booking, error)
	FutureSlots(ctx context.Context, primaryUserID int64, from, to time.Time) ([]storage.Slot, error)
}

type Scorer interface {
	Score(ctx context.Context, rows []features.Row) []ranking.ScoredCandidate
}

type SessionLogger interface {
	LogSession(ctx context.Context, primaryUserID, secondaryUserID int64, scored []ranking.ScoredCandidate) (string, error)
}

// Options holds the fallbacks applied when a caller passes k or windowDays <= 0.
type Options struct {
	DefaultK     int
	WindowDays   int
	HistoryLimit int
}

func DefaultOptions() Options {
	return Options{DefaultK: 3, WindowDays: 30, HistoryLimit: 200}
}

// Result is one recommendation session. Candidates is the full scored set in
// rank order; Top is its first k entries.
type Result struct {
	Top        []ranking.ScoredCandidate
	Candidates []ranking.ScoredCandidate
	SessionID  string
}

type Orchestrator struct {
	store    Store
	scorer   Scorer
	sessions SessionLogger
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
}

func NewOrchestrator(store Store, scorer Scorer, sessions SessionLogger, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.DefaultK <= 0 {
		opts.DefaultK = def.DefaultK
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = def.WindowDays
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = def.HistoryLimit
	}
	return &Orchestrator{
		store:    store,
		scorer:   scorer,
		sessions: sessions,
		opts:     opts,
		now:      time.Now,
		logger:   logger.With("component", "recommend"),
	}
}

// SetClock overrides the time source (for testing).
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// RecommendTopK ranks the primary user's free and booked slots in the next
// windowDays against the pair's history and returns the best k. Every call
// logs the full scored set under a new session id, including calls that find
// no slots.
func (o *Orchestrator) RecommendTopK(ctx context.Context, primaryUserID, secondaryUserID int64, k, windowDays int) (Result, error) {
	if k <= 0 {
		k = o.opts.DefaultK
	}
	if windowDays <= 0 {
		windowDays = o.opts.WindowDays
	}
	now := o.now().UTC()

	var (
		history []storage.Booking
		slots   []storage.Slot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = o.store.BookingHistory(gctx, primaryUserID, secondaryUserID, o.opts.HistoryLimit)
		if err != nil {
			return fmt.Errorf("fetching booking history: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		slots, err = o.store.FutureSlots(gctx, primaryUserID, now, now.AddDate(0, 0, windowDays))
		if err != nil {
			return fmt.Errorf("fetching availability: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var scored []ranking.ScoredCandidate
	if len(slots) > 0 {
		scored = o.scorer.Score(ctx, features.Build(history, slots))
	}
	metrics.CandidatesScored.Observe(float64(len(scored)))

	sessionID, err := o.sessions.LogSession(ctx, primaryUserID, secondaryUserID, scored)
	if err != nil {
		return Result{}, err
	}

	top := scored
	if len(top) > k {
		top = top[:k]
	}
	o.logger.Debug("recommendation session",
		"session_id", sessionID,
		"primary_user_id", primaryUserID,
		"secondary_user_id", secondaryUserID,
		"candidates", len(scored),
		"returned", len(top),
	)

	return Result{
		Top:        nonNil(top),
		Candidates: nonNil(scored),
		SessionID:  sessionID,
	}, nil
}

func nonNil(c []ranking.ScoredCandidate) []ranking.ScoredCandidate {
	if c == nil {
		return []ranking.ScoredCandidate{}
	}
	return c
}
