// Package sessionlog persists scored candidate sets and back-fills the label
// when a user confirms one of them.
package sessionlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/slotwise/internal/features"
	"github.com/kalambet/slotwise/internal/metrics"
	"github.com/kalambet/slotwise/internal/ranking"
	"github.com/kalambet/slotwise/internal/storage"
)

// LogStore is the subset of storage.Store the Logger needs.
type LogStore interface {
	InsertRecommendationLogs(ctx context.Context, logs []storage.RecommendationLog) error
	MarkChosen(ctx context.Context, sessionID string, primaryUserID, secondaryUserID, slotID int64) (int64, error)
	RecentRecommendationLogs(ctx context.Context, limit int) ([]storage.RecommendationLog, error)
}

type Logger struct {
	store  LogStore
	logger *slog.Logger
	now    func() time.Time
}

func New(store LogStore, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		store:  store,
		logger: logger.With("component", "sessionlog"),
		now:    time.Now,
	}
}

// LogSession writes one unlabeled row per candidate under a fresh session id.
// The id is returned even when there are no candidates and nothing is written.
func (l *Logger) LogSession(ctx context.Context, primaryUserID, secondaryUserID int64, scored []ranking.ScoredCandidate) (string, error) {
	sessionID := uuid.New().String()
	if len(scored) == 0 {
		return sessionID, nil
	}

	createdAt := l.now().UTC()
	rows := make([]storage.RecommendationLog, 0, len(scored))
	for _, c := range scored {
		rows = append(rows, storage.RecommendationLog{
			SessionID:       sessionID,
			PrimaryUserID:   primaryUserID,
			SecondaryUserID: secondaryUserID,
			SlotID:          c.SlotID,
			SlotTime:        c.SlotTime,
			SlotIsFree:      c.SlotIsFree,
			SameHour:        c.SameHour,
			SameDOW:         c.SameDOW,
			HourDiff:        c.HourDiff,
			DaysSinceLast:   c.DaysSinceLast,
			RecentCount:     c.RecentCount,
			Score:           c.Score,
			CreatedAt:       createdAt,
		})
	}

	if err := l.store.InsertRecommendationLogs(ctx, rows); err != nil {
		return "", fmt.Errorf("logging session %s: %w", sessionID, err)
	}
	metrics.SessionRowsLogged.Add(float64(len(rows)))
	return sessionID, nil
}

// MarkChosen flips the label of the (sessionID, slotID) row. It does nothing
// when sessionID is empty or slotID is nil, so manual bookings never yield a
// positive label. A session only accepts a label from the pair it was logged
// for, and only one of its rows can be chosen; repeating the same call has no
// further effect.
func (l *Logger) MarkChosen(ctx context.Context, sessionID string, primaryUserID, secondaryUserID int64, slotID *int64) error {
	if sessionID == "" || slotID == nil {
		metrics.LabelsMarked.WithLabelValues("skipped").Inc()
		return nil
	}

	n, err := l.store.MarkChosen(ctx, sessionID, primaryUserID, secondaryUserID, *slotID)
	if err != nil {
		metrics.LabelsMarked.WithLabelValues("error").Inc()
		return fmt.Errorf("marking slot %d chosen in session %s: %w", *slotID, sessionID, err)
	}
	if n == 0 {
		metrics.LabelsMarked.WithLabelValues("no_match").Inc()
		l.logger.Debug("no unlabeled candidate for this pair",
			"session_id", sessionID, "slot_id", *slotID,
			"primary_user_id", primaryUserID, "secondary_user_id", secondaryUserID)
		return nil
	}
	metrics.LabelsMarked.WithLabelValues("marked").Inc()
	return nil
}

// TrainingRows returns up to limit of the most recent logged candidates as
// training examples.
func (l *Logger) TrainingRows(ctx context.Context, limit int) ([]ranking.Example, error) {
	logs, err := l.store.RecentRecommendationLogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("reading training rows: %w", err)
	}

	examples := make([]ranking.Example, 0, len(logs))
	for _, r := range logs {
		row := features.Row{
			SlotIsFree:    r.SlotIsFree,
			SameHour:      r.SameHour,
			SameDOW:       r.SameDOW,
			HourDiff:      r.HourDiff,
			DaysSinceLast: r.DaysSinceLast,
			RecentCount:   r.RecentCount,
		}
		examples = append(examples, ranking.Example{Features: row.Vector(), Label: r.Chosen})
	}
	return examples, nil
}
