package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/slotwise/internal/ranking"
)

const (
	ReminderJobName = "reminder-sweep"
	RetrainJobName  = "model-retrain"

	DefaultTrainingLimit = 5000
)

// TrainingSource supplies labeled examples. Implemented by sessionlog.Logger.
type TrainingSource interface {
	TrainingRows(ctx context.Context, limit int) ([]ranking.Example, error)
}

type ModelTrainer interface {
	Train(ctx context.Context, examples []ranking.Example) (*ranking.Model, error)
}

// Invalidator is notified after a new model is installed.
type Invalidator interface {
	Invalidate()
}

// RetrainOutcome describes one retrain attempt.
type RetrainOutcome struct {
	Status    string     `json:"status"` // "trained" or "skipped"
	Reason    string     `json:"reason,omitempty"`
	Samples   int        `json:"samples"`
	Positives int        `json:"positives"`
	TrainedAt *time.Time `json:"trained_at,omitempty"`
}

// Retrainer pulls recent labeled sessions and retrains the ranking model.
type Retrainer struct {
	source  TrainingSource
	trainer ModelTrainer
	cache   Invalidator
	limit   int
	logger  *slog.Logger
}

func NewRetrainer(source TrainingSource, trainer ModelTrainer, cache Invalidator, limit int, logger *slog.Logger) *Retrainer {
	if limit <= 0 {
		limit = DefaultTrainingLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrainer{
		source:  source,
		trainer: trainer,
		cache:   cache,
		limit:   limit,
		logger:  logger.With("component", "retrain"),
	}
}

// Retrain trains on up to limit recent rows. Data that cannot produce a model
// (no rows, or a single label class) is a skip, not an error, and leaves the
// current artifact in place.
func (r *Retrainer) Retrain(ctx context.Context) (RetrainOutcome, error) {
	examples, err := r.source.TrainingRows(ctx, r.limit)
	if err != nil {
		return RetrainOutcome{}, fmt.Errorf("loading training rows: %w", err)
	}

	m, err := r.trainer.Train(ctx, examples)
	switch {
	case errors.Is(err, ranking.ErrEmptyTrainingData), errors.Is(err, ranking.ErrSingleClass):
		r.logger.Info("retrain skipped", "reason", err, "rows", len(examples))
		return RetrainOutcome{Status: "skipped", Reason: err.Error(), Samples: len(examples)}, nil
	case err != nil:
		return RetrainOutcome{}, err
	}

	if r.cache != nil {
		r.cache.Invalidate()
	}
	return RetrainOutcome{
		Status:    "trained",
		Samples:   m.Samples,
		Positives: m.Positives,
		TrainedAt: &m.TrainedAt,
	}, nil
}

// NewRetrainJob wraps r as a periodic service.
func NewRetrainJob(r *Retrainer, interval time.Duration, logger *slog.Logger) *Periodic {
	return NewPeriodic(RetrainJobName, PeriodicConfig{Interval: interval, Timeout: 30 * time.Minute}, func(ctx context.Context) error {
		_, err := r.Retrain(ctx)
		return err
	}, logger)
}
