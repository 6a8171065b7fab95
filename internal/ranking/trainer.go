package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/slotwise/internal/features"
	"github.com/kalambet/slotwise/internal/metrics"
)

// Trainer fits a model from labeled examples and installs it.
type Trainer struct {
	store  ModelStore
	opts   FitOptions
	clock  Clock
	logger *slog.Logger
}

func NewTrainer(store ModelStore, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{
		store:  store,
		opts:   DefaultFitOptions(),
		clock:  realClock{},
		logger: logger.With("component", "trainer"),
	}
}

// Train fits a model over examples and replaces the stored artifact. On any
// error the previous artifact is left in place. ErrEmptyTrainingData and
// ErrSingleClass can be matched with errors.Is.
func (t *Trainer) Train(ctx context.Context, examples []Example) (*Model, error) {
	start := t.clock.Now()

	m, err := Fit(examples, t.opts)
	if err != nil {
		if errors.Is(err, ErrEmptyTrainingData) || errors.Is(err, ErrSingleClass) {
			metrics.RecordTraining("skipped", 0)
		} else {
			metrics.RecordTraining("error", 0)
		}
		return nil, fmt.Errorf("fitting model: %w", err)
	}
	m.Columns = append([]string(nil), features.Columns...)
	m.TrainedAt = t.clock.Now().UTC()

	if err := ctx.Err(); err != nil {
		metrics.RecordTraining("error", 0)
		return nil, err
	}
	if err := t.store.Replace(ctx, m); err != nil {
		metrics.RecordTraining("error", 0)
		return nil, fmt.Errorf("storing model: %w", err)
	}

	elapsed := t.clock.Now().Sub(start)
	metrics.RecordTraining("success", elapsed)
	metrics.ModelTrainedAt.Set(float64(m.TrainedAt.Unix()))
	t.logger.Info("model trained",
		"samples", m.Samples,
		"positives", m.Positives,
		"duration", elapsed,
	)
	return m, nil
}
