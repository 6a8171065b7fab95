package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/slotwise/internal/reminder"
)

type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (reminder.Report, error)
}

// NewReminderJob runs a reminder sweep every interval.
func NewReminderJob(s Sweeper, interval time.Duration, logger *slog.Logger) *Periodic {
	return NewPeriodic(ReminderJobName, PeriodicConfig{Interval: interval, Timeout: interval}, func(ctx context.Context) error {
		_, err := s.Sweep(ctx, time.Now().UTC())
		return err
	}, logger)
}
