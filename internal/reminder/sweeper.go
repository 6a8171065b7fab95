// Package reminder decides which pairs are due for a rebooking reminder and
// dispatches one notification per due pair.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/slotwise/internal/metrics"
	"github.com/kalambet/slotwise/internal/notify"
	"github.com/kalambet/slotwise/internal/recommend"
	"github.com/kalambet/slotwise/internal/storage"
)

// Message is the text sent with every reminder.
const Message = "Your next appointment is due."

// Store abstracts the reminder and booking reads/writes the Sweeper needs.
type Store interface {
	ActiveReminderSettings(ctx context.Context) ([]storage.ReminderSetting, error)
	LatestBooking(ctx context.Context, primaryUserID, secondaryUserID int64) (storage.Booking, error)
	MarkReminderSent(ctx context.Context, id int64, at time.Time) error
}

type Recommender interface {
	RecommendTopK(ctx context.Context, primaryUserID, secondaryUserID int64, k, windowDays int) (recommend.Result, error)
}

// Report summarises one sweep.
type Report struct {
	Checked  int `json:"checked"`
	Due      int `json:"due"`
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
}

type Sweeper struct {
	store       Store
	recommender Recommender
	notifier    notify.Notifier
	k           int
	logger      *slog.Logger
}

// NewSweeper creates a Sweeper. k is the number of recommended slots included
// in each notification; values <= 0 default to 3.
func NewSweeper(store Store, recommender Recommender, notifier notify.Notifier, k int, logger *slog.Logger) *Sweeper {
	if k <= 0 {
		k = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:       store,
		recommender: recommender,
		notifier:    notifier,
		k:           k,
		logger:      logger.With("component", "reminder"),
	}
}

// DueAt returns when the pair becomes due: interval days after the last
// booking started, and no earlier than interval days after the last reminder.
func DueAt(last storage.Booking, rs storage.ReminderSetting) time.Time {
	due := last.StartTime.AddDate(0, 0, rs.IntervalDays)
	if rs.LastReminderSent != nil {
		if next := rs.LastReminderSent.AddDate(0, 0, rs.IntervalDays); next.After(due) {
			due = next
		}
	}
	return due
}

// Sweep checks every active setting against now. A due pair gets exactly one
// notification attempt, after which last_reminder_sent is set to now whether
// or not delivery succeeded. Per-pair failures are logged and counted; only a
// failure to list settings is returned.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Report, error) {
	settings, err := s.store.ActiveReminderSettings(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("listing reminder settings: %w", err)
	}

	var rep Report
	for _, rs := range settings {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Checked++

		last, err := s.store.LatestBooking(ctx, rs.PrimaryUserID, rs.SecondaryUserID)
		if errors.Is(err, storage.ErrNotFound) {
			metrics.RemindersProcessed.WithLabelValues("no_booking").Inc()
			continue
		}
		if err != nil {
			rep.Failed++
			metrics.RemindersProcessed.WithLabelValues("failed").Inc()
			s.logger.Error("loading last booking", "setting_id", rs.ID, "error", err)
			continue
		}

		if now.Before(DueAt(last, rs)) {
			metrics.RemindersProcessed.WithLabelValues("not_due").Inc()
			continue
		}
		rep.Due++

		n := s.buildNotification(ctx, rs, last)
		if err := s.notifier.Notify(ctx, n); err != nil {
			rep.Failed++
			metrics.RemindersProcessed.WithLabelValues("failed").Inc()
			s.logger.Warn("reminder delivery failed",
				"primary_user_id", rs.PrimaryUserID,
				"secondary_user_id", rs.SecondaryUserID,
				"error", err,
			)
		} else {
			rep.Notified++
			metrics.RemindersProcessed.WithLabelValues("notified").Inc()
		}

		if err := s.store.MarkReminderSent(ctx, rs.ID, now); err != nil {
			s.logger.Error("recording reminder", "setting_id", rs.ID, "error", err)
		}
	}

	if rep.Due > 0 {
		s.logger.Info("reminder sweep finished",
			"checked", rep.Checked,
			"due", rep.Due,
			"notified", rep.Notified,
			"failed", rep.Failed,
		)
	}
	return rep, nil
}

// buildNotification ranks fresh slots for the pair. When ranking fails or
// finds nothing, the last booking time is offered instead.
func (s *Sweeper) buildNotification(ctx context.Context, rs storage.ReminderSetting, last storage.Booking) notify.Notification {
	n := notify.Notification{
		ToSecondaryUserID: rs.SecondaryUserID,
		PrimaryUserID:     rs.PrimaryUserID,
		Message:           Message,
	}

	res, err := s.recommender.RecommendTopK(ctx, rs.PrimaryUserID, rs.SecondaryUserID, s.k, 0)
	if err != nil {
		s.logger.Warn("ranking reminder slots", "setting_id", rs.ID, "error", err)
	} else {
		metrics.RecommendationsServed.WithLabelValues("reminder").Inc()
		n.SessionID = res.SessionID
		for _, c := range res.Top {
			n.RecommendedSlots = append(n.RecommendedSlots, notify.Slot{
				SlotID:   c.SlotID,
				SlotTime: c.SlotTime.UTC().Format(time.RFC3339),
				Score:    c.Score,
			})
		}
	}

	if len(n.RecommendedSlots) == 0 {
		n.RecommendedSlots = []notify.Slot{{
			SlotTime: last.StartTime.UTC().Format(time.RFC3339),
			Score:    1.0,
		}}
	}
	return n
}
