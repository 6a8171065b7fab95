// Package booking implements the public operations: recommending slots,
// confirming appointments and managing reminders and availability.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/slotwise/internal/metrics"
	"github.com/kalambet/slotwise/internal/ranking"
	"github.com/kalambet/slotwise/internal/recommend"
	"github.com/kalambet/slotwise/internal/storage"
)

const (
	// ManualSlotTime marks the pseudo-slot for a user-entered time.
	ManualSlotTime = "manual_input"

	NoBookingMessage = "No past booking found."
)

// Store is the storage surface the Service needs. Implemented by storage.Store.
type Store interface {
	LatestBooking(ctx context.Context, primaryUserID, secondaryUserID int64) (storage.Booking, error)
	BookingHistory(ctx context.Context, primaryUserID, secondaryUserID int64, limit int) ([]storage.Booking, error)
	ConfirmBooking(ctx context.Context, b storage.Booking) (storage.Booking, error)
	CancelBooking(ctx context.Context, id int64) error
	UpsertReminderSetting(ctx context.Context, primaryUserID, secondaryUserID int64, intervalDays int) error
	DeactivateReminder(ctx context.Context, primaryUserID, secondaryUserID int64) error
	AddSlots(ctx context.Context, primaryUserID int64, times []time.Time) (int, error)
	FutureSlots(ctx context.Context, primaryUserID int64, from, to time.Time) ([]storage.Slot, error)
}

type Recommender interface {
	RecommendTopK(ctx context.Context, primaryUserID, secondaryUserID int64, k, windowDays int) (recommend.Result, error)
}

type LabelMarker interface {
	MarkChosen(ctx context.Context, sessionID string, primaryUserID, secondaryUserID int64, slotID *int64) error
}

type Options struct {
	InteractiveK    int
	WindowDays      int
	DefaultDuration time.Duration
}

func DefaultOptions() Options {
	return Options{InteractiveK: 2, WindowDays: 30, DefaultDuration: 30 * time.Minute}
}

// --- Requests and responses ---

type PairRequest struct {
	PrimaryUserID   int64 `json:"primary_user_id" validate:"gt=0"`
	SecondaryUserID int64 `json:"secondary_user_id" validate:"gt=0"`
}

type ReminderRequest struct {
	PrimaryUserID   int64 `json:"primary_user_id" validate:"gt=0"`
	SecondaryUserID int64 `json:"secondary_user_id" validate:"gt=0"`
	IntervalDays    int   `json:"interval_days" validate:"gte=1"`
}

// ConfirmRequest books a slot. SlotID is nil for manual times; SessionID ties
// the confirmation back to the recommendation session that offered the slot.
type ConfirmRequest struct {
	PrimaryUserID   int64  `json:"primary_user_id" validate:"gt=0"`
	SecondaryUserID int64  `json:"secondary_user_id" validate:"gt=0"`
	SlotID          *int64 `json:"slot_id" validate:"omitempty,gt=0"`
	SlotTime        string `json:"slot_time" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"omitempty,min=1,max=1440"`
	SessionID       string `json:"session_id"`
}

type AvailabilityRequest struct {
	PrimaryUserID int64    `json:"primary_user_id" validate:"gt=0"`
	SlotTimes     []string `json:"slot_times" validate:"required,min=1,dive,required"`
}

type Slot struct {
	SlotID   *int64  `json:"slot_id"`
	SlotTime string  `json:"slot_time"`
	Score    float64 `json:"score"`
}

type Recommendation struct {
	Slots     []Slot `json:"slots"`
	SessionID string `json:"session_id"`
}

type ReminderSlots struct {
	Slots   []Slot `json:"slots"`
	Message string `json:"message,omitempty"`
}

// Service implements the booking operations on top of the store and the
// recommendation orchestrator.
type Service struct {
	store       Store
	recommender Recommender
	labels      LabelMarker
	opts        Options
	now         func() time.Time
	logger      *slog.Logger
}

func NewService(store Store, recommender Recommender, labels LabelMarker, opts Options, logger *slog.Logger) *Service {
	def := DefaultOptions()
	if opts.InteractiveK <= 0 {
		opts.InteractiveK = def.InteractiveK
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = def.WindowDays
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = def.DefaultDuration
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		recommender: recommender,
		labels:      labels,
		opts:        opts,
		now:         time.Now,
		logger:      logger.With("component", "booking"),
	}
}

// SetClock overrides the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// RecommendSlots returns the manual pseudo-slot followed by the top ranked
// slots, and the id of the logged session.
func (s *Service) RecommendSlots(ctx context.Context, req PairRequest) (Recommendation, error) {
	if err := validateStruct(req); err != nil {
		return Recommendation{}, err
	}

	res, err := s.recommender.RecommendTopK(ctx, req.PrimaryUserID, req.SecondaryUserID, s.opts.InteractiveK, s.opts.WindowDays)
	if err != nil {
		return Recommendation{}, fmt.Errorf("recommending slots: %w", err)
	}
	metrics.RecommendationsServed.WithLabelValues("interactive").Inc()

	slots := make([]Slot, 0, len(res.Top)+1)
	slots = append(slots, Slot{SlotTime: ManualSlotTime, Score: 1.0})
	slots = append(slots, toSlots(res.Top)...)
	return Recommendation{Slots: slots, SessionID: res.SessionID}, nil
}

// SetReminder creates or updates the pair's reminder and activates it.
func (s *Service) SetReminder(ctx context.Context, req ReminderRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	if err := s.store.UpsertReminderSetting(ctx, req.PrimaryUserID, req.SecondaryUserID, req.IntervalDays); err != nil {
		return fmt.Errorf("saving reminder: %w", err)
	}
	return nil
}

// DisableReminder turns the pair's reminder off.
func (s *Service) DisableReminder(ctx context.Context, req PairRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	return s.store.DeactivateReminder(ctx, req.PrimaryUserID, req.SecondaryUserID)
}

// ConfirmAppointment stores the booking and, for slot bookings, marks the slot
// taken in the same transaction. A slot booking starts at the slot's stored
// time; slot_time only matters for manual bookings. The label back-fill runs afterwards and its
// failure does not affect the booking.
func (s *Service) ConfirmAppointment(ctx context.Context, req ConfirmRequest) (storage.Booking, error) {
	if err := validateStruct(req); err != nil {
		return storage.Booking{}, err
	}
	start, err := ParseSlotTime(req.SlotTime)
	if err != nil {
		return storage.Booking{}, err
	}
	duration := s.opts.DefaultDuration
	if req.DurationMinutes > 0 {
		duration = time.Duration(req.DurationMinutes) * time.Minute
	}

	b, err := s.store.ConfirmBooking(ctx, storage.Booking{
		PrimaryUserID:   req.PrimaryUserID,
		SecondaryUserID: req.SecondaryUserID,
		SlotID:          req.SlotID,
		StartTime:       start,
		EndTime:         start.Add(duration),
		Status:          storage.StatusBooked,
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		return storage.Booking{}, fmt.Errorf("confirming booking: %w", err)
	}

	if err := s.labels.MarkChosen(ctx, req.SessionID, req.PrimaryUserID, req.SecondaryUserID, req.SlotID); err != nil {
		s.logger.Warn("label back-fill failed", "session_id", req.SessionID, "booking_id", b.ID, "error", err)
	}
	return b, nil
}

// ReminderSlots offers the time of the pair's last booking, without ranking.
func (s *Service) ReminderSlots(ctx context.Context, req PairRequest) (ReminderSlots, error) {
	if err := validateStruct(req); err != nil {
		return ReminderSlots{}, err
	}
	last, err := s.store.LatestBooking(ctx, req.PrimaryUserID, req.SecondaryUserID)
	if errors.Is(err, storage.ErrNotFound) {
		return ReminderSlots{Slots: []Slot{}, Message: NoBookingMessage}, nil
	}
	if err != nil {
		return ReminderSlots{}, fmt.Errorf("loading last booking: %w", err)
	}
	return ReminderSlots{Slots: []Slot{{SlotTime: FormatTime(last.StartTime), Score: 1.0}}}, nil
}

// AddAvailability publishes slots for a primary user. Duplicates are ignored.
func (s *Service) AddAvailability(ctx context.Context, req AvailabilityRequest) (int, error) {
	if err := validateStruct(req); err != nil {
		return 0, err
	}
	times := make([]time.Time, 0, len(req.SlotTimes))
	for _, raw := range req.SlotTimes {
		t, err := ParseSlotTime(raw)
		if err != nil {
			return 0, err
		}
		times = append(times, t)
	}
	n, err := s.store.AddSlots(ctx, req.PrimaryUserID, times)
	if err != nil {
		return 0, fmt.Errorf("adding availability: %w", err)
	}
	return n, nil
}

// ListAvailability returns the primary user's slots in the next days days.
func (s *Service) ListAvailability(ctx context.Context, primaryUserID int64, days int) ([]storage.Slot, error) {
	if primaryUserID <= 0 {
		return nil, &ValidationError{Field: "primary_user_id", Message: "must be greater than 0"}
	}
	if days <= 0 {
		days = s.opts.WindowDays
	}
	now := s.now().UTC()
	return s.store.FutureSlots(ctx, primaryUserID, now, now.AddDate(0, 0, days))
}

// ListBookings returns the pair's bookings, newest first.
func (s *Service) ListBookings(ctx context.Context, req PairRequest, limit int) ([]storage.Booking, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return s.store.BookingHistory(ctx, req.PrimaryUserID, req.SecondaryUserID, limit)
}

// CancelBooking marks a booking cancelled and frees its slot.
func (s *Service) CancelBooking(ctx context.Context, id int64) error {
	if id <= 0 {
		return &ValidationError{Field: "id", Message: "must be greater than 0"}
	}
	return s.store.CancelBooking(ctx, id)
}

func toSlots(cands []ranking.ScoredCandidate) []Slot {
	out := make([]Slot, 0, len(cands))
	for _, c := range cands {
		out = append(out, Slot{SlotID: c.SlotID, SlotTime: FormatTime(c.SlotTime), Score: c.Score})
	}
	return out
}

// FormatTime renders timestamps the way every response carries them.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
