package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/slotwise/internal/booking"
	"github.com/kalambet/slotwise/internal/storage"
)

type bookingView struct {
	ID              int64  `json:"id"`
	PrimaryUserID   int64  `json:"primary_user_id"`
	SecondaryUserID int64  `json:"secondary_user_id"`
	SlotID          *int64 `json:"slot_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

func toBookingView(b storage.Booking) bookingView {
	return bookingView{
		ID:              b.ID,
		PrimaryUserID:   b.PrimaryUserID,
		SecondaryUserID: b.SecondaryUserID,
		SlotID:          b.SlotID,
		StartTime:       booking.FormatTime(b.StartTime),
		EndTime:         booking.FormatTime(b.EndTime),
		Status:          b.Status,
		CreatedAt:       booking.FormatTime(b.CreatedAt),
	}
}

type slotView struct {
	ID       int64  `json:"slot_id"`
	SlotTime string `json:"slot_time"`
	IsBooked bool   `json:"is_booked"`
}

func handleRecommendSlots(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req booking.PairRequest
		if !decodeBody(w, r, &req) {
			return
		}
		rec, err := deps.Booking.RecommendSlots(r.Context(), req)
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleReminderSlots(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req booking.PairRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := deps.Booking.ReminderSlots(r.Context(), req)
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleSetReminder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req booking.ReminderRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.Booking.SetReminder(r.Context(), req); err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleDisableReminder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req booking.PairRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.Booking.DisableReminder(r.Context(), req); err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleConfirmAppointment(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req booking.ConfirmRequest
		if !decodeBody(w, r, &req) {
			return
		}
		b, err := deps.Booking.ConfirmAppointment(r.Context(), req)
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "booking_id": b.ID})
	}
}

func handleAddAvailability(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req booking.AvailabilityRequest
		if !decodeBody(w, r, &req) {
			return
		}
		n, err := deps.Booking.AddAvailability(r.Context(), req)
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"added": n})
	}
}

func handleListAvailability(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		primary, ok := queryInt64(w, q.Get("primary_user_id"), "primary_user_id")
		if !ok {
			return
		}
		days := 0
		if v := q.Get("days"); v != "" {
			d, err := strconv.Atoi(v)
			if err != nil || d < 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "days must be a non-negative integer")
				return
			}
			days = d
		}

		slots, err := deps.Booking.ListAvailability(r.Context(), primary, days)
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		views := make([]slotView, 0, len(slots))
		for _, s := range slots {
			views = append(views, slotView{ID: s.ID, SlotTime: booking.FormatTime(s.SlotTime), IsBooked: s.IsBooked})
		}
		writeJSON(w, http.StatusOK, map[string]any{"slots": views})
	}
}

func handleListBookings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		primary, ok := queryInt64(w, q.Get("primary_user_id"), "primary_user_id")
		if !ok {
			return
		}
		secondary, ok := queryInt64(w, q.Get("secondary_user_id"), "secondary_user_id")
		if !ok {
			return
		}
		limit := 50
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 500 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be between 1 and 500")
				return
			}
			limit = n
		}

		list, err := deps.Booking.ListBookings(r.Context(), booking.PairRequest{PrimaryUserID: primary, SecondaryUserID: secondary}, limit)
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		views := make([]bookingView, 0, len(list))
		for _, b := range list {
			views = append(views, toBookingView(b))
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookings": views})
	}
}

func handleCancelBooking(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := queryInt64(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}
		if err := deps.Booking.CancelBooking(r.Context(), id); err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": storage.StatusCancelled})
	}
}

func handleSweep(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Sweeper == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "reminder sweeper not configured")
			return
		}
		report, err := deps.Sweeper.Sweep(r.Context(), time.Now().UTC())
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleRetrain(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Retrainer == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "retraining not configured")
			return
		}
		out, err := deps.Retrainer.Retrain(r.Context())
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type modelStatus struct {
	Trained   bool       `json:"trained"`
	TrainedAt *time.Time `json:"trained_at,omitempty"`
	Samples   int        `json:"samples,omitempty"`
	Positives int        `json:"positives,omitempty"`
	Columns   []string   `json:"columns,omitempty"`
	Weights   []float64  `json:"weights,omitempty"`
	Intercept float64    `json:"intercept,omitempty"`
}

func handleModelStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Models == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "model source not configured")
			return
		}
		m, err := deps.Models.Current(r.Context())
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		if m == nil {
			writeJSON(w, http.StatusOK, modelStatus{})
			return
		}
		writeJSON(w, http.StatusOK, modelStatus{
			Trained:   true,
			TrainedAt: &m.TrainedAt,
			Samples:   m.Samples,
			Positives: m.Positives,
			Columns:   m.Columns,
			Weights:   m.Weights,
			Intercept: m.Intercept,
		})
	}
}

func queryInt64(w http.ResponseWriter, raw, name string) (int64, bool) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s must be a positive integer", name)
		return 0, false
	}
	return v, true
}
