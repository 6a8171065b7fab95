package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/slotwise/internal/booking"
	"github.com/kalambet/slotwise/internal/jobs"
	"github.com/kalambet/slotwise/internal/metrics"
	"github.com/kalambet/slotwise/internal/ranking"
	"github.com/kalambet/slotwise/internal/reminder"
	"github.com/kalambet/slotwise/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// BookingService is the operation surface served over HTTP and MCP.
// Implemented by booking.Service.
type BookingService interface {
	RecommendSlots(ctx context.Context, req booking.PairRequest) (booking.Recommendation, error)
	SetReminder(ctx context.Context, req booking.ReminderRequest) error
	DisableReminder(ctx context.Context, req booking.PairRequest) error
	ConfirmAppointment(ctx context.Context, req booking.ConfirmRequest) (storage.Booking, error)
	ReminderSlots(ctx context.Context, req booking.PairRequest) (booking.ReminderSlots, error)
	AddAvailability(ctx context.Context, req booking.AvailabilityRequest) (int, error)
	ListAvailability(ctx context.Context, primaryUserID int64, days int) ([]storage.Slot, error)
	ListBookings(ctx context.Context, req booking.PairRequest, limit int) ([]storage.Booking, error)
	CancelBooking(ctx context.Context, id int64) error
}

type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (reminder.Report, error)
}

type Retrainer interface {
	Retrain(ctx context.Context) (jobs.RetrainOutcome, error)
}

type ModelSource interface {
	Current(ctx context.Context) (*ranking.Model, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// AppDeps holds what the HTTP handlers need. Sweeper, Retrainer and Models are
// optional; their routes answer 503 when nil.
type AppDeps struct {
	Booking   BookingService
	Sweeper   Sweeper
	Retrainer Retrainer
	Models    ModelSource
	Health    Pinger
	Token     string
	RateLimit int // requests per minute per client IP; 0 disables
	Logger    *slog.Logger
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Get("/health", handleHealth(deps))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		if deps.RateLimit > 0 {
			r.Use(httprate.Limit(deps.RateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}

		r.Post("/recommend_slots", handleRecommendSlots(deps))
		r.Post("/reminder_slots", handleReminderSlots(deps))
		r.Post("/set_reminder", handleSetReminder(deps))
		r.Post("/disable_reminder", handleDisableReminder(deps))
		r.Post("/confirm_appointment", handleConfirmAppointment(deps))

		r.Post("/availability", handleAddAvailability(deps))
		r.Get("/availability", handleListAvailability(deps))
		r.Get("/bookings", handleListBookings(deps))
		r.Post("/bookings/{id}/cancel", handleCancelBooking(deps))

		r.Post("/reminders/sweep", handleSweep(deps))
		r.Post("/model/retrain", handleRetrain(deps))
		r.Get("/model", handleModelStatus(deps))
	})

	return r
}

// instrument records request counts and latency by route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordAPIRequest(r.Method, route, status, time.Since(start))
	})
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health.Ping(r.Context()); err != nil {
				httpError(w, http.StatusServiceUnavailable, "api_error", "database unavailable: %v", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// decodeBody reads a JSON body into v. It writes the 400 itself and reports
// whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError maps service errors onto status codes.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ve *booking.ValidationError
	switch {
	case errors.As(err, &ve):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", ve.Error())
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, storage.ErrSlotTaken):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	default:
		logger.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
