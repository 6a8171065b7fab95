// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ranking
	ScoringDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotwise_scoring_degraded_total",
			Help: "Scoring calls that fell back to rule and decay terms only",
		},
		[]string{"reason"}, // "no_model", "load_error", "width_mismatch", "non_finite"
	)

	RecommendationsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotwise_recommendations_total",
			Help: "Recommendation sessions by call site",
		},
		[]string{"source"}, // "interactive", "reminder"
	)

	CandidatesScored = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slotwise_candidates_per_session",
			Help:    "Number of candidate slots scored per session",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	// Session log
	SessionRowsLogged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slotwise_session_rows_logged_total",
			Help: "Recommendation log rows written",
		},
	)

	LabelsMarked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotwise_labels_marked_total",
			Help: "Confirmation label back-fill attempts by result",
		},
		[]string{"result"}, // "marked", "no_match", "skipped", "error"
	)

	// Training
	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotwise_training_runs_total",
			Help: "Model training runs by result",
		},
		[]string{"result"}, // "success", "skipped", "error"
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slotwise_training_duration_seconds",
			Help:    "Duration of model fits in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ModelTrainedAt = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slotwise_model_trained_timestamp_seconds",
			Help: "Unix time of the currently installed model artifact",
		},
	)

	// Reminders
	RemindersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotwise_reminders_total",
			Help: "Reminder sweep outcomes per pair",
		},
		[]string{"result"}, // "notified", "failed", "not_due", "no_booking"
	)

	NotifyBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slotwise_notify_breaker_state",
			Help: "Notification circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Jobs
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotwise_job_runs_total",
			Help: "Periodic job ticks by job and result",
		},
		[]string{"job", "result"}, // result: "ok", "error", "panic"
	)

	// API
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotwise_api_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slotwise_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)
)

// RecordAPIRequest records one finished HTTP request.
func RecordAPIRequest(method, route string, status int, d time.Duration) {
	APIRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordTraining records the outcome of one training run.
func RecordTraining(result string, d time.Duration) {
	TrainingRuns.WithLabelValues(result).Inc()
	if result == "success" {
		TrainingDuration.Observe(d.Seconds())
	}
}
