// Package notify delivers reminder notifications to the external
// notification service.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/kalambet/slotwise/internal/metrics"
)

const (
	defaultTimeout   = 5 * time.Second
	initialBackoff   = 500 * time.Millisecond
	failureThreshold = 5
)

// ErrDelivery wraps every failed delivery attempt, including transport
// errors and non-2xx responses.
var ErrDelivery = errors.New("notification delivery failed")

// Slot is one recommended slot in a notification payload.
type Slot struct {
	SlotID   *int64  `json:"slot_id"`
	SlotTime string  `json:"slot_time"`
	Score    float64 `json:"score"`
}

type Notification struct {
	ToSecondaryUserID int64  `json:"to_secondary_user_id"`
	PrimaryUserID     int64  `json:"primary_user_id"`
	Message           string `json:"message"`
	RecommendedSlots  []Slot `json:"recommended_slots"`
	SessionID         string `json:"session_id,omitempty"`
}

// Notifier sends a single notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// WebhookConfig configures a WebhookNotifier.
type WebhookConfig struct {
	Endpoint string
	Timeout  time.Duration
	// Retries is the number of extra attempts after the first failure. Zero
	// means one attempt per notification.
	Retries int
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
}

// WebhookNotifier POSTs notifications as JSON. Calls go through a circuit
// breaker that fails fast while the endpoint is down.
type WebhookNotifier struct {
	endpoint   string
	retries    int
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[struct{}]
	logger     *slog.Logger
}

func NewWebhookNotifier(cfg WebhookConfig, logger *slog.Logger) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "notify")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	const breakerName = "notify-webhook"
	metrics.NotifyBreakerState.WithLabelValues(breakerName).Set(0)
	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.NotifyBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn("notification breaker state changed", "from", from.String(), "to", to.String())
		},
	}

	return &WebhookNotifier{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		retries:  cfg.Retries,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
		logger:  logger,
	}
}

// Notify makes up to 1+Retries delivery attempts. An open breaker ends the
// attempt sequence immediately.
func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	if w.endpoint == "" {
		return fmt.Errorf("%w: no endpoint configured", ErrDelivery)
	}
	if n.RecommendedSlots == nil {
		n.RecommendedSlots = []Slot{}
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.retries; attempt++ {
		_, err := w.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, w.post(ctx, body)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %w", ErrDelivery, err)
		}

		lastErr = err
		if attempt < w.retries {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrDelivery, ctx.Err())
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

func (w *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: creating request: %w", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: unexpected status %d: %s", ErrDelivery, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
