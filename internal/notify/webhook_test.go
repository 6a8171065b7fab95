package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNotify_PayloadShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	id := int64(42)
	n := NewWebhookNotifier(WebhookConfig{Endpoint: srv.URL}, nil)
	err := n.Notify(context.Background(), Notification{
		ToSecondaryUserID: 2,
		PrimaryUserID:     1,
		Message:           "Your next appointment is due.",
		RecommendedSlots:  []Slot{{SlotID: &id, SlotTime: "2024-01-08T09:00:00Z", Score: 0.42}},
		SessionID:         "abc",
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if got["to_secondary_user_id"] != float64(2) || got["primary_user_id"] != float64(1) {
		t.Errorf("ids = %v/%v", got["to_secondary_user_id"], got["primary_user_id"])
	}
	if got["message"] != "Your next appointment is due." {
		t.Errorf("message = %v", got["message"])
	}
	if got["session_id"] != "abc" {
		t.Errorf("session_id = %v", got["session_id"])
	}
	slots, ok := got["recommended_slots"].([]any)
	if !ok || len(slots) != 1 {
		t.Fatalf("recommended_slots = %v", got["recommended_slots"])
	}
	slot := slots[0].(map[string]any)
	if slot["slot_id"] != float64(42) || slot["slot_time"] != "2024-01-08T09:00:00Z" {
		t.Errorf("slot = %v", slot)
	}
}

func TestNotify_NilSlotsEncodeAsEmptyList(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{Endpoint: srv.URL}, nil)
	if err := n.Notify(context.Background(), Notification{ToSecondaryUserID: 2, PrimaryUserID: 1}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if string(raw["recommended_slots"]) != "[]" {
		t.Errorf("recommended_slots = %s, want []", raw["recommended_slots"])
	}
}

func TestNotify_NonSuccessStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{Endpoint: srv.URL}, nil)
	err := n.Notify(context.Background(), Notification{})
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly one attempt with retries=0, got %d", calls.Load())
	}
}

func TestNotify_RetriesWhenConfigured(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{Endpoint: srv.URL, Retries: 1}, nil)
	if err := n.Notify(context.Background(), Notification{}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestNotify_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{Endpoint: srv.URL, Timeout: 50 * time.Millisecond}, nil)
	start := time.Now()
	err := n.Notify(context.Background(), Notification{})
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout not applied, took %v", elapsed)
	}
}

func TestNotify_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{Endpoint: srv.URL, BreakerTimeout: time.Hour}, nil)
	ctx := context.Background()
	for i := 0; i < failureThreshold; i++ {
		n.Notify(ctx, Notification{})
	}
	if calls.Load() != failureThreshold {
		t.Fatalf("expected %d calls before tripping, got %d", failureThreshold, calls.Load())
	}

	err := n.Notify(ctx, Notification{})
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if calls.Load() != failureThreshold {
		t.Errorf("open breaker should not reach the endpoint, calls = %d", calls.Load())
	}
}

func TestNotify_NoEndpoint(t *testing.T) {
	n := NewWebhookNotifier(WebhookConfig{}, nil)
	if err := n.Notify(context.Background(), Notification{}); !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
}
