package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/slotwise/internal/booking"
	"github.com/kalambet/slotwise/internal/jobs"
	"github.com/kalambet/slotwise/internal/ranking"
	"github.com/kalambet/slotwise/internal/recommend"
	"github.com/kalambet/slotwise/internal/reminder"
	"github.com/kalambet/slotwise/internal/sessionlog"
	"github.com/kalambet/slotwise/internal/storage"
)

const testToken = "test-token-12345"

type mockSweeper struct {
	sweepFn func(ctx context.Context, now time.Time) (reminder.Report, error)
}

func (m *mockSweeper) Sweep(ctx context.Context, now time.Time) (reminder.Report, error) {
	return m.sweepFn(ctx, now)
}

type mockRetrainer struct {
	retrainFn func(ctx context.Context) (jobs.RetrainOutcome, error)
}

func (m *mockRetrainer) Retrain(ctx context.Context) (jobs.RetrainOutcome, error) {
	return m.retrainFn(ctx)
}

type mockModels struct {
	model *ranking.Model
	err   error
}

func (m *mockModels) Current(context.Context) (*ranking.Model, error) {
	return m.model, m.err
}

func newTestService(t *testing.T) (*booking.Service, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sessions := sessionlog.New(store, nil)
	orch := recommend.NewOrchestrator(store, ranking.NewScorer(nil, nil), sessions, recommend.DefaultOptions(), nil)
	return booking.NewService(store, orch, sessions, booking.DefaultOptions(), nil), store
}

func setupAppHandler(t *testing.T, token string) (http.Handler, *storage.Store) {
	t.Helper()
	svc, store := newTestService(t)
	handler := NewAppHandler(AppDeps{
		Booking: svc,
		Health:  store,
		Token:   token,
	})
	return handler, store
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Error.Type
}

func futureSlot(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Truncate(time.Hour).Format(time.RFC3339)
}

func TestHealth(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "slotwise_api_requests_total") {
		t.Error("expected API request counter in /metrics output")
	}
}

func TestAuth(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	body := `{"primary_user_id":1,"secondary_user_id":2}`

	if rr := serve(h, authReq(http.MethodPost, "/recommend_slots", body, "")); rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rr.Code)
	}
	if rr := serve(h, authReq(http.MethodPost, "/recommend_slots", body, "wrong")); rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rr.Code)
	}
	if rr := serve(h, authReq(http.MethodPost, "/recommend_slots", body, testToken)); rr.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rr.Code)
	}
}

func TestAuth_DisabledWithoutToken(t *testing.T) {
	h, _ := setupAppHandler(t, "")

	rr := serve(h, authReq(http.MethodPost, "/recommend_slots", `{"primary_user_id":1,"secondary_user_id":2}`, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestRecommendSlots(t *testing.T) {
	h, store := setupAppHandler(t, testToken)
	ctx := context.Background()
	slot1, _ := booking.ParseSlotTime(futureSlot(1))
	slot2, _ := booking.ParseSlotTime(futureSlot(2))
	slot3, _ := booking.ParseSlotTime(futureSlot(3))
	store.AddSlots(ctx, 1, []time.Time{slot1, slot2, slot3})

	rr := serve(h, authReq(http.MethodPost, "/recommend_slots", `{"primary_user_id":1,"secondary_user_id":2}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Slots []struct {
			SlotID   *int64  `json:"slot_id"`
			SlotTime string  `json:"slot_time"`
			Score    float64 `json:"score"`
		} `json:"slots"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Slots) != 3 {
		t.Fatalf("got %d slots, want manual + 2", len(resp.Slots))
	}
	if resp.Slots[0].SlotID != nil || resp.Slots[0].SlotTime != "manual_input" || resp.Slots[0].Score != 1.0 {
		t.Errorf("first slot = %+v, want manual pseudo-slot", resp.Slots[0])
	}
	if resp.SessionID == "" {
		t.Error("missing session_id")
	}
}

func TestRecommendSlots_BadRequests(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"primary_user_id":`},
		{"missing primary", `{"secondary_user_id":2}`},
		{"negative secondary", `{"primary_user_id":1,"secondary_user_id":-2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, authReq(http.MethodPost, "/recommend_slots", tt.body, testToken))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			if got := errorType(t, rr); got != "invalid_request_error" {
				t.Errorf("error type = %q", got)
			}
		})
	}
}

func TestSetAndDisableReminder(t *testing.T) {
	h, store := setupAppHandler(t, testToken)

	rr := serve(h, authReq(http.MethodPost, "/set_reminder", `{"primary_user_id":1,"secondary_user_id":2,"interval_days":7}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
	rs, err := store.GetReminderSetting(context.Background(), 1, 2)
	if err != nil || rs.IntervalDays != 7 || !rs.Active {
		t.Fatalf("setting = %+v, err = %v", rs, err)
	}

	rr = serve(h, authReq(http.MethodPost, "/set_reminder", `{"primary_user_id":1,"secondary_user_id":2,"interval_days":0}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("interval 0: status = %d, want 400", rr.Code)
	}

	rr = serve(h, authReq(http.MethodPost, "/disable_reminder", `{"primary_user_id":1,"secondary_user_id":2}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("disable: status = %d", rr.Code)
	}
	rr = serve(h, authReq(http.MethodPost, "/disable_reminder", `{"primary_user_id":5,"secondary_user_id":6}`, testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("disable unknown: status = %d, want 404", rr.Code)
	}
}

func TestConfirmAppointment_StatusCodes(t *testing.T) {
	h, store := setupAppHandler(t, testToken)
	ctx := context.Background()
	when, _ := booking.ParseSlotTime(futureSlot(1))
	store.AddSlots(ctx, 1, []time.Time{when})
	slots, _ := store.FutureSlots(ctx, 1, when.Add(-time.Minute), when.Add(time.Minute))
	slotID := slots[0].ID
	slotTime := booking.FormatTime(when)

	body := func(primary, secondary, slot int64) string {
		b, _ := json.Marshal(map[string]any{
			"primary_user_id":   primary,
			"secondary_user_id": secondary,
			"slot_id":           slot,
			"slot_time":         slotTime,
		})
		return string(b)
	}

	rr := serve(h, authReq(http.MethodPost, "/confirm_appointment", body(1, 2, slotID), testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("first booking: status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var ok struct {
		Status    string `json:"status"`
		BookingID int64  `json:"booking_id"`
	}
	json.NewDecoder(rr.Body).Decode(&ok)
	if ok.Status != "ok" || ok.BookingID == 0 {
		t.Errorf("response = %+v", ok)
	}

	rr = serve(h, authReq(http.MethodPost, "/confirm_appointment", body(1, 3, slotID), testToken))
	if rr.Code != http.StatusConflict {
		t.Errorf("double booking: status = %d, want 409", rr.Code)
	}

	rr = serve(h, authReq(http.MethodPost, "/confirm_appointment", body(1, 2, 9999), testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown slot: status = %d, want 404", rr.Code)
	}

	rr = serve(h, authReq(http.MethodPost, "/confirm_appointment", `{"primary_user_id":1,"secondary_user_id":2,"slot_time":"whenever"}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad time: status = %d, want 400", rr.Code)
	}

	history, _ := store.BookingHistory(ctx, 1, 3, 10)
	if len(history) != 0 {
		t.Errorf("failed confirmations left %d bookings", len(history))
	}
}

func TestConfirmAppointment_Manual(t *testing.T) {
	h, store := setupAppHandler(t, testToken)

	rr := serve(h, authReq(http.MethodPost, "/confirm_appointment",
		`{"primary_user_id":1,"secondary_user_id":2,"slot_id":null,"slot_time":"2024-05-01T10:00:00","session_id":null}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	b, err := store.LatestBooking(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("LatestBooking: %v", err)
	}
	if b.SlotID != nil || b.EndTime.Sub(b.StartTime) != 30*time.Minute {
		t.Errorf("booking = %+v", b)
	}
}

func TestReminderSlots(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	pair := `{"primary_user_id":1,"secondary_user_id":2}`

	rr := serve(h, authReq(http.MethodPost, "/reminder_slots", pair, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"slots":[],"message":"No past booking found."}` {
		t.Errorf("body = %s", got)
	}

	serve(h, authReq(http.MethodPost, "/confirm_appointment",
		`{"primary_user_id":1,"secondary_user_id":2,"slot_time":"2024-05-01T10:00:00Z"}`, testToken))

	rr = serve(h, authReq(http.MethodPost, "/reminder_slots", pair, testToken))
	if got := strings.TrimSpace(rr.Body.String()); got != `{"slots":[{"slot_id":null,"slot_time":"2024-05-01T10:00:00Z","score":1}]}` {
		t.Errorf("body = %s", got)
	}
}

func TestAvailabilityAndBookings(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	t1, t2 := futureSlot(1), futureSlot(2)

	rr := serve(h, authReq(http.MethodPost, "/availability",
		`{"primary_user_id":1,"slot_times":["`+t1+`","`+t2+`","`+t1+`"]}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("add: status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"added":2`) {
		t.Errorf("add body = %s", rr.Body.String())
	}

	rr = serve(h, authReq(http.MethodGet, "/availability?primary_user_id=1&days=7", "", testToken))
	var avail struct {
		Slots []slotView `json:"slots"`
	}
	json.NewDecoder(rr.Body).Decode(&avail)
	if len(avail.Slots) != 2 {
		t.Fatalf("listed %d slots, want 2", len(avail.Slots))
	}

	rr = serve(h, authReq(http.MethodGet, "/availability?primary_user_id=abc", "", testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad primary: status = %d, want 400", rr.Code)
	}

	confirm := `{"primary_user_id":1,"secondary_user_id":2,"slot_id":` + jsonInt(avail.Slots[0].ID) + `,"slot_time":"` + avail.Slots[0].SlotTime + `"}`
	if rr := serve(h, authReq(http.MethodPost, "/confirm_appointment", confirm, testToken)); rr.Code != http.StatusOK {
		t.Fatalf("confirm: status = %d; body = %s", rr.Code, rr.Body.String())
	}

	rr = serve(h, authReq(http.MethodGet, "/bookings?primary_user_id=1&secondary_user_id=2", "", testToken))
	var list struct {
		Bookings []bookingView `json:"bookings"`
	}
	json.NewDecoder(rr.Body).Decode(&list)
	if len(list.Bookings) != 1 || list.Bookings[0].Status != storage.StatusBooked {
		t.Fatalf("bookings = %+v", list.Bookings)
	}

	cancelURL := "/bookings/" + jsonInt(list.Bookings[0].ID) + "/cancel"
	if rr := serve(h, authReq(http.MethodPost, cancelURL, "", testToken)); rr.Code != http.StatusOK {
		t.Fatalf("cancel: status = %d", rr.Code)
	}
	if rr := serve(h, authReq(http.MethodPost, "/bookings/999/cancel", "", testToken)); rr.Code != http.StatusNotFound {
		t.Errorf("cancel unknown: status = %d, want 404", rr.Code)
	}

	rr = serve(h, authReq(http.MethodGet, "/availability?primary_user_id=1", "", testToken))
	json.NewDecoder(rr.Body).Decode(&avail)
	for _, s := range avail.Slots {
		if s.IsBooked {
			t.Errorf("slot %d still booked after cancel", s.ID)
		}
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestManualTriggers(t *testing.T) {
	svc, store := newTestService(t)
	var swept time.Time
	h := NewAppHandler(AppDeps{
		Booking: svc,
		Health:  store,
		Sweeper: &mockSweeper{sweepFn: func(_ context.Context, now time.Time) (reminder.Report, error) {
			swept = now
			return reminder.Report{Checked: 3, Due: 1, Notified: 1}, nil
		}},
		Retrainer: &mockRetrainer{retrainFn: func(context.Context) (jobs.RetrainOutcome, error) {
			return jobs.RetrainOutcome{Status: "skipped", Reason: ranking.ErrSingleClass.Error(), Samples: 4}, nil
		}},
	})

	rr := serve(h, authReq(http.MethodPost, "/reminders/sweep", "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("sweep: status = %d", rr.Code)
	}
	if swept.IsZero() {
		t.Error("sweeper not called")
	}
	var report reminder.Report
	json.NewDecoder(rr.Body).Decode(&report)
	if report.Checked != 3 || report.Notified != 1 {
		t.Errorf("report = %+v", report)
	}

	rr = serve(h, authReq(http.MethodPost, "/model/retrain", "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("retrain: status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"skipped"`) {
		t.Errorf("retrain body = %s", rr.Body.String())
	}
}

func TestManualTriggers_ErrorsAndUnconfigured(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewAppHandler(AppDeps{Booking: svc})

	if rr := serve(h, authReq(http.MethodPost, "/reminders/sweep", "", "")); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("sweep unconfigured: status = %d, want 503", rr.Code)
	}
	if rr := serve(h, authReq(http.MethodGet, "/model", "", "")); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("model unconfigured: status = %d, want 503", rr.Code)
	}

	h = NewAppHandler(AppDeps{
		Booking: svc,
		Retrainer: &mockRetrainer{retrainFn: func(context.Context) (jobs.RetrainOutcome, error) {
			return jobs.RetrainOutcome{}, errors.New("disk full")
		}},
	})
	rr := serve(h, authReq(http.MethodPost, "/model/retrain", "", ""))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("retrain failure: status = %d, want 500", rr.Code)
	}
}

func TestModelStatus(t *testing.T) {
	svc, _ := newTestService(t)
	models := &mockModels{}
	h := NewAppHandler(AppDeps{Booking: svc, Models: models})

	rr := serve(h, authReq(http.MethodGet, "/model", "", ""))
	if got := strings.TrimSpace(rr.Body.String()); got != `{"trained":false}` {
		t.Errorf("untrained body = %s", got)
	}

	trainedAt := time.Date(2024, 1, 7, 3, 0, 0, 0, time.UTC)
	models.model = &ranking.Model{
		Columns:   []string{"slot_is_free"},
		Weights:   []float64{0.5},
		TrainedAt: trainedAt,
		Samples:   40,
		Positives: 6,
	}
	rr = serve(h, authReq(http.MethodGet, "/model", "", ""))
	var st modelStatus
	if err := json.NewDecoder(rr.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Trained || st.Samples != 40 || st.TrainedAt == nil || !st.TrainedAt.Equal(trainedAt) {
		t.Errorf("status = %+v", st)
	}
}
