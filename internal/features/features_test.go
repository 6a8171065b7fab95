package features

import (
	"testing"
	"time"

	"github.com/kalambet/slotwise/internal/storage"
)

func booking(start time.Time, status string) storage.Booking {
	return storage.Booking{PrimaryUserID: 1, SecondaryUserID: 2, StartTime: start, EndTime: start.Add(30 * time.Minute), Status: status}
}

func TestBuild_NoHistoryDefaults(t *testing.T) {
	slots := []storage.Slot{
		{ID: 1, SlotTime: time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)},
		{ID: 2, SlotTime: time.Date(2024, 1, 9, 14, 0, 0, 0, time.UTC), IsBooked: true},
	}

	rows := Build(nil, slots)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	for i, r := range rows {
		if r.SameHour != 0 || r.SameDOW != 0 {
			t.Errorf("row %d: same_hour=%d same_dow=%d, want 0,0", i, r.SameHour, r.SameDOW)
		}
		if r.HourDiff != 999.0 {
			t.Errorf("row %d: hour_diff = %v, want 999", i, r.HourDiff)
		}
		if r.DaysSinceLast != 999 {
			t.Errorf("row %d: days_since_last = %d, want 999", i, r.DaysSinceLast)
		}
		if r.RecentCount != 0 {
			t.Errorf("row %d: recent_count = %d, want 0", i, r.RecentCount)
		}
	}
	if rows[0].SlotIsFree != 1 || rows[1].SlotIsFree != 0 {
		t.Errorf("slot_is_free = %d,%d, want 1,0", rows[0].SlotIsFree, rows[1].SlotIsFree)
	}
}

func TestBuild_OnlyCancelledHistoryUsesDefaults(t *testing.T) {
	history := []storage.Booking{booking(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), storage.StatusCancelled)}
	slots := []storage.Slot{{ID: 1, SlotTime: time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)}}

	rows := Build(history, slots)
	if rows[0].HourDiff != NoHistoryHourDiff || rows[0].SameHour != 0 {
		t.Errorf("cancelled bookings must not act as reference: %+v", rows[0])
	}
}

func TestBuild_WeekLaterSameHour(t *testing.T) {
	history := []storage.Booking{booking(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), storage.StatusBooked)}
	slots := []storage.Slot{{ID: 10, SlotTime: time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)}}

	rows := Build(history, slots)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	r := rows[0]
	if r.SameHour != 1 {
		t.Errorf("same_hour = %d, want 1", r.SameHour)
	}
	if r.SameDOW != 1 {
		t.Errorf("same_dow = %d, want 1", r.SameDOW)
	}
	if r.HourDiff != 168.0 {
		t.Errorf("hour_diff = %v, want 168", r.HourDiff)
	}
	if r.SlotIsFree != 1 {
		t.Errorf("slot_is_free = %d, want 1", r.SlotIsFree)
	}
	if r.DaysSinceLast != 7 {
		t.Errorf("days_since_last = %d, want 7", r.DaysSinceLast)
	}
	if r.SlotDOW != 0 || r.SlotHour != 9 {
		t.Errorf("slot_dow=%d slot_hour=%d, want 0 (Monday), 9", r.SlotDOW, r.SlotHour)
	}
	if r.RecentCount != 1 {
		t.Errorf("recent_count = %d, want 1", r.RecentCount)
	}
	if r.SlotID == nil || *r.SlotID != 10 {
		t.Errorf("SlotID = %v, want 10", r.SlotID)
	}
}

func TestBuild_ReferenceSkipsCancelled(t *testing.T) {
	history := []storage.Booking{
		booking(time.Date(2024, 1, 5, 15, 0, 0, 0, time.UTC), storage.StatusCancelled),
		booking(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), storage.StatusCompleted),
	}
	slots := []storage.Slot{{ID: 1, SlotTime: time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)}}

	r := Build(history, slots)[0]
	if r.SameHour != 1 || r.HourDiff != 168.0 {
		t.Errorf("reference should be the completed 09:00 booking: %+v", r)
	}
}

func TestBuild_RecentCountUsesTwelveNewest(t *testing.T) {
	var history []storage.Booking
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	// 12 newest at 10:00, then 5 older at 10:00 that must not be counted.
	for i := 0; i < 17; i++ {
		history = append(history, booking(base.AddDate(0, 0, -7*i), storage.StatusBooked))
	}
	// A cancelled booking at the newest position does not take a recent slot.
	history = append([]storage.Booking{booking(base.AddDate(0, 0, 1), storage.StatusCancelled)}, history...)

	slots := []storage.Slot{
		{ID: 1, SlotTime: time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)},
		{ID: 2, SlotTime: time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC)},
	}
	rows := Build(history, slots)
	if rows[0].RecentCount != 12 {
		t.Errorf("recent_count = %d, want 12", rows[0].RecentCount)
	}
	if rows[1].RecentCount != 0 {
		t.Errorf("recent_count = %d, want 0", rows[1].RecentCount)
	}
}

func TestBuild_CandidateBeforeReference(t *testing.T) {
	history := []storage.Booking{booking(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), storage.StatusBooked)}
	slots := []storage.Slot{{ID: 1, SlotTime: time.Date(2024, 1, 8, 21, 0, 0, 0, time.UTC)}}

	r := Build(history, slots)[0]
	if r.HourDiff != 36 {
		t.Errorf("hour_diff = %v, want 36 (absolute)", r.HourDiff)
	}
	if r.DaysSinceLast != -2 {
		t.Errorf("days_since_last = %d, want -2", r.DaysSinceLast)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	history := []storage.Booking{booking(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), storage.StatusBooked)}
	slots := []storage.Slot{
		{ID: 1, SlotTime: time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)},
		{ID: 2, SlotTime: time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC)},
	}

	a := Build(history, slots)
	b := Build(history, slots)
	for i := range a {
		va, vb := a[i].Vector(), b[i].Vector()
		for j := range va {
			if va[j] != vb[j] {
				t.Fatalf("row %d col %s differs: %v vs %v", i, Columns[j], va[j], vb[j])
			}
		}
	}
}

func TestRowVectorOrder(t *testing.T) {
	r := Row{SlotIsFree: 1, SameHour: 2, SameDOW: 3, HourDiff: 4.5, DaysSinceLast: 5, RecentCount: 6}
	want := []float64{1, 2, 3, 4.5, 5, 6}
	got := r.Vector()
	if len(got) != len(Columns) {
		t.Fatalf("vector width %d, columns %d", len(got), len(Columns))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s = %v, want %v", Columns[i], got[i], want[i])
		}
	}
}

func TestWeekday(t *testing.T) {
	tests := []struct {
		date time.Time
		want int
	}{
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 0}, // Monday
		{time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC), 5}, // Saturday
		{time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), 6}, // Sunday
	}
	for _, tt := range tests {
		if got := Weekday(tt.date); got != tt.want {
			t.Errorf("Weekday(%s) = %d, want %d", tt.date.Format("2006-01-02"), got, tt.want)
		}
	}
}
