// Package features turns availability slots and a pair's booking history into
// the fixed-width rows the ranking model scores.
package features

import (
	"math"
	"time"

	"github.com/kalambet/slotwise/internal/storage"
)

// Defaults used when a pair has no usable history.
const (
	NoHistoryHourDiff = 999.0
	NoHistoryDays     = 999

	// recentWindow is how many of the newest non-cancelled bookings feed recent_count.
	recentWindow = 12
)

// Columns names the model feature vector, in Vector order.
var Columns = []string{"slot_is_free", "same_hour", "same_dow", "hour_diff", "days_since_last", "recent_count"}

// Row is the feature representation of one candidate slot. SlotID is nil for
// candidates that do not correspond to a stored slot.
type Row struct {
	SlotID        *int64
	SlotTime      time.Time
	SlotHour      int
	SlotDOW       int // Monday=0
	SlotIsFree    int
	SameHour      int
	SameDOW       int
	HourDiff      float64
	DaysSinceLast int
	RecentCount   int
}

// Vector returns the model inputs in Columns order.
func (r Row) Vector() []float64 {
	return []float64{
		float64(r.SlotIsFree),
		float64(r.SameHour),
		float64(r.SameDOW),
		r.HourDiff,
		float64(r.DaysSinceLast),
		float64(r.RecentCount),
	}
}

// Build computes one Row per slot, in slot order. history must be ordered
// newest first; the reference booking is its first non-cancelled entry.
func Build(history []storage.Booking, slots []storage.Slot) []Row {
	active := make([]storage.Booking, 0, len(history))
	for _, b := range history {
		if b.Status != storage.StatusCancelled {
			active = append(active, b)
		}
	}

	var ref *storage.Booking
	if len(active) > 0 {
		ref = &active[0]
	}
	recent := active
	if len(recent) > recentWindow {
		recent = recent[:recentWindow]
	}

	rows := make([]Row, 0, len(slots))
	for _, sl := range slots {
		ts := sl.SlotTime.UTC()
		row := Row{
			SlotTime:      ts,
			SlotHour:      ts.Hour(),
			SlotDOW:       Weekday(ts),
			SlotIsFree:    1,
			HourDiff:      NoHistoryHourDiff,
			DaysSinceLast: NoHistoryDays,
		}
		if sl.ID != 0 {
			id := sl.ID
			row.SlotID = &id
		}
		if sl.IsBooked {
			row.SlotIsFree = 0
		}

		if ref != nil {
			prev := ref.StartTime.UTC()
			row.SameHour = boolInt(prev.Hour() == row.SlotHour)
			row.SameDOW = boolInt(Weekday(prev) == row.SlotDOW)
			row.HourDiff = math.Abs(ts.Sub(prev).Hours())
			row.DaysSinceLast = DayDiff(prev, ts)
			for _, b := range recent {
				if b.StartTime.UTC().Hour() == row.SlotHour {
					row.RecentCount++
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Weekday maps t to Monday=0 .. Sunday=6.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// DayDiff returns the calendar-day difference to - from, on UTC dates.
// It is negative when to falls on an earlier date.
func DayDiff(from, to time.Time) int {
	f := from.UTC()
	t := to.UTC()
	fd := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	td := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Round(td.Sub(fd).Hours() / 24))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
