package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrSlotTaken is returned when confirming a booking against a slot that is already booked.
var ErrSlotTaken = errors.New("slot already booked")

const (
	StatusBooked    = "booked"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

type Booking struct {
	ID              int64
	PrimaryUserID   int64
	SecondaryUserID int64
	SlotID          *int64 // nil for manual bookings
	StartTime       time.Time
	EndTime         time.Time
	Status          string // "booked", "cancelled", "completed"
	CreatedAt       time.Time
}

type Slot struct {
	ID            int64
	PrimaryUserID int64
	SlotTime      time.Time
	IsBooked      bool
}

type ReminderSetting struct {
	ID               int64
	PrimaryUserID    int64
	SecondaryUserID  int64
	IntervalDays     int
	LastReminderSent *time.Time
	Active           bool
	UpdatedAt        time.Time
}

// RecommendationLog is one scored candidate of a recommendation session.
// Chosen is flipped to 1 at most once per session, by a confirmation.
type RecommendationLog struct {
	ID              int64
	SessionID       string
	PrimaryUserID   int64
	SecondaryUserID int64
	SlotID          *int64
	SlotTime        time.Time
	SlotIsFree      int
	SameHour        int
	SameDOW         int
	HourDiff        float64
	DaysSinceLast   int
	RecentCount     int
	Score           float64
	Chosen          int
	CreatedAt       time.Time
}
