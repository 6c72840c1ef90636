package model

import "time"

// Slot is a fixed bookable window. IsBooked is written only by the reservation engine.
type Slot struct {
	ID       string    `json:"slotId"`
	StartAt  time.Time `json:"startAt"`
	EndAt    time.Time `json:"endAt"`
	IsBooked bool      `json:"isBooked"`
}

// SlotWindow is the time span of a slot, used when a booking is joined with its slot.
type SlotWindow struct {
	StartAt time.Time `json:"startAt"`
	EndAt   time.Time `json:"endAt"`
}

type SlotInput struct {
	StartAt time.Time `json:"startAt" validate:"required"`
	EndAt   time.Time `json:"endAt" validate:"required,gtfield=StartAt"`
}

// TimeRange is an inclusive bound on slot start times.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t lies inside the range, both ends included.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// GridSpec describes a recurring slot grid used for catalog seeding.
type GridSpec struct {
	StartDate    time.Time
	Days         int
	DayStart     time.Duration
	DayEnd       time.Duration
	SlotLength   time.Duration
	WeekdaysOnly bool
	Location     *time.Location
}

// AvailableSlot is the availability listing entry.
type AvailableSlot struct {
	SlotID  string    `json:"slotId"`
	StartAt time.Time `json:"startAt"`
	EndAt   time.Time `json:"endAt"`
}

func (s *Slot) Available() AvailableSlot {
	return AvailableSlot{SlotID: s.ID, StartAt: s.StartAt, EndAt: s.EndAt}
}
