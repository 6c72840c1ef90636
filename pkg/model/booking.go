package model

import (
	"time"

	"medislot/pkg/auth"
)

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusConfirmed, BookingStatusCancelled:
		return true
	default:
		return false
	}
}

// Booking is one actor's claim on one slot.
type Booking struct {
	ID          string        `json:"bookingId"`
	SlotID      string        `json:"slotId"`
	ActorID     string        `json:"actorId"`
	Status      BookingStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	CancelledAt *time.Time    `json:"cancelledAt,omitempty"`
}

func (b *Booking) Confirmed() bool {
	return b.Status == BookingStatusConfirmed
}

type ActorSummary struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  auth.Role `json:"role"`
}

// BookingView is a ledger entry: a booking joined with its slot window and,
// for privileged listings, the owning actor.
type BookingView struct {
	Booking
	Slot  SlotWindow    `json:"slot"`
	Actor *ActorSummary `json:"actor,omitempty"`
}

type ReserveRequest struct {
	SlotID string `json:"slotId" validate:"required"`
}
