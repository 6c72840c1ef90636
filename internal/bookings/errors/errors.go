package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	// ErrSlotTaken reports that the slot already has a confirmed booking. It is
	// raised by the unique index on confirmed slot references and by the
	// conditional slot update.
	ErrSlotTaken = errors.New("slot already has a confirmed booking")

	ErrSlotNotFound = errors.New("slot not found")

	// ErrSlotStateDrift means a confirmed booking references a slot that is not
	// marked booked.
	ErrSlotStateDrift = errors.New("slot state does not match its booking")
)
