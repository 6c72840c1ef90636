package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	bookingserrors "medislot/internal/bookings/errors"
	"medislot/internal/bookings/repository"
	"medislot/internal/bookings/validator"
	"medislot/pkg/auth"
	"medislot/pkg/config"
	mongotx "medislot/pkg/db/mongo"
	apperrors "medislot/pkg/errors"
	"medislot/pkg/model"
	"medislot/pkg/validation"
)

// ReservationEngine owns every write to a slot's booked flag and to the
// booking lifecycle. Each operation is one unit of work and is never retried.
type ReservationEngine interface {
	Reserve(ctx context.Context, req *model.ReserveRequest) (*model.Booking, error)
	Cancel(ctx context.Context, bookingID string) (*model.Booking, error)
}

type reservationEngine struct {
	repo      repository.BookingRepository
	slots     repository.SlotStateRepository
	validator *validator.BookingValidator
	cfg       *config.Config
	now       func() time.Time
}

func NewReservationEngine(
	repo repository.BookingRepository,
	slots repository.SlotStateRepository,
	validator *validator.BookingValidator,
	cfg *config.Config,
) ReservationEngine {
	return &reservationEngine{
		repo:      repo,
		slots:     slots,
		validator: validator,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *reservationEngine) Reserve(ctx context.Context, req *model.ReserveRequest) (*model.Booking, error) {
	principal, err := requirePatient(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.validator.ValidateReserve(req); err != nil {
		return nil, validationAppError(err)
	}
	if !validator.WellFormedID(req.SlotID) {
		return nil, apperrors.SlotNotFound(http.StatusBadRequest)
	}

	booking := &model.Booking{
		SlotID:    req.SlotID,
		ActorID:   principal.ActorID,
		Status:    model.BookingStatusConfirmed,
		CreatedAt: s.now().UTC(),
	}

	unitCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	err = s.repo.ExecuteTransaction(unitCtx, func(txCtx context.Context) error {
		slot, err := s.slots.FindSlot(txCtx, req.SlotID)
		if err != nil {
			return err
		}
		if slot.IsBooked {
			return bookingserrors.ErrSlotTaken
		}

		// Guards against a stale flag. The unique index still decides races.
		if _, err := s.repo.FindConfirmedBySlot(txCtx, req.SlotID); err == nil {
			return bookingserrors.ErrSlotTaken
		} else if !errors.Is(err, bookingserrors.ErrNotFound) {
			return err
		}

		if err := s.repo.Insert(txCtx, booking); err != nil {
			return err
		}
		return s.slots.MarkBooked(txCtx, req.SlotID)
	})

	if err != nil {
		return nil, s.reserveError(err, req.SlotID, principal.ActorID)
	}

	s.cfg.Log.Info("Booking created successfully",
		"booking_id", booking.ID,
		"slot_id", booking.SlotID,
		"actor_id", booking.ActorID,
	)

	return booking, nil
}

// reserveError folds every conflict path into SLOT_TAKEN.
func (s *reservationEngine) reserveError(err error, slotID, actorID string) error {
	switch {
	case errors.Is(err, bookingserrors.ErrSlotNotFound):
		return apperrors.SlotNotFound(http.StatusBadRequest)
	case errors.Is(err, bookingserrors.ErrSlotTaken), errors.Is(err, mongotx.ErrWriteConflict):
		s.cfg.Log.Info("Slot already booked",
			"slot_id", slotID,
			"actor_id", actorID,
		)
		return apperrors.SlotTaken()
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, mongotx.ErrCommitUnknown):
		s.cfg.Log.Error("Booking commit outcome unknown",
			"slot_id", slotID,
			"actor_id", actorID,
			"error", err,
		)
		return apperrors.Internal("Failed to book appointment", err)
	case errors.Is(err, context.DeadlineExceeded):
		s.cfg.Log.Warn("Booking timed out",
			"slot_id", slotID,
			"actor_id", actorID,
		)
		return apperrors.Timeout("Booking took too long, please try again")
	default:
		s.cfg.Log.Error("Failed to book appointment",
			"slot_id", slotID,
			"actor_id", actorID,
			"error", err,
		)
		return apperrors.Internal("Failed to book appointment", err)
	}
}

// Cancel frees the slot of one of the caller's own confirmed bookings.
func (s *reservationEngine) Cancel(ctx context.Context, bookingID string) (*model.Booking, error) {
	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return nil, apperrors.Unauthorized("Authentication required")
	}
	if !validator.WellFormedID(bookingID) {
		return nil, apperrors.BookingNotFound()
	}

	var cancelled *model.Booking

	unitCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	err := s.repo.ExecuteTransaction(unitCtx, func(txCtx context.Context) error {
		booking, err := s.repo.FindByID(txCtx, bookingID)
		if err != nil {
			return err
		}
		if !booking.Confirmed() {
			return bookingserrors.ErrNotFound
		}
		if booking.ActorID != principal.ActorID {
			return apperrors.Forbidden("You can only cancel your own bookings")
		}

		at := s.now().UTC()
		if err := s.repo.MarkCancelled(txCtx, bookingID, at); err != nil {
			return err
		}
		if err := s.slots.Release(txCtx, booking.SlotID); err != nil {
			return err
		}

		booking.Status = model.BookingStatusCancelled
		booking.CancelledAt = &at
		cancelled = booking
		return nil
	})

	if err != nil {
		return nil, s.cancelError(err, bookingID, principal.ActorID)
	}

	s.cfg.Log.Info("Booking cancelled successfully",
		"booking_id", cancelled.ID,
		"slot_id", cancelled.SlotID,
		"actor_id", principal.ActorID,
	)

	return cancelled, nil
}

func (s *reservationEngine) cancelError(err error, bookingID, actorID string) error {
	switch {
	case errors.Is(err, bookingserrors.ErrNotFound), errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.BookingNotFound()
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, mongotx.ErrWriteConflict):
		return apperrors.Conflict("Booking changed while cancelling, please try again")
	default:
		s.cfg.Log.Error("Failed to cancel booking",
			"booking_id", bookingID,
			"actor_id", actorID,
			"error", err,
		)
		return apperrors.Internal("Failed to cancel booking", err)
	}
}

// requirePatient admits verified patients only. Roles are matched
// exhaustively so a new role is refused until handled here.
func requirePatient(ctx context.Context) (auth.Principal, error) {
	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return auth.Principal{}, apperrors.Unauthorized("Authentication required")
	}

	switch principal.Role {
	case auth.RolePatient:
		return principal, nil
	case auth.RoleAdmin:
		return auth.Principal{}, apperrors.Forbidden("Patient access required")
	default:
		return auth.Principal{}, apperrors.Forbidden("Access denied")
	}
}

func validationAppError(err error) error {
	var validationErrs validation.ValidationErrors
	if errors.As(err, &validationErrs) {
		return validationErrs.AppError()
	}
	return apperrors.Validation("Invalid booking request", map[string]any{"error": err.Error()})
}
