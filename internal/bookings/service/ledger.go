package service

import (
	"context"

	"medislot/internal/bookings/repository"
	"medislot/pkg/auth"
	"medislot/pkg/config"
	apperrors "medislot/pkg/errors"
	"medislot/pkg/model"
)

// BookingLedger is the read side of bookings. It has no write paths.
type BookingLedger interface {
	ListForActor(ctx context.Context) ([]*model.BookingView, error)
	ListAll(ctx context.Context) ([]*model.BookingView, error)
}

type bookingLedger struct {
	repo repository.BookingRepository
	cfg  *config.Config
}

func NewBookingLedger(repo repository.BookingRepository, cfg *config.Config) BookingLedger {
	return &bookingLedger{
		repo: repo,
		cfg:  cfg,
	}
}

// ListForActor returns the caller's bookings, newest first.
func (l *bookingLedger) ListForActor(ctx context.Context) ([]*model.BookingView, error) {
	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return nil, apperrors.Unauthorized("Authentication required")
	}

	views, err := l.repo.ListForActor(ctx, principal.ActorID)
	if err != nil {
		l.cfg.Log.Error("Failed to list bookings for actor",
			"actor_id", principal.ActorID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to fetch your bookings", err)
	}

	for _, v := range views {
		v.Actor = nil
	}
	return views, nil
}

// ListAll returns every booking joined with its owner. Privileged roles only.
func (l *bookingLedger) ListAll(ctx context.Context) ([]*model.BookingView, error) {
	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return nil, apperrors.Unauthorized("Authentication required")
	}
	if !principal.Role.Privileged() {
		return nil, apperrors.Forbidden("Admin access required")
	}

	views, err := l.repo.ListAll(ctx)
	if err != nil {
		l.cfg.Log.Error("Failed to list all bookings", "error", err)
		return nil, apperrors.Internal("Failed to fetch all bookings", err)
	}

	return views, nil
}
