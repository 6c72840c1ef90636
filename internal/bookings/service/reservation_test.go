package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"medislot/internal/bookings/validator"
	"medislot/pkg/auth"
	mongotx "medislot/pkg/db/mongo"
	apperrors "medislot/pkg/errors"
	"medislot/pkg/model"
)

const (
	slotOne   = "665f1c2b9a1e4a0000000001"
	slotTwo   = "665f1c2b9a1e4a0000000002"
	patientA  = "665f1c2b9a1e4a00000000aa"
	patientB  = "665f1c2b9a1e4a00000000bb"
	adminUser = "665f1c2b9a1e4a00000000ad"
)

var slotStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newEngine(store *memoryStore) *reservationEngine {
	cfg := newTestConfig()
	return NewReservationEngine(store, store, validator.NewBookingValidator(cfg.Log), cfg).(*reservationEngine)
}

func as(actorID string, role auth.Role) context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{ActorID: actorID, Role: role})
}

func reserve(e ReservationEngine, ctx context.Context, slotID string) (*model.Booking, error) {
	return e.Reserve(ctx, &model.ReserveRequest{SlotID: slotID})
}

// ────────────────────────────────────────────────
// Reserve()
// ────────────────────────────────────────────────

func TestReserve_Success(t *testing.T) {
	store := newMemoryStore()
	store.addSlot(slotOne, slotStart)
	engine := newEngine(store)

	booking, err := reserve(engine, as(patientA, auth.RolePatient), slotOne)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.ID == "" || booking.Status != model.BookingStatusConfirmed {
		t.Errorf("unexpected booking: %+v", booking)
	}
	if booking.ActorID != patientA || booking.SlotID != slotOne {
		t.Errorf("booking bound to wrong actor or slot: %+v", booking)
	}
	if !store.slots[slotOne].IsBooked {
		t.Error("slot should be marked booked")
	}
	if v := store.checkInvariant(); len(v) > 0 {
		t.Errorf("invariant violated: %v", v)
	}
}

func TestReserve_ActorComesFromPrincipal(t *testing.T) {
	store := newMemoryStore()
	store.addSlot(slotOne, slotStart)
	engine := newEngine(store)

	if _, err := reserve(engine, context.Background(), slotOne); !apperrors.HasCode(err, apperrors.CodeUnauthorized) {
		t.Errorf("expected UNAUTHORIZED without a principal, got %v", err)
	}
	if _, err := reserve(engine, as(adminUser, auth.RoleAdmin), slotOne); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Errorf("expected FORBIDDEN for admin, got %v", err)
	}
	if store.slots[slotOne].IsBooked {
		t.Error("rejected callers must not change slot state")
	}
}

func TestReserve_Failures(t *testing.T) {
	tests := []struct {
		name     string
		slotID   string
		setup    func(s *memoryStore)
		wantCode string
	}{
		{"missing slot id", "", nil, apperrors.CodeValidation},
		{"malformed slot id", "nope", nil, apperrors.CodeSlotNotFound},
		{"unknown slot", slotTwo, nil, apperrors.CodeSlotNotFound},
		{
			name:   "slot already flagged",
			slotID: slotOne,
			setup: func(s *memoryStore) {
				s.slots[slotOne].IsBooked = true
			},
			wantCode: apperrors.CodeSlotTaken,
		},
		{
			name:   "stale flag with confirmed booking",
			slotID: slotOne,
			setup: func(s *memoryStore) {
				s.bookings["b0"] = &model.Booking{ID: "b0", SlotID: slotOne, ActorID: patientB, Status: model.BookingStatusConfirmed}
			},
			wantCode: apperrors.CodeSlotTaken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			store.addSlot(slotOne, slotStart)
			if tt.setup != nil {
				tt.setup(store)
			}

			_, err := reserve(newEngine(store), as(patientA, auth.RolePatient), tt.slotID)
			if !apperrors.HasCode(err, tt.wantCode) {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
			if tt.wantCode == apperrors.CodeSlotNotFound || tt.wantCode == apperrors.CodeSlotTaken {
				if status := apperrors.AsAppError(err).HTTPStatus; status != http.StatusBadRequest {
					t.Errorf("expected 400, got %d", status)
				}
			}
		})
	}
}

func TestReserve_WriteConflictIsSlotTaken(t *testing.T) {
	store := newMemoryStore()
	store.addSlot(slotOne, slotStart)
	store.failMarkBooked = fmt.Errorf("update slot: %w", mongotx.ErrWriteConflict)

	_, err := reserve(newEngine(store), as(patientA, auth.RolePatient), slotOne)
	if !apperrors.HasCode(err, apperrors.CodeSlotTaken) {
		t.Fatalf("expected SLOT_TAKEN, got %v", err)
	}
	if len(store.bookings) != 0 {
		t.Error("aborted unit must not leave a booking behind")
	}
}

func TestReserve_InternalFailureRollsBack(t *testing.T) {
	store := newMemoryStore()
	store.addSlot(slotOne, slotStart)
	store.failMarkBooked = errors.New("connection reset by peer")

	_, err := reserve(newEngine(store), as(patientA, auth.RolePatient), slotOne)
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeInternal {
		t.Fatalf("expected INTERNAL_ERROR, got %v", err)
	}
	if appErr.Message != "Failed to book appointment" {
		t.Errorf("storage details leaked: %q", appErr.Message)
	}
	if len(store.bookings) != 0 || store.slots[slotOne].IsBooked {
		t.Error("no partial mutation may survive an internal failure")
	}
}

func TestReserve_ConcurrentExactlyOneWins(t *testing.T) {
	for _, n := range []int{2, 10, 64} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			store := newMemoryStore()
			store.addSlot(slotOne, slotStart)
			engine := newEngine(store)

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				wins    int
				taken   int
				other   []error
				release = make(chan struct{})
			)

			for i := 0; i < n; i++ {
				wg.Add(1)
				actor := fmt.Sprintf("665f1c2b9a1e4a%010d", i)
				go func() {
					defer wg.Done()
					<-release
					_, err := reserve(engine, as(actor, auth.RolePatient), slotOne)

					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						wins++
					case apperrors.HasCode(err, apperrors.CodeSlotTaken):
						taken++
					default:
						other = append(other, err)
					}
				}()
			}
			close(release)
			wg.Wait()

			if wins != 1 || taken != n-1 || len(other) != 0 {
				t.Fatalf("wins=%d taken=%d other=%v, want 1 win and %d SLOT_TAKEN", wins, taken, other, n-1)
			}
			if v := store.checkInvariant(); len(v) > 0 {
				t.Errorf("invariant violated: %v", v)
			}
		})
	}
}

// ────────────────────────────────────────────────
// Cancel()
// ────────────────────────────────────────────────

func TestCancel_FreesSlotForRebooking(t *testing.T) {
	store := newMemoryStore()
	store.addSlot(slotOne, slotStart)
	engine := newEngine(store)

	booking, err := reserve(engine, as(patientA, auth.RolePatient), slotOne)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	cancelled, err := engine.Cancel(as(patientA, auth.RolePatient), booking.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.BookingStatusCancelled || cancelled.CancelledAt == nil {
		t.Errorf("unexpected cancelled booking: %+v", cancelled)
	}
	if store.slots[slotOne].IsBooked {
		t.Error("slot should be free after cancel")
	}

	if _, err := reserve(engine, as(patientB, auth.RolePatient), slotOne); err != nil {
		t.Errorf("expected slot to be bookable again, got %v", err)
	}
	if v := store.checkInvariant(); len(v) > 0 {
		t.Errorf("invariant violated: %v", v)
	}
}

func TestCancel_Failures(t *testing.T) {
	store := newMemoryStore()
	store.addSlot(slotOne, slotStart)
	engine := newEngine(store)

	booking, err := reserve(engine, as(patientA, auth.RolePatient), slotOne)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if _, err := engine.Cancel(as(patientB, auth.RolePatient), booking.ID); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Errorf("non-owner: expected FORBIDDEN, got %v", err)
	}
	if !store.slots[slotOne].IsBooked {
		t.Error("forbidden cancel must not release the slot")
	}

	if _, err := engine.Cancel(as(patientA, auth.RolePatient), "665f1c2b9a1e4a00000000ff"); !apperrors.HasCode(err, apperrors.CodeBookingNotFound) {
		t.Errorf("unknown booking: expected BOOKING_NOT_FOUND, got %v", err)
	}
	if _, err := engine.Cancel(as(patientA, auth.RolePatient), "bad"); !apperrors.HasCode(err, apperrors.CodeBookingNotFound) {
		t.Errorf("malformed id: expected BOOKING_NOT_FOUND, got %v", err)
	}

	if _, err := engine.Cancel(as(patientA, auth.RolePatient), booking.ID); err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	_, err = engine.Cancel(as(patientA, auth.RolePatient), booking.ID)
	if !apperrors.HasCode(err, apperrors.CodeBookingNotFound) {
		t.Errorf("already cancelled: expected BOOKING_NOT_FOUND, got %v", err)
	}
	if apperrors.AsAppError(err).HTTPStatus != http.StatusNotFound {
		t.Errorf("expected 404, got %d", apperrors.AsAppError(err).HTTPStatus)
	}
}

func TestCancel_RacingReserveKeepsInvariant(t *testing.T) {
	store := newMemoryStore()
	store.addSlot(slotOne, slotStart)
	engine := newEngine(store)

	booking, err := reserve(engine, as(patientA, auth.RolePatient), slotOne)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = engine.Cancel(as(patientA, auth.RolePatient), booking.ID)
	}()
	go func() {
		defer wg.Done()
		_, _ = reserve(engine, as(patientB, auth.RolePatient), slotOne)
	}()
	wg.Wait()

	if v := store.checkInvariant(); len(v) > 0 {
		t.Errorf("invariant violated: %v", v)
	}
}
