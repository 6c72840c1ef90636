package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"medislot/pkg/auth"
	apperrors "medislot/pkg/errors"
	"medislot/pkg/model"
)

func TestLedger_ScenarioAB(t *testing.T) {
	store := newMemoryStore()
	store.addSlot(slotOne, slotStart)
	store.addSlot(slotTwo, slotStart.Add(30*time.Minute))
	store.addActor(model.ActorSummary{ID: patientA, Name: "Alice", Email: "alice@example.com", Role: auth.RolePatient})
	store.addActor(model.ActorSummary{ID: patientB, Name: "Bob", Email: "bob@example.com", Role: auth.RolePatient})

	engine := newEngine(store)
	ledger := NewBookingLedger(store, newTestConfig())

	b1, err := reserve(engine, as(patientA, auth.RolePatient), slotOne)
	if err != nil {
		t.Fatalf("reserve(S1, A): %v", err)
	}
	if _, err := reserve(engine, as(patientB, auth.RolePatient), slotOne); !apperrors.HasCode(err, apperrors.CodeSlotTaken) {
		t.Fatalf("reserve(S1, B): expected SLOT_TAKEN, got %v", err)
	}

	mine, err := ledger.ListForActor(as(patientA, auth.RolePatient))
	if err != nil {
		t.Fatalf("ListForActor(A): %v", err)
	}
	if len(mine) != 1 || mine[0].ID != b1.ID {
		t.Fatalf("ListForActor(A) = %+v, want [%s]", mine, b1.ID)
	}
	if !mine[0].Slot.StartAt.Equal(slotStart) {
		t.Errorf("booking not joined with its slot window: %+v", mine[0].Slot)
	}
	if mine[0].Actor != nil {
		t.Error("own listing should not carry actor identity")
	}

	theirs, err := ledger.ListForActor(as(patientB, auth.RolePatient))
	if err != nil || len(theirs) != 0 {
		t.Errorf("ListForActor(B) = %v, %v; want empty", theirs, err)
	}

	all, err := ledger.ListAll(as(adminUser, auth.RoleAdmin))
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 1 || all[0].ID != b1.ID {
		t.Fatalf("ListAll = %+v, want [%s]", all, b1.ID)
	}
	if all[0].Actor == nil || all[0].Actor.Email != "alice@example.com" {
		t.Errorf("expected booking joined with A's identity, got %+v", all[0].Actor)
	}
}

func TestLedger_NewestFirst(t *testing.T) {
	store := newMemoryStore()
	store.addSlot(slotOne, slotStart)
	store.addSlot(slotTwo, slotStart.Add(time.Hour))

	engine := newEngine(store)
	clock := slotStart.Add(-48 * time.Hour)
	engine.now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	first, _ := reserve(engine, as(patientA, auth.RolePatient), slotOne)
	second, _ := reserve(engine, as(patientA, auth.RolePatient), slotTwo)

	views, err := NewBookingLedger(store, newTestConfig()).ListForActor(as(patientA, auth.RolePatient))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 2 || views[0].ID != second.ID || views[1].ID != first.ID {
		t.Errorf("expected newest first, got %v then %v", views[0].ID, views[1].ID)
	}
}

func TestLedger_ListAllRequiresPrivilege(t *testing.T) {
	ledger := NewBookingLedger(newMemoryStore(), newTestConfig())

	if _, err := ledger.ListAll(as(patientA, auth.RolePatient)); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Errorf("patient: expected FORBIDDEN, got %v", err)
	}
	if _, err := ledger.ListAll(context.Background()); !apperrors.HasCode(err, apperrors.CodeUnauthorized) {
		t.Errorf("anonymous: expected UNAUTHORIZED, got %v", err)
	}
}

type failingLedgerRepo struct {
	*memoryStore
}

func (f failingLedgerRepo) ListForActor(context.Context, string) ([]*model.BookingView, error) {
	return nil, errors.New("cursor killed")
}

func TestLedger_StorageFailureIsInternal(t *testing.T) {
	ledger := NewBookingLedger(failingLedgerRepo{newMemoryStore()}, newTestConfig())

	_, err := ledger.ListForActor(as(patientA, auth.RolePatient))
	if !apperrors.HasCode(err, apperrors.CodeInternal) {
		t.Errorf("expected INTERNAL_ERROR, got %v", err)
	}
}
