package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"medislot/internal/bookings/export"
	"medislot/pkg/auth"
	apperrors "medislot/pkg/errors"
	"medislot/pkg/logger"
	"medislot/pkg/middleware"
	"medislot/pkg/model"

	"github.com/goccy/go-json"
	"github.com/julienschmidt/httprouter"
)

type mockEngine struct {
	reserveFunc func(ctx context.Context, req *model.ReserveRequest) (*model.Booking, error)
	cancelFunc  func(ctx context.Context, id string) (*model.Booking, error)
}

func (m *mockEngine) Reserve(ctx context.Context, req *model.ReserveRequest) (*model.Booking, error) {
	return m.reserveFunc(ctx, req)
}

func (m *mockEngine) Cancel(ctx context.Context, id string) (*model.Booking, error) {
	return m.cancelFunc(ctx, id)
}

type mockLedger struct {
	listForActorFunc func(ctx context.Context) ([]*model.BookingView, error)
	listAllFunc      func(ctx context.Context) ([]*model.BookingView, error)
}

func (m *mockLedger) ListForActor(ctx context.Context) ([]*model.BookingView, error) {
	return m.listForActorFunc(ctx)
}

func (m *mockLedger) ListAll(ctx context.Context) ([]*model.BookingView, error) {
	if m.listAllFunc == nil {
		return nil, nil
	}
	return m.listAllFunc(ctx)
}

type tokenAuthenticator map[string]auth.Principal

func (a tokenAuthenticator) VerifyIdentity(_ context.Context, token string) (auth.Principal, error) {
	if p, ok := a[token]; ok {
		return p, nil
	}
	return auth.Principal{}, apperrors.Unauthorized("Invalid token")
}

func newRouter(engine *mockEngine, ledger *mockLedger) *httprouter.Router {
	log := logger.Discard()
	guard := middleware.NewGuard(tokenAuthenticator{
		"patient": {ActorID: "p1", Role: auth.RolePatient},
		"admin":   {ActorID: "a1", Role: auth.RoleAdmin},
	}, "token", log)

	router := httprouter.New()
	NewBookingHandler(engine, ledger, guard, time.UTC, log).RegisterRoutes(router)
	return router
}

func send(router http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestReserve_Created(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	router := newRouter(&mockEngine{
		reserveFunc: func(ctx context.Context, req *model.ReserveRequest) (*model.Booking, error) {
			p, _ := auth.PrincipalFrom(ctx)
			return &model.Booking{ID: "b1", SlotID: req.SlotID, ActorID: p.ActorID, Status: model.BookingStatusConfirmed, CreatedAt: createdAt}, nil
		},
	}, &mockLedger{})

	rec := send(router, http.MethodPost, "/api/book", "patient", `{"slotId":"s1","actorId":"someone-else"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	for _, key := range []string{"bookingId", "slotId", "actorId", "status", "createdAt"} {
		if _, ok := got[key]; !ok {
			t.Errorf("response missing %q: %s", key, rec.Body.String())
		}
	}
	if got["actorId"] != "p1" {
		t.Errorf("actor must come from the session, got %v", got["actorId"])
	}
}

func TestReserve_SlotTaken(t *testing.T) {
	router := newRouter(&mockEngine{
		reserveFunc: func(ctx context.Context, req *model.ReserveRequest) (*model.Booking, error) {
			return nil, apperrors.SlotTaken()
		},
	}, &mockLedger{})

	rec := send(router, http.MethodPost, "/api/book", "patient", `{"slotId":"s1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body apperrors.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Code != apperrors.CodeSlotTaken {
		t.Errorf("expected SLOT_TAKEN body, got %s", rec.Body.String())
	}
}

func TestReserve_AdminForbidden(t *testing.T) {
	router := newRouter(&mockEngine{}, &mockLedger{})

	rec := send(router, http.MethodPost, "/api/book", "admin", `{"slotId":"s1"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestCancel_PassesBookingID(t *testing.T) {
	var gotID string
	router := newRouter(&mockEngine{
		cancelFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			gotID = id
			return &model.Booking{ID: id, Status: model.BookingStatusCancelled}, nil
		},
	}, &mockLedger{})

	rec := send(router, http.MethodPost, "/api/bookings/b42/cancel", "patient", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotID != "b42" {
		t.Errorf("expected id b42, got %q", gotID)
	}
}

func TestListMine_EmptyIsArray(t *testing.T) {
	router := newRouter(&mockEngine{}, &mockLedger{
		listForActorFunc: func(ctx context.Context) ([]*model.BookingView, error) {
			return nil, nil
		},
	})

	rec := send(router, http.MethodGet, "/api/my-bookings", "patient", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected [], got %s", rec.Body.String())
	}
}

func TestListAll_PatientForbidden(t *testing.T) {
	router := newRouter(&mockEngine{}, &mockLedger{})

	rec := send(router, http.MethodGet, "/api/all-bookings", "patient", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestExportAll_Spreadsheet(t *testing.T) {
	router := newRouter(&mockEngine{}, &mockLedger{
		listAllFunc: func(ctx context.Context) ([]*model.BookingView, error) {
			return []*model.BookingView{{Booking: model.Booking{ID: "b1", Status: model.BookingStatusConfirmed}}}, nil
		},
	})

	rec := send(router, http.MethodGet, "/api/all-bookings/export", "admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != export.ContentType {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Error("expected a zip based workbook")
	}
}

func TestExportAll_PatientForbidden(t *testing.T) {
	router := newRouter(&mockEngine{}, &mockLedger{})

	rec := send(router, http.MethodGet, "/api/all-bookings/export", "patient", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}
