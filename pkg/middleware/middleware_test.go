package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"medislot/pkg/auth"
	apperrors "medislot/pkg/errors"
	"medislot/pkg/logger"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
}

// ────────────────────────────────────────────────
// Request logging and recovery
// ────────────────────────────────────────────────

func TestRequestLogging_AssignsRequestID(t *testing.T) {
	var seen string
	handler := RequestLogging(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/slots", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected a uuid request id, got %q", seen)
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("response header %q does not match context id %q", rec.Header().Get(RequestIDHeader), seen)
	}
}

func TestRequestLogging_KeepsValidIncomingID(t *testing.T) {
	incoming := uuid.NewString()
	var seen string
	handler := RequestLogging(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, incoming)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != incoming {
		t.Errorf("expected %s, got %s", incoming, seen)
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), apperrors.CodeInternal) {
		t.Errorf("expected error body, got %s", rec.Body.String())
	}
}

// ────────────────────────────────────────────────
// Content type and request size
// ────────────────────────────────────────────────

func TestContentTypeValidation(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		body        string
		contentType string
		wantStatus  int
	}{
		{"json post", http.MethodPost, `{}`, "application/json; charset=utf-8", http.StatusOK},
		{"form post", http.MethodPost, `a=b`, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"bodiless post", http.MethodPost, "", "", http.StatusOK},
		{"get without header", http.MethodGet, "", "", http.StatusOK},
	}

	handler := ContentTypeValidation(logger.Discard())(okHandler())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, "/api/book", body)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestMaxRequestSize(t *testing.T) {
	var readErr error
	handler := MaxRequestSize(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var maxErr *http.MaxBytesError
	if !errors.As(readErr, &maxErr) {
		t.Errorf("expected MaxBytesError, got %v", readErr)
	}
}

// ────────────────────────────────────────────────
// Idempotency
// ────────────────────────────────────────────────

func TestIdempotency_ReplaysSuccessfulResponse(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Minute)
	defer store.Stop()

	var calls int32
	handler := Idempotency(store, "", CredentialScope("token"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"bookingId":"b1"}`))
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/book", strings.NewReader(`{}`))
		req.Header.Set(DefaultIdempotencyHeader, "key-1")
		req.AddCookie(&http.Cookie{Name: "token", Value: "session-a"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first, second := send(), send()
	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Errorf("replay mismatch: %d %s", second.Code, second.Body.String())
	}
	if second.Header().Get(ReplayedHeader) != "true" {
		t.Error("expected replay marker header")
	}
}

func TestIdempotency_KeysScopedPerCredential(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Minute)
	defer store.Stop()

	var calls int32
	handler := Idempotency(store, "", CredentialScope("token"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusCreated)
	}))

	for _, session := range []string{"session-a", "session-b"} {
		req := httptest.NewRequest(http.MethodPost, "/api/book", strings.NewReader(`{}`))
		req.Header.Set(DefaultIdempotencyHeader, "shared-key")
		req.Header.Set("Authorization", "Bearer "+session)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if calls != 2 {
		t.Errorf("expected both callers to reach the handler, got %d calls", calls)
	}
}

func TestIdempotency_FailuresAreNotCached(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Minute)
	defer store.Stop()

	var calls int32
	handler := Idempotency(store, "", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = apperrors.WriteError(w, apperrors.SlotTaken())
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/book", strings.NewReader(`{}`))
		req.Header.Set(DefaultIdempotencyHeader, "key-2")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if calls != 2 {
		t.Errorf("expected failed responses to be re-evaluated, got %d calls", calls)
	}
}

// ────────────────────────────────────────────────
// Rate limiting
// ────────────────────────────────────────────────

func TestKeyedRateLimiter(t *testing.T) {
	limiter := NewKeyedRateLimiter(2, time.Hour, nil, logger.Discard())
	defer limiter.Stop()

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatal("expected the first two requests to pass")
	}
	if limiter.Allow("a") {
		t.Error("expected the third request to be limited")
	}
	if !limiter.Allow("b") {
		t.Error("keys must not share a bucket")
	}
	if !limiter.Allow("") {
		t.Error("empty key must never be limited")
	}
}

func TestRateLimit_RejectsWithRetryAfter(t *testing.T) {
	limiter := NewKeyedRateLimiter(1, time.Hour, func(r *http.Request) string { return "fixed" }, logger.Discard())
	defer limiter.Stop()
	handler := RateLimit(limiter)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

// ────────────────────────────────────────────────
// Identity guard
// ────────────────────────────────────────────────

type mockAuthenticator struct {
	verifyFunc func(ctx context.Context, token string) (auth.Principal, error)
}

func (m *mockAuthenticator) VerifyIdentity(ctx context.Context, token string) (auth.Principal, error) {
	return m.verifyFunc(ctx, token)
}

func newTestGuard() *Guard {
	return NewGuard(&mockAuthenticator{
		verifyFunc: func(ctx context.Context, token string) (auth.Principal, error) {
			switch token {
			case "patient-token":
				return auth.Principal{ActorID: "p1", Role: auth.RolePatient}, nil
			case "admin-token":
				return auth.Principal{ActorID: "a1", Role: auth.RoleAdmin}, nil
			default:
				return auth.Principal{}, apperrors.Unauthorized("Invalid token")
			}
		},
	}, "token", logger.Discard())
}

func TestGuard(t *testing.T) {
	guard := newTestGuard()
	var gotActor string
	protected := func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		p, _ := auth.PrincipalFrom(r.Context())
		gotActor = p.ActorID
		w.WriteHeader(http.StatusOK)
	}

	tests := []struct {
		name       string
		handle     httprouter.Handle
		cookie     string
		bearer     string
		wantStatus int
		wantActor  string
	}{
		{"no credential", guard.Authenticated(protected), "", "", http.StatusUnauthorized, ""},
		{"invalid token", guard.Authenticated(protected), "forged", "", http.StatusUnauthorized, ""},
		{"cookie", guard.Authenticated(protected), "patient-token", "", http.StatusOK, "p1"},
		{"bearer", guard.Authenticated(protected), "", "admin-token", http.StatusOK, "a1"},
		{"admin route as patient", guard.RequireRole(auth.RoleAdmin, protected), "patient-token", "", http.StatusForbidden, ""},
		{"patient route as admin", guard.RequireRole(auth.RolePatient, protected), "", "admin-token", http.StatusForbidden, ""},
		{"admin route as admin", guard.RequireRole(auth.RoleAdmin, protected), "admin-token", "", http.StatusOK, "a1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotActor = ""
			req := httptest.NewRequest(http.MethodGet, "/api/my-bookings", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "token", Value: tt.cookie})
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			rec := httptest.NewRecorder()
			tt.handle(rec, req, nil)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if gotActor != tt.wantActor {
				t.Errorf("expected actor %q, got %q", tt.wantActor, gotActor)
			}
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	handler := RequestTimeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", rec.Code)
	}
}
