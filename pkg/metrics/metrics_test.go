package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "medislot/pkg/errors"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, OutcomeOK},
		{"app error", apperrors.SlotTaken(), "slot_taken"},
		{"wrapped app error", errors.Join(errors.New("ctx"), apperrors.SlotNotFound(http.StatusBadRequest)), "slot_not_found"},
		{"plain error", errors.New("boom"), "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Outcome(tt.err); got != tt.want {
				t.Errorf("Outcome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	a := New("medislot")
	b := New("medislot")

	a.Reservations.WithLabelValues(OutcomeOK).Inc()

	if got := testutil.ToFloat64(a.Reservations.WithLabelValues(OutcomeOK)); got != 1 {
		t.Errorf("expected 1 reservation on a, got %v", got)
	}
	if got := testutil.ToFloat64(b.Reservations.WithLabelValues(OutcomeOK)); got != 0 {
		t.Errorf("expected 0 reservations on b, got %v", got)
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New("medislot")
	m.ChallengesSent.WithLabelValues(OutcomeOK).Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `medislot_challenges_sent_total{outcome="ok"} 1`) {
		t.Errorf("metric missing from exposition:\n%s", rec.Body.String())
	}
}
