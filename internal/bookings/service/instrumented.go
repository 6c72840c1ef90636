package service

import (
	"context"

	"medislot/pkg/metrics"
	"medislot/pkg/model"
)

type instrumentedEngine struct {
	next    ReservationEngine
	metrics *metrics.Metrics
}

// WithMetrics counts reservation and cancellation outcomes by error code.
func WithMetrics(next ReservationEngine, m *metrics.Metrics) ReservationEngine {
	if m == nil {
		return next
	}
	return &instrumentedEngine{next: next, metrics: m}
}

func (e *instrumentedEngine) Reserve(ctx context.Context, req *model.ReserveRequest) (*model.Booking, error) {
	booking, err := e.next.Reserve(ctx, req)
	e.metrics.Reservations.WithLabelValues(metrics.Outcome(err)).Inc()
	return booking, err
}

func (e *instrumentedEngine) Cancel(ctx context.Context, bookingID string) (*model.Booking, error) {
	booking, err := e.next.Cancel(ctx, bookingID)
	e.metrics.Cancellations.WithLabelValues(metrics.Outcome(err)).Inc()
	return booking, err
}
