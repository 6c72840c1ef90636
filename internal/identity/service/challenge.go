package service

import (
	"context"
	"fmt"
	"time"

	"medislot/pkg/kafka"
	"medislot/pkg/logger"
	"medislot/pkg/metrics"
)

const (
	ChallengeIssuedEvent   = "identity.challenge.issued"
	challengeSchemaVersion = "1"
	eventSource            = "medislot"
)

// ChallengeNotice is what a notifier needs to deliver a passcode.
type ChallengeNotice struct {
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
	Resent    bool      `json:"resent"`
}

type ChallengeSender interface {
	Send(ctx context.Context, notice ChallengeNotice) error
}

// LogChallengeSender writes the passcode to the structured log. Intended for
// development setups without a notifier.
type LogChallengeSender struct {
	log *logger.Logger
}

func NewLogChallengeSender(log *logger.Logger) *LogChallengeSender {
	return &LogChallengeSender{log: log}
}

func (s *LogChallengeSender) Send(_ context.Context, notice ChallengeNotice) error {
	s.log.Info("One-time passcode issued",
		"user_id", notice.UserID,
		"email", notice.Email,
		"otp", notice.Code,
		"expires_at", notice.ExpiresAt,
		"resent", notice.Resent,
	)
	return nil
}

type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaChallengeSender publishes an identity.challenge.issued event keyed by
// user id, so a notifier sees a user's challenges in order.
type KafkaChallengeSender struct {
	publisher Publisher
	requestID func(ctx context.Context) string
}

func NewKafkaChallengeSender(publisher Publisher, requestID func(ctx context.Context) string) *KafkaChallengeSender {
	if requestID == nil {
		requestID = func(context.Context) string { return "" }
	}
	return &KafkaChallengeSender{publisher: publisher, requestID: requestID}
}

func (s *KafkaChallengeSender) Send(ctx context.Context, notice ChallengeNotice) error {
	msg, err := kafka.NewMessage().
		WithKey(notice.UserID).
		WithValue(notice).
		WithEventType(ChallengeIssuedEvent).
		WithSchemaVersion(challengeSchemaVersion).
		WithSource(eventSource).
		WithCorrelationID(s.requestID(ctx)).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build challenge event: %w", err)
	}

	if err := s.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish challenge event: %w", err)
	}
	return nil
}

type countingSender struct {
	next    ChallengeSender
	metrics *metrics.Metrics
}

// WithDeliveryMetrics counts delivered and failed challenges.
func WithDeliveryMetrics(next ChallengeSender, m *metrics.Metrics) ChallengeSender {
	if m == nil {
		return next
	}
	return &countingSender{next: next, metrics: m}
}

func (s *countingSender) Send(ctx context.Context, notice ChallengeNotice) error {
	err := s.next.Send(ctx, notice)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = "failed"
	}
	s.metrics.ChallengesSent.WithLabelValues(outcome).Inc()
	return err
}
