package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	labelTransientTransaction = "TransientTransactionError"
	labelUnknownCommitResult  = "UnknownTransactionCommitResult"
	codeWriteConflict         = 112

	abortTimeout = 5 * time.Second
)

var (
	// ErrWriteConflict is returned when a concurrent unit touched the same documents.
	ErrWriteConflict = errors.New("transaction write conflict")

	// ErrCommitUnknown is returned when the server could not confirm the commit outcome.
	ErrCommitUnknown = errors.New("transaction commit result unknown")
)

// TransactionFunc is one atomic unit of work. The context it receives carries
// the session, so every repository call made with it joins the unit.
type TransactionFunc func(ctx context.Context) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

type mongoTransactionManager struct {
	client *mongo.Client
	opts   *options.TransactionOptions
}

func NewTransactionManager(client *mongo.Client) TransactionManager {
	return &mongoTransactionManager{
		client: client,
		opts: options.Transaction().
			SetReadConcern(readconcern.Snapshot()).
			SetWriteConcern(writeconcern.Majority()).
			SetReadPreference(readpref.Primary()),
	}
}

// ExecuteTransaction runs fn exactly once inside a transaction. Unlike
// session.WithTransaction it never retries: a conflicting unit surfaces as
// ErrWriteConflict and the caller decides what to do.
func (m *mongoTransactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	sessCtx := mongo.NewSessionContext(ctx, session)
	if err := session.StartTransaction(m.opts); err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	if err := fn(sessCtx); err != nil {
		abort(ctx, session)
		return classify(err)
	}

	if err := session.CommitTransaction(sessCtx); err != nil {
		abort(ctx, session)
		if hasLabel(err, labelUnknownCommitResult) {
			return fmt.Errorf("%w: %v", ErrCommitUnknown, err)
		}
		return classify(err)
	}

	return nil
}

func abort(ctx context.Context, session mongo.Session) {
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	// Abort after a failed commit returns an error we cannot act on.
	_ = session.AbortTransaction(abortCtx)
}

func classify(err error) error {
	if IsWriteConflict(err) {
		return fmt.Errorf("%w: %v", ErrWriteConflict, err)
	}
	return err
}

// IsWriteConflict reports whether err is a server write conflict or carries
// the transient transaction label.
func IsWriteConflict(err error) bool {
	if errors.Is(err, ErrWriteConflict) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorCode(codeWriteConflict) || se.HasErrorLabel(labelTransientTransaction)
	}
	return false
}

func hasLabel(err error, label string) bool {
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorLabel(label)
	}
	return false
}

// InTransaction reports whether ctx belongs to an open unit of work.
func InTransaction(ctx context.Context) bool {
	return mongo.SessionFromContext(ctx) != nil
}

// WithTimeout bounds a single repository call. Inside a unit of work the
// unit's own deadline applies and ctx is returned unchanged.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if InTransaction(ctx) {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline && time.Until(deadline) < timeout {
		return context.WithDeadline(ctx, deadline)
	}

	return context.WithTimeout(ctx, timeout)
}
