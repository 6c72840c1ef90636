package errors

import "errors"

var (
	ErrNotFound = errors.New("user not found")

	ErrInvalidID = errors.New("invalid user ID format")

	// ErrEmailTaken is raised by the unique index on email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrChallengeNotConsumed means the conditional verify update matched
	// nothing: the code was wrong, expired, or already used.
	ErrChallengeNotConsumed = errors.New("challenge not consumed")
)
