package kafka

import "errors"

var (
	ErrProducerClosed = errors.New("kafka producer is closed")

	ErrEmptyKey = errors.New("message key cannot be empty")

	ErrEmptyValue = errors.New("message value cannot be empty")

	// ErrInvalidMessage is returned by Build when the payload could not be encoded.
	ErrInvalidMessage = errors.New("invalid message")
)
