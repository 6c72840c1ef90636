package errors

import "errors"

var (
	ErrNotFound = errors.New("slot not found")

	ErrInvalidID = errors.New("invalid slot ID format")

	ErrDuplicateStart = errors.New("a slot already starts at this time")
)
