package errors

import "errors"

// Application-wide sentinel errors. Services wrap these with %w and handlers
// map them onto HTTP statuses.
var (
	// ErrNotFound is used when a record or resource does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized is used for authentication failures (missing or invalid
	// token, inactive account).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation is used for malformed or missing input.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is used for state conflicts, e.g. registering an email that
	// already belongs to an account.
	ErrConflict = errors.New("resource state conflict")

	// ErrDelivery is used when an outbound notification could not be sent.
	// State persisted before the send (such as an OTP challenge) stays in
	// place; the caller may retry.
	ErrDelivery = errors.New("delivery failed")
)
