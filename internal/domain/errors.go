package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for the failure kinds a submission can produce. Handlers map them
// to HTTP statuses; callers must always be able to tell a rate-limit denial
// apart from a validation failure or a backing-service outage.
var (
	// ErrValidation covers missing or malformed input. It is rejected before
	// any store or channel call is made.
	ErrValidation = errors.New("invalid input")

	// ErrEmptyMessage is returned when message content is empty after
	// sanitization. The message is never stored.
	ErrEmptyMessage = errors.New("message cannot be empty")

	// ErrRateLimited is returned when a sender exceeds the per-room message
	// ceiling. It is not a server fault; callers should back off and retry
	// after the window elapses.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrStoreUnavailable signals that the expiring store could not be
	// reached. The submission is terminal and safe to retry after backoff.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUnknownKind is returned for a message kind outside the closed set.
	ErrUnknownKind = errors.New("unknown message kind")

	// ErrMalformedChannel is returned when a channel name fails validation
	// before any store or broadcast call.
	ErrMalformedChannel = errors.New("malformed channel name")

	// ErrUnauthorized is returned when no authenticated identity is present.
	ErrUnauthorized = errors.New("not authenticated")
)
