package types

import "errors"

var (
	// ErrUnauthenticated is returned for a missing or invalid credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the identity's role may not issue a command.
	ErrForbidden = errors.New("forbidden")
	// ErrStoreUpdate is returned when the authoritative booking record could
	// not be updated. No event is emitted in that case.
	ErrStoreUpdate = errors.New("booking store update failed")
	// ErrCapacity is returned when the managed connection cap is reached.
	ErrCapacity = errors.New("connection capacity reached")
	// ErrTransport is returned when a channel cannot be opened within the
	// allowed number of attempts.
	ErrTransport = errors.New("transport unavailable")

	ErrInvalidStatus     = errors.New("invalid booking status")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrNotFound          = errors.New("booking not found")
	ErrRateLimited       = errors.New("rate limited")
)
