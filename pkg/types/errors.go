package types

import "errors"

// Error taxonomy shared across the engine. Stores and services wrap these
// sentinels with fmt.Errorf("…: %w", …) so callers can classify failures
// with errors.Is.
var (
	// ErrNotFound marks a missing document, archive or room.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks a malformed id, plugin coordinate or unsafe path.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized marks an expired or bad signature, or a missing
	// capability.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrOutOfOrder marks a sequence or version violation detected by a
	// store.
	ErrOutOfOrder = errors.New("out of order")

	// ErrCorruptArchive marks archive bytes that fail to decode.
	ErrCorruptArchive = errors.New("corrupt archive")

	// ErrTransientIO marks a store or filesystem failure that callers may
	// retry.
	ErrTransientIO = errors.New("transient i/o failure")
)
