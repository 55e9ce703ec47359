package errors

import (
	"errors"
)

// Pagination errors shared across the engine, the emulator and the client.
var (
	// ErrNoChildRanges is raised when the provider reports no children for a gone
	// range even after a cache refresh. There must always be at least one.
	ErrNoChildRanges = errors.New("feed range provider returned no child ranges")

	// ErrNoFeedRanges is raised when the provider reports an empty container topology.
	ErrNoFeedRanges = errors.New("feed range provider returned no feed ranges")

	// ErrMergeNotImplemented is raised when a gone range keeps resolving to a single
	// child. Detecting a real partition merge is not supported at this layer.
	ErrMergeNotImplemented = errors.New("partition merge detection is not implemented")

	// ErrReservedHeader is returned when a page is built with a reserved header key
	// in its additional headers.
	ErrReservedHeader = errors.New("additional headers contain a reserved key")

	// ErrNegativeRequestCharge is returned when a page is built with a negative charge.
	ErrNegativeRequestCharge = errors.New("request charge must not be negative")

	// ErrEmptyCrossFeedRangeState is returned when a cross feed range state would be empty.
	ErrEmptyCrossFeedRangeState = errors.New("cross feed range state must hold at least one feed range")

	// ErrInvalidContinuation is returned when a continuation token cannot be decoded.
	ErrInvalidContinuation = errors.New("invalid continuation token")

	// ErrInvalidOptions is returned by constructors given unusable options.
	ErrInvalidOptions = errors.New("invalid options")

	// ErrEnumeratorClosed is returned when advancing a closed enumerator.
	ErrEnumeratorClosed = errors.New("enumerator is closed")

	// ErrUnknownPartition is returned by the emulator for partition ids it never had.
	ErrUnknownPartition = errors.New("unknown partition")

	// ErrInvalidJSON is returned when a payload is not a JSON object.
	ErrInvalidJSON = errors.New("payload must be a JSON object")

	// ErrSchemaViolation is returned when a payload fails schema validation.
	ErrSchemaViolation = errors.New("payload does not match container schema")

	// ErrCheckpointNotFound is returned when no checkpoint exists under a name.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)
