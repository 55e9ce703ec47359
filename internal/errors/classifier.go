package errors

import (
	"context"
	"errors"
)

// ErrorCategory represents the category of an error for recovery decisions.
type ErrorCategory int

const (
	ErrorTransient      ErrorCategory = iota // Temporary errors - retry with backoff
	ErrorPermanent                           // Permanent errors - no retry
	ErrorCritical                            // Invariant violations - never retried
	ErrorValidation                          // Bad input - no retry
	ErrorPartitionGone                       // Topology changed - recovered by the orchestrator
	ErrorNotImplemented                      // Unsupported path - surfaced as is
	ErrorCancelled                           // Caller gave up
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrorTransient:
		return "transient"
	case ErrorPermanent:
		return "permanent"
	case ErrorCritical:
		return "critical"
	case ErrorValidation:
		return "validation"
	case ErrorPartitionGone:
		return "partition_gone"
	case ErrorNotImplemented:
		return "not_implemented"
	case ErrorCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Classifier categorizes errors for retry and recovery logic.
type Classifier struct{}

// NewClassifier creates a new error classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify determines the category of an error returned under ctx, the
// caller's context. A context error is a cancellation only when ctx is done;
// otherwise it is a timeout inside the callee and is worth retrying.
func (c *Classifier) Classify(ctx context.Context, err error) ErrorCategory {
	if err == nil {
		return ErrorPermanent
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			return ErrorCancelled
		}
		return ErrorTransient
	}

	if IsPartitionGone(err) {
		return ErrorPartitionGone
	}

	switch {
	case errors.Is(err, ErrNoChildRanges), errors.Is(err, ErrNoFeedRanges):
		return ErrorCritical
	case errors.Is(err, ErrMergeNotImplemented):
		return ErrorNotImplemented
	case errors.Is(err, ErrReservedHeader),
		errors.Is(err, ErrNegativeRequestCharge),
		errors.Is(err, ErrEmptyCrossFeedRangeState),
		errors.Is(err, ErrInvalidContinuation),
		errors.Is(err, ErrInvalidOptions),
		errors.Is(err, ErrInvalidJSON),
		errors.Is(err, ErrSchemaViolation):
		return ErrorValidation
	}

	if se, ok := AsStatus(err); ok {
		switch se.StatusCode {
		case StatusTooManyRequests, StatusRequestTimeout, StatusServiceUnavailable, StatusRetryWith:
			return ErrorTransient
		case StatusInternalServerError:
			return ErrorCritical
		case StatusNotImplemented:
			return ErrorNotImplemented
		case StatusBadRequest:
			return ErrorValidation
		}
	}

	// Default: treat as permanent (no retry)
	return ErrorPermanent
}

// ShouldRetry returns true if the error category indicates retry is appropriate.
func (c *Classifier) ShouldRetry(category ErrorCategory) bool {
	return category == ErrorTransient
}

// IsCritical returns true if the error requires immediate attention.
func (c *Classifier) IsCritical(category ErrorCategory) bool {
	return category == ErrorCritical
}
