package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Status codes used by the document service.
const (
	StatusGone                = http.StatusGone
	StatusNotFound            = http.StatusNotFound
	StatusTooManyRequests     = http.StatusTooManyRequests
	StatusRequestTimeout      = http.StatusRequestTimeout
	StatusServiceUnavailable  = http.StatusServiceUnavailable
	StatusInternalServerError = http.StatusInternalServerError
	StatusNotImplemented      = http.StatusNotImplemented
	StatusBadRequest          = http.StatusBadRequest
	StatusConflict            = http.StatusConflict
	StatusRetryWith           = 449
)

// Sub-status codes that qualify a status.
const (
	SubStatusNone                         = 0
	SubStatusPartitionKeyRangeGone        = 1002
	SubStatusCompletingSplit              = 1007
	SubStatusCompletingPartitionMigration = 1008
	SubStatusRUBudgetExceeded             = 3200
)

// StatusError is a failure reported by the document service for one request.
type StatusError struct {
	StatusCode    int
	SubStatusCode int
	Message       string
	ActivityID    string
	RequestCharge float64
	Err           error // underlying cause, if any
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("status %d/%d: %s", e.StatusCode, e.SubStatusCode, e.Message)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// NewStatusError creates a StatusError.
func NewStatusError(status, subStatus int, message string) *StatusError {
	return &StatusError{
		StatusCode:    status,
		SubStatusCode: subStatus,
		Message:       message,
	}
}

// Gone reports that a partition key range no longer exists.
func Gone(message string) *StatusError {
	return NewStatusError(StatusGone, SubStatusPartitionKeyRangeGone, message)
}

// Throttled reports that the request rate budget is exhausted.
func Throttled(message string) *StatusError {
	return NewStatusError(StatusTooManyRequests, SubStatusRUBudgetExceeded, message)
}

// NotFound reports a missing resource.
func NotFound(message string) *StatusError {
	return NewStatusError(StatusNotFound, SubStatusNone, message)
}

// Internal wraps an invariant violation as an internal server error.
func Internal(err error) *StatusError {
	return &StatusError{
		StatusCode: StatusInternalServerError,
		Message:    "internal invariant violated",
		Err:        err,
	}
}

// NotImplemented wraps an unsupported code path.
func NotImplemented(err error) *StatusError {
	return &StatusError{
		StatusCode: StatusNotImplemented,
		Message:    "not implemented",
		Err:        err,
	}
}

// AsStatus extracts the StatusError from an error chain.
func AsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsPartitionGone reports whether err signals a split or merged-away partition.
func IsPartitionGone(err error) bool {
	se, ok := AsStatus(err)
	if !ok || se.StatusCode != StatusGone {
		return false
	}
	switch se.SubStatusCode {
	case SubStatusPartitionKeyRangeGone, SubStatusCompletingSplit, SubStatusCompletingPartitionMigration:
		return true
	default:
		return false
	}
}

// HasStatus reports whether err carries the given status code.
func HasStatus(err error, status int) bool {
	se, ok := AsStatus(err)
	return ok && se.StatusCode == status
}
