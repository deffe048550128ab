package fetch

import (
	"errors"
	"fmt"
)

// Common errors returned by fetchers.
var (
	// ErrAbsent is returned when the remote has no record for the requested ID.
	ErrAbsent = errors.New("record absent")

	// ErrMissingFields is returned when the record exists but lacks expected fields.
	ErrMissingFields = errors.New("record missing expected fields")

	// ErrRetryExhausted is returned when all attempts failed with connection errors.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// ConnectionError marks a transient connectivity failure. It is the only
// error class RetryingFetcher retries.
type ConnectionError struct {
	ID  int
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failure fetching %d: %v", e.ID, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a connectivity failure worth retrying.
func IsTransient(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// Classify maps a fetch result onto an Outcome.
func Classify(record Record, err error) Outcome {
	switch {
	case err == nil:
		return FoundOutcome(record)
	case errors.Is(err, ErrAbsent):
		return AbsentOutcome()
	default:
		return FailedOutcome()
	}
}
