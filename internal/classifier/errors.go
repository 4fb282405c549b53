package classifier

import (
	"errors"
	"fmt"

	"TradeSentinel/internal/model"
)

var (
	// ErrTransient marks failures worth retrying: network errors, rate limits, 5xx.
	ErrTransient = errors.New("transient classifier failure")
	// ErrMalformed marks a response that could not be decoded as a verdict. Retried.
	ErrMalformed = errors.New("malformed classifier response")
	// ErrTerminal marks failures that retrying cannot fix: bad credentials, bad request.
	ErrTerminal = errors.New("terminal classifier failure")
	// ErrRejected marks a decoded verdict that failed validation. Not retried.
	ErrRejected = errors.New("classifier verdict rejected")
)

// ClassificationError is returned when a post could not be classified.
type ClassificationError struct {
	Source   model.Source
	Attempts int
	Err      error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify post from %s after %d attempt(s): %v", e.Source, e.Attempts, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

func retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrMalformed)
}
