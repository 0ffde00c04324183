package synth

import (
	"errors"
	"fmt"
)

// ErrEmptyAudio is returned for an attempt whose payload was empty.
var ErrEmptyAudio = errors.New("backend returned no audio")

// BackendRequestError is a single failed synthesis attempt.
type BackendRequestError struct {
	Chunk   int
	Attempt int
	Err     error
}

// Error implements the error interface
func (e *BackendRequestError) Error() string {
	return fmt.Sprintf("chunk %d attempt %d: %v", e.Chunk, e.Attempt, e.Err)
}

// Unwrap returns the underlying error
func (e *BackendRequestError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError is returned when every attempt for a chunk failed.
// It keeps the whole attempt history; Unwrap yields the last attempt.
type RetryExhaustedError struct {
	Chunk    int
	Attempts int
	Errors   []*BackendRequestError
}

// Error implements the error interface
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("chunk %d failed after %d attempts: %v", e.Chunk, e.Attempts, e.Last())
}

// Unwrap returns the last attempt's error
func (e *RetryExhaustedError) Unwrap() error {
	if last := e.Last(); last != nil {
		return last
	}
	return nil
}

// Last returns the final failed attempt, or nil if there was none.
func (e *RetryExhaustedError) Last() *BackendRequestError {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}
