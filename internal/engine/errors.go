package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is a fatal condition surfaced by the driver.
//
// Only startup conditions are fatal: a missing reference, or a reference
// with no calibration data. Per-event failures are absorbed and show up in
// Stats instead.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunToken identifies the affected run.
	RunToken string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeNoReference indicates no timing reference was designated.
	ErrCodeNoReference RuntimeErrorCode = "NO_REFERENCE"

	// ErrCodeNoReferenceData indicates the reference produced no samples.
	ErrCodeNoReferenceData RuntimeErrorCode = "NO_REFERENCE_DATA"

	// ErrCodeStopped indicates the driver was stopped.
	ErrCodeStopped RuntimeErrorCode = "STOPPED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.RunToken != "" {
		return fmt.Sprintf("%s: %s (run=%s)", e.Code, e.Message, e.RunToken)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if err is a RuntimeError.
// Uses errors.As to handle wrapped errors.
func IsFatal(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}

// IsStopped returns true if err reports a stopped driver.
func IsStopped(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStopped
	}
	return false
}

func newFatal(code RuntimeErrorCode, runToken string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     code,
		Message:  cause.Error(),
		RunToken: runToken,
		Err:      cause,
	}
}
