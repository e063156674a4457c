package clock

import (
	"errors"
	"fmt"

	"github.com/roach88/trigsync/internal/daq"
)

// NoReferenceError is returned when offsets are requested but no source has
// been designated as the timing reference.
type NoReferenceError struct{}

// Error implements the error interface.
func (e *NoReferenceError) Error() string {
	return "no reference source registered"
}

// NoReferenceDataError is returned when the reference source produced zero
// samples within the calibration window. Offsets cannot be computed and no
// event can ever resolve.
type NoReferenceDataError struct {
	Reference daq.Handle
	Window    int
}

// Error implements the error interface.
func (e *NoReferenceDataError) Error() string {
	return fmt.Sprintf("reference source %d produced no clock samples (calibration window %d)", e.Reference, e.Window)
}

// IsNoReference returns true if err is a NoReferenceError.
func IsNoReference(err error) bool {
	var ne *NoReferenceError
	return errors.As(err, &ne)
}

// IsNoReferenceData returns true if err is a NoReferenceDataError.
func IsNoReferenceData(err error) bool {
	var ne *NoReferenceDataError
	return errors.As(err, &ne)
}
