package registry

import (
	"errors"
	"fmt"

	"github.com/roach88/trigsync/internal/daq"
)

// DuplicateRegistrationError is returned when a source is registered twice.
// Sources are identified by their normalized name.
type DuplicateRegistrationError struct {
	Name     string
	Existing daq.Handle
	Category daq.Category
}

// Error implements the error interface.
func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("source %q already registered (handle=%d, category=%s)", e.Name, e.Existing, e.Category)
}

// IsDuplicateRegistration returns true if err is a DuplicateRegistrationError.
// Uses errors.As to handle wrapped errors.
func IsDuplicateRegistration(err error) bool {
	var de *DuplicateRegistrationError
	return errors.As(err, &de)
}

// UnknownSourceError is returned for handles or names that were never issued.
type UnknownSourceError struct {
	Handle daq.Handle
	Name   string
}

// Error implements the error interface.
func (e *UnknownSourceError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unknown source %q", e.Name)
	}
	return fmt.Sprintf("unknown source handle %d", e.Handle)
}
