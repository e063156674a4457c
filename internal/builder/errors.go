package builder

import (
	"errors"
	"fmt"
)

// EncodingOverflowError is returned when an event does not fit in the
// scratch buffer. It is fatal for that event number and never retried.
type EncodingOverflowError struct {
	EventNumber int
	NeedWords   int
	CapWords    int
}

// Error implements the error interface.
func (e *EncodingOverflowError) Error() string {
	return fmt.Sprintf("event %d: encoding needs %d words, scratch holds %d", e.EventNumber, e.NeedWords, e.CapWords)
}

// IsEncodingOverflow returns true if err is an EncodingOverflowError.
func IsEncodingOverflow(err error) bool {
	var oe *EncodingOverflowError
	return errors.As(err, &oe)
}

// WordRangeError is returned when a header field does not fit in an
// unsigned 32-bit word of the flat encoding.
type WordRangeError struct {
	EventNumber int
	Field       string
	Value       int
}

// Error implements the error interface.
func (e *WordRangeError) Error() string {
	return fmt.Sprintf("event %d: %s %d does not fit in a 32-bit word", e.EventNumber, e.Field, e.Value)
}

// IsWordRange returns true if err is a WordRangeError.
func IsWordRange(err error) bool {
	var we *WordRangeError
	return errors.As(err, &we)
}
