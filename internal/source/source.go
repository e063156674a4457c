package source

import "github.com/roach88/trigsync/internal/daq"

// Source is one detector front-end stream.
type Source interface {
	// Name identifies the source in logs and stored records.
	Name() string

	// HasMore reports whether a packet can be taken without blocking.
	HasMore() bool

	// Next takes the next packet. Returns false when nothing is available.
	Next() (daq.Packet, bool)
}

// Closer is implemented by sources that can report exhaustion.
// A closed source with no remaining data is treated as dead by the driver.
type Closer interface {
	Closed() bool
}

// IsDrained reports whether s is closed and has nothing left to take.
// Sources that do not implement Closer are never drained.
func IsDrained(s Source) bool {
	c, ok := s.(Closer)
	if !ok {
		return false
	}
	return c.Closed() && !s.HasMore()
}
