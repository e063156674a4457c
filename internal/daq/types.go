package daq

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Category classifies stream sources by detector subsystem role.
// The category decides which sources must jointly report before an event
// number can resolve.
type Category int

const (
	// CategoryPRDF is the generic front-end stream category.
	CategoryPRDF Category = iota
	// CategoryTrigger carries trigger-primitive streams.
	CategoryTrigger
	// CategoryGL1 is the global-level-one trigger stream.
	CategoryGL1
	// CategoryMBD is the min-bias detector stream.
	CategoryMBD
	// CategoryCalo is the calorimeter stream.
	CategoryCalo
)

// NumCategories is the number of defined categories.
// Per-category tables are flat arrays of this length.
const NumCategories = 5

var categoryNames = [NumCategories]string{"prdf", "trigger", "gl1", "mbd", "calo"}

// Categories returns all categories in declaration order.
func Categories() []Category {
	return []Category{CategoryPRDF, CategoryTrigger, CategoryGL1, CategoryMBD, CategoryCalo}
}

// String returns the canonical lowercase name.
func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// Valid reports whether c is a defined category.
func (c Category) Valid() bool {
	return c >= 0 && int(c) < NumCategories
}

// Code is the category code written into packet records of the flat encoding.
func (c Category) Code() uint32 {
	return uint32(c) + 1
}

// ParseCategory parses a category name. Matching is case-insensitive.
func ParseCategory(s string) (Category, error) {
	name := strings.ToLower(strings.TrimSpace(NormalizeName(s)))
	for i, n := range categoryNames {
		if n == name {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q: must be one of %v", s, categoryNames)
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Handle identifies a registered stream source.
// Handles are small non-negative integers issued in registration order and
// index flat per-source tables.
type Handle int

// NoHandle marks the absence of a source.
const NoHandle Handle = -1

// Packet is one unit of detector data as handed over by a stream source.
type Packet struct {
	// ID is the packet identifier assigned by the front-end.
	ID int `json:"id"`

	// EventNumber is the upstream-assigned event number.
	EventNumber int `json:"event_number"`

	// Clock is the beam-clock sample reported with this event.
	Clock uint64 `json:"clock"`

	// Source is stamped by the driver when the packet is pulled.
	Source Handle `json:"source"`

	// Data is the raw payload.
	Data []byte `json:"-"`
}

// ClockSample records the beam clock a source reported for an event number.
type ClockSample struct {
	EventNumber int    `json:"event_number"`
	Source      Handle `json:"source"`
	Clock       uint64 `json:"clock"`
}

// NormalizeName returns the NFC form of a source or category name.
// Names that differ only in Unicode composition refer to the same source.
func NormalizeName(s string) string {
	return norm.NFC.String(s)
}
