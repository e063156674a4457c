package registry

import (
	"fmt"

	"github.com/roach88/trigsync/internal/daq"
	"github.com/roach88/trigsync/internal/source"
)

// Entry is the registry's record of one source.
// The registry holds a non-owning reference; the host manages the source's lifetime.
type Entry struct {
	Handle   daq.Handle
	Name     string
	Category daq.Category
	Source   source.Source

	// Live is cleared once the source is closed and drained.
	Live bool
}

// Registry is the input registry.
//
// Not safe for concurrent use: it is mutated only from the driver's cycle
// or by the host between cycles.
type Registry struct {
	entries    []*Entry
	byName     map[string]daq.Handle
	byCategory [daq.NumCategories][]daq.Handle
	expected   [daq.NumCategories]bool
	reference  daq.Handle
}

// New creates an empty registry with no reference.
func New() *Registry {
	return &Registry{
		byName:    make(map[string]daq.Handle),
		reference: daq.NoHandle,
	}
}

// Register adds src to cat's active list and returns its handle.
//
// Returns DuplicateRegistrationError if a source with the same name is
// already registered. The first registration in a category marks the
// category as expected.
func (r *Registry) Register(src source.Source, cat daq.Category) (daq.Handle, error) {
	if src == nil {
		return daq.NoHandle, fmt.Errorf("register: nil source")
	}
	if !cat.Valid() {
		return daq.NoHandle, fmt.Errorf("register %q: invalid category %d", src.Name(), int(cat))
	}

	name := daq.NormalizeName(src.Name())
	if existing, ok := r.byName[name]; ok {
		return daq.NoHandle, &DuplicateRegistrationError{
			Name:     name,
			Existing: existing,
			Category: r.entries[existing].Category,
		}
	}

	h := daq.Handle(len(r.entries))
	r.entries = append(r.entries, &Entry{
		Handle:   h,
		Name:     name,
		Category: cat,
		Source:   src,
		Live:     true,
	})
	r.byName[name] = h
	r.byCategory[cat] = append(r.byCategory[cat], h)
	r.expected[cat] = true

	return h, nil
}

// SetReference marks h as the timing reference.
//
// A later call replaces the previous reference. Returns the previous
// reference (NoHandle if none) so the caller can invalidate offsets when it
// changed.
func (r *Registry) SetReference(h daq.Handle) (daq.Handle, error) {
	if !r.valid(h) {
		return daq.NoHandle, &UnknownSourceError{Handle: h}
	}
	prev := r.reference
	r.reference = h
	return prev, nil
}

// Reference returns the reference handle, or false if none is set.
func (r *Registry) Reference() (daq.Handle, bool) {
	return r.reference, r.reference != daq.NoHandle
}

// Lookup returns the entry for h.
func (r *Registry) Lookup(h daq.Handle) (*Entry, bool) {
	if !r.valid(h) {
		return nil, false
	}
	return r.entries[h], true
}

// LookupName returns the handle registered under name.
func (r *Registry) LookupName(name string) (daq.Handle, error) {
	h, ok := r.byName[daq.NormalizeName(name)]
	if !ok {
		return daq.NoHandle, &UnknownSourceError{Handle: daq.NoHandle, Name: name}
	}
	return h, nil
}

// Entries returns all entries in handle order.
func (r *Registry) Entries() []*Entry {
	return r.entries
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Expected reports whether cat has had at least one registration.
func (r *Registry) Expected(cat daq.Category) bool {
	return cat.Valid() && r.expected[cat]
}

// InCategory returns the handles registered in cat, live or not.
func (r *Registry) InCategory(cat daq.Category) []daq.Handle {
	if !cat.Valid() {
		return nil
	}
	return r.byCategory[cat]
}

// LiveCount returns the number of live sources in cat.
func (r *Registry) LiveCount(cat daq.Category) int {
	n := 0
	for _, h := range r.InCategory(cat) {
		if r.entries[h].Live {
			n++
		}
	}
	return n
}

// AnyLive reports whether at least one source is still live.
func (r *Registry) AnyLive() bool {
	for _, e := range r.entries {
		if e.Live {
			return true
		}
	}
	return false
}

// MarkDead clears the live flag of h. Returns true if it was live.
func (r *Registry) MarkDead(h daq.Handle) bool {
	if !r.valid(h) || !r.entries[h].Live {
		return false
	}
	r.entries[h].Live = false
	return true
}

// Revive sets every source live again. Used when the streams restart.
func (r *Registry) Revive() {
	for _, e := range r.entries {
		e.Live = true
	}
}

func (r *Registry) valid(h daq.Handle) bool {
	return h >= 0 && int(h) < len(r.entries)
}
