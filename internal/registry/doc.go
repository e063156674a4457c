// Package registry tracks the stream sources taking part in synchronization.
//
// Each registered source receives a small integer Handle that indexes every
// per-source table in the synchronizer. Sources are grouped by category; the
// first registration in a category flips that category's expected flag so
// the driver waits for it. Exactly one source may be the timing reference.
package registry
