// Package pool buffers packets by event number until every stream has
// reported.
//
// Packets live in per-event arenas: a Slot holds the packets one category
// received for one event number, in arrival order, so a packet is addressed
// by (event number, category, sequence index). Moving ownership to the
// builder is a read of the slot followed by Resolve; nothing is shared
// between slots.
//
// Once an event number leaves the pool it can never come back. Packets that
// arrive for a retired number are rejected and counted as dropped.
package pool
