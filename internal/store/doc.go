// Package store provides SQLite-backed durable storage for synchronized
// event output.
//
// The store is an append-only record of each run:
//   - Runs: run token, run number and the settings the run used
//   - Events: one row per emitted composite event, with its flat encoding
//   - Aggregates: per-category objects published next to each event
//   - Ditches: event numbers that left the pool unresolved, with the reason
//   - Resyncs: every forced resynchronization
//   - Dropped packets: final per-packet-identifier drop counts
//
// # Ordering
//
// All ordering uses the emission seq (logical clock) or an insertion
// ordinal, never timestamps. Queries include an explicit ORDER BY so results
// are identical across replays.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Event IDs are content-addressed (see daq.EventID); writing the same event
// twice is a no-op.
package store
