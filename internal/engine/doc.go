// Package engine implements the trigsync synchronization driver.
//
// The driver owns the source registry, the clock tracker and the event
// pool. It pulls packets from every live source, groups them by event
// number, checks that their beam clocks agree and hands each complete
// group to the builder.
//
// ARCHITECTURE:
//
// Cycle-Driven Loop:
// All work happens inside RunCycle, called from a single goroutine. Run is a
// convenience loop around it for hosts that have nothing else to schedule.
//
// Cycle Flow:
// 1. Fatal check: no reference source is a run-stopping error
// 2. Pull up to BatchSize packets per live source into the pool and tracker
// 3. While calibrating: wait for CalibrationWindow reference samples, then
// freeze offsets and switch to the steady-state pool depth
// 4. Resolve at most one event number: the oldest one every required
// category covers, after ditching anything older
// 5. Emit if aligned within Tolerance, otherwise ditch as misaligned
//
// Per-event failures (missing contributions, misalignment, builder or sink
// errors) never stop the run. They are ditched, counted in Stats and
// reported to Observers. FailureThreshold consecutive failures trigger a
// resynchronization: the pool is cleared and calibration starts over.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every emitted event is stamped with a seq from Clock. A seq is consumed
// only when the sink accepts the event, so emitted seqs have no gaps.
// NEVER use wall-clock timestamps for ordering.
//
// Deterministic Resolution:
// Event numbers resolve oldest first. Contributors are visited in handle
// order. Given the same packet arrival order the driver emits the same
// events with the same seqs.
package engine
