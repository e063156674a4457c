// Package clock records beam-clock samples and derives per-source offsets.
//
// Clock counters have a fixed bit width and wrap around. Every comparison
// between two counter values goes through Diff or SignedDiff; plain
// subtraction is never correct for wrapped counters.
//
// Offsets are computed once from a calibration window by majority vote and
// stay frozen until Clear.
package clock
