// Package daq provides the shared domain types for trigsync.
//
// This package contains type definitions and the canonical serialization used
// for content-addressed event identity. All other internal packages import
// daq; daq imports nothing internal.
//
// Key design constraints:
//   - Event numbers are assigned upstream and are only monotonic per source
//   - Clock values are fixed-width counters that wrap; compare them with
//     clock.Tracker.Diff, never with plain subtraction
//   - Sources are identified by a Handle issued at registration, never by
//     object identity
//   - All JSON tags use snake_case
package daq
