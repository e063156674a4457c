// Package config loads driver settings.
//
// Settings resolve in three layers, later layers winning:
//
//  1. Default()
//  2. a YAML (.yaml, .yml) or CUE (.cue) file
//  3. TRIGSYNC_* environment variables
//
// The result is checked against an embedded CUE schema (schema.cue) and then
// by engine.Settings.Validate for cross-field constraints.
package config
