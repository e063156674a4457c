package daq

// Version constants for the event format and the synchronizer.
const (
	// FormatVersion is the flat packet encoding version stamped in stored events.
	FormatVersion = "1"

	// SyncVersion is the trigsync synchronizer version.
	SyncVersion = "0.1.0"
)
