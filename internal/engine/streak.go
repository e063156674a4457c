package engine

// FailureStreak counts consecutive per-event failures and reports when the
// resynchronization threshold is reached.
//
// A successful emission resets the streak. Failures during calibration are
// not recorded.
type FailureStreak struct {
	threshold int
	current   int
}

// NewFailureStreak creates a streak that trips after threshold failures.
// A threshold below 1 never trips.
func NewFailureStreak(threshold int) *FailureStreak {
	return &FailureStreak{threshold: threshold}
}

// Record counts one failure and reports whether the threshold was reached.
func (s *FailureStreak) Record() bool {
	s.current++
	return s.threshold > 0 && s.current >= s.threshold
}

// Reset clears the streak.
func (s *FailureStreak) Reset() {
	s.current = 0
}

// Current returns the number of consecutive failures.
func (s *FailureStreak) Current() int {
	return s.current
}

// Threshold returns the trip point.
func (s *FailureStreak) Threshold() int {
	return s.threshold
}
