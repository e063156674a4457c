package engine

import (
	"fmt"
	"math"

	"github.com/roach88/trigsync/internal/clock"
	"github.com/roach88/trigsync/internal/daq"
)

// Defaults for Settings.
const (
	DefaultPoolDepth         = 100
	DefaultInitialPoolDepth  = 20
	DefaultCalibrationWindow = 20
	DefaultClockBits         = 40
	DefaultTolerance         = 2
	DefaultFailureThreshold  = 10
	DefaultBatchSize         = 64
)

// Settings are the driver's tuning knobs.
type Settings struct {
	// PoolDepth bounds buffered event numbers per category once synchronized.
	PoolDepth int

	// InitialPoolDepth is the bound while calibrating.
	InitialPoolDepth int

	// CalibrationWindow is how many reference samples are gathered before
	// offsets are frozen.
	CalibrationWindow int

	// ClockBits is the beam-clock counter width.
	ClockBits uint

	// Tolerance is the largest corrected clock distance that still aligns.
	Tolerance uint64

	// FailureThreshold is the number of consecutive ditches that forces a
	// resynchronization.
	FailureThreshold int

	// BatchSize caps packets pulled from one source per cycle.
	BatchSize int

	// RunNumber is stamped on every composite event.
	RunNumber int

	// Require lists categories that must report even if nothing registered
	// for them yet.
	Require []daq.Category
}

// DefaultSettings returns the standard configuration.
func DefaultSettings() Settings {
	return Settings{
		PoolDepth:         DefaultPoolDepth,
		InitialPoolDepth:  DefaultInitialPoolDepth,
		CalibrationWindow: DefaultCalibrationWindow,
		ClockBits:         DefaultClockBits,
		Tolerance:         DefaultTolerance,
		FailureThreshold:  DefaultFailureThreshold,
		BatchSize:         DefaultBatchSize,
	}
}

// Validate checks ranges and cross-field constraints.
func (s Settings) Validate() error {
	if s.PoolDepth < 1 {
		return fmt.Errorf("pool depth must be at least 1, got %d", s.PoolDepth)
	}
	if s.InitialPoolDepth < 1 {
		return fmt.Errorf("initial pool depth must be at least 1, got %d", s.InitialPoolDepth)
	}
	if s.CalibrationWindow < 1 {
		return fmt.Errorf("calibration window must be at least 1, got %d", s.CalibrationWindow)
	}
	if s.CalibrationWindow > s.InitialPoolDepth {
		return fmt.Errorf("calibration window %d exceeds initial pool depth %d", s.CalibrationWindow, s.InitialPoolDepth)
	}
	if err := clock.ValidateBits(s.ClockBits); err != nil {
		return err
	}
	if s.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be at least 1, got %d", s.FailureThreshold)
	}
	if s.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", s.BatchSize)
	}
	if s.RunNumber < 0 || int64(s.RunNumber) > math.MaxUint32 {
		return fmt.Errorf("run number must be in [0, %d], got %d", uint32(math.MaxUint32), s.RunNumber)
	}
	for _, c := range s.Require {
		if !c.Valid() {
			return fmt.Errorf("required category %d is not defined", int(c))
		}
	}
	return nil
}
