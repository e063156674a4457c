package clock

import "fmt"

// MaxBits is the widest supported counter. Offsets are signed 64-bit values,
// so the period must fit in an int64.
const MaxBits = 63

// ValidateBits checks that a counter width is supported.
func ValidateBits(bits uint) error {
	if bits < 1 || bits > MaxBits {
		return fmt.Errorf("clock width %d out of range [1, %d]", bits, MaxBits)
	}
	return nil
}

// Mask returns the bit mask for a counter of the given width.
func Mask(bits uint) uint64 {
	return (uint64(1) << bits) - 1
}

// Diff returns the shorter circular distance between a and b on a counter of
// the given width. Diff(a, b) == Diff(b, a) and Diff(a, a) == 0.
//
// With an 8-bit counter Diff(250, 10) is 16, not 240.
func Diff(a, b uint64, bits uint) uint64 {
	m := Mask(bits)
	fwd := (a - b) & m
	back := (b - a) & m
	if back < fwd {
		return back
	}
	return fwd
}

// SignedDiff returns a - b folded into (-P/2, P/2], where P = 2^bits.
// Adding the result to b modulo P yields a.
func SignedDiff(a, b uint64, bits uint) int64 {
	m := Mask(bits)
	d := (a - b) & m
	half := (m + 1) / 2
	if d > half {
		return int64(d) - int64(m+1)
	}
	return int64(d)
}

// Apply shifts clock by offset modulo 2^bits.
func Apply(clock uint64, offset int64, bits uint) uint64 {
	return (clock + uint64(offset)) & Mask(bits)
}
