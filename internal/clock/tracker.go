package clock

import (
	"sort"

	"github.com/roach88/trigsync/internal/daq"
)

// Offset is the frozen correction for one source.
type Offset struct {
	Source daq.Handle `json:"source"`

	// Value is added to the source's clock to express it in reference time.
	Value int64 `json:"value"`

	// Calibrated is false when the source never overlapped the reference
	// inside the calibration window. Such a source keeps Value 0.
	Calibrated bool `json:"calibrated"`

	// Votes is how many samples agreed on Value; Samples is how many were cast.
	Votes   int `json:"votes"`
	Samples int `json:"samples"`
}

// Alignment is the outcome of checking one event number.
type Alignment struct {
	Aligned bool
	Base    uint64

	// Worst is the largest corrected distance from Base; Offender is the
	// source that produced it.
	Worst    uint64
	Offender daq.Handle
}

// Tracker records clock samples per event number and source.
//
// Not safe for concurrent use; it is owned by the synchronization driver.
type Tracker struct {
	bits      uint
	reference daq.Handle

	// samples[event][handle] is the masked clock reported with event.
	samples map[int]map[daq.Handle]uint64
	// refClock[event] mirrors samples[event][reference].
	refClock map[int]uint64

	offsets []Offset
	frozen  bool
}

// NewTracker creates a tracker for counters of the given width.
func NewTracker(bits uint) (*Tracker, error) {
	if err := ValidateBits(bits); err != nil {
		return nil, err
	}
	return &Tracker{
		bits:      bits,
		reference: daq.NoHandle,
		samples:   make(map[int]map[daq.Handle]uint64),
		refClock:  make(map[int]uint64),
	}, nil
}

// Bits returns the counter width.
func (t *Tracker) Bits() uint { return t.bits }

// Diff is Diff at the tracker's width.
func (t *Tracker) Diff(a, b uint64) uint64 { return Diff(a, b, t.bits) }

// SetReference designates the reference source and rebuilds the
// per-event reference clocks from samples already recorded.
func (t *Tracker) SetReference(h daq.Handle) {
	t.reference = h
	t.refClock = make(map[int]uint64)
	if h == daq.NoHandle {
		return
	}
	for n, bySource := range t.samples {
		if c, ok := bySource[h]; ok {
			t.refClock[n] = c
		}
	}
}

// Reference returns the designated reference handle.
func (t *Tracker) Reference() daq.Handle { return t.reference }

// AddSample records the clock reported by source h for event n.
//
// The first sample per (event, source) wins; later ones for the same pair are
// ignored and false is returned.
func (t *Tracker) AddSample(n int, h daq.Handle, clock uint64) bool {
	clock &= Mask(t.bits)

	bySource, ok := t.samples[n]
	if !ok {
		bySource = make(map[daq.Handle]uint64)
		t.samples[n] = bySource
	}
	if _, dup := bySource[h]; dup {
		return false
	}
	bySource[h] = clock
	if h == t.reference {
		t.refClock[n] = clock
	}
	return true
}

// Sample returns the clock source h reported for event n.
func (t *Tracker) Sample(n int, h daq.Handle) (uint64, bool) {
	c, ok := t.samples[n][h]
	return c, ok
}

// HasReferenceSample reports whether the reference reported event n.
func (t *Tracker) HasReferenceSample(n int) bool {
	_, ok := t.refClock[n]
	return ok
}

// ReferenceSamples returns how many event numbers carry a reference clock.
func (t *Tracker) ReferenceSamples() int { return len(t.refClock) }

// Events returns how many event numbers have at least one sample.
func (t *Tracker) Events() int { return len(t.samples) }

// Forget drops every sample for event n.
func (t *Tracker) Forget(n int) {
	delete(t.samples, n)
	delete(t.refClock, n)
}

// Prune drops samples for every event number keep rejects.
func (t *Tracker) Prune(keep func(n int) bool) {
	for n := range t.samples {
		if !keep(n) {
			t.Forget(n)
		}
	}
}

// Clear drops all samples and thaws the offsets. The reference is kept.
func (t *Tracker) Clear() {
	t.samples = make(map[int]map[daq.Handle]uint64)
	t.refClock = make(map[int]uint64)
	t.offsets = nil
	t.frozen = false
}

// Frozen reports whether offsets have been computed.
func (t *Tracker) Frozen() bool { return t.frozen }

// ComputeOffsets freezes an offset for every handle in [0, sources).
//
// The calibration window is the first window reference event numbers in
// increasing order (window <= 0 uses them all). For each non-reference
// source the offset is the most frequent value of ref - src over the window;
// ties go to the value observed first. A source with no overlap keeps 0 and
// is marked uncalibrated.
func (t *Tracker) ComputeOffsets(sources, window int) ([]Offset, error) {
	if t.reference == daq.NoHandle {
		return nil, &NoReferenceError{}
	}
	if len(t.refClock) == 0 {
		return nil, &NoReferenceDataError{Reference: t.reference, Window: window}
	}

	events := make([]int, 0, len(t.refClock))
	for n := range t.refClock {
		events = append(events, n)
	}
	sort.Ints(events)
	if window > 0 && len(events) > window {
		events = events[:window]
	}

	offsets := make([]Offset, sources)
	for i := range offsets {
		h := daq.Handle(i)
		offsets[i] = Offset{Source: h}
		if h == t.reference {
			offsets[i].Calibrated = true
			offsets[i].Votes = len(events)
			offsets[i].Samples = len(events)
			continue
		}
		offsets[i] = t.vote(h, events)
	}

	t.offsets = offsets
	t.frozen = true
	return offsets, nil
}

func (t *Tracker) vote(h daq.Handle, events []int) Offset {
	counts := make(map[int64]int)
	var order []int64
	cast := 0
	for _, n := range events {
		c, ok := t.samples[n][h]
		if !ok {
			continue
		}
		d := SignedDiff(t.refClock[n], c, t.bits)
		if _, seen := counts[d]; !seen {
			order = append(order, d)
		}
		counts[d]++
		cast++
	}

	out := Offset{Source: h, Samples: cast}
	for _, d := range order {
		if counts[d] > out.Votes {
			out.Value = d
			out.Votes = counts[d]
		}
	}
	out.Calibrated = cast > 0
	return out
}

// Offsets returns the frozen offsets, or nil before calibration.
func (t *Tracker) Offsets() []Offset {
	if !t.frozen {
		return nil
	}
	out := make([]Offset, len(t.offsets))
	copy(out, t.offsets)
	return out
}

// Offset returns the frozen offset for h. Unknown handles get 0.
func (t *Tracker) Offset(h daq.Handle) int64 {
	if h < 0 || int(h) >= len(t.offsets) {
		return 0
	}
	return t.offsets[h].Value
}

// Corrected returns source h's clock for event n expressed in reference time.
func (t *Tracker) Corrected(n int, h daq.Handle) (uint64, bool) {
	c, ok := t.samples[n][h]
	if !ok {
		return 0, false
	}
	return Apply(c, t.Offset(h), t.bits), true
}

// Check verifies that every contributor's corrected clock for event n lies
// within tolerance of the base. The base is the reference clock when the
// reference contributed, otherwise the lowest contributing handle's
// corrected clock. contributors must be sorted by handle.
func (t *Tracker) Check(n int, contributors []daq.Handle, tolerance uint64) Alignment {
	res := Alignment{Aligned: true, Offender: daq.NoHandle}

	base, haveBase := t.refClock[n]
	for _, h := range contributors {
		c, ok := t.Corrected(n, h)
		if !ok {
			continue
		}
		if !haveBase {
			base, haveBase = c, true
			continue
		}
		if d := Diff(c, base, t.bits); d > res.Worst {
			res.Worst = d
			res.Offender = h
		}
	}
	res.Base = base
	res.Aligned = res.Worst <= tolerance
	return res
}
