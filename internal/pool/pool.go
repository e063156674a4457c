package pool

import (
	"fmt"
	"sort"

	"github.com/roach88/trigsync/internal/daq"
)

// Eviction describes one event number leaving the pool without resolution.
type Eviction struct {
	EventNumber int
	Packets     int
}

// AddResult reports what AddPacket did.
type AddResult struct {
	// Rejected is set when the event number was already retired. The
	// packet is counted as dropped and not stored.
	Rejected bool

	// NewNumber is set when the packet created the first slot for its
	// event number in any category.
	NewNumber bool

	// NewContributor is set when the packet's source had not yet reported
	// for this event number and category.
	NewContributor bool

	// Evicted lists event numbers ditched to keep the category within depth.
	Evicted []Eviction
}

// Pool is the bounded per-category event buffer.
//
// Not safe for concurrent use.
type Pool struct {
	depth int

	slots [daq.NumCategories]map[int]*Slot

	// numbers holds every buffered event number in ascending order;
	// refs counts how many categories hold each.
	numbers []int
	refs    map[int]int

	// Numbers at or below floor are retired, as is everything in retired.
	floor    int
	hasFloor bool
	retired  map[int]struct{}

	droppedByID     map[int]int
	droppedBySource map[daq.Handle]int
	droppedTotal    int
}

// New creates a pool that holds at most depth event numbers per category.
func New(depth int) (*Pool, error) {
	if depth < 1 {
		return nil, fmt.Errorf("pool depth must be at least 1, got %d", depth)
	}
	p := &Pool{depth: depth}
	p.reset()
	p.ResetDropped()
	return p, nil
}

func (p *Pool) reset() {
	for i := range p.slots {
		p.slots[i] = make(map[int]*Slot)
	}
	p.numbers = nil
	p.refs = make(map[int]int)
	p.floor = 0
	p.hasFloor = false
	p.retired = make(map[int]struct{})
}

// Depth returns the per-category bound.
func (p *Pool) Depth() int { return p.depth }

// SetDepth changes the bound. Shrinking evicts the oldest numbers of any
// category that no longer fits.
func (p *Pool) SetDepth(depth int) ([]Eviction, error) {
	if depth < 1 {
		return nil, fmt.Errorf("pool depth must be at least 1, got %d", depth)
	}
	p.depth = depth

	var evicted []Eviction
	for _, cat := range daq.Categories() {
		for len(p.slots[cat]) > p.depth {
			n, _ := p.oldestIn(cat)
			evicted = append(evicted, p.Ditch(n))
		}
	}
	return evicted, nil
}

// Retired reports whether packets for event number n would be rejected.
func (p *Pool) Retired(n int) bool {
	if p.hasFloor && n <= p.floor {
		return true
	}
	_, ok := p.retired[n]
	return ok
}

// WouldGrow reports whether a packet for n in cat would add a new event
// number to a category that is already at depth.
func (p *Pool) WouldGrow(n int, cat daq.Category) bool {
	if _, ok := p.slots[cat][n]; ok {
		return false
	}
	return len(p.slots[cat]) >= p.depth
}

// AddPacket appends pkt to the slot for (n, cat), creating it if needed.
// The pool keeps cat within depth by ditching its oldest number first.
func (p *Pool) AddPacket(n int, cat daq.Category, pkt daq.Packet) AddResult {
	var res AddResult
	if p.Retired(n) {
		p.recordDrop(pkt)
		res.Rejected = true
		return res
	}

	bucket := p.slots[cat]
	s, ok := bucket[n]
	if !ok {
		for len(bucket) >= p.depth {
			oldest, _ := p.oldestIn(cat)
			res.Evicted = append(res.Evicted, p.Ditch(oldest))
		}
		s = newSlot(n, cat)
		bucket[n] = s
		if p.refs[n] == 0 {
			p.insertNumber(n)
			res.NewNumber = true
		}
		p.refs[n]++
	}
	res.NewContributor = s.add(pkt)
	return res
}

// Slot returns the slot for (n, cat), or nil.
func (p *Pool) Slot(n int, cat daq.Category) *Slot {
	if !cat.Valid() {
		return nil
	}
	return p.slots[cat][n]
}

// Slots returns every category's slot for n, indexed by category.
// Missing categories are nil.
func (p *Pool) Slots(n int) [daq.NumCategories]*Slot {
	var out [daq.NumCategories]*Slot
	for _, cat := range daq.Categories() {
		out[cat] = p.slots[cat][n]
	}
	return out
}

// Contains reports whether any category buffers n.
func (p *Pool) Contains(n int) bool { return p.refs[n] > 0 }

// Numbers returns the buffered event numbers in ascending order.
func (p *Pool) Numbers() []int {
	out := make([]int, len(p.numbers))
	copy(out, p.numbers)
	return out
}

// Oldest returns the smallest buffered event number.
func (p *Pool) Oldest() (int, bool) {
	if len(p.numbers) == 0 {
		return 0, false
	}
	return p.numbers[0], true
}

// Len returns the number of distinct buffered event numbers.
func (p *Pool) Len() int { return len(p.numbers) }

// CategoryLen returns the number of event numbers buffered in cat.
func (p *Pool) CategoryLen(cat daq.Category) int {
	if !cat.Valid() {
		return 0
	}
	return len(p.slots[cat])
}

// Full reports whether cat holds depth event numbers.
func (p *Pool) Full(cat daq.Category) bool {
	return p.CategoryLen(cat) >= p.depth
}

// Resolve erases n after a successful build and retires it.
// Returns false if n was not buffered.
func (p *Pool) Resolve(n int) bool {
	if !p.Contains(n) {
		return false
	}
	p.remove(n)
	return true
}

// Ditch removes every slot for n and counts its packets as dropped.
// Ditching an absent or already ditched number is a no-op.
func (p *Pool) Ditch(n int) Eviction {
	ev := Eviction{EventNumber: n}
	if !p.Contains(n) {
		return ev
	}
	for _, cat := range daq.Categories() {
		if s, ok := p.slots[cat][n]; ok {
			for _, pkt := range s.packets {
				p.recordDrop(pkt)
			}
			ev.Packets += len(s.packets)
		}
	}
	p.remove(n)
	return ev
}

// DitchAll ditches every buffered number, oldest first.
func (p *Pool) DitchAll() []Eviction {
	evicted := make([]Eviction, 0, len(p.numbers))
	for len(p.numbers) > 0 {
		evicted = append(evicted, p.Ditch(p.numbers[0]))
	}
	return evicted
}

// ClearAll discards every buffered slot without counting drops and forgets
// retired numbers. Used when the streams are reset.
func (p *Pool) ClearAll() {
	p.reset()
}

// Dropped returns dropped-packet counts keyed by packet identifier.
func (p *Pool) Dropped() map[int]int {
	out := make(map[int]int, len(p.droppedByID))
	for id, c := range p.droppedByID {
		out[id] = c
	}
	return out
}

// DroppedBySource returns dropped-packet counts keyed by source handle.
func (p *Pool) DroppedBySource() map[daq.Handle]int {
	out := make(map[daq.Handle]int, len(p.droppedBySource))
	for h, c := range p.droppedBySource {
		out[h] = c
	}
	return out
}

// DroppedTotal returns the total number of dropped packets.
func (p *Pool) DroppedTotal() int { return p.droppedTotal }

// ResetDropped zeroes the dropped-packet record.
func (p *Pool) ResetDropped() {
	p.droppedByID = make(map[int]int)
	p.droppedBySource = make(map[daq.Handle]int)
	p.droppedTotal = 0
}

// RecordDrop counts pkt as dropped without storing it.
func (p *Pool) RecordDrop(pkt daq.Packet) { p.recordDrop(pkt) }

func (p *Pool) recordDrop(pkt daq.Packet) {
	p.droppedByID[pkt.ID]++
	p.droppedBySource[pkt.Source]++
	p.droppedTotal++
}

func (p *Pool) remove(n int) {
	oldest := len(p.numbers) > 0 && p.numbers[0] == n
	for _, cat := range daq.Categories() {
		delete(p.slots[cat], n)
	}
	delete(p.refs, n)
	i := sort.SearchInts(p.numbers, n)
	if i < len(p.numbers) && p.numbers[i] == n {
		p.numbers = append(p.numbers[:i], p.numbers[i+1:]...)
	}
	p.retire(n, oldest)
}

// retire marks n as gone. When n was the oldest buffered number the floor
// advances to it; otherwise n is remembered individually.
func (p *Pool) retire(n int, oldest bool) {
	if !oldest {
		if len(p.numbers) == 0 || n < p.numbers[0] {
			oldest = true
		}
	}
	if !oldest {
		p.retired[n] = struct{}{}
		return
	}
	if !p.hasFloor || n > p.floor {
		p.floor = n
		p.hasFloor = true
	}
	for r := range p.retired {
		if r <= p.floor {
			delete(p.retired, r)
		}
	}
	// Retired numbers directly above the floor extend it.
	for {
		if _, ok := p.retired[p.floor+1]; !ok {
			break
		}
		delete(p.retired, p.floor+1)
		p.floor++
	}
}

func (p *Pool) insertNumber(n int) {
	i := sort.SearchInts(p.numbers, n)
	p.numbers = append(p.numbers, 0)
	copy(p.numbers[i+1:], p.numbers[i:])
	p.numbers[i] = n
}

func (p *Pool) oldestIn(cat daq.Category) (int, bool) {
	for _, n := range p.numbers {
		if _, ok := p.slots[cat][n]; ok {
			return n, true
		}
	}
	return 0, false
}
