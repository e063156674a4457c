package pool

import (
	"sort"

	"github.com/roach88/trigsync/internal/daq"
)

// Slot collects the packets one category received for one event number.
type Slot struct {
	EventNumber int
	Category    daq.Category

	packets      []daq.Packet
	contributors map[daq.Handle]struct{}
}

func newSlot(n int, cat daq.Category) *Slot {
	return &Slot{
		EventNumber:  n,
		Category:     cat,
		contributors: make(map[daq.Handle]struct{}),
	}
}

// add appends pkt and reports whether its source is new to the slot.
func (s *Slot) add(pkt daq.Packet) bool {
	s.packets = append(s.packets, pkt)
	if _, ok := s.contributors[pkt.Source]; ok {
		return false
	}
	s.contributors[pkt.Source] = struct{}{}
	return true
}

// Found is the number of distinct sources that reported.
func (s *Slot) Found() int { return len(s.contributors) }

// Len is the number of packets held, retransmissions included.
func (s *Slot) Len() int { return len(s.packets) }

// Packets returns the packets in arrival order. The slice belongs to the
// pool and is invalid after the slot is resolved or ditched.
func (s *Slot) Packets() []daq.Packet { return s.packets }

// Packet returns the packet at sequence index i.
func (s *Slot) Packet(i int) (daq.Packet, bool) {
	if i < 0 || i >= len(s.packets) {
		return daq.Packet{}, false
	}
	return s.packets[i], true
}

// Has reports whether source h contributed.
func (s *Slot) Has(h daq.Handle) bool {
	_, ok := s.contributors[h]
	return ok
}

// Contributors returns the contributing handles in ascending order.
func (s *Slot) Contributors() []daq.Handle {
	out := make([]daq.Handle, 0, len(s.contributors))
	for h := range s.contributors {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
