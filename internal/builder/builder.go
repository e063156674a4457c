package builder

import (
	"fmt"
	"math"

	"github.com/roach88/trigsync/internal/daq"
	"github.com/roach88/trigsync/internal/pool"
)

// Builder encodes resolved event numbers. One builder owns one scratch
// buffer and is reused for every event of a run.
type Builder struct {
	scratch   *Scratch
	runNumber int
	runToken  string
}

// New creates a builder with the standard scratch capacity.
func New() *Builder {
	s, _ := NewScratch(ScratchWords)
	return &Builder{scratch: s}
}

// NewWithScratch creates a builder over an existing scratch buffer.
func NewWithScratch(s *Scratch) *Builder {
	return &Builder{scratch: s}
}

// SetRun sets the run identity stamped on every event.
func (b *Builder) SetRun(token string, number int) {
	b.runToken = token
	b.runNumber = number
}

// Capacity returns the scratch capacity in words.
func (b *Builder) Capacity() int { return b.scratch.Cap() }

// Input is the resolved packet set for one event number.
type Input struct {
	EventNumber int
	Seq         uint64
	ClockBase   uint64
	Slots       [daq.NumCategories]*pool.Slot
}

// Build encodes in into a composite event. Event number, run number and
// packet identifiers must fit in unsigned 32-bit words; anything else is a
// WordRangeError. The emission seq is written as its low 32 bits.
//
// The returned event shares no memory with the pool, so the caller may
// resolve the slots once Build succeeds.
func (b *Builder) Build(in Input) (*Event, error) {
	selected := make([][]daq.Packet, daq.NumCategories)
	count := 0
	for _, cat := range daq.Categories() {
		s := in.Slots[cat]
		if s == nil {
			continue
		}
		selected[cat] = Select(cat, s.Packets())
		count += len(selected[cat])
	}

	if err := checkWord(in.EventNumber, "event number", in.EventNumber); err != nil {
		return nil, err
	}
	if err := checkWord(in.EventNumber, "run number", b.runNumber); err != nil {
		return nil, err
	}
	for _, pkts := range selected {
		for _, p := range pkts {
			if err := checkWord(in.EventNumber, "packet id", p.ID); err != nil {
				return nil, err
			}
		}
	}

	need := EventHeaderWords
	for _, pkts := range selected {
		for _, p := range pkts {
			need += PacketHeaderWords + PaddedWords(len(p.Data))
		}
	}
	if need > b.scratch.Cap() {
		return nil, &EncodingOverflowError{EventNumber: in.EventNumber, NeedWords: need, CapWords: b.scratch.Cap()}
	}

	sc := b.scratch
	sc.Reset()
	header := [EventHeaderWords]uint32{
		0, // length, patched below
		EventTypeData,
		uint32(in.EventNumber),
		uint32(b.runNumber),
		uint32(count),
		uint32(in.Seq),
	}
	for _, w := range header {
		sc.PutWord(w)
	}

	ev := &Event{
		EventNumber: in.EventNumber,
		RunNumber:   b.runNumber,
		RunToken:    b.runToken,
		Seq:         in.Seq,
		ClockBase:   in.ClockBase,
		Records:     make([]PacketRecord, 0, count),
	}

	for _, cat := range daq.Categories() {
		pkts := selected[cat]
		if len(pkts) == 0 {
			continue
		}
		agg := &Aggregate{Name: AggregateName(cat), Category: cat, Packets: make([]daq.Packet, 0, len(pkts))}
		for _, p := range pkts {
			rec := PacketRecord{ID: p.ID, Category: cat, Source: p.Source, Bytes: len(p.Data), Offset: sc.Words()}
			if err := b.writePacket(in.EventNumber, cat, p); err != nil {
				return nil, err
			}
			ev.Records = append(ev.Records, rec)

			owned := p
			owned.Data = append([]byte(nil), p.Data...)
			agg.Packets = append(agg.Packets, owned)
		}
		ev.Aggregates = append(ev.Aggregates, agg)
	}

	sc.SetWord(0, uint32(sc.Words()))
	ev.Raw = sc.Bytes()

	id, err := daq.EventID(b.runToken, b.runNumber, in.EventNumber, daq.PayloadDigest(ev.Raw))
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", in.EventNumber, err)
	}
	ev.ID = id
	return ev, nil
}

func checkWord(n int, field string, v int) error {
	if v < 0 || int64(v) > math.MaxUint32 {
		return &WordRangeError{EventNumber: n, Field: field, Value: v}
	}
	return nil
}

func (b *Builder) writePacket(n int, cat daq.Category, p daq.Packet) error {
	sc := b.scratch
	words := PacketHeaderWords + PaddedWords(len(p.Data))
	ok := sc.PutWord(uint32(words)) &&
		sc.PutWord(uint32(p.ID)) &&
		sc.PutWord(cat.Code()) &&
		sc.PutWord(uint32(p.Source)) &&
		sc.PutWord(uint32(len(p.Data))) &&
		sc.PutBytes(p.Data)
	if !ok {
		return &EncodingOverflowError{EventNumber: n, NeedWords: sc.Words() + words, CapWords: sc.Cap()}
	}
	return nil
}

// Select applies per-category retransmission semantics to a slot's packets.
//
// gl1 and mbd keep the last variant of each packet identifier, placed where
// the identifier first appeared. Other categories keep every variant in
// arrival order.
func Select(cat daq.Category, pkts []daq.Packet) []daq.Packet {
	switch cat {
	case daq.CategoryGL1, daq.CategoryMBD:
	default:
		return pkts
	}

	pos := make(map[int]int, len(pkts))
	out := make([]daq.Packet, 0, len(pkts))
	for _, p := range pkts {
		if i, ok := pos[p.ID]; ok {
			out[i] = p
			continue
		}
		pos[p.ID] = len(out)
		out = append(out, p)
	}
	return out
}
