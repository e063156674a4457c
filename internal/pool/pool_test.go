package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trigsync/internal/daq"
)

func pkt(id, n int, h daq.Handle) daq.Packet {
	return daq.Packet{ID: id, EventNumber: n, Source: h, Data: []byte{byte(id), byte(n)}}
}

func newPool(t *testing.T, depth int) *Pool {
	t.Helper()
	p, err := New(depth)
	require.NoError(t, err)
	return p
}

func TestNewRejectsBadDepth(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}

func TestAddPacketFoundCounter(t *testing.T) {
	p := newPool(t, 4)

	res := p.AddPacket(1, daq.CategoryPRDF, pkt(1001, 1, 0))
	assert.True(t, res.NewNumber)
	assert.True(t, res.NewContributor)

	// Same source again: appended but not counted twice.
	res = p.AddPacket(1, daq.CategoryPRDF, pkt(1002, 1, 0))
	assert.False(t, res.NewNumber)
	assert.False(t, res.NewContributor)

	res = p.AddPacket(1, daq.CategoryPRDF, pkt(1003, 1, 1))
	assert.True(t, res.NewContributor)

	s := p.Slot(1, daq.CategoryPRDF)
	require.NotNil(t, s)
	assert.Equal(t, 2, s.Found())
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []daq.Handle{0, 1}, s.Contributors())
	assert.True(t, s.Has(1))

	second, ok := s.Packet(1)
	require.True(t, ok)
	assert.Equal(t, 1002, second.ID)
	_, ok = s.Packet(3)
	assert.False(t, ok)
}

func TestAddPacketRetransmissionsPreserveOrder(t *testing.T) {
	p := newPool(t, 4)
	a := pkt(14001, 3, 2)
	b := a
	b.Data = []byte{0xff}

	p.AddPacket(3, daq.CategoryGL1, a)
	p.AddPacket(3, daq.CategoryGL1, b)

	got := p.Slot(3, daq.CategoryGL1).Packets()
	require.Len(t, got, 2)
	assert.Equal(t, a.Data, got[0].Data)
	assert.Equal(t, b.Data, got[1].Data)
}

func TestEvictionIsFIFO(t *testing.T) {
	p := newPool(t, 3)
	for n := 5; n <= 7; n++ {
		p.AddPacket(n, daq.CategoryPRDF, pkt(1, n, 0))
	}
	// An older number in another category must not be evicted by prdf.
	p.AddPacket(2, daq.CategoryCalo, pkt(2, 2, 1))

	res := p.AddPacket(8, daq.CategoryPRDF, pkt(1, 8, 0))
	require.Len(t, res.Evicted, 1)
	assert.Equal(t, 5, res.Evicted[0].EventNumber)
	assert.Equal(t, 1, res.Evicted[0].Packets)

	assert.Equal(t, []int{2, 6, 7, 8}, p.Numbers())
	assert.Equal(t, 3, p.CategoryLen(daq.CategoryPRDF))
	assert.Equal(t, 1, p.Dropped()[1])
}

func TestEvictionBoundHolds(t *testing.T) {
	p := newPool(t, 5)
	for n := 1; n <= 50; n++ {
		p.AddPacket(n, daq.CategoryTrigger, pkt(7, n, 0))
		assert.LessOrEqual(t, p.CategoryLen(daq.CategoryTrigger), 5)
		oldest, ok := p.Oldest()
		require.True(t, ok)
		want := n - 4
		if want < 1 {
			want = 1
		}
		assert.Equal(t, want, oldest)
	}
	assert.Equal(t, 45, p.DroppedTotal())
}

func TestWouldGrow(t *testing.T) {
	p := newPool(t, 2)
	p.AddPacket(1, daq.CategoryPRDF, pkt(1, 1, 0))
	assert.False(t, p.WouldGrow(2, daq.CategoryPRDF))
	p.AddPacket(2, daq.CategoryPRDF, pkt(1, 2, 0))

	assert.True(t, p.WouldGrow(3, daq.CategoryPRDF))
	assert.False(t, p.WouldGrow(2, daq.CategoryPRDF))
	assert.False(t, p.WouldGrow(3, daq.CategoryMBD))
	assert.True(t, p.Full(daq.CategoryPRDF))
}

func TestDitchIsIdempotent(t *testing.T) {
	p := newPool(t, 4)
	p.AddPacket(1, daq.CategoryPRDF, pkt(10, 1, 0))
	p.AddPacket(1, daq.CategoryCalo, pkt(20, 1, 1))
	p.AddPacket(1, daq.CategoryCalo, pkt(20, 1, 1))
	p.AddPacket(2, daq.CategoryPRDF, pkt(10, 2, 0))

	ev := p.Ditch(1)
	assert.Equal(t, 3, ev.Packets)
	dropped := p.Dropped()

	again := p.Ditch(1)
	assert.Zero(t, again.Packets)
	assert.Equal(t, dropped, p.Dropped())
	assert.Equal(t, 3, p.DroppedTotal())
	assert.Equal(t, map[daq.Handle]int{0: 1, 1: 2}, p.DroppedBySource())

	assert.Nil(t, p.Slot(1, daq.CategoryPRDF))
	assert.Nil(t, p.Slot(1, daq.CategoryCalo))
	assert.Equal(t, []int{2}, p.Numbers())
}

func TestDitchAbsentIsNoop(t *testing.T) {
	p := newPool(t, 4)
	ev := p.Ditch(99)
	assert.Equal(t, Eviction{EventNumber: 99}, ev)
	assert.False(t, p.Retired(99))
	assert.Zero(t, p.DroppedTotal())
}

func TestRetiredNumbersNeverReappear(t *testing.T) {
	p := newPool(t, 4)
	for n := 1; n <= 3; n++ {
		p.AddPacket(n, daq.CategoryPRDF, pkt(1, n, 0))
	}

	require.True(t, p.Resolve(1))
	assert.False(t, p.Resolve(1))
	p.Ditch(3)

	for _, n := range []int{0, 1, 3} {
		res := p.AddPacket(n, daq.CategoryPRDF, pkt(1, n, 1))
		assert.True(t, res.Rejected, "event %d", n)
		assert.False(t, p.Contains(n))
	}
	assert.Equal(t, 4, p.DroppedTotal())

	// 2 is still buffered and open.
	res := p.AddPacket(2, daq.CategoryPRDF, pkt(1, 2, 1))
	assert.False(t, res.Rejected)
	assert.Equal(t, 2, p.Slot(2, daq.CategoryPRDF).Found())

	// Resolving 2 leaves 3 below the floor as well.
	p.Resolve(2)
	assert.True(t, p.Retired(3))
	assert.False(t, p.Retired(4))
}

func TestDitchAll(t *testing.T) {
	p := newPool(t, 4)
	p.AddPacket(4, daq.CategoryPRDF, pkt(1, 4, 0))
	p.AddPacket(2, daq.CategoryGL1, pkt(2, 2, 1))

	evicted := p.DitchAll()
	require.Len(t, evicted, 2)
	assert.Equal(t, 2, evicted[0].EventNumber)
	assert.Equal(t, 4, evicted[1].EventNumber)
	assert.Zero(t, p.Len())
	assert.Equal(t, 2, p.DroppedTotal())
	assert.True(t, p.Retired(3))
}

func TestClearAllDoesNotCount(t *testing.T) {
	p := newPool(t, 4)
	p.AddPacket(1, daq.CategoryPRDF, pkt(1, 1, 0))
	p.Resolve(1)
	p.AddPacket(2, daq.CategoryPRDF, pkt(1, 2, 0))

	p.ClearAll()
	assert.Zero(t, p.Len())
	assert.Zero(t, p.DroppedTotal())

	// A reset stream may start numbering again.
	res := p.AddPacket(1, daq.CategoryPRDF, pkt(1, 1, 0))
	assert.False(t, res.Rejected)
}

func TestSetDepthShrinks(t *testing.T) {
	p := newPool(t, 5)
	for n := 1; n <= 5; n++ {
		p.AddPacket(n, daq.CategoryPRDF, pkt(1, n, 0))
	}

	evicted, err := p.SetDepth(2)
	require.NoError(t, err)
	require.Len(t, evicted, 3)
	assert.Equal(t, []int{4, 5}, p.Numbers())
	assert.Equal(t, 2, p.Depth())

	_, err = p.SetDepth(0)
	assert.Error(t, err)
}

func TestSlots(t *testing.T) {
	p := newPool(t, 4)
	p.AddPacket(1, daq.CategoryPRDF, pkt(1, 1, 0))
	p.AddPacket(1, daq.CategoryMBD, pkt(2, 1, 1))

	slots := p.Slots(1)
	assert.NotNil(t, slots[daq.CategoryPRDF])
	assert.NotNil(t, slots[daq.CategoryMBD])
	assert.Nil(t, slots[daq.CategoryGL1])
	assert.Nil(t, p.Slot(1, daq.Category(12)))
}
