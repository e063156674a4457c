package source

import (
	"sync"

	"github.com/roach88/trigsync/internal/daq"
)

// Memory is a thread-safe FIFO source.
//
// A reader goroutine may Push parsed packets while the driver pulls with
// Next from its single cycle goroutine. In tests and feeds everything
// happens on one goroutine.
type Memory struct {
	name    string
	mu      sync.Mutex
	packets []daq.Packet
	closed  bool
}

// NewMemory creates an empty, open source.
func NewMemory(name string) *Memory {
	return &Memory{
		name:    daq.NormalizeName(name),
		packets: make([]daq.Packet, 0, 64),
	}
}

// Name implements Source.
func (m *Memory) Name() string {
	return m.name
}

// Push appends packets to the back of the queue.
// Returns false if the source is closed.
func (m *Memory) Push(pkts ...daq.Packet) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.packets = append(m.packets, pkts...)
	return true
}

// HasMore implements Source.
func (m *Memory) HasMore() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.packets) > 0
}

// Next implements Source.
func (m *Memory) Next() (daq.Packet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.packets) == 0 {
		return daq.Packet{}, false
	}

	p := m.packets[0]

	// Clear the slot so the payload can be collected.
	m.packets[0] = daq.Packet{}
	if len(m.packets) == 1 {
		m.packets = m.packets[:0]
	} else {
		m.packets = m.packets[1:]
	}

	return p, true
}

// Len returns the number of queued packets.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.packets)
}

// Close marks the source as finished. Queued packets can still be taken.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// Closed implements Closer.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
