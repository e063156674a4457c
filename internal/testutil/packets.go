package testutil

import (
	"github.com/roach88/trigsync/internal/daq"
	"github.com/roach88/trigsync/internal/source"
)

// Run is a compact description of one source's packets: event numbers
// from First to Last inclusive, with clock starting at Clock and advancing
// by Step per event.
type Run struct {
	First, Last int
	Clock       uint64
	Step        uint64
	ID          int
}

// Fill pushes the packets described by runs into a new memory source.
// The source is closed unless open is true.
func Fill(name string, open bool, runs ...Run) *source.Memory {
	m := source.NewMemory(name)
	for _, r := range runs {
		c := r.Clock
		for n := r.First; n <= r.Last; n++ {
			m.Push(daq.Packet{ID: r.ID, EventNumber: n, Clock: c, Data: []byte{byte(r.ID), byte(n)}})
			c += r.Step
		}
	}
	if !open {
		m.Close()
	}
	return m
}
