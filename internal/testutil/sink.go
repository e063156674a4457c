package testutil

import (
	"context"
	"sync"

	"github.com/roach88/trigsync/internal/builder"
)

// RecordingSink keeps every published event in order.
//
// Fail, when set, is consulted before recording; a non-nil return is
// handed back to the publisher and the event is not recorded.
type RecordingSink struct {
	mu     sync.Mutex
	events []*builder.Event
	Fail   func(ev *builder.Event) error
}

// NewRecordingSink creates an empty recording sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// Publish implements builder.Sink.
func (s *RecordingSink) Publish(_ context.Context, ev *builder.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		if err := s.Fail(ev); err != nil {
			return err
		}
	}
	s.events = append(s.events, ev)
	return nil
}

// Events returns the recorded events.
func (s *RecordingSink) Events() []*builder.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*builder.Event, len(s.events))
	copy(out, s.events)
	return out
}

// EventNumbers returns the recorded event numbers in emission order.
func (s *RecordingSink) EventNumbers() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.EventNumber
	}
	return out
}

// Len returns the number of recorded events.
func (s *RecordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
