package harness

import (
	"github.com/roach88/trigsync/internal/clock"
	"github.com/roach88/trigsync/internal/engine"
)

// Trace event types.
const (
	TraceEmit   = "emit"
	TraceDitch  = "ditch"
	TraceResync = "resync"
	TraceFatal  = "fatal"
)

// TraceEvent is one observable driver outcome, in the order it happened.
type TraceEvent struct {
	Type string `json:"type"`

	// Event is the event number (emit, ditch).
	Event int `json:"event,omitempty"`

	// Seq is the emission sequence number (emit).
	Seq uint64 `json:"seq,omitempty"`

	Packets   int    `json:"packets,omitempty"`
	Words     int    `json:"words,omitempty"`
	ClockBase uint64 `json:"clock_base,omitempty"`

	// Reason explains a ditch or resync.
	Reason string `json:"reason,omitempty"`

	// Ditched is the number of event numbers a resync flushed.
	Ditched int `json:"ditched,omitempty"`

	// Code is the runtime error code (fatal).
	Code string `json:"code,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors holds assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final driver state.
	State   string                  `json:"state"`
	Stats   engine.Stats            `json:"stats"`
	Offsets map[string]clock.Offset `json:"offsets,omitempty"`
	Dropped map[int]int             `json:"dropped,omitempty"`

	// Fatal is the code of the error that ended the run, if any.
	Fatal string `json:"fatal,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Offsets: make(map[string]clock.Offset),
		Dropped: make(map[int]int),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Emitted returns the emitted event numbers in order.
func (r *Result) Emitted() []int {
	out := []int{}
	for _, ev := range r.Trace {
		if ev.Type == TraceEmit {
			out = append(out, ev.Event)
		}
	}
	return out
}
