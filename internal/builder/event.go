package builder

import (
	"context"

	"github.com/roach88/trigsync/internal/daq"
)

// Flat encoding layout.
const (
	EventHeaderWords  = 6
	PacketHeaderWords = 5

	// EventTypeData marks a physics data event.
	EventTypeData = 1
)

// Well-known names under which per-category aggregates are published.
const (
	AggregatePRDF    = "PRDF"
	AggregateTrigger = "TRIGGERPRIMITIVES"
	AggregateGL1     = "GL1Packet"
	AggregateMBD     = "MBDPackets"
	AggregateCalo    = "CALOPackets"
)

var aggregateNames = [daq.NumCategories]string{
	AggregatePRDF, AggregateTrigger, AggregateGL1, AggregateMBD, AggregateCalo,
}

// AggregateName returns the sink name for cat's aggregate.
func AggregateName(cat daq.Category) string {
	if !cat.Valid() {
		return ""
	}
	return aggregateNames[cat]
}

// PacketRecord locates one encoded packet inside Event.Raw.
type PacketRecord struct {
	ID       int          `json:"id"`
	Category daq.Category `json:"category"`
	Source   daq.Handle   `json:"source"`
	Bytes    int          `json:"bytes"`

	// Offset is the word index of the record header.
	Offset int `json:"offset"`
}

// Aggregate is the derived per-category object published next to the event.
// Packet data is owned by the aggregate.
type Aggregate struct {
	Name     string       `json:"name"`
	Category daq.Category `json:"category"`
	Packets  []daq.Packet `json:"packets"`
}

// Event is one composite event.
type Event struct {
	ID          string `json:"id"`
	EventNumber int    `json:"event_number"`
	RunNumber   int    `json:"run_number"`
	RunToken    string `json:"run_token"`

	// Seq is the emission sequence number within the run.
	Seq uint64 `json:"seq"`

	// ClockBase is the reference-time beam clock the event aligned on.
	ClockBase uint64 `json:"clock_base"`

	Records []PacketRecord `json:"records"`

	// Raw is the flat encoding.
	Raw []byte `json:"-"`

	Aggregates []*Aggregate `json:"-"`
}

// Words returns the encoded length in words.
func (e *Event) Words() int { return len(e.Raw) / 4 }

// Aggregate returns the aggregate published under name.
func (e *Event) Aggregate(name string) (*Aggregate, bool) {
	for _, a := range e.Aggregates {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Sink receives finished events.
//
// Publish is called exactly once per resolved event number and never retried
// after it returns nil. A non-nil error makes the event a per-event failure.
type Sink interface {
	Publish(ctx context.Context, ev *Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev *Event) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, ev *Event) error { return f(ctx, ev) }

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(context.Context, *Event) error { return nil })
