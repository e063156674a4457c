package engine

import (
	"context"

	"github.com/roach88/trigsync/internal/builder"
)

// State is the driver's synchronization state.
type State int

const (
	// StateCalibrating gathers clock samples; nothing is emitted.
	StateCalibrating State = iota
	// StateSynchronized has frozen offsets and emits events.
	StateSynchronized
	// StateResynchronizing is entered briefly while the pool and offsets
	// are cleared.
	StateResynchronizing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCalibrating:
		return "calibrating"
	case StateSynchronized:
		return "synchronized"
	case StateResynchronizing:
		return "resynchronizing"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Status is the outcome of one cycle.
type Status int

const (
	// StatusEventProduced means one composite event was published.
	StatusEventProduced Status = iota
	// StatusNoEventReady means nothing could be resolved this cycle.
	StatusNoEventReady
	// StatusExhausted means every source is drained and nothing left can
	// resolve.
	StatusExhausted
	// StatusFatal means a startup condition failed.
	StatusFatal
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusEventProduced:
		return "event_produced"
	case StatusNoEventReady:
		return "no_event_ready"
	case StatusExhausted:
		return "exhausted"
	case StatusFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// DitchReason says why an event number was ditched.
type DitchReason string

const (
	ReasonMissing     DitchReason = "missing_contribution"
	ReasonMisaligned  DitchReason = "misaligned"
	ReasonOverflow    DitchReason = "encoding_overflow"
	ReasonUnencodable DitchReason = "unencodable"
	ReasonSink        DitchReason = "sink_failure"
	ReasonSuperseded  DitchReason = "superseded"
	ReasonCalibration DitchReason = "calibration_eviction"
	ReasonResync      DitchReason = "resynchronization"
	ReasonHost        DitchReason = "host_request"
	ReasonDepth       DitchReason = "pool_depth"
)

// Ditch records one event number leaving the pool unresolved.
type Ditch struct {
	RunToken    string      `json:"-"`
	EventNumber int         `json:"event_number"`
	Packets     int         `json:"packets"`
	Reason      DitchReason `json:"reason"`
}

// Resync records one resynchronization.
type Resync struct {
	RunToken string `json:"-"`
	Cycle    int    `json:"cycle"`
	Reason   string `json:"reason"`

	// Ditched is the number of event numbers flushed from the pool.
	Ditched int `json:"ditched"`
	Packets int `json:"packets"`
}

// Result is returned by RunCycle.
type Result struct {
	Status Status

	// Event is set when Status is StatusEventProduced.
	Event *builder.Event

	// Ditched lists event numbers ditched during the cycle.
	Ditched []Ditch

	// Pulled is the number of packets taken from sources.
	Pulled int

	// Resynced is set when the cycle ended in a resynchronization.
	Resynced bool
}

// Progressed reports whether the cycle changed anything.
func (r Result) Progressed() bool {
	return r.Status == StatusEventProduced || r.Pulled > 0 || len(r.Ditched) > 0 || r.Resynced
}

// Observer is notified of ditches and resynchronizations.
// Called from the driver cycle; implementations must not call back into
// the driver.
type Observer interface {
	OnDitch(ctx context.Context, d Ditch)
	OnResync(ctx context.Context, r Resync)
}

// Stats are cumulative counters for one run.
type Stats struct {
	Cycles         int                 `json:"cycles"`
	Emitted        int                 `json:"emitted"`
	Ditched        int                 `json:"ditched"`
	DroppedPackets int                 `json:"dropped_packets"`
	Late           int                 `json:"late"`
	Resyncs        int                 `json:"resyncs"`
	ByReason       map[DitchReason]int `json:"by_reason"`
	Pulled         map[string]int      `json:"pulled"`
	LastEmitted    int                 `json:"last_emitted"`
}

func newStats() Stats {
	return Stats{
		ByReason:    make(map[DitchReason]int),
		Pulled:      make(map[string]int),
		LastEmitted: -1,
	}
}

func (s Stats) clone() Stats {
	out := s
	out.ByReason = make(map[DitchReason]int, len(s.ByReason))
	for k, v := range s.ByReason {
		out.ByReason[k] = v
	}
	out.Pulled = make(map[string]int, len(s.Pulled))
	for k, v := range s.Pulled {
		out.Pulled[k] = v
	}
	return out
}
