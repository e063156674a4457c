package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/trigsync/internal/builder"
	"github.com/roach88/trigsync/internal/daq"
	"github.com/roach88/trigsync/internal/engine"
	"github.com/roach88/trigsync/internal/source"
	"github.com/roach88/trigsync/internal/testutil"
)

// MaxCycles bounds an unbounded run step.
const MaxCycles = 100000

// errSinkRejected is returned by the harness sink for FailEvents.
var errSinkRejected = errors.New("sink rejected event")

// Harness drives one scenario.
type Harness struct {
	engine  *engine.Engine
	sink    *testutil.RecordingSink
	sources map[string]*source.Memory
	handles map[string]daq.Handle
	result  *Result
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext executes a scenario with ctx passed to every cycle.
//
// Execution flow:
//  1. Build the engine with a fixed run token and a recording sink
//  2. Register the feed's sources in order and set the reference
//  3. Execute the steps (a single run step if none are listed)
//  4. Capture final state and evaluate assertions
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}

	steps := scenario.Steps
	if len(steps) == 0 {
		steps = []Step{{Do: StepRun}}
	}
	for i, st := range steps {
		stop, err := h.execute(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, st.Do, err)
		}
		if stop {
			break
		}
	}

	h.capture()
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	settings, err := scenario.Config.Settings()
	if err != nil {
		return nil, err
	}

	h := &Harness{
		sink:    testutil.NewRecordingSink(),
		handles: make(map[string]daq.Handle),
		result:  NewResult(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	failing := make(map[int]bool, len(scenario.FailEvents))
	for _, n := range scenario.FailEvents {
		failing[n] = true
	}
	h.sink.Fail = func(ev *builder.Event) error {
		if failing[ev.EventNumber] {
			return fmt.Errorf("event %d: %w", ev.EventNumber, errSinkRejected)
		}
		h.result.Trace = append(h.result.Trace, TraceEvent{
			Type:      TraceEmit,
			Event:     ev.EventNumber,
			Seq:       ev.Seq,
			Packets:   len(ev.Records),
			Words:     ev.Words(),
			ClockBase: ev.ClockBase,
		})
		return nil
	}

	eng, err := engine.New(settings, h.sink,
		engine.WithLogger(h.logger),
		engine.WithTokens(testutil.NewFixedTokenGenerator(scenario.RunToken)),
		engine.WithObserver(h),
	)
	if err != nil {
		return nil, err
	}
	h.engine = eng

	sources, _ := scenario.Feed.BuildAll()
	h.sources = sources
	for _, spec := range scenario.Feed.Sources {
		name := daq.NormalizeName(spec.Name)
		handle, err := eng.Register(sources[name], spec.ParsedCategory())
		if err != nil {
			return nil, err
		}
		h.handles[name] = handle
		if spec.Reference {
			if err := eng.SetReference(handle); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}

// OnDitch implements engine.Observer.
func (h *Harness) OnDitch(_ context.Context, d engine.Ditch) {
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Type:    TraceDitch,
		Event:   d.EventNumber,
		Packets: d.Packets,
		Reason:  string(d.Reason),
	})
}

// OnResync implements engine.Observer.
func (h *Harness) OnResync(_ context.Context, r engine.Resync) {
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Type:    TraceResync,
		Packets: r.Packets,
		Reason:  r.Reason,
		Ditched: r.Ditched,
	})
}

// execute runs one step. Returns true once the run hit a fatal error.
func (h *Harness) execute(ctx context.Context, st Step) (bool, error) {
	switch st.Do {
	case StepRun:
		return h.run(ctx, st.Cycles), nil
	case StepPush:
		spec := source.SourceSpec{Name: st.Source, Packets: st.Packets}
		if !h.source(st.Source).Push(spec.Expand()...) {
			return false, fmt.Errorf("source %q is closed", st.Source)
		}
	case StepClose:
		h.source(st.Source).Close()
	case StepReference:
		if err := h.engine.SetReference(h.handles[daq.NormalizeName(st.Source)]); err != nil {
			return false, err
		}
	case StepDitch:
		h.engine.DitchEvent(st.Event)
	case StepResync:
		h.engine.Resynchronize()
	case StepPoolDepth:
		if err := h.engine.SetPoolDepth(st.Depth); err != nil {
			return false, err
		}
	case StepReset:
		h.engine.ResetAll()
		h.result.Fatal = ""
	case StepStop:
		h.engine.Stop()
	default:
		return false, fmt.Errorf("unknown step %q", st.Do)
	}
	return false, nil
}

func (h *Harness) source(name string) *source.Memory {
	return h.sources[daq.NormalizeName(name)]
}

// run drives cycles. With limit zero it stops at exhaustion or the first
// cycle that made no progress.
func (h *Harness) run(ctx context.Context, limit int) bool {
	bounded := limit > 0
	if !bounded {
		limit = MaxCycles
	}
	for i := 0; i < limit; i++ {
		res, err := h.engine.RunCycle(ctx)
		if err != nil {
			code := "UNKNOWN"
			var rt *engine.RuntimeError
			if errors.As(err, &rt) {
				code = string(rt.Code)
			}
			h.result.Fatal = code
			h.result.Trace = append(h.result.Trace, TraceEvent{Type: TraceFatal, Code: code})
			return true
		}
		if res.Status == engine.StatusExhausted {
			return false
		}
		if !bounded && !res.Progressed() {
			return false
		}
	}
	return false
}

// capture records the final driver state into the result.
func (h *Harness) capture() {
	r := h.result
	r.State = h.engine.State().String()
	r.Stats = h.engine.Stats()
	for id, n := range h.engine.DroppedPackets() {
		r.Dropped[id] = n
	}
	for _, o := range h.engine.Offsets() {
		if ent, ok := h.engine.Registry().Lookup(o.Source); ok {
			r.Offsets[ent.Name] = o
		}
	}
}
