package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/trigsync/internal/daq"
)

// Snapshot serializes a result trace as canonical JSON for golden
// comparison.
//
// Only deterministic fields are included: the event ID and payload bytes
// are covered by seq, words and packet counts.
func Snapshot(scenarioName, runToken string, r *Result) ([]byte, error) {
	trace := make([]any, len(r.Trace))
	for i, ev := range r.Trace {
		m := map[string]any{"type": ev.Type}
		switch ev.Type {
		case TraceEmit:
			m["event"] = ev.Event
			m["seq"] = ev.Seq
			m["packets"] = ev.Packets
			m["words"] = ev.Words
			m["clock_base"] = ev.ClockBase
		case TraceDitch:
			m["event"] = ev.Event
			m["packets"] = ev.Packets
			m["reason"] = ev.Reason
		case TraceResync:
			m["reason"] = ev.Reason
			m["ditched"] = ev.Ditched
			m["packets"] = ev.Packets
		case TraceFatal:
			m["code"] = ev.Code
		}
		trace[i] = m
	}

	offsets := make(map[string]any, len(r.Offsets))
	for name, o := range r.Offsets {
		offsets[name] = o.Value
	}

	snapshot := map[string]any{
		"scenario_name": scenarioName,
		"run_token":     runToken,
		"state":         r.State,
		"offsets":       offsets,
		"trace":         trace,
	}
	return daq.MarshalCanonical(snapshot)
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the scenario's golden
// file without re-running it.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenario.Name, scenario.RunToken, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
