package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/trigsync/internal/clock"
	"github.com/roach88/trigsync/internal/engine"
)

func sampleResult() *Result {
	r := NewResult()
	r.Trace = []TraceEvent{
		{Type: TraceEmit, Event: 1, Seq: 1, Packets: 2},
		{Type: TraceDitch, Event: 2, Packets: 1, Reason: string(engine.ReasonMissing)},
		{Type: TraceDitch, Event: 3, Packets: 2, Reason: string(engine.ReasonResync)},
		{Type: TraceResync, Ditched: 1, Packets: 2, Reason: "host request"},
	}
	r.State = "calibrating"
	r.Stats = engine.Stats{Emitted: 1, Ditched: 2, Resyncs: 1, ByReason: map[engine.DitchReason]int{engine.ReasonMissing: 1}}
	r.Offsets["seb00"] = clock.Offset{Value: -3, Calibrated: true, Votes: 2, Samples: 2}
	r.Dropped[6001] = 3
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	yes := true
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertEmitted, Events: []int{1}},
		{Type: AssertDitched, Event: 2},
		{Type: AssertDitched, Event: 3, Reason: "resynchronization"},
		{Type: AssertTraceCount, Kind: TraceDitch, Count: 2},
		{Type: AssertTraceCount, Kind: TraceFatal, Count: 0},
		{Type: AssertOffset, Source: "seb00", Value: -3, Calibrated: &yes},
		{Type: AssertDropped, PacketID: 6001, Count: 3},
		{Type: AssertDropped, PacketID: 14001, Count: 0},
		{Type: AssertState, State: "calibrating"},
		{Type: AssertExpr, Expr: "reasons['missing_contribution'] == 1 && offsets['seb00'] == -3 && dropped[6001] == 3"},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Fail(t *testing.T) {
	no := false
	tests := []struct {
		name string
		a    Assertion
		want string
	}{
		{"emitted", Assertion{Type: AssertEmitted, Events: []int{1, 2}}, "events [1]"},
		{"ditched never", Assertion{Type: AssertDitched, Event: 9}, "never ditched"},
		{"ditched wrong reason", Assertion{Type: AssertDitched, Event: 2, Reason: "misaligned"}, "ditched as [missing_contribution]"},
		{"trace count", Assertion{Type: AssertTraceCount, Kind: TraceEmit, Count: 4}, "1 times"},
		{"offset missing", Assertion{Type: AssertOffset, Source: "seb01"}, "offsets not frozen"},
		{"offset value", Assertion{Type: AssertOffset, Source: "seb00", Value: 2}, "offset -3"},
		{"offset calibrated", Assertion{Type: AssertOffset, Source: "seb00", Value: -3, Calibrated: &no}, "calibrated=true"},
		{"dropped", Assertion{Type: AssertDropped, PacketID: 6001, Count: 1}, "3 times"},
		{"state", Assertion{Type: AssertState, State: "synchronized"}, "calibrating"},
		{"fatal", Assertion{Type: AssertFatal, Code: "NO_REFERENCE"}, "no fatal error"},
		{"expr false", Assertion{Type: AssertExpr, Expr: "emitted > 1"}, "false"},
		{"expr not bool", Assertion{Type: AssertExpr, Expr: "emitted + 1"}, "compile"},
		{"unknown", Assertion{Type: "bogus"}, "unknown assertion type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.a})
			if assert.Len(t, errs, 1) {
				assert.Contains(t, errs[0], tt.want)
			}
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{Type: AssertEmitted, Expected: "a", Actual: "b", Trace: sampleResult().Trace}
	msg := err.Error()
	assert.Contains(t, msg, "emit event=1 seq=1 packets=2")
	assert.Contains(t, msg, "ditch event=2 packets=1 reason=missing_contribution")
	assert.Contains(t, msg, `resync ditched=1 reason="host request"`)
}

func TestSnapshot_Canonical(t *testing.T) {
	r := sampleResult()
	r.Trace = r.Trace[:2]
	data, err := Snapshot("sample", "run-x", r)
	assert.NoError(t, err)
	assert.Equal(t,
		`{"offsets":{"seb00":-3},"run_token":"run-x","scenario_name":"sample","state":"calibrating","trace":[{"clock_base":0,"event":1,"packets":2,"seq":1,"type":"emit","words":0},{"event":2,"packets":1,"reason":"missing_contribution","type":"ditch"}]}`,
		string(data))
}
