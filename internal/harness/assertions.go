package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/trigsync/internal/daq"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, formatTraceEvent(ev))
		}
	}
	return buf.String()
}

func formatTraceEvent(ev TraceEvent) string {
	switch ev.Type {
	case TraceEmit:
		return fmt.Sprintf("emit event=%d seq=%d packets=%d", ev.Event, ev.Seq, ev.Packets)
	case TraceDitch:
		return fmt.Sprintf("ditch event=%d packets=%d reason=%s", ev.Event, ev.Packets, ev.Reason)
	case TraceResync:
		return fmt.Sprintf("resync ditched=%d reason=%q", ev.Ditched, ev.Reason)
	case TraceFatal:
		return fmt.Sprintf("fatal code=%s", ev.Code)
	default:
		return ev.Type
	}
}

// assertEmitted checks the exact emission order.
func assertEmitted(r *Result, a Assertion) error {
	got := r.Emitted()
	if slices.Equal(got, a.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertEmitted,
		Expected: fmt.Sprintf("events %v", a.Events),
		Actual:   fmt.Sprintf("events %v", got),
		Trace:    r.Trace,
	}
}

// assertDitched checks that the event number was ditched.
func assertDitched(r *Result, a Assertion) error {
	var reasons []string
	for _, ev := range r.Trace {
		if ev.Type != TraceDitch || ev.Event != a.Event {
			continue
		}
		if a.Reason == "" || ev.Reason == a.Reason {
			return nil
		}
		reasons = append(reasons, ev.Reason)
	}

	expected := fmt.Sprintf("event %d ditched", a.Event)
	if a.Reason != "" {
		expected += " as " + a.Reason
	}
	actual := "never ditched"
	if len(reasons) > 0 {
		actual = fmt.Sprintf("ditched as %v", reasons)
	}
	return &AssertionError{Type: AssertDitched, Expected: expected, Actual: actual, Trace: r.Trace}
}

// assertTraceCount checks how many trace events of a kind occurred.
func assertTraceCount(r *Result, a Assertion) error {
	count := 0
	for _, ev := range r.Trace {
		if ev.Type == a.Kind && (a.Reason == "" || ev.Reason == a.Reason) {
			count++
		}
	}
	if count == a.Count {
		return nil
	}

	what := a.Kind
	if a.Reason != "" {
		what += " (" + a.Reason + ")"
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%s exactly %d times", what, a.Count),
		Actual:   fmt.Sprintf("%d times", count),
		Trace:    r.Trace,
	}
}

// assertOffset checks a frozen clock offset.
func assertOffset(r *Result, a Assertion) error {
	name := daq.NormalizeName(a.Source)
	o, ok := r.Offsets[name]
	if !ok {
		return &AssertionError{
			Type:     AssertOffset,
			Expected: fmt.Sprintf("offset for %s", name),
			Actual:   "offsets not frozen for source",
		}
	}
	if a.Calibrated != nil && o.Calibrated != *a.Calibrated {
		return &AssertionError{
			Type:     AssertOffset,
			Expected: fmt.Sprintf("%s calibrated=%t", name, *a.Calibrated),
			Actual:   fmt.Sprintf("calibrated=%t", o.Calibrated),
		}
	}
	if o.Value != a.Value {
		return &AssertionError{
			Type:     AssertOffset,
			Expected: fmt.Sprintf("%s offset %+d", name, a.Value),
			Actual:   fmt.Sprintf("offset %+d (votes %d of %d)", o.Value, o.Votes, o.Samples),
		}
	}
	return nil
}

// assertDropped checks the dropped-packet count of one packet identifier.
func assertDropped(r *Result, a Assertion) error {
	if got := r.Dropped[a.PacketID]; got != a.Count {
		return &AssertionError{
			Type:     AssertDropped,
			Expected: fmt.Sprintf("packet %d dropped %d times", a.PacketID, a.Count),
			Actual:   fmt.Sprintf("%d times", got),
		}
	}
	return nil
}

func assertState(r *Result, a Assertion) error {
	if r.State != a.State {
		return &AssertionError{Type: AssertState, Expected: a.State, Actual: r.State}
	}
	return nil
}

func assertFatal(r *Result, a Assertion) error {
	if r.Fatal != a.Code {
		actual := r.Fatal
		if actual == "" {
			actual = "no fatal error"
		}
		return &AssertionError{Type: AssertFatal, Expected: a.Code, Actual: actual, Trace: r.Trace}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEmitted:
			err = assertEmitted(result, assertion)
		case AssertDitched:
			err = assertDitched(result, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result, assertion)
		case AssertOffset:
			err = assertOffset(result, assertion)
		case AssertDropped:
			err = assertDropped(result, assertion)
		case AssertState:
			err = assertState(result, assertion)
		case AssertFatal:
			err = assertFatal(result, assertion)
		case AssertExpr:
			err = assertExpr(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
