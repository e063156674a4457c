package harness

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// exprEnv flattens the result into the names an expr assertion may use:
//
//	cycles, emitted, ditched, dropped_packets, late, resyncs  int
//	last_emitted                                              int
//	reasons   map[string]int    ditches by reason
//	pulled    map[string]int    packets pulled by source name
//	offsets   map[string]int    frozen offset by source name
//	dropped   map[int]int       dropped packets by packet identifier
//	events    []int             emitted event numbers in order
//	state     string
//	fatal     string
func exprEnv(r *Result) map[string]any {
	reasons := make(map[string]int, len(r.Stats.ByReason))
	for k, v := range r.Stats.ByReason {
		reasons[string(k)] = v
	}
	pulled := make(map[string]int, len(r.Stats.Pulled))
	for k, v := range r.Stats.Pulled {
		pulled[k] = v
	}
	offsets := make(map[string]int, len(r.Offsets))
	for k, o := range r.Offsets {
		offsets[k] = int(o.Value)
	}
	dropped := make(map[int]int, len(r.Dropped))
	for k, v := range r.Dropped {
		dropped[k] = v
	}

	return map[string]any{
		"cycles":          r.Stats.Cycles,
		"emitted":         r.Stats.Emitted,
		"ditched":         r.Stats.Ditched,
		"dropped_packets": r.Stats.DroppedPackets,
		"late":            r.Stats.Late,
		"resyncs":         r.Stats.Resyncs,
		"last_emitted":    r.Stats.LastEmitted,
		"reasons":         reasons,
		"pulled":          pulled,
		"offsets":         offsets,
		"dropped":         dropped,
		"events":          r.Emitted(),
		"state":           r.State,
		"fatal":           r.Fatal,
	}
}

// assertExpr evaluates a boolean expr-lang expression over the result.
func assertExpr(r *Result, a Assertion) error {
	env := exprEnv(r)
	program, err := expr.Compile(a.Expr, expr.Env(env), expr.AsBool())
	if err != nil {
		return fmt.Errorf("assertion expr %q: compile: %w", a.Expr, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return fmt.Errorf("assertion expr %q: run: %w", a.Expr, err)
	}
	if ok, _ := out.(bool); !ok {
		return &AssertionError{
			Type:     AssertExpr,
			Expected: a.Expr,
			Actual:   fmt.Sprintf("false (emitted=%d ditched=%d resyncs=%d state=%s)", r.Stats.Emitted, r.Stats.Ditched, r.Stats.Resyncs, r.State),
		}
	}
	return nil
}
