// Package harness runs synchronization scenarios against the real driver.
//
// A scenario is a YAML file holding settings, a recorded feed, an optional
// list of host steps and the assertions to check afterwards:
//
//	name: three-source-alignment
//	description: two calorimeter streams follow the gl1 reference
//	config:
//	  calibration_window: 2
//	feed:
//	  sources:
//	    - {name: gl1, category: gl1, reference: true, runs: [{from: 1, to: 3, clock: 100, step: 10, id: 14001}]}
//	    - {name: seb00, category: calo, runs: [{from: 1, to: 3, clock: 98, step: 10, id: 6001}]}
//	assertions:
//	  - {type: emitted, events: [1, 2, 3]}
//	  - {type: offset, source: seb00, value: 2}
//	  - {type: expr, expr: "resyncs == 0"}
//
// Every run uses a fixed run token, a recording sink and discarded logs, so
// the resulting trace is byte-identical across runs and can be compared
// against a golden file (see RunWithGolden and Snapshot).
//
// With no steps the driver runs until the feed is exhausted, a fatal error
// occurs or a cycle makes no progress.
package harness
