package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/trigsync/internal/config"
	"github.com/roach88/trigsync/internal/daq"
	"github.com/roach88/trigsync/internal/source"
)

// DefaultRunToken pins the run token when a scenario does not set one.
const DefaultRunToken = "scenario-run"

// Scenario defines a synchronization scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunToken is the fixed run token. Defaults to DefaultRunToken.
	RunToken string `yaml:"run_token,omitempty"`

	// Config overrides config.Default(). Unset fields keep their default.
	Config config.Config `yaml:"config,omitempty"`

	// Feed holds the recorded streams. Sources register in listed order.
	Feed source.Feed `yaml:"feed"`

	// FailEvents lists event numbers whose handoff to the sink fails.
	FailEvents []int `yaml:"fail_events,omitempty"`

	// Steps drive the engine. Empty means a single run step.
	Steps []Step `yaml:"steps,omitempty"`

	// Assertions validate the trace and the final driver state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step actions.
const (
	StepRun       = "run"
	StepPush      = "push"
	StepClose     = "close"
	StepDitch     = "ditch"
	StepResync    = "resync"
	StepPoolDepth = "pool_depth"
	StepReference = "reference"
	StepReset     = "reset"
	StepStop      = "stop"
)

// Step is one host action.
type Step struct {
	// Do names the action.
	Do string `yaml:"do"`

	// Cycles bounds a run step. Zero runs until the feed is exhausted or a
	// cycle makes no progress.
	Cycles int `yaml:"cycles,omitempty"`

	// Source names the target of push, close and reference.
	Source string `yaml:"source,omitempty"`

	// Packets are appended by push.
	Packets []source.PacketSpec `yaml:"packets,omitempty"`

	// Event is the event number for ditch.
	Event int `yaml:"event,omitempty"`

	// Depth is the new steady-state depth for pool_depth.
	Depth int `yaml:"depth,omitempty"`
}

// Assertion type constants.
const (
	AssertEmitted    = "emitted"
	AssertDitched    = "ditched"
	AssertTraceCount = "trace_count"
	AssertOffset     = "offset"
	AssertDropped    = "dropped"
	AssertState      = "state"
	AssertFatal      = "fatal"
	AssertExpr       = "expr"
)

// Assertion validates the trace or final state.
type Assertion struct {
	// Type selects the check:
	//   - "emitted": Events equals the emitted event numbers, in order
	//   - "ditched": Event was ditched, with Reason if set
	//   - "trace_count": exactly Count trace events of Kind, with Reason if set
	//   - "offset": Source froze Value (and Calibrated, if set)
	//   - "dropped": PacketID has Count dropped packets
	//   - "state": the final state is State
	//   - "fatal": the run ended with runtime error Code
	//   - "expr": Expr evaluates to true over the run statistics
	Type string `yaml:"type"`

	Events     []int  `yaml:"events,omitempty"`
	Event      int    `yaml:"event,omitempty"`
	Reason     string `yaml:"reason,omitempty"`
	Kind       string `yaml:"kind,omitempty"`
	Count      int    `yaml:"count,omitempty"`
	Source     string `yaml:"source,omitempty"`
	Value      int64  `yaml:"value,omitempty"`
	Calibrated *bool  `yaml:"calibrated,omitempty"`
	PacketID   int    `yaml:"packet_id,omitempty"`
	State      string `yaml:"state,omitempty"`
	Code       string `yaml:"code,omitempty"`
	Expr       string `yaml:"expr,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	scenario := Scenario{Config: config.Default()}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if scenario.RunToken == "" {
		scenario.RunToken = DefaultRunToken
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if err := s.Config.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := s.Feed.Validate(); err != nil {
		return fmt.Errorf("feed: %w", err)
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Feed.Sources))
	for _, src := range s.Feed.Sources {
		names[daq.NormalizeName(src.Name)] = true
	}
	for i, step := range s.Steps {
		if err := validateStep(i, &step, names); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step, names map[string]bool) error {
	switch st.Do {
	case StepRun:
		if st.Cycles < 0 {
			return fmt.Errorf("steps[%d]: cycles must be non-negative", index)
		}
	case StepPush, StepClose, StepReference:
		if st.Source == "" {
			return fmt.Errorf("steps[%d]: source is required for %s", index, st.Do)
		}
		if !names[daq.NormalizeName(st.Source)] {
			return fmt.Errorf("steps[%d]: unknown source %q", index, st.Source)
		}
		if st.Do == StepPush && len(st.Packets) == 0 {
			return fmt.Errorf("steps[%d]: packets are required for push", index)
		}
	case StepPoolDepth:
		if st.Depth < 1 {
			return fmt.Errorf("steps[%d]: depth must be at least 1", index)
		}
	case StepDitch, StepResync, StepReset, StepStop:
	case "":
		return fmt.Errorf("steps[%d]: do is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown step %q", index, st.Do)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEmitted:
		if a.Events == nil {
			return fmt.Errorf("assertions[%d]: events is required for emitted (use [] for none)", index)
		}
	case AssertDitched:
	case AssertTraceCount:
		switch a.Kind {
		case TraceEmit, TraceDitch, TraceResync, TraceFatal:
		default:
			return fmt.Errorf("assertions[%d]: kind must be one of emit, ditch, resync, fatal", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertOffset:
		if a.Source == "" {
			return fmt.Errorf("assertions[%d]: source is required for offset", index)
		}
	case AssertDropped:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for dropped", index)
		}
	case AssertState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for state", index)
		}
	case AssertFatal:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for fatal", index)
		}
	case AssertExpr:
		if a.Expr == "" {
			return fmt.Errorf("assertions[%d]: expr is required for expr", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
