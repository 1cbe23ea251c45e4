package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a multi-datasite flow and what it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description"`

	// Datasites lists the identities sharing the sync root.
	Datasites []string `yaml:"datasites"`

	// StepTimeout bounds how long a step waits for its inputs, measured on
	// the fake clock. Defaults to DefaultStepTimeout.
	StepTimeout time.Duration `yaml:"step_timeout,omitempty"`

	// Flow is the ordered list of actions.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final tree, trace and ledgers.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// DefaultStepTimeout is the scenario step timeout when none is given.
const DefaultStepTimeout = 3 * time.Second

// Flow actions.
const (
	ActionInvite = "invite"
	ActionJoin   = "join"
	ActionLeave  = "leave"
	ActionStart  = "start"
	ActionPass   = "pass"
)

var actions = []string{ActionInvite, ActionJoin, ActionLeave, ActionStart, ActionPass}

// FlowStep is one action taken by one datasite.
type FlowStep struct {
	// Action is one of invite, join, leave, start, pass.
	Action string `yaml:"action"`

	// As is the acting datasite.
	As string `yaml:"as"`

	// Source is the descriptor file for invite (relative to the scenario
	// file) and "<author>/<project>" for join, leave and start.
	Source string `yaml:"source,omitempty"`

	// Expect checks this action's trace event. Nil means the action must
	// not fail and nothing else is checked.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies what one action must produce.
type ExpectClause struct {
	// Transitions are the applied transitions, in order, in their String
	// form, e.g. "start alice@x/sum invite->running". Checked when set.
	Transitions []string `yaml:"transitions,omitempty"`

	// Runs are the executed ring positions, e.g. "sum[0] completed 5".
	// Checked when set.
	Runs []string `yaml:"runs,omitempty"`

	// Errors is the pass's error count. Checked when set.
	Errors *int `yaml:"errors,omitempty"`

	// Error, when set, is a substring the action's error must contain.
	Error string `yaml:"error,omitempty"`

	// Changed is checked when set: whether join or start had an effect.
	Changed *bool `yaml:"changed,omitempty"`
}

// Assertion validates final state or the trace.
type Assertion struct {
	// Type specifies the assertion type:
	//   - "file_equals": Path holds exactly Content
	//   - "file_exists": Path exists
	//   - "file_absent": Path does not exist
	//   - "trace_order": Items appear among applied transitions in order
	//   - "trace_count": Item is applied exactly Count times
	//   - "step_value":  the last completed step of Project in As's ledger wrote Value
	Type string `yaml:"type"`

	// Path is relative to the sync root (file_*).
	Path string `yaml:"path,omitempty"`

	// Content is the expected file content (file_equals).
	Content string `yaml:"content,omitempty"`

	// Items are transition strings (trace_order).
	Items []string `yaml:"items,omitempty"`

	// Item is a transition string (trace_count).
	Item string `yaml:"item,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// As, Project and Value select and check a ledger step (step_value).
	As      string `yaml:"as,omitempty"`
	Project string `yaml:"project,omitempty"`
	Value   int64  `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertFileEquals = "file_equals"
	AssertFileExists = "file_exists"
	AssertFileAbsent = "file_absent"
	AssertTraceOrder = "trace_order"
	AssertTraceCount = "trace_count"
	AssertStepValue  = "step_value"
)

// LoadScenario reads and parses a scenario YAML file. Invite sources are
// resolved relative to the scenario file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, step := range scenario.Flow {
		if step.Action == ActionInvite && step.Source != "" && !filepath.IsAbs(step.Source) {
			scenario.Flow[i].Source = filepath.Join(base, step.Source)
		}
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
	if len(s.Datasites) == 0 {
		return fmt.Errorf("datasites list is required and must be non-empty")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if !slices.Contains(actions, step.Action) {
			return fmt.Errorf("flow[%d]: unknown action %q", i, step.Action)
		}
		if !slices.Contains(s.Datasites, step.As) {
			return fmt.Errorf("flow[%d]: %q is not a scenario datasite", i, step.As)
		}
		if step.Action != ActionPass && step.Source == "" {
			return fmt.Errorf("flow[%d]: %s requires source", i, step.Action)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertFileEquals, AssertFileExists, AssertFileAbsent:
		if a.Path == "" {
			return fmt.Errorf("%s requires path", a.Type)
		}
	case AssertTraceOrder:
		if len(a.Items) == 0 {
			return fmt.Errorf("trace_order requires items")
		}
	case AssertTraceCount:
		if a.Item == "" {
			return fmt.Errorf("trace_count requires item")
		}
	case AssertStepValue:
		if a.As == "" || a.Project == "" {
			return fmt.Errorf("step_value requires as and project")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
