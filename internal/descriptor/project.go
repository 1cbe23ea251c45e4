// Package descriptor defines the project document shared by every datasite
// taking part in a federated computation, and its pipeline of steps.
//
// A descriptor lives in the author's public tree as <project>/<project>.yaml.
// It is parsed once per pass: pipe declarations become pipe.Config values
// at load time, so nothing downstream inspects raw YAML.
package descriptor

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fedreduce/internal/pipe"
)

// Project is a parsed descriptor.
type Project struct {
	Name         string       `yaml:"project"`
	UID          string       `yaml:"uid"`
	Description  string       `yaml:"description"`
	Language     string       `yaml:"language"`
	Author       string       `yaml:"author"`
	Workflow     Workflow     `yaml:"workflow"`
	Code         []string     `yaml:"code"`
	SharedInputs SharedInputs `yaml:"shared_inputs"`
	Complete     *pipe.Config `yaml:"complete"`
	Steps        []Step       `yaml:"steps"`
}

// Workflow holds the ordered ring of participating datasites.
type Workflow struct {
	Datasites []string `yaml:"datasites"`
}

type SharedInputs struct {
	Data string `yaml:"data"`
}

// Role tags a pipeline step.
type Role string

const (
	RoleFirst   Role = "first"
	RoleForeach Role = "foreach"
	RoleLast    Role = "last"
	// RolePositional marks a legacy step bound to one datasite via "run".
	RolePositional Role = "positional"
)

// Step is one entry of the descriptor's steps list.
type Step struct {
	Role Role
	// Run is the executing datasite of a positional step.
	Run  string
	Body Body
}

// Body is the executable part of a step.
type Body struct {
	Inputs   []Input
	Function string
	Output   Output
}

// Input is a named pipe declaration. Order follows the document.
type Input struct {
	Name string
	Pipe pipe.Config
}

// Output is where a step writes its result and who may read it.
type Output struct {
	Path        string
	Permissions []string

	hasPath        bool
	hasPermissions bool
}

// HasPath reports whether the document set output.path.
func (o Output) HasPath() bool { return o.hasPath }

// HasPermissions reports whether the document set output.permissions (or access).
func (o Output) HasPermissions() bool { return o.hasPermissions }

// NewOutput builds an output with both keys present.
func NewOutput(path string, permissions ...string) Output {
	return Output{Path: path, Permissions: permissions, hasPath: true, hasPermissions: true}
}

// Clone returns a deep copy of b.
func (b Body) Clone() Body {
	out := Body{Function: b.Function, Output: b.Output}
	if b.Inputs != nil {
		out.Inputs = make([]Input, len(b.Inputs))
		copy(out.Inputs, b.Inputs)
	}
	if b.Output.Permissions != nil {
		out.Output.Permissions = make([]string, len(b.Output.Permissions))
		copy(out.Output.Permissions, b.Output.Permissions)
	}
	return out
}

// Input returns the named input.
func (b Body) Input(name string) (Input, bool) {
	for _, in := range b.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return Input{}, false
}

// UnmarshalYAML decodes either a role step ({foreach: {...}}) or a
// positional step ({run: id, input_1: ..., operation: add, output: ...}).
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: step must be a mapping", node.Line)
	}
	if len(node.Content) == 2 {
		switch Role(node.Content[0].Value) {
		case RoleFirst, RoleForeach, RoleLast:
			s.Role = Role(node.Content[0].Value)
			return s.Body.decode(node.Content[1])
		}
	}
	return s.decodePositional(node)
}

func (s *Step) decodePositional(node *yaml.Node) error {
	s.Role = RolePositional
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		switch {
		case key.Value == "run":
			s.Run = val.Value
		case key.Value == "operation" || key.Value == "function":
			s.Body.Function = val.Value
		case key.Value == "output":
			if err := s.Body.Output.decode(val); err != nil {
				return err
			}
		case strings.HasPrefix(key.Value, "input"):
			var cfg pipe.Config
			if err := val.Decode(&cfg); err != nil {
				return err
			}
			s.Body.Inputs = append(s.Body.Inputs, Input{Name: key.Value, Pipe: cfg})
		default:
			return fmt.Errorf("line %d: unknown step key %q", key.Line, key.Value)
		}
	}
	if s.Run == "" {
		return fmt.Errorf("line %d: step has neither a role (first/foreach/last) nor run", node.Line)
	}
	return nil
}

func (b *Body) decode(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: step body must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "inputs":
			inputs, err := decodeInputs(val)
			if err != nil {
				return err
			}
			b.Inputs = inputs
		case "function", "operation":
			b.Function = val.Value
		case "output":
			if err := b.Output.decode(val); err != nil {
				return err
			}
		default:
			return fmt.Errorf("line %d: unknown step key %q", key.Line, key.Value)
		}
	}
	return nil
}

// decodeInputs accepts a list of single-key mappings or a plain mapping.
func decodeInputs(node *yaml.Node) ([]Input, error) {
	var pairs []*yaml.Node
	switch node.Kind {
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("line %d: input must be a mapping", item.Line)
			}
			pairs = append(pairs, item.Content...)
		}
	case yaml.MappingNode:
		pairs = node.Content
	default:
		return nil, fmt.Errorf("line %d: inputs must be a list or mapping", node.Line)
	}

	inputs := make([]Input, 0, len(pairs)/2)
	seen := make(map[string]bool)
	for i := 0; i+1 < len(pairs); i += 2 {
		name := pairs[i].Value
		if seen[name] {
			return nil, fmt.Errorf("line %d: duplicate input %q", pairs[i].Line, name)
		}
		seen[name] = true
		var cfg pipe.Config
		if err := pairs[i+1].Decode(&cfg); err != nil {
			return nil, err
		}
		inputs = append(inputs, Input{Name: name, Pipe: cfg})
	}
	return inputs, nil
}

func (o *Output) decode(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: output must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "path":
			o.Path = val.Value
			o.hasPath = true
		case "permissions", "access":
			var perms []string
			if err := val.Decode(&perms); err != nil {
				return err
			}
			o.Permissions = perms
			o.hasPermissions = true
		default:
			return fmt.Errorf("line %d: unknown output key %q", key.Line, key.Value)
		}
	}
	return nil
}
