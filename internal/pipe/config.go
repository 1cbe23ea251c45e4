package pipe

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fedreduce/internal/tmpl"
)

// Kind distinguishes the pipe variants a descriptor can declare.
type Kind int

const (
	KindStatic Kind = iota + 1
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "StaticPipe"
	case KindFile:
		return "FilePipe"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Config is a parsed pipe declaration: either a literal value or a file path
// template relative to the sync root.
//
// Accepted YAML forms:
//
//	StaticPipe(5)
//	FilePipe("{prev_datasite}/fedreduce/{project}/out")
//	{type: StaticPipe, value: 5}
//	{type: FilePipe, path: "..."}
//	5
type Config struct {
	Kind  Kind
	Value int64
	Path  string
}

// Static returns a literal pipe configuration.
func Static(v int64) Config { return Config{Kind: KindStatic, Value: v} }

// File returns a file pipe configuration over a path template.
func File(pathTemplate string) Config { return Config{Kind: KindFile, Path: pathTemplate} }

var callForm = regexp.MustCompile(`^\s*(StaticPipe|FilePipe)\s*\(\s*(.*?)\s*\)\s*$`)

// Parse reads the call form, e.g. `FilePipe("a/b")` or `StaticPipe(3)`.
// A bare integer is a static pipe.
func Parse(s string) (Config, error) {
	if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return Static(v), nil
	}
	m := callForm.FindStringSubmatch(s)
	if m == nil {
		return Config{}, fmt.Errorf("pipe: unrecognised pipe %q", s)
	}
	arg := m[2]
	switch m[1] {
	case "StaticPipe":
		if arg == "" {
			return Static(0), nil
		}
		v, err := strconv.ParseInt(unquote(arg), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("pipe: StaticPipe value %q is not an integer", arg)
		}
		return Static(v), nil
	default:
		path := unquote(arg)
		if path == "" {
			return Config{}, fmt.Errorf("pipe: FilePipe requires a path in %q", s)
		}
		return File(path), nil
	}
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// String renders the call form.
func (c Config) String() string {
	switch c.Kind {
	case KindStatic:
		return fmt.Sprintf("StaticPipe(%d)", c.Value)
	case KindFile:
		return fmt.Sprintf("FilePipe(%q)", c.Path)
	default:
		return "<invalid pipe>"
	}
}

type mappingForm struct {
	Type  string `yaml:"type"`
	Value *int64 `yaml:"value"`
	Path  string `yaml:"path"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		parsed, err := Parse(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*c = parsed
		return nil

	case yaml.MappingNode:
		var m mappingForm
		if err := node.Decode(&m); err != nil {
			return fmt.Errorf("line %d: pipe: %w", node.Line, err)
		}
		switch m.Type {
		case "StaticPipe":
			var v int64
			if m.Value != nil {
				v = *m.Value
			}
			*c = Static(v)
		case "FilePipe":
			if m.Path == "" {
				return fmt.Errorf("line %d: pipe: FilePipe requires path", node.Line)
			}
			*c = File(m.Path)
		default:
			return fmt.Errorf("line %d: pipe: unknown type %q", node.Line, m.Type)
		}
		return nil

	default:
		return fmt.Errorf("line %d: pipe: expected scalar or mapping", node.Line)
	}
}

// MarshalYAML implements yaml.Marshaler using the call form.
func (c Config) MarshalYAML() (any, error) {
	if c.Kind != KindStatic && c.Kind != KindFile {
		return nil, fmt.Errorf("pipe: cannot marshal invalid config")
	}
	return c.String(), nil
}

// Resolve instantiates the pipe. File paths are rendered against vars and
// joined to root.
func (c Config) Resolve(root string, vars tmpl.Vars) (Pipe, error) {
	switch c.Kind {
	case KindStatic:
		return NewStaticPipe(c.Value), nil
	case KindFile:
		rel, err := tmpl.Render(c.Path, vars)
		if err != nil {
			return nil, err
		}
		return NewFilePipe(filepath.Join(root, filepath.FromSlash(rel))), nil
	default:
		return nil, fmt.Errorf("pipe: invalid config kind %d", int(c.Kind))
	}
}
