// Package tmpl renders path templates for pipeline steps.
//
// Templates use single-brace placeholders, e.g.
//
//	"{datasite}/fedreduce/{project}/step_{step}/output"
//
// A doubled brace ("{{" or "}}") renders a literal brace. Every placeholder
// must be present in the Vars map: a missing name is a hard failure, since
// rendering it as anything else would write to the wrong path.
package tmpl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Variable names available to step templates.
const (
	VarProject       = "project"
	VarAuthor        = "author"
	VarDatasite      = "datasite"
	VarPrevDatasite  = "prev_datasite"
	VarNextDatasite  = "next_datasite"
	VarFirstDatasite = "first_datasite"
	VarLastDatasite  = "last_datasite"
	VarStep          = "step"
	VarPrevStep      = "prev_step"
	VarNextStep      = "next_step"
	VarNumDatasites  = "num_datasites"
)

// ErrUnresolvedPlaceholder is matched by every UnresolvedPlaceholderError.
var ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")

// ErrMalformed reports an unbalanced brace in a template.
var ErrMalformed = errors.New("malformed template")

// UnresolvedPlaceholderError names the placeholder that had no value.
type UnresolvedPlaceholderError struct {
	Name     string
	Template string
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("unresolved placeholder {%s} in %q", e.Name, e.Template)
}

func (e *UnresolvedPlaceholderError) Is(target error) bool {
	return target == ErrUnresolvedPlaceholder
}

// Vars maps placeholder names to string or integer values.
type Vars map[string]any

// Clone returns a shallow copy that can be extended without touching v.
func (v Vars) Clone() Vars {
	out := make(Vars, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Render substitutes every placeholder in template with its value from vars.
func Render(template string, vars Vars) (string, error) {
	var b strings.Builder
	b.Grow(len(template))

	err := scan(template, func(lit string, name string) error {
		b.WriteString(lit)
		if name == "" {
			return nil
		}
		val, ok := vars[name]
		if !ok || val == nil {
			return &UnresolvedPlaceholderError{Name: name, Template: template}
		}
		s, err := format(val)
		if err != nil {
			return fmt.Errorf("placeholder {%s}: %w", name, err)
		}
		b.WriteString(s)
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// Placeholders returns the placeholder names referenced by template, in
// order of first appearance.
func Placeholders(template string) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	err := scan(template, func(_ string, name string) error {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// scan walks template and calls emit with each literal run followed by the
// placeholder name that ends it (empty for the trailing literal).
func scan(template string, emit func(lit, name string) error) error {
	var lit strings.Builder
	for i := 0; i < len(template); i++ {
		c := template[i]
		switch c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return fmt.Errorf("%w: unclosed '{' at offset %d in %q", ErrMalformed, i, template)
			}
			name := strings.TrimSpace(template[i+1 : i+1+end])
			if name == "" || strings.ContainsAny(name, "{") {
				return fmt.Errorf("%w: empty or nested placeholder at offset %d in %q", ErrMalformed, i, template)
			}
			if err := emit(lit.String(), name); err != nil {
				return err
			}
			lit.Reset()
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return fmt.Errorf("%w: stray '}' at offset %d in %q", ErrMalformed, i, template)
		default:
			lit.WriteByte(c)
		}
	}
	return emit(lit.String(), "")
}

func format(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case fmt.Stringer:
		return val.String(), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
