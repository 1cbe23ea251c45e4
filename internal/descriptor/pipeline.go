package descriptor

import (
	"fmt"

	"github.com/roach88/fedreduce/internal/datasite"
	"github.com/roach88/fedreduce/internal/pipe"
	"github.com/roach88/fedreduce/internal/tmpl"
)

// Pipeline is the validated step structure of a project. Exactly one of
// the two shapes is populated: a role triple, or a positional list.
type Pipeline struct {
	First   *Body
	Foreach *Body
	Last    *Body

	Positional []Step
}

// IsPositional reports whether the document uses legacy run-bound steps.
func (p Pipeline) IsPositional() bool { return len(p.Positional) > 0 }

// Pipeline groups and validates p.Steps.
//
// Role pipelines need exactly one foreach and at most one first and one
// last. Role and positional steps cannot be mixed.
func (p *Project) Pipeline() (Pipeline, error) {
	var pl Pipeline
	roles := 0
	for i, s := range p.Steps {
		field := fmt.Sprintf("steps[%d]", i)
		body := s.Body
		switch s.Role {
		case RoleFirst:
			if pl.First != nil {
				return Pipeline{}, configErrorf(field, "duplicate first step")
			}
			pl.First = &body
			roles++
		case RoleForeach:
			if pl.Foreach != nil {
				return Pipeline{}, configErrorf(field, "duplicate foreach step")
			}
			pl.Foreach = &body
			roles++
		case RoleLast:
			if pl.Last != nil {
				return Pipeline{}, configErrorf(field, "duplicate last step")
			}
			pl.Last = &body
			roles++
		case RolePositional:
			pl.Positional = append(pl.Positional, s)
		default:
			return Pipeline{}, configErrorf(field, "unknown step role %q", s.Role)
		}
	}

	switch {
	case roles > 0 && len(pl.Positional) > 0:
		return Pipeline{}, configErrorf("steps", "cannot mix first/foreach/last steps with run-bound steps")
	case roles == 0 && len(pl.Positional) == 0:
		return Pipeline{}, configErrorf("steps", "pipeline has no steps")
	case roles > 0 && pl.Foreach == nil:
		return Pipeline{}, configErrorf("steps", "pipeline requires exactly one foreach step")
	}
	return pl, nil
}

// Validate checks the document beyond what the schema expresses: identities,
// the pipeline shape, and that every template parses.
func (p *Project) Validate() error {
	if p.Name == "" {
		return configErrorf("project", "project name is required")
	}
	if !datasite.IsIdentity(p.Author) {
		return configErrorf("author", "%q is not a datasite identity", p.Author)
	}
	for i, id := range p.Workflow.Datasites {
		if !datasite.IsIdentity(id) {
			return configErrorf(fmt.Sprintf("workflow.datasites[%d]", i), "%q is not a datasite identity", id)
		}
	}

	pl, err := p.Pipeline()
	if err != nil {
		return err
	}
	if pl.IsPositional() {
		for i, s := range pl.Positional {
			if err := validateBody(fmt.Sprintf("steps[%d]", i), s.Body, true); err != nil {
				return err
			}
		}
	} else {
		if err := validateBody("foreach", *pl.Foreach, true); err != nil {
			return err
		}
		if pl.First != nil {
			if err := validateBody("first", *pl.First, false); err != nil {
				return err
			}
		}
		if pl.Last != nil {
			if err := validateBody("last", *pl.Last, false); err != nil {
				return err
			}
		}
	}

	if p.Complete != nil {
		if err := validatePipe("complete", *p.Complete); err != nil {
			return err
		}
	}
	return nil
}

func validateBody(field string, b Body, complete bool) error {
	if complete {
		if b.Function == "" {
			return configErrorf(field, "function is required")
		}
		if b.Output.Path == "" {
			return configErrorf(field, "output.path is required")
		}
		if len(b.Inputs) == 0 {
			return configErrorf(field, "at least one input is required")
		}
	}
	for _, in := range b.Inputs {
		if err := validatePipe(field+".inputs."+in.Name, in.Pipe); err != nil {
			return err
		}
	}
	if b.Output.Path != "" {
		if _, err := tmpl.Placeholders(b.Output.Path); err != nil {
			return configErrorf(field+".output.path", "%v", err)
		}
	}
	for _, perm := range b.Output.Permissions {
		if _, err := tmpl.Placeholders(perm); err != nil {
			return configErrorf(field+".output.permissions", "%v", err)
		}
	}
	return nil
}

func validatePipe(field string, c pipe.Config) error {
	switch c.Kind {
	case pipe.KindStatic:
		return nil
	case pipe.KindFile:
		if _, err := tmpl.Placeholders(c.Path); err != nil {
			return configErrorf(field, "%v", err)
		}
		return nil
	default:
		return configErrorf(field, "missing pipe declaration")
	}
}
