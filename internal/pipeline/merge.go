package pipeline

import "github.com/roach88/fedreduce/internal/descriptor"

// MergeFirst returns foreach with the inputs named in first replaced.
//
// The result keeps foreach's input order; inputs only first declares are
// appended in first's order. Function and output come from foreach. This
// order is the order values reach the operation.
func MergeFirst(foreach, first descriptor.Body) descriptor.Body {
	out := foreach.Clone()
	for _, in := range first.Inputs {
		replaced := false
		for j := range out.Inputs {
			if out.Inputs[j].Name == in.Name {
				out.Inputs[j].Pipe = in.Pipe
				replaced = true
				break
			}
		}
		if !replaced {
			out.Inputs = append(out.Inputs, in)
		}
	}
	return out
}

// MergeLast returns foreach with last's output keys laid over it. Keys the
// last step does not set keep foreach's value.
func MergeLast(foreach, last descriptor.Body) descriptor.Body {
	out := foreach.Clone()
	path, perms := out.Output.Path, out.Output.Permissions
	if last.Output.HasPath() {
		path = last.Output.Path
	}
	if last.Output.HasPermissions() {
		perms = append([]string(nil), last.Output.Permissions...)
	}
	out.Output = descriptor.NewOutput(path, perms...)
	return out
}

// Template selects the body for position i of an n-position ring and
// reports which role shaped it. With a single participant both overrides
// apply.
func Template(p descriptor.Pipeline, i, n int) (descriptor.Body, descriptor.Role) {
	body := p.Foreach.Clone()
	role := descriptor.RoleForeach
	if i == 0 && p.First != nil {
		body = MergeFirst(body, *p.First)
		role = descriptor.RoleFirst
	}
	if i == n-1 && p.Last != nil {
		body = MergeLast(body, *p.Last)
		role = descriptor.RoleLast
	}
	return body, role
}
