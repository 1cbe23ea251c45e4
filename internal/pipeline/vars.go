package pipeline

import (
	"github.com/roach88/fedreduce/internal/tmpl"
)

// RingVars builds the execution context for position i of ring.
// ring must be non-empty and 0 <= i < len(ring).
func RingVars(project, author string, ring []string, i int) tmpl.Vars {
	n := len(ring)
	prev := (i - 1 + n) % n
	next := (i + 1) % n
	return tmpl.Vars{
		tmpl.VarProject:       project,
		tmpl.VarAuthor:        author,
		tmpl.VarDatasite:      ring[i],
		tmpl.VarPrevDatasite:  ring[prev],
		tmpl.VarNextDatasite:  ring[next],
		tmpl.VarFirstDatasite: ring[0],
		tmpl.VarLastDatasite:  ring[n-1],
		tmpl.VarStep:          i,
		tmpl.VarPrevStep:      prev,
		tmpl.VarNextStep:      next,
		tmpl.VarNumDatasites:  n,
	}
}

// Positions returns every index of ring held by identity, ascending.
func Positions(ring []string, identity string) []int {
	var out []int
	for i, id := range ring {
		if id == identity {
			out = append(out, i)
		}
	}
	return out
}
