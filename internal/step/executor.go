// Package step executes a single pipeline step: it resolves the step's
// input pipes, waits for them to become ready, applies the step's
// operation, writes the output pipe and grants downstream datasites access
// to it.
//
// Readiness is the only synchronisation between datasites. A step whose
// upstream output has not arrived through the sync layer yet reports
// "not done" and is retried by Retry until its timeout elapses.
package step

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/roach88/fedreduce/internal/datasite"
	"github.com/roach88/fedreduce/internal/descriptor"
	"github.com/roach88/fedreduce/internal/pipe"
	"github.com/roach88/fedreduce/internal/tmpl"
)

// Executor runs steps against one sync folder.
type Executor struct {
	Root        string
	Permissions datasite.PermissionSetter
	Ops         Registry
}

// NewExecutor returns an executor writing permission files with the
// built-in operations.
func NewExecutor(root string) *Executor {
	return &Executor{
		Root:        root,
		Permissions: datasite.FilePermissions{},
		Ops:         DefaultRegistry(),
	}
}

// Request is one step evaluation.
type Request struct {
	// Identity is the executing datasite.
	Identity string
	Body     descriptor.Body
	Vars     tmpl.Vars
	// Log receives the step's structured records. Defaults to slog.Default().
	Log *slog.Logger
}

// Result describes one attempt.
type Result struct {
	// Done is false when an input was not ready; the attempt had no effect.
	Done       bool
	Waiting    []string
	Value      int64
	OutputPath string
}

// Execute performs one attempt of req.
//
// It returns Done=false with a nil error when any input pipe is not ready.
// Any other failure is returned as an error; IsFatal tells whether a retry
// can help.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	log := req.Log
	if log == nil {
		log = slog.Default()
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	inputs := make([]pipe.Pipe, len(req.Body.Inputs))
	var waiting []string
	for i, in := range req.Body.Inputs {
		p, err := in.Pipe.Resolve(e.Root, req.Vars)
		if err != nil {
			return Result{}, fmt.Errorf("input %q: %w", in.Name, err)
		}
		inputs[i] = p
		if !p.Ready() {
			waiting = append(waiting, in.Name)
		}
	}
	if len(waiting) > 0 {
		log.Info("inputs not ready",
			"datasite", req.Identity,
			"step", req.Vars[tmpl.VarStep],
			"waiting", waiting,
		)
		return Result{Waiting: waiting}, nil
	}

	op, err := e.Ops.Lookup(req.Body.Function)
	if err != nil {
		return Result{}, err
	}

	values := make([]int64, len(inputs))
	for i, p := range inputs {
		v, err := p.Read()
		if err != nil {
			return Result{}, fmt.Errorf("input %q: %w", req.Body.Inputs[i].Name, err)
		}
		values[i] = v
	}

	value, err := op(values)
	if err != nil {
		return Result{}, fmt.Errorf("operation %s: %w", req.Body.Function, err)
	}

	rel, err := tmpl.Render(req.Body.Output.Path, req.Vars)
	if err != nil {
		return Result{}, fmt.Errorf("output path: %w", err)
	}
	outPath := filepath.Join(e.Root, filepath.FromSlash(rel))
	if err := pipe.NewFilePipe(outPath).Write(value); err != nil {
		return Result{}, err
	}

	// Permissions follow the write: a reader holding older, broader rights
	// may briefly see the new value before they are narrowed.
	readers := []string{req.Identity}
	for _, t := range req.Body.Output.Permissions {
		id, err := tmpl.Render(t, req.Vars)
		if err != nil {
			return Result{}, fmt.Errorf("output permissions: %w", err)
		}
		readers = append(readers, id)
	}
	if err := e.Permissions.Ensure(filepath.Dir(outPath), datasite.Shared(readers...)); err != nil {
		return Result{}, fmt.Errorf("output permissions: %w", err)
	}

	log.Info("step executed",
		"datasite", req.Identity,
		"step", req.Vars[tmpl.VarStep],
		"operation", req.Body.Function,
		"result", value,
		"output", rel,
	)
	return Result{Done: true, Value: value, OutputPath: outPath}, nil
}
