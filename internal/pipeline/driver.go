package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/fedreduce/internal/datasite"
	"github.com/roach88/fedreduce/internal/descriptor"
	"github.com/roach88/fedreduce/internal/step"
	"github.com/roach88/fedreduce/internal/tmpl"
)

// Driver runs a project's pipeline for one identity.
type Driver struct {
	exec   *step.Executor
	policy step.Policy
	clock  step.Clock
}

// Option configures a Driver.
type Option func(*Driver)

// WithPolicy overrides the per-step retry policy.
func WithPolicy(p step.Policy) Option {
	return func(d *Driver) { d.policy = p }
}

// WithClock injects the clock the retry loop sleeps on.
func WithClock(c step.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// New creates a driver over exec with the default 120s/1s policy.
func New(exec *step.Executor, opts ...Option) *Driver {
	d := &Driver{
		exec:   exec,
		policy: step.DefaultPolicy(),
		clock:  step.RealClock{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// PositionResult is the outcome of one ring position.
type PositionResult struct {
	Position int
	Role     descriptor.Role
	Outcome  step.Outcome
}

// Report summarises one Run.
type Report struct {
	Project   string
	Identity  string
	Positions []PositionResult
}

// Completed reports whether every position held by the identity finished.
// A report with no positions is trivially complete.
func (r Report) Completed() bool {
	for _, p := range r.Positions {
		if p.Outcome.Status != step.StatusCompleted {
			return false
		}
	}
	return true
}

// Run executes every position of p held by identity.
//
// The returned error is non-nil only when the pipeline itself is invalid;
// step failures and timeouts are in the Report.
func (d *Driver) Run(ctx context.Context, p *descriptor.Project, identity string, log *slog.Logger) (Report, error) {
	if log == nil {
		log = slog.Default()
	}
	identity = datasite.Normalize(identity)
	report := Report{Project: p.Name, Identity: identity}

	pl, err := p.Pipeline()
	if err != nil {
		return report, err
	}
	if pl.IsPositional() {
		return d.runPositional(ctx, p, pl.Positional, identity, log, report)
	}

	ring := p.Workflow.Datasites
	positions := Positions(ring, identity)
	if len(positions) == 0 {
		log.Debug("identity not in ring", "project", p.Name, "datasite", identity)
		return report, nil
	}

	for _, i := range positions {
		if ctx.Err() != nil {
			break
		}
		body, role := Template(pl, i, len(ring))
		vars := RingVars(p.Name, p.Author, ring, i)
		out := d.runStep(ctx, identity, body, vars, log)
		report.Positions = append(report.Positions, PositionResult{Position: i, Role: role, Outcome: out})
	}
	return report, nil
}

// runPositional executes legacy steps bound to identity by their run key.
// The ring is the sequence of runners; prev/next refer to adjacent steps.
func (d *Driver) runPositional(
	ctx context.Context,
	p *descriptor.Project,
	steps []descriptor.Step,
	identity string,
	log *slog.Logger,
	report Report,
) (Report, error) {
	ring := make([]string, len(steps))
	for k, s := range steps {
		ring[k] = datasite.Normalize(s.Run)
	}
	for k := range steps {
		if ring[k] != identity {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		vars := RingVars(p.Name, p.Author, ring, k)
		out := d.runStep(ctx, identity, steps[k].Body, vars, log)
		report.Positions = append(report.Positions, PositionResult{
			Position: k,
			Role:     descriptor.RolePositional,
			Outcome:  out,
		})
	}
	return report, nil
}

func (d *Driver) runStep(ctx context.Context, identity string, body descriptor.Body, vars tmpl.Vars, log *slog.Logger) step.Outcome {
	req := step.Request{Identity: identity, Body: body, Vars: vars, Log: log}
	attempt := func(ctx context.Context) (step.Result, error) {
		res, err := d.exec.Execute(ctx, req)
		if err != nil && !step.IsFatal(err) {
			log.Warn("step attempt failed",
				"datasite", identity,
				"step", vars[tmpl.VarStep],
				"error", err,
			)
		}
		return res, err
	}

	out := step.Retry(ctx, d.policy, d.clock, attempt)
	switch out.Status {
	case step.StatusCompleted:
	case step.StatusTimedOut:
		log.Warn("step timed out",
			"datasite", identity,
			"step", vars[tmpl.VarStep],
			"attempts", out.Attempts,
			"waiting", out.Result.Waiting,
			"error", out.Err,
		)
	default:
		log.Error("step failed",
			"datasite", identity,
			"step", vars[tmpl.VarStep],
			"status", out.Status.String(),
			"error", fmt.Sprint(out.Err),
		)
	}
	return out
}
