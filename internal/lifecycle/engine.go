package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/fedreduce/internal/datasite"
	"github.com/roach88/fedreduce/internal/descriptor"
	"github.com/roach88/fedreduce/internal/ledger"
	"github.com/roach88/fedreduce/internal/pipeline"
	"github.com/roach88/fedreduce/internal/step"
)

// Engine runs lifecycle passes for one local identity.
//
// Thread-safety: an Engine is not safe for concurrent passes. At most one
// pass per datasite may be in flight; the tree has no locks.
type Engine struct {
	client *datasite.Client
	perms  datasite.PermissionSetter
	driver *pipeline.Driver
	ledger *ledger.Ledger
	ids    ledger.IDGenerator
	now    func() time.Time
	log    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLedger records passes, steps and transitions in l.
func WithLedger(l *ledger.Ledger) Option {
	return func(e *Engine) { e.ledger = l }
}

// WithDriver replaces the pipeline driver, e.g. to shorten step timeouts.
func WithDriver(d *pipeline.Driver) Option {
	return func(e *Engine) { e.driver = d }
}

// WithPermissions replaces the permission setter used for the public
// folder. Step outputs use the driver's executor.
func WithPermissions(p datasite.PermissionSetter) Option {
	return func(e *Engine) { e.perms = p }
}

// WithIDGenerator sets the pass ID source.
func WithIDGenerator(g ledger.IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithNow sets the wall clock used for pass timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the console logger. Per-project records go to the
// project's own log file regardless.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an engine for client.
func New(client *datasite.Client, opts ...Option) *Engine {
	e := &Engine{
		client: client,
		perms:  datasite.FilePermissions{},
		ids:    ledger.UUIDv7Generator{},
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.driver == nil {
		e.driver = pipeline.New(step.NewExecutor(client.SyncFolder))
	}
	return e
}

// PassReport summarises one pass.
type PassReport struct {
	ID          string
	StartedAt   time.Time
	LastRun     time.Time // zero on the first pass
	Transitions []Applied
	Runs        []pipeline.Report
	Errors      int
}

// Pass performs one scheduling tick:
//
//  1. ensure the local folder layout;
//  2. observe, plan and apply pending transitions;
//  3. run the pipeline of every private running copy;
//  4. observe, plan and apply again to pick up completion.
//
// Failures of one project are logged and counted, never returned. Pass
// returns an error only when the tree itself cannot be read or the ledger
// cannot be written.
func (e *Engine) Pass(ctx context.Context) (PassReport, error) {
	rep := PassReport{ID: e.ids.Generate(), StartedAt: e.now()}
	me := e.client.Email

	if e.ledger != nil {
		if _, err := e.ledger.BeginPass(ctx, rep.ID, me, rep.StartedAt); err != nil {
			return rep, err
		}
		if _, err := e.ledger.Setting(ctx, ledger.SettingLastRun, &rep.LastRun); err != nil {
			e.log.Warn("read last run", "error", err)
		}
		if err := e.ledger.SetSetting(ctx, ledger.SettingLastRun, rep.StartedAt); err != nil {
			return rep, err
		}
	}
	e.log.Info("pass started", "pass", rep.ID, "datasite", me, "last_run", rep.LastRun)

	if err := EnsureLayout(e.client, e.perms); err != nil {
		return rep, err
	}

	if err := e.advance(ctx, &rep); err != nil {
		return rep, err
	}

	snap, err := Observe(e.client)
	if err != nil {
		return rep, err
	}
	for _, c := range snap.Copies {
		if c.State != StateRunning {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		e.runProject(ctx, &rep, c)
	}

	if err := e.advance(ctx, &rep); err != nil {
		return rep, err
	}

	if e.ledger != nil {
		if err := e.ledger.FinishPass(ctx, rep.ID, e.now(), rep.Errors); err != nil {
			return rep, err
		}
	}
	e.log.Info("pass finished",
		"pass", rep.ID,
		"transitions", len(rep.Transitions),
		"runs", len(rep.Runs),
		"errors", rep.Errors,
	)
	return rep, nil
}

func (e *Engine) advance(ctx context.Context, rep *PassReport) error {
	snap, err := Observe(e.client)
	if err != nil {
		return err
	}
	for _, p := range snap.Projects {
		if p.Error != "" && p.Author == e.client.Email {
			e.log.Warn("project unreadable", "project", p.Name, "error", p.Error)
		}
	}
	for _, a := range Apply(e.client.SyncFolder, Plan(snap)) {
		if err := e.recordTransition(ctx, rep, a); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) recordTransition(ctx context.Context, rep *PassReport, a Applied) error {
	rep.Transitions = append(rep.Transitions, a)
	t := a.Transition
	rec := ledger.Transition{
		PassID: rep.ID, Project: t.Project, Author: t.Author,
		Kind: string(t.Kind), From: string(t.From), To: string(t.To),
	}
	if a.Err != nil {
		rep.Errors++
		rec.Error = a.Err.Error()
		e.log.Error("transition failed", "transition", t.String(), "error", a.Err)
	} else {
		e.log.Info("transition applied", "transition", t.String())
	}
	if e.ledger == nil {
		return nil
	}
	_, err := e.ledger.RecordTransition(ctx, rec)
	return err
}

// runProject drives the pipeline of one private running copy, logging to
// the project's own log file.
func (e *Engine) runProject(ctx context.Context, rep *PassReport, c Copy) {
	if c.Error != "" {
		rep.Errors++
		e.log.Error("project descriptor invalid", "project", c.Project, "error", c.Error)
		return
	}
	dir := abs(e.client.SyncFolder, PrivateProject(e.client.Email, StateRunning, c.Project))
	proj, err := loadCopy(dir)
	if err != nil {
		rep.Errors++
		e.log.Error("load project", "project", c.Project, "error", err)
		return
	}

	plog, closeLog, err := e.projectLogger(proj)
	if err != nil {
		rep.Errors++
		e.log.Error("open project log", "project", c.Project, "error", err)
		return
	}
	defer closeLog()

	report, err := e.driver.Run(ctx, proj, e.client.Email, plog)
	if err != nil {
		rep.Errors++
		plog.Error("pipeline invalid", "error", err)
		e.log.Error("pipeline invalid", "project", c.Project, "error", err)
		return
	}
	rep.Runs = append(rep.Runs, report)
	for _, pos := range report.Positions {
		if pos.Outcome.Status != step.StatusCompleted {
			rep.Errors++
		}
		if err := e.recordStep(ctx, rep.ID, proj.Name, pos); err != nil {
			e.log.Warn("record step", "project", proj.Name, "error", err)
		}
	}
	e.log.Info("pipeline run",
		"project", proj.Name,
		"positions", len(report.Positions),
		"completed", report.Completed(),
	)
}

func (e *Engine) recordStep(ctx context.Context, passID, project string, pos pipeline.PositionResult) error {
	if e.ledger == nil {
		return nil
	}
	out := pos.Outcome
	run := ledger.StepRun{
		PassID:   passID,
		Project:  project,
		Position: pos.Position,
		Role:     string(pos.Role),
		Status:   out.Status.String(),
		Attempts: out.Attempts,
		Output:   out.Result.OutputPath,
		Elapsed:  out.Elapsed,
	}
	if out.Status == step.StatusCompleted {
		v := out.Result.Value
		run.Value = &v
		if rel, err := e.client.Rel(out.Result.OutputPath); err == nil {
			run.Output = rel
		}
	}
	if out.Err != nil {
		run.Error = out.Err.Error()
	}
	_, err := e.ledger.RecordStep(ctx, run)
	return err
}

// projectLogger opens the JSON log beside the local marker for proj.
func (e *Engine) projectLogger(proj *descriptor.Project) (*slog.Logger, func(), error) {
	p := abs(e.client.SyncFolder, LogPath(e.client.Email, StateRunning, proj.Author, proj.Name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	l := slog.New(slog.NewJSONHandler(f, nil)).With("project", proj.Name)
	return l, func() { f.Close() }, nil
}

// Start performs the explicit author start of project. It is idempotent:
// starting a running project succeeds without effect. A project that has
// only a complete folder fails with ErrNotFound.
func (e *Engine) Start(ctx context.Context, author, project string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	snap, err := Observe(e.client)
	if err != nil {
		return false, err
	}
	t, due, err := PlanStart(snap, datasite.Normalize(author), project)
	if err != nil || !due {
		return false, err
	}
	applied := Apply(e.client.SyncFolder, []Transition{t})
	if err := applied[0].Err; err != nil {
		return false, err
	}
	e.log.Info("project started", "project", project, "datasites", joinersOf(t))
	return true, nil
}

func joinersOf(t Transition) []string {
	for _, op := range t.Ops {
		if op.Kind == OpMergeDatasites {
			return op.IDs
		}
	}
	return nil
}
