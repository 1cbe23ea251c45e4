package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/fedreduce/internal/datasite"
	"github.com/roach88/fedreduce/internal/ledger"
	"github.com/roach88/fedreduce/internal/lifecycle"
	"github.com/roach88/fedreduce/internal/pipeline"
	"github.com/roach88/fedreduce/internal/step"
	"github.com/roach88/fedreduce/internal/testutil"
)

// site is one scenario datasite.
type site struct {
	client *datasite.Client
	engine *lifecycle.Engine
	ledger *ledger.Ledger
}

// Harness executes one scenario in a private temporary tree.
type Harness struct {
	root   string
	sites  map[string]*site
	uids   ledger.IDGenerator
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario gets a fresh sync root and fresh ledgers, removed before
// Run returns. Assertions are evaluated while the tree still exists.
func Run(scenario *Scenario) (*Result, error) {
	base, err := os.MkdirTemp("", "fedreduce-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario tree: %w", err)
	}
	defer os.RemoveAll(base)

	h, err := newHarness(base, scenario)
	if err != nil {
		return nil, err
	}
	defer h.close()

	ctx := context.Background()
	result := NewResult()
	for i, fs := range scenario.Flow {
		ev := h.execute(ctx, fs)
		ev.Seq = i + 1
		result.Trace = append(result.Trace, ev)
		for _, msg := range checkExpect(i, fs, ev) {
			result.AddError(msg)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions, h) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(base string, scenario *Scenario) (*Harness, error) {
	root := filepath.Join(base, "sync")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sync root: %w", err)
	}

	timeout := scenario.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	policy := step.Policy{Timeout: timeout, Interval: step.DefaultPolicy().Interval}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &Harness{
		root:   root,
		sites:  make(map[string]*site),
		uids:   testutil.NewFixedIDGenerator(scenario.Name + "-uid"),
		logger: logger,
	}
	for _, id := range scenario.Datasites {
		client, err := datasite.NewClient(id, root)
		if err != nil {
			h.close()
			return nil, err
		}
		l, err := ledger.Open(filepath.Join(base, client.Email+".db"))
		if err != nil {
			h.close()
			return nil, fmt.Errorf("failed to open ledger for %s: %w", id, err)
		}
		clock := testutil.NewFakeClock()
		driver := pipeline.New(step.NewExecutor(root),
			pipeline.WithClock(clock),
			pipeline.WithPolicy(policy),
		)
		eng := lifecycle.New(client,
			lifecycle.WithDriver(driver),
			lifecycle.WithLedger(l),
			lifecycle.WithLogger(logger),
			lifecycle.WithNow(clock.Now),
			lifecycle.WithIDGenerator(&passIDs{prefix: client.Email}),
		)
		h.sites[client.Email] = &site{client: client, engine: eng, ledger: l}
	}
	return h, nil
}

// passIDs numbers the passes of one datasite.
type passIDs struct {
	prefix string
	n      int
}

func (p *passIDs) Generate() string {
	p.n++
	return fmt.Sprintf("%s-pass-%d", p.prefix, p.n)
}

func (h *Harness) close() {
	for _, s := range h.sites {
		s.ledger.Close()
	}
}

// execute performs one flow step and records its event.
func (h *Harness) execute(ctx context.Context, fs FlowStep) TraceEvent {
	s := h.sites[datasite.Normalize(fs.As)]
	ev := TraceEvent{Action: fs.Action, As: s.client.Email}
	if fs.Action != ActionInvite {
		ev.Source = fs.Source
	}

	var err error
	switch fs.Action {
	case ActionInvite:
		var path string
		path, err = lifecycle.Invite(s.client, fs.Source, h.uids)
		if err == nil {
			ev.Source, _ = s.client.Rel(path)
			ev.Changed = true
		}
	case ActionJoin, ActionLeave, ActionStart:
		err = h.projectAction(ctx, s, fs, &ev)
	case ActionPass:
		var rep lifecycle.PassReport
		rep, err = s.engine.Pass(ctx)
		ev.Errors = rep.Errors
		for _, a := range rep.Transitions {
			if a.Err == nil {
				ev.Transitions = append(ev.Transitions, a.Transition.String())
			}
		}
		for _, r := range rep.Runs {
			for _, p := range r.Positions {
				ev.Runs = append(ev.Runs, formatRun(r.Project, p))
			}
		}
	}
	if err != nil {
		ev.Failed = true
		ev.err = err
		h.logger.Info("flow step failed", "action", fs.Action, "as", fs.As, "error", err)
	}
	return ev
}

func (h *Harness) projectAction(ctx context.Context, s *site, fs FlowStep, ev *TraceEvent) error {
	author, project, err := lifecycle.ParseSource(fs.Source)
	if err != nil {
		return err
	}
	switch fs.Action {
	case ActionJoin:
		marker := filepath.Join(h.root, filepath.FromSlash(lifecycle.MarkerPath(s.client.Email, lifecycle.StateJoin, author, project)))
		_, statErr := os.Stat(marker)
		if _, err := lifecycle.Join(s.client, author, project); err != nil {
			return err
		}
		_, after := os.Stat(marker)
		ev.Changed = errors.Is(statErr, os.ErrNotExist) && after == nil
	case ActionLeave:
		if err := lifecycle.Leave(s.client, author, project); err != nil {
			return err
		}
		ev.Changed = true
	case ActionStart:
		started, err := s.engine.Start(ctx, author, project)
		if err != nil {
			return err
		}
		ev.Changed = started
	}
	return nil
}

func formatRun(project string, p pipeline.PositionResult) string {
	out := p.Outcome
	if out.Status == step.StatusCompleted {
		return fmt.Sprintf("%s[%d] %s %d", project, p.Position, out.Status, out.Result.Value)
	}
	return fmt.Sprintf("%s[%d] %s after %d attempts", project, p.Position, out.Status, out.Attempts)
}

// checkExpect compares an event against its step's expect clause.
func checkExpect(i int, fs FlowStep, ev TraceEvent) []string {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("flow[%d] %s as %s: ", i, fs.Action, fs.As)+fmt.Sprintf(format, args...))
	}

	exp := fs.Expect
	if exp == nil || exp.Error == "" {
		if ev.err != nil {
			fail("unexpected error: %v", ev.err)
		}
	} else if ev.err == nil {
		fail("expected error containing %q, got none", exp.Error)
	} else if !strings.Contains(ev.err.Error(), exp.Error) {
		fail("expected error containing %q, got %v", exp.Error, ev.err)
	}
	if exp == nil {
		return errs
	}

	if exp.Transitions != nil && !slices.Equal(exp.Transitions, nonNil(ev.Transitions)) {
		fail("transitions: expected %q, got %q", exp.Transitions, ev.Transitions)
	}
	if exp.Runs != nil && !slices.Equal(exp.Runs, nonNil(ev.Runs)) {
		fail("runs: expected %q, got %q", exp.Runs, ev.Runs)
	}
	if exp.Errors != nil && *exp.Errors != ev.Errors {
		fail("errors: expected %d, got %d", *exp.Errors, ev.Errors)
	}
	if exp.Changed != nil && *exp.Changed != ev.Changed {
		fail("changed: expected %t, got %t", *exp.Changed, ev.Changed)
	}
	return errs
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
