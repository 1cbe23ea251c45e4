package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fedreduce/internal/ledger"
	"github.com/roach88/fedreduce/internal/lifecycle"
	"github.com/roach88/fedreduce/internal/pipeline"
	"github.com/roach88/fedreduce/internal/step"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Every    time.Duration
	Timeout  time.Duration
	Interval time.Duration

	// IDs overrides the pass ID generator (for testing).
	IDs ledger.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one lifecycle pass",
		Long: `Run one pass for the local datasite: publish pending transitions,
execute every ring position this datasite owns in its running projects,
then pick up completion.

A pass is meant to be scheduled by the sync client. With --every the
command keeps running passes until interrupted.

Example:
  fedreduce run
  fedreduce run --every 10s --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPasses(opts, cmd)
		},
	}

	def := step.DefaultPolicy()
	cmd.Flags().DurationVar(&opts.Every, "every", 0, "repeat passes at this interval until interrupted")
	cmd.Flags().DurationVar(&opts.Timeout, "step-timeout", def.Timeout, "how long a step waits for its inputs")
	cmd.Flags().DurationVar(&opts.Interval, "step-interval", def.Interval, "delay between step attempts")

	return cmd
}

// PassSummary is the printable form of a pass.
type PassSummary struct {
	ID          string       `json:"id"`
	Transitions []string     `json:"transitions"`
	Failed      []string     `json:"failed,omitempty"`
	Runs        []RunSummary `json:"runs"`
	Errors      int          `json:"errors"`
}

// RunSummary is the printable form of one project's pipeline run.
type RunSummary struct {
	Project   string            `json:"project"`
	Positions []PositionSummary `json:"positions"`
}

// PositionSummary is one executed ring position.
type PositionSummary struct {
	Position int    `json:"position"`
	Role     string `json:"role"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Value    *int64 `json:"value,omitempty"`
	Error    string `json:"error,omitempty"`
}

func summarize(rep lifecycle.PassReport) PassSummary {
	s := PassSummary{ID: rep.ID, Transitions: []string{}, Runs: []RunSummary{}, Errors: rep.Errors}
	for _, a := range rep.Transitions {
		if a.Err != nil {
			s.Failed = append(s.Failed, a.Err.Error())
			continue
		}
		s.Transitions = append(s.Transitions, a.Transition.String())
	}
	for _, r := range rep.Runs {
		rs := RunSummary{Project: r.Project}
		for _, p := range r.Positions {
			ps := PositionSummary{
				Position: p.Position,
				Role:     string(p.Role),
				Status:   p.Outcome.Status.String(),
				Attempts: p.Outcome.Attempts,
			}
			if p.Outcome.Status == step.StatusCompleted {
				v := p.Outcome.Result.Value
				ps.Value = &v
			}
			if p.Outcome.Err != nil {
				ps.Error = p.Outcome.Err.Error()
			}
			rs.Positions = append(rs.Positions, ps)
		}
		s.Runs = append(s.Runs, rs)
	}
	return s
}

func runPasses(opts *RunOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	log := opts.logger(cmd)

	client, err := opts.client()
	if err != nil {
		return err
	}
	l, err := opts.openLedger()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := l.Close(); closeErr != nil {
			log.Error("error closing ledger", "error", closeErr)
		}
	}()

	driver := pipeline.New(
		step.NewExecutor(client.SyncFolder),
		pipeline.WithPolicy(step.Policy{Timeout: opts.Timeout, Interval: opts.Interval}),
	)
	engineOpts := []lifecycle.Option{
		lifecycle.WithLedger(l),
		lifecycle.WithDriver(driver),
		lifecycle.WithLogger(log),
	}
	if opts.IDs != nil {
		engineOpts = append(engineOpts, lifecycle.WithIDGenerator(opts.IDs))
	}
	eng := lifecycle.New(client, engineOpts...)

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		rep, err := eng.Pass(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			_ = formatter.Error(ErrCodePassFailed, "pass failed", err.Error())
			return WrapExitError(ExitFailure, "pass failed", err)
		}
		if err := printPass(formatter, summarize(rep)); err != nil {
			return err
		}
		if opts.Every <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(opts.Every):
		}
	}
}

func printPass(f *OutputFormatter, s PassSummary) error {
	if f.json() {
		return f.Success(s)
	}
	fmt.Fprintf(f.Writer, "Pass %s: %d transition(s), %d run(s), %d error(s)\n",
		s.ID, len(s.Transitions), len(s.Runs), s.Errors)
	for _, t := range s.Transitions {
		fmt.Fprintf(f.Writer, "  %s\n", t)
	}
	for _, t := range s.Failed {
		fmt.Fprintf(f.Writer, "  %s %s\n", StateStyle("failed").Render("failed"), t)
	}
	for _, r := range s.Runs {
		for _, p := range r.Positions {
			status := StateStyle(p.Status).Render(p.Status)
			if p.Value != nil {
				fmt.Fprintf(f.Writer, "  %s[%d] %s %s = %d\n", r.Project, p.Position, p.Role, status, *p.Value)
			} else {
				fmt.Fprintf(f.Writer, "  %s[%d] %s %s after %d attempt(s)\n", r.Project, p.Position, p.Role, status, p.Attempts)
			}
		}
	}
	return nil
}
