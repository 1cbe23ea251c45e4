package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fedreduce/internal/ledger"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Project string
	Limit   int
}

// History is the JSON payload of the history command.
type History struct {
	Passes      []PassRecord       `json:"passes"`
	Steps       []StepRecord       `json:"steps"`
	Transitions []TransitionRecord `json:"transitions"`
}

// PassRecord is one ledger pass.
type PassRecord struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Errors     int       `json:"errors"`
}

// StepRecord is one recorded ring position.
type StepRecord struct {
	Pass     string `json:"pass"`
	Project  string `json:"project"`
	Position int    `json:"position"`
	Role     string `json:"role"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Value    *int64 `json:"value,omitempty"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

// TransitionRecord is one recorded lifecycle transition.
type TransitionRecord struct {
	Pass    string `json:"pass"`
	Kind    string `json:"kind"`
	Author  string `json:"author"`
	Project string `json:"project"`
	From    string `json:"from"`
	To      string `json:"to"`
	Error   string `json:"error,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded passes, steps and transitions",
		Long: `Show what earlier passes of this datasite did, read from the local run
ledger. Nothing in the ledger is shared with other datasites.

Example:
  fedreduce history --project sum
  fedreduce history --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Project, "project", "p", "", "only show this project")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of most recent passes and steps (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := commandContext(cmd)

	l, err := opts.openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	h, err := readHistory(ctx, l, opts.Project, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read ledger", err)
	}
	if f.json() {
		return f.Success(h)
	}

	passRows := make([][]string, 0, len(h.Passes))
	for _, p := range h.Passes {
		finished := "-"
		if !p.FinishedAt.IsZero() {
			finished = p.FinishedAt.Format(time.RFC3339)
		}
		passRows = append(passRows, []string{p.ID, p.StartedAt.Format(time.RFC3339), finished, strconv.Itoa(p.Errors)})
	}
	if err := f.Table([]string{"PASS", "STARTED", "FINISHED", "ERRORS"}, passRows, -1); err != nil {
		return err
	}

	fmt.Fprintln(f.Writer)
	stepRows := make([][]string, 0, len(h.Steps))
	for _, s := range h.Steps {
		value := "-"
		if s.Value != nil {
			value = strconv.FormatInt(*s.Value, 10)
		}
		stepRows = append(stepRows, []string{
			s.Project, strconv.Itoa(s.Position), s.Role, s.Status, strconv.Itoa(s.Attempts), value,
		})
	}
	if err := f.Table([]string{"PROJECT", "POS", "ROLE", "STATUS", "ATTEMPTS", "VALUE"}, stepRows, 3); err != nil {
		return err
	}

	fmt.Fprintln(f.Writer)
	trRows := make([][]string, 0, len(h.Transitions))
	for _, t := range h.Transitions {
		status := "applied"
		if t.Error != "" {
			status = "failed"
		}
		trRows = append(trRows, []string{t.Author + "/" + t.Project, t.Kind, t.From + "->" + t.To, status})
	}
	return f.Table([]string{"PROJECT", "TRANSITION", "STATES", "RESULT"}, trRows, -1)
}

func readHistory(ctx context.Context, l *ledger.Ledger, project string, limit int) (History, error) {
	h := History{Passes: []PassRecord{}, Steps: []StepRecord{}, Transitions: []TransitionRecord{}}

	passes, err := l.ReadPasses(ctx, limit)
	if err != nil {
		return h, err
	}
	for _, p := range passes {
		h.Passes = append(h.Passes, PassRecord{ID: p.ID, StartedAt: p.StartedAt, FinishedAt: p.FinishedAt, Errors: p.Errors})
	}

	steps, err := l.ReadSteps(ctx, project, limit)
	if err != nil {
		return h, err
	}
	for _, s := range steps {
		h.Steps = append(h.Steps, StepRecord{
			Pass: s.PassID, Project: s.Project, Position: s.Position, Role: s.Role,
			Status: s.Status, Attempts: s.Attempts, Value: s.Value, Output: s.Output, Error: s.Error,
		})
	}

	transitions, err := l.ReadTransitions(ctx, project)
	if err != nil {
		return h, err
	}
	for _, t := range transitions {
		h.Transitions = append(h.Transitions, TransitionRecord{
			Pass: t.PassID, Kind: t.Kind, Author: t.Author, Project: t.Project,
			From: t.From, To: t.To, Error: t.Error,
		})
	}
	return h, nil
}
