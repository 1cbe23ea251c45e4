package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/fedreduce/internal/descriptor"
	"github.com/roach88/fedreduce/internal/ledger"
	"github.com/roach88/fedreduce/internal/lifecycle"
)

// failProject reports a lifecycle error and maps it to an exit code.
func failProject(f *OutputFormatter, message string, err error) error {
	code := ErrCodeGeneric
	exit := ExitCommandError
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		code = ErrCodeNotFound
	case errors.Is(err, lifecycle.ErrNotAuthor):
		code = ErrCodeNotAuthor
	case errors.Is(err, lifecycle.ErrExists):
		code = ErrCodeExists
	case descriptor.IsConfigError(err):
		code, exit = ErrCodeConfig, ExitFailure
	}
	_ = f.Error(code, message, err.Error())
	return WrapExitError(exit, message, err)
}

// sourceArgs accepts "<author>/<project>" or "<author> <project>".
func sourceArgs(args []string) (string, string, error) {
	if len(args) == 2 {
		return args[0], args[1], nil
	}
	return lifecycle.ParseSource(args[0])
}

// ProjectRef is the JSON payload of join, leave and start.
type ProjectRef struct {
	Author  string `json:"author"`
	Project string `json:"project"`
	Path    string `json:"path,omitempty"`
	Changed bool   `json:"changed"`
}

// NewInviteCommand creates the invite command.
func NewInviteCommand(rootOpts *RootOptions) *cobra.Command {
	var ids ledger.IDGenerator = ledger.UUIDv7Generator{}
	return &cobra.Command{
		Use:   "invite <descriptor.yaml>",
		Short: "Publish a new project for others to join",
		Long: `Publish a project descriptor as a new invitation of the local datasite.

The author field is set to the local identity and a uid is assigned when
the descriptor has none. Files listed under code are published alongside.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			client, err := rootOpts.client()
			if err != nil {
				return err
			}
			path, err := lifecycle.Invite(client, args[0], ids)
			if err != nil {
				return failProject(f, "invite failed", err)
			}
			rel, _ := client.Rel(path)
			proj := filepath.Base(filepath.Dir(path))
			if f.json() {
				return f.Success(ProjectRef{Author: client.Email, Project: proj, Path: rel, Changed: true})
			}
			return f.Success(fmt.Sprintf("Invited %s/%s at %s", client.Email, proj, rel))
		},
	}
}

// NewJoinCommand creates the join command.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <author>/<project>",
		Short: "Ask to participate in another datasite's project",
		Long: `Create a join marker for a project. The author's next pass adds the
local datasite to the ring when it starts the project.

The source may also be a path into the author's public folder, such as
alice@example.org/public/fedreduce/invite/sum.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			author, project, err := sourceArgs(args)
			if err != nil {
				return failProject(f, "join failed", err)
			}
			client, err := rootOpts.client()
			if err != nil {
				return err
			}
			marker, err := lifecycle.Join(client, author, project)
			if err != nil {
				return failProject(f, "join failed", err)
			}
			rel, _ := client.Rel(marker)
			if f.json() {
				return f.Success(ProjectRef{Author: author, Project: project, Path: rel, Changed: true})
			}
			return f.Success(fmt.Sprintf("Joined %s/%s", author, project))
		},
	}
}

// NewLeaveCommand creates the leave command.
func NewLeaveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "leave <author>/<project>",
		Short:         "Withdraw a join request that has not started yet",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			author, project, err := sourceArgs(args)
			if err != nil {
				return failProject(f, "leave failed", err)
			}
			client, err := rootOpts.client()
			if err != nil {
				return err
			}
			if err := lifecycle.Leave(client, author, project); err != nil {
				return failProject(f, "leave failed", err)
			}
			if f.json() {
				return f.Success(ProjectRef{Author: author, Project: project, Changed: true})
			}
			return f.Success(fmt.Sprintf("Left %s/%s", author, project))
		},
	}
}

// NewStartCommand creates the start command.
func NewStartCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start <project>",
		Short: "Start one of your projects now",
		Long: `Move an invited project to running without waiting for a pass. Join
markers present at this point are merged into the ring. Starting a
project that already runs succeeds without effect.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			client, err := rootOpts.client()
			if err != nil {
				return err
			}
			author, project := client.Email, args[0]
			if a, p, err := lifecycle.ParseSource(args[0]); err == nil {
				author, project = a, p
			}
			eng := lifecycle.New(client, lifecycle.WithLogger(rootOpts.logger(cmd)))
			started, err := eng.Start(commandContext(cmd), author, project)
			if err != nil {
				return failProject(f, "start failed", err)
			}
			if f.json() {
				return f.Success(ProjectRef{Author: author, Project: project, Changed: started})
			}
			if !started {
				return f.Success(fmt.Sprintf("%s/%s is already running", author, project))
			}
			return f.Success(fmt.Sprintf("Started %s/%s", author, project))
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List your projects and the projects you joined",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			client, err := rootOpts.client()
			if err != nil {
				return err
			}
			snap, err := lifecycle.Observe(client)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read the datasite tree", err)
			}
			return printListing(f, lifecycle.List(snap))
		},
	}
}

func printListing(f *OutputFormatter, rows []lifecycle.Listing) error {
	if f.json() {
		if rows == nil {
			rows = []lifecycle.Listing{}
		}
		return f.Success(rows)
	}
	if len(rows) == 0 {
		return f.Success("No projects.")
	}
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []string{r.Author + "/" + r.Project, string(r.Role), string(r.State), r.Source})
	}
	return f.Table([]string{"PROJECT", "ROLE", "STATE", "SOURCE"}, cells, 2)
}
