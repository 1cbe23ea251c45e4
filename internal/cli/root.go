package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/fedreduce/internal/datasite"
	"github.com/roach88/fedreduce/internal/ledger"
)

// ConfigEnv overrides the default client config location.
const ConfigEnv = "SYFTBOX_CLIENT_CONFIG_PATH"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string // sync client config (JSON)
	Database string // run ledger; defaults to fedreduce.db beside Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the fedreduce CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fedreduce",
		Short: "fedreduce - federated reductions over a synced datasite tree",
		Long: `Run multi-party workflows whose only shared medium is a synchronised
folder tree. Authors publish project descriptors, participants join them,
and every datasite computes its own ring positions in turn.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", defaultConfigPath(), "path to the sync client config")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the run ledger (default: fedreduce.db beside --config)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewInviteCommand(opts))
	cmd.AddCommand(NewJoinCommand(opts))
	cmd.AddCommand(NewLeaveCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewStartCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func defaultConfigPath() string {
	if p := os.Getenv(ConfigEnv); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".syftbox", "config.json")
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger builds the console logger. Records go to stderr so JSON output on
// stdout stays parseable.
func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) client() (*datasite.Client, error) {
	c, err := datasite.LoadClient(o.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load client config", err)
	}
	return c, nil
}

func (o *RootOptions) ledgerPath() string {
	if o.Database != "" {
		return o.Database
	}
	return filepath.Join(filepath.Dir(o.Config), "fedreduce.db")
}

func (o *RootOptions) openLedger() (*ledger.Ledger, error) {
	l, err := ledger.Open(o.ledgerPath())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	return l, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
