package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/fedreduce/internal/descriptor"
)

// draftAuthor stands in for the author of a descriptor that has not been
// invited yet.
const draftAuthor = "draft@localhost"

// ValidationResult holds validation results for one descriptor.
type ValidationResult struct {
	Path   string `json:"path"`
	Valid  bool   `json:"valid"`
	Field  string `json:"field,omitempty"`
	Error  string `json:"error,omitempty"`
	Steps  int    `json:"steps,omitempty"`
	Legacy bool   `json:"legacy,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <descriptor.yaml>...",
		Short: "Check project descriptors without publishing them",
		Long: `Check project descriptors against the schema and the pipeline rules:
exactly one foreach step, known pipe forms and parseable path templates.

Drafts without an author are checked as if the local datasite had invited
them. No sync client config is needed.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	results := make([]ValidationResult, 0, len(paths))
	failed := 0
	for _, p := range paths {
		formatter.VerboseLog("Validating %s", p)
		r := validateOne(p)
		if !r.Valid {
			failed++
		}
		results = append(results, r)
	}

	if formatter.json() {
		if err := formatter.Success(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Fprintf(formatter.Writer, "✓ %s (%d steps)\n", r.Path, r.Steps)
				continue
			}
			fmt.Fprintf(formatter.Writer, "✗ %s: %s\n", r.Path, r.Error)
		}
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d descriptor(s) invalid", failed, len(paths)))
	}
	return nil
}

func validateOne(path string) ValidationResult {
	r := ValidationResult{Path: path}
	proj, err := loadDraft(path)
	if err != nil {
		r.Error = err.Error()
		var ce *descriptor.ConfigError
		if errors.As(err, &ce) {
			r.Field = ce.Field
			r.Error = ce.Message
		}
		return r
	}
	r.Valid = true
	r.Steps = len(proj.Steps)
	if pl, err := proj.Pipeline(); err == nil {
		r.Legacy = pl.IsPositional()
	}
	return r
}

// loadDraft loads path, filling in a stand-in author on a scratch copy
// when the document has none.
func loadDraft(path string) (*descriptor.Project, error) {
	fields, err := descriptor.Fields(path)
	if err != nil {
		return nil, err
	}
	if fields["author"] != "" {
		return descriptor.Load(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "fedreduce-validate-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	scratch := filepath.Join(dir, filepath.Base(path))
	if err := os.WriteFile(scratch, data, 0o644); err != nil {
		return nil, err
	}
	if err := descriptor.SetFields(scratch, map[string]string{"author": draftAuthor}); err != nil {
		return nil, err
	}
	return descriptor.Load(scratch)
}
