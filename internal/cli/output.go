package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The command ran but its work failed (pass errors, invalid descriptor)
	ExitCommandError = 2 // Command error (bad arguments, unreadable config, ledger not found)
)

// Error codes carried in JSON error responses.
const (
	ErrCodeGeneric    = "E001"
	ErrCodeConfig     = "E002" // invalid descriptor
	ErrCodeNotFound   = "E003"
	ErrCodeNotAuthor  = "E004"
	ErrCodeExists     = "E005"
	ErrCodePassFailed = "E006"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (f *OutputFormatter) json() bool { return f.Format == "json" }

// Success outputs a successful result. In text mode data is printed with
// its default format; commands with tabular output call Table instead.
func (f *OutputFormatter) Success(data any) error {
	if f.json() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.json() {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

func (f *OutputFormatter) encode(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	stateInvite   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	stateJoin     = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	stateRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	stateComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	stateFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	stateDefault  = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
)

// StateStyle colours lifecycle states and step statuses.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "invite":
		return stateInvite
	case "join", "timed_out":
		return stateJoin
	case "running":
		return stateRunning
	case "complete", "completed":
		return stateComplete
	case "fatal", "failed", "cancelled":
		return stateFailed
	default:
		return stateDefault
	}
}

// Table writes rows as aligned columns. Column styled, when >= 0, is
// rendered with StateStyle. Widths are measured on the plain text so
// escape sequences do not skew alignment.
func (f *OutputFormatter) Table(header []string, rows [][]string, styled int) error {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, r := range rows {
		for i, c := range r {
			widths[i] = max(widths[i], lipgloss.Width(c))
		}
	}

	line := func(cells []string, style func(i int, s string) string) string {
		var b strings.Builder
		for i, c := range cells {
			pad := strings.Repeat(" ", widths[i]-lipgloss.Width(c))
			b.WriteString(style(i, c))
			if i < len(cells)-1 {
				b.WriteString(pad)
				b.WriteString("  ")
			}
		}
		return b.String()
	}

	fmt.Fprintln(f.Writer, line(header, func(_ int, s string) string { return headerStyle.Render(s) }))
	for _, r := range rows {
		fmt.Fprintln(f.Writer, line(r, func(i int, s string) string {
			if i == styled {
				return StateStyle(s).Render(s)
			}
			return s
		}))
	}
	return nil
}
