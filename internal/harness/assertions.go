package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/fedreduce/internal/datasite"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Applied  []string // Applied transitions for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Applied) > 0 {
		fmt.Fprintf(&buf, "\nApplied transitions:\n")
		for i, t := range e.Applied {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, t)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failures as
// messages.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, h *Harness) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(ctx, result, a, h); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(ctx context.Context, result *Result, a Assertion, h *Harness) error {
	switch a.Type {
	case AssertFileEquals:
		return assertFileEquals(h.root, a)
	case AssertFileExists:
		return assertFileExists(h.root, a, true)
	case AssertFileAbsent:
		return assertFileExists(h.root, a, false)
	case AssertTraceOrder:
		return assertTraceOrder(result.Applied(), a)
	case AssertTraceCount:
		return assertTraceCount(result.Applied(), a)
	case AssertStepValue:
		return assertStepValue(ctx, h, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertFileEquals(root string, a Assertion) error {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(a.Path)))
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s = %q", a.Path, a.Content), Actual: err.Error()}
	}
	if string(data) != a.Content {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s = %q", a.Path, a.Content), Actual: fmt.Sprintf("%q", data)}
	}
	return nil
}

func assertFileExists(root string, a Assertion, want bool) error {
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(a.Path)))
	switch {
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return err
	case want && err != nil:
		return &AssertionError{Type: a.Type, Expected: a.Path + " exists", Actual: "missing"}
	case !want && err == nil:
		return &AssertionError{Type: a.Type, Expected: a.Path + " absent", Actual: "present"}
	}
	return nil
}

// assertTraceOrder checks that items were applied in the given order.
// Other transitions may come in between.
func assertTraceOrder(applied []string, a Assertion) error {
	next := 0
	for _, t := range applied {
		if next < len(a.Items) && t == a.Items[next] {
			next++
		}
	}
	if next == len(a.Items) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%q in order", a.Items),
		Actual:   fmt.Sprintf("stopped before %q", a.Items[next]),
		Applied:  applied,
	}
}

func assertTraceCount(applied []string, a Assertion) error {
	n := 0
	for _, t := range applied {
		if t == a.Item {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%q applied %d time(s)", a.Item, a.Count),
		Actual:   fmt.Sprintf("%d time(s)", n),
		Applied:  applied,
	}
}

// assertStepValue reads the datasite's ledger for the value written by its
// last completed step of the project.
func assertStepValue(ctx context.Context, h *Harness, a Assertion) error {
	s, ok := h.sites[datasite.Normalize(a.As)]
	if !ok {
		return fmt.Errorf("%q is not a scenario datasite", a.As)
	}
	steps, err := s.ledger.ReadSteps(ctx, a.Project, 0)
	if err != nil {
		return err
	}
	expected := fmt.Sprintf("%s wrote %d for %s", a.As, a.Value, a.Project)
	for i := len(steps) - 1; i >= 0; i-- {
		if v := steps[i].Value; v != nil {
			if *v != a.Value {
				return &AssertionError{Type: a.Type, Expected: expected, Actual: fmt.Sprintf("wrote %d", *v)}
			}
			return nil
		}
	}
	return &AssertionError{Type: a.Type, Expected: expected, Actual: "no completed step recorded"}
}
