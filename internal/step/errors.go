package step

import (
	"errors"
	"fmt"

	"github.com/roach88/fedreduce/internal/datasite"
	"github.com/roach88/fedreduce/internal/descriptor"
	"github.com/roach88/fedreduce/internal/tmpl"
)

// ErrTimeout reports that a step's retry budget was exhausted.
var ErrTimeout = errors.New("step timed out")

// ErrUnknownOperation is returned for a function name with no registered
// operation.
var ErrUnknownOperation = errors.New("unknown operation")

// ErrOverflow is returned when an operation's result does not fit in an
// int64.
var ErrOverflow = errors.New("integer overflow")

// IsFatal reports whether err can never succeed on retry: a malformed
// pipeline, an operation that cannot produce a value, or a refused
// permission grant.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnknownOperation) ||
		errors.Is(err, ErrOverflow) ||
		errors.Is(err, datasite.ErrPermissionDenied) ||
		errors.Is(err, tmpl.ErrUnresolvedPlaceholder) ||
		errors.Is(err, tmpl.ErrMalformed) ||
		errors.Is(err, descriptor.ErrInvalidConfiguration)
}

func unknownOperation(name string) error {
	return fmt.Errorf("%w %q", ErrUnknownOperation, name)
}
