package step

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout is the per-step retry budget.
const DefaultTimeout = 120 * time.Second

// DefaultInterval is the pause between attempts.
const DefaultInterval = time.Second

// errNotReady stands in as the last error when attempts only waited.
var errNotReady = errors.New("inputs not ready")

// Policy bounds the retry loop of one step.
type Policy struct {
	Timeout  time.Duration
	Interval time.Duration
}

// DefaultPolicy returns the standard 120s / 1s policy.
func DefaultPolicy() Policy {
	return Policy{Timeout: DefaultTimeout, Interval: DefaultInterval}
}

// Status is the terminal state of a retry loop.
type Status int

const (
	StatusCompleted Status = iota + 1
	StatusTimedOut
	StatusFatal
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusTimedOut:
		return "timed_out"
	case StatusFatal:
		return "fatal"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome summarises a retry loop.
type Outcome struct {
	Status   Status
	Attempts int
	Result   Result
	// Err is nil on completion; for a timeout it wraps ErrTimeout and the
	// last attempt's error.
	Err     error
	Elapsed time.Duration
}

// Attempt is one try of a step.
type Attempt func(ctx context.Context) (Result, error)

// Retry runs attempt until it is done, fails fatally, the context ends, or
// policy.Timeout has elapsed since the loop started. It never returns an
// error: the outcome carries it.
func Retry(ctx context.Context, policy Policy, clock Clock, attempt Attempt) Outcome {
	if clock == nil {
		clock = RealClock{}
	}
	start := clock.Now()
	var out Outcome
	for {
		out.Attempts++
		res, err := attempt(ctx)
		out.Elapsed = clock.Now().Sub(start)

		switch {
		case err == nil && res.Done:
			out.Status, out.Result, out.Err = StatusCompleted, res, nil
			return out
		case err != nil && IsFatal(err):
			out.Status, out.Err = StatusFatal, err
			return out
		case err != nil && ctx.Err() != nil:
			out.Status, out.Err = StatusCancelled, err
			return out
		case err == nil:
			out.Result, out.Err = res, errNotReady
		default:
			out.Err = err
		}

		remaining := policy.Timeout - out.Elapsed
		if remaining <= 0 {
			out.Status = StatusTimedOut
			out.Err = fmt.Errorf("%w after %d attempts: %w", ErrTimeout, out.Attempts, out.Err)
			return out
		}
		wait := policy.Interval
		if wait > remaining {
			wait = remaining
		}
		if err := clock.Sleep(ctx, wait); err != nil {
			out.Status, out.Err = StatusCancelled, err
			out.Elapsed = clock.Now().Sub(start)
			return out
		}
	}
}
