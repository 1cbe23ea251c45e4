package ledger

import "time"

// Pass is one invocation of the lifecycle engine.
type Pass struct {
	ID         string
	Seq        int64
	Identity   string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running or after a crash
	Errors     int
}

// StepRun is the outcome of one ring position in one pass.
type StepRun struct {
	ID       int64
	PassID   string
	Seq      int64
	Project  string
	Position int
	Role     string
	Status   string
	Attempts int
	// Value is set only when the step completed.
	Value   *int64
	Output  string
	Error   string
	Elapsed time.Duration
}

// Transition is one lifecycle move applied (or attempted) in a pass.
type Transition struct {
	ID      int64
	PassID  string
	Seq     int64
	Project string
	Author  string
	Kind    string
	From    string
	To      string
	Error   string
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
