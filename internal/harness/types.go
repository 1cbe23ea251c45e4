package harness

// TraceEvent records one flow action and what it did.
type TraceEvent struct {
	Seq         int      `json:"seq"`
	Action      string   `json:"action"`
	As          string   `json:"as"`
	Source      string   `json:"source,omitempty"`
	Transitions []string `json:"transitions,omitempty"`
	Runs        []string `json:"runs,omitempty"`
	Errors      int      `json:"errors,omitempty"`
	Changed     bool     `json:"changed,omitempty"`
	Failed      bool     `json:"failed,omitempty"`

	// err is the action's error. It stays out of the golden trace because
	// messages may carry temporary paths.
	err error
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expect and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Applied returns every applied transition in the trace, in order.
func (r *Result) Applied() []string {
	var out []string
	for _, ev := range r.Trace {
		out = append(out, ev.Transitions...)
	}
	return out
}
