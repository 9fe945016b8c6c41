package harness

import "github.com/team-wildflyer/mapsync/internal/target"

// TraceEvent is one render-target mutation, tagged with the step that
// caused it.
type TraceEvent struct {
	Step int    `json:"step"`
	Call string `json:"call"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains every target mutation in order.
	Trace []TraceEvent `json:"trace"`

	// Layers is the final target layer order.
	Layers []string `json:"layers"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	calls []target.Call
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Layers: []string{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addCalls appends the calls a step produced to the trace.
func (r *Result) addCalls(step int, calls []target.Call) {
	for _, c := range calls {
		r.Trace = append(r.Trace, TraceEvent{Step: step, Call: c.String()})
		r.calls = append(r.calls, c)
	}
}

// Calls returns the trace as call strings.
func (r *Result) Calls() []string {
	out := make([]string, len(r.Trace))
	for i, ev := range r.Trace {
		out[i] = ev.Call
	}
	return out
}
