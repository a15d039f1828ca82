package harness

import (
	"github.com/roach88/accountsync/internal/batch"
)

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCompletion = "completion"
)

// TraceEvent is one flow invocation or its completion.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Type   string `json:"type"` // "invocation" or "completion"
	Flow   string `json:"flow"`
	Args   any    `json:"args,omitempty"`
	Result any    `json:"result,omitempty"`
}

// JobSummary is the deterministic part of a batch job's outcome.
type JobSummary struct {
	State     batch.State `json:"state"`
	Total     int         `json:"total"`
	Processed int         `json:"processed"`
	Failed    int         `json:"failed"`
}

func summarize(job *batch.Job) JobSummary {
	r := job.Result()
	return JobSummary{State: r.State, Total: r.Total, Processed: r.Processed, Failed: r.Failed}
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every step ran and every assertion held.
	Pass bool `json:"pass"`

	// Trace contains all flow invocations and completions in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	seq int64
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) next() int64 {
	r.seq++
	return r.seq
}

// AddInvocationTrace adds a flow invocation to the trace.
func (r *Result) AddInvocationTrace(flow string, args any) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:  r.next(),
		Type: EventInvocation,
		Flow: flow,
		Args: args,
	})
}

// AddCompletionTrace adds a flow completion to the trace.
func (r *Result) AddCompletionTrace(flow string, result any) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    r.next(),
		Type:   EventCompletion,
		Flow:   flow,
		Result: result,
	})
}
