package harness

// Trace event types.
const (
	TracePublish = "publish"
	TraceQuery   = "query"
)

// TraceEvent is one recorded step.
type TraceEvent struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq"`

	// Label names the event a publish step sent.
	Label string `json:"label,omitempty"`

	// Outcome is the engine outcome of a publish step.
	Outcome string `json:"outcome,omitempty"`

	// Query names a query step.
	Query string `json:"query,omitempty"`

	// Results holds one label list per filter of a query step.
	Results [][]string `json:"results,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Trace contains every step in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors describes each failed expectation. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddPublishTrace records a publish step.
func (r *Result) AddPublishTrace(label, outcome string) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    TracePublish,
		Seq:     r.nextSeq(),
		Label:   label,
		Outcome: outcome,
	})
}

// AddQueryTrace records a query step.
func (r *Result) AddQueryTrace(name string, results [][]string) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    TraceQuery,
		Seq:     r.nextSeq(),
		Query:   name,
		Results: results,
	})
}

func (r *Result) nextSeq() int64 {
	return int64(len(r.Trace) + 1)
}
