package harness

import (
	"github.com/roach88/veil/internal/engine"
	"github.com/roach88/veil/internal/ir"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Session is the session the trace was journaled under.
	Session string `json:"session"`

	// Trace contains every journal event of the run, in seq order, as read
	// back from the store.
	Trace []ir.Event `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Status is the engine registry after the last step.
	Status engine.Status `json:"status"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult(session string) *Result {
	return &Result{
		Pass:    true,
		Session: session,
		Trace:   []ir.Event{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
