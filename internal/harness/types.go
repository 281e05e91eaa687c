package harness

import (
	"github.com/yautze/cube/internal/compiler"
	"github.com/yautze/cube/internal/store"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	Pass bool `json:"pass"`

	// Compilation is the compiler result, nil when compilation failed.
	Compilation *compiler.Result `json:"compilation,omitempty"`

	// Replay compares the logged compilation with a fresh one.
	Replay store.ReplayResult `json:"replay"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError records a failed expectation and marks the result failed.
func (r *Result) AddError(msg string) {
	r.Pass = false
	r.Errors = append(r.Errors, msg)
}
