package compiler

import (
	"errors"
	"fmt"

	"github.com/yautze/cube/internal/plan"
	"github.com/yautze/cube/internal/saturate"
)

// Outcome classifies a compilation.
type Outcome string

const (
	// OutcomePushed means at least one region became an SQLScan.
	OutcomePushed Outcome = "pushed"
	// OutcomeLocal means saturation finished but nothing could be pushed.
	OutcomeLocal Outcome = "local"
	// OutcomeFallback means the input plan was returned unrewritten.
	OutcomeFallback Outcome = "fallback"
)

// DiagnosticCode identifies a diagnostic.
type DiagnosticCode string

const (
	// DiagBudgetExceeded: saturation ran out of budget; no push-down applied.
	DiagBudgetExceeded DiagnosticCode = "BUDGET_EXCEEDED"
	// DiagRenderFailed: a pushed region could not be rendered to SQL.
	DiagRenderFailed DiagnosticCode = "RENDER_FAILED"
)

// Diagnostic is a non-fatal note attached to a result.
type Diagnostic struct {
	Code    DiagnosticCode `json:"code"`
	Message string         `json:"message"`
}

// Stats describes the saturation behind a result.
type Stats struct {
	Stop       saturate.StopReason `json:"stop"`
	Iterations int                 `json:"iterations"`
	Classes    int                 `json:"classes"`
	Nodes      int                 `json:"nodes"`
	Cost       uint64              `json:"cost"`
	Applied    map[string]int      `json:"applied,omitempty"`
}

// Result is the outcome of one compilation.
type Result struct {
	ID string `json:"id"`
	// Plan is the rewritten plan, or the input plan on fallback.
	Plan *plan.Expr `json:"plan"`
	// Pushed lists the SQLScan payloads of Plan in pre-order.
	Pushed      []plan.PushedSQL `json:"pushed,omitempty"`
	Outcome     Outcome          `json:"outcome"`
	Diagnostics []Diagnostic     `json:"diagnostics,omitempty"`
	Stats       Stats            `json:"stats"`
}

// FallbackError is returned instead of a fallback result when push-down is
// required.
type FallbackError struct {
	Code DiagnosticCode
	Err  error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *FallbackError) Unwrap() error { return e.Err }

// IsFallback reports whether err is a *FallbackError.
func IsFallback(err error) bool {
	var fe *FallbackError
	return errors.As(err, &fe)
}
