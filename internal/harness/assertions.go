package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/yautze/cube/internal/compiler"
	"github.com/yautze/cube/internal/plan"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	// Pushed is the pushed SQL, for context.
	Pushed []plan.PushedSQL
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	if len(e.Pushed) > 0 {
		fmt.Fprintf(&buf, "\n\nPushed SQL:")
		for i, q := range e.Pushed {
			fmt.Fprintf(&buf, "\n  [%d] %s", i+1, q.SQL)
		}
	}
	return buf.String()
}

// checkExpect compares a result with the expected outcome, pushed SQL and
// diagnostic codes.
func checkExpect(want Expect, res *compiler.Result) []string {
	var errs []string
	if string(res.Outcome) != want.Outcome {
		errs = append(errs, fmt.Sprintf("outcome: expected %s, got %s", want.Outcome, res.Outcome))
	}

	if want.Pushed != nil {
		got := make([]string, len(res.Pushed))
		for i, q := range res.Pushed {
			got[i] = q.SQL
		}
		if !slices.Equal(got, want.Pushed) {
			errs = append(errs, fmt.Sprintf("pushed: expected %q, got %q", want.Pushed, got))
		}
	}

	if want.Diagnostics != nil {
		got := make([]string, len(res.Diagnostics))
		for i, d := range res.Diagnostics {
			got[i] = string(d.Code)
		}
		if !slices.Equal(got, want.Diagnostics) {
			errs = append(errs, fmt.Sprintf("diagnostics: expected %v, got %v", want.Diagnostics, got))
		}
	}
	return errs
}

// EvaluateAssertions evaluates every assertion against a result and returns
// the failure messages. A result without a compilation fails every
// assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	res := result.Compilation
	if res == nil {
		return fmt.Errorf("no compilation result")
	}
	switch a.Type {
	case AssertSQLContains:
		return assertSQLContains(res, a.Text)
	case AssertRuleApplied:
		return assertRuleApplied(res, a.Rule, max(a.Min, 1))
	case AssertPlanOp:
		op, _ := plan.Lookup(a.Op)
		return assertPlanOp(res, op, *a.Count)
	case AssertReplayMatch:
		return assertReplayMatch(result)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertSQLContains(res *compiler.Result, text string) error {
	for _, q := range res.Pushed {
		if strings.Contains(q.SQL, text) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertSQLContains,
		Expected: fmt.Sprintf("a pushed query containing %q", text),
		Actual:   fmt.Sprintf("%d pushed query(s) without it", len(res.Pushed)),
		Pushed:   res.Pushed,
	}
}

func assertRuleApplied(res *compiler.Result, rule string, minCount int) error {
	got := res.Stats.Applied[rule]
	if got >= minCount {
		return nil
	}
	return &AssertionError{
		Type:     AssertRuleApplied,
		Expected: fmt.Sprintf("%s applied at least %d time(s)", rule, minCount),
		Actual:   fmt.Sprintf("applied %d time(s)", got),
	}
}

func assertPlanOp(res *compiler.Result, op plan.Op, count int) error {
	got := 0
	res.Plan.Walk(func(e *plan.Expr) bool {
		if e.Op == op {
			got++
		}
		return true
	})
	if got == count {
		return nil
	}
	return &AssertionError{
		Type:     AssertPlanOp,
		Expected: fmt.Sprintf("%d %s node(s) in the output plan", count, op),
		Actual:   fmt.Sprintf("%d", got),
		Pushed:   res.Pushed,
	}
}

func assertReplayMatch(result *Result) error {
	r := result.Replay
	if r.Match {
		return nil
	}
	actual := "output hash " + r.Actual
	if r.Error != "" {
		actual = "replay failed: " + r.Error
	}
	return &AssertionError{
		Type:     AssertReplayMatch,
		Expected: "output hash " + r.Expected,
		Actual:   actual,
	}
}
