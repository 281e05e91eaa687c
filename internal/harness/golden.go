package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the parts of a result that golden files pin down: the
// outcome, the stop reason, the pushed SQL and the diagnostic codes.
//
//	scenario: sum_pushed
//	outcome: pushed
//	stop: saturated
//	pushed:
//	  [default] SELECT SUM("orders"."amount") FROM public.orders AS "orders"
func Snapshot(name string, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	res := result.Compilation
	if res == nil {
		fmt.Fprintf(&b, "errors:\n")
		for _, e := range result.Errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
		return []byte(b.String())
	}
	fmt.Fprintf(&b, "outcome: %s\n", res.Outcome)
	fmt.Fprintf(&b, "stop: %s\n", res.Stats.Stop)
	if len(res.Pushed) > 0 {
		b.WriteString("pushed:\n")
		for _, q := range res.Pushed {
			fmt.Fprintf(&b, "  [%s] %s\n", q.DataSource, q.SQL)
		}
	}
	if len(res.Diagnostics) > 0 {
		b.WriteString("diagnostics:\n")
		for _, d := range res.Diagnostics {
			fmt.Fprintf(&b, "  %s\n", d.Code)
		}
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot be executed. Failed expectations
// and golden mismatches fail t.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result))
}
