package saturate

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Default budget.
const (
	DefaultMaxIterations = 64
	DefaultMaxNodes      = 50_000
)

// Budget bounds one saturation run.
type Budget struct {
	// MaxIterations is the number of search/apply/rebuild rounds allowed.
	// Zero allows none, so nothing is rewritten.
	MaxIterations int
	// MaxNodes bounds the number of nodes ever added to the graph, that is
	// the handles it has issued. Nodes later merged away still count.
	MaxNodes int
}

// DefaultBudget returns the budget used when none is configured.
func DefaultBudget() Budget {
	return Budget{MaxIterations: DefaultMaxIterations, MaxNodes: DefaultMaxNodes}
}

// Validate rejects negative limits.
func (b Budget) Validate() error {
	if b.MaxIterations < 0 {
		return fmt.Errorf("budget: max_iterations must be >= 0, got %d", b.MaxIterations)
	}
	if b.MaxNodes < 0 {
		return fmt.Errorf("budget: max_nodes must be >= 0, got %d", b.MaxNodes)
	}
	return nil
}

// Limit names the exhausted part of a budget.
type Limit string

const (
	LimitIterations Limit = "iterations"
	LimitNodes      Limit = "nodes"
)

// BudgetExceededError is returned when a run stops before a fixpoint.
type BudgetExceededError struct {
	Limit      Limit
	Iterations int
	// Nodes is the number of nodes added when the run stopped, as counted
	// against Budget.MaxNodes.
	Nodes  int
	Budget Budget
}

func (e *BudgetExceededError) Error() string {
	switch e.Limit {
	case LimitNodes:
		return fmt.Sprintf("saturation exceeded node budget: %d nodes added > %d limit", e.Nodes, e.Budget.MaxNodes)
	default:
		return fmt.Sprintf("saturation exceeded iteration budget: %d iterations without a fixpoint (limit %d)",
			e.Iterations, e.Budget.MaxIterations)
	}
}

// IsBudgetExceeded reports whether err is or wraps a BudgetExceededError.
func IsBudgetExceeded(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}
