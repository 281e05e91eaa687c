package saturate

import (
	"context"
	"log/slog"
	"slices"

	"github.com/yautze/cube/internal/rewrite"
)

// StopReason says why a run ended.
type StopReason string

const (
	StopSaturated      StopReason = "saturated"
	StopBudgetExceeded StopReason = "budget_exceeded"
	StopCancelled      StopReason = "cancelled"
)

// Report summarizes a run.
type Report struct {
	Stop       StopReason
	Iterations int
	Classes    int
	Nodes      int
	// Applied counts, per rule name, the applications that changed the graph.
	Applied map[string]int
}

// Runner applies a fixed rule set. It holds no per-run state and may be
// shared by concurrent runs over different graphs.
type Runner struct {
	rules  []rewrite.Rule
	budget Budget
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithBudget replaces the default budget.
func WithBudget(b Budget) Option {
	return func(r *Runner) { r.budget = b }
}

// WithLogger sets the logger for per-iteration debug output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a Runner over rules. The slice is copied; rule order is the
// application order.
func New(rules []rewrite.Rule, opts ...Option) *Runner {
	r := &Runner{
		rules:  slices.Clone(rules),
		budget: DefaultBudget(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Budget returns the budget of r.
func (r *Runner) Budget() Budget { return r.budget }

type pending struct {
	rule  int
	match rewrite.Match
}

// Run saturates g. It returns a *BudgetExceededError if the budget runs out
// first, or the context error if ctx is cancelled between iterations. The
// report is filled in either way.
func (r *Runner) Run(ctx context.Context, g *rewrite.Graph) (rep Report, err error) {
	rep.Applied = make(map[string]int)
	fired := make(firedSet)
	g.Rebuild()
	defer func() {
		rep.Classes = g.NumClasses()
		rep.Nodes = g.NumNodes()
	}()

	for {
		if err := ctx.Err(); err != nil {
			rep.Stop = StopCancelled
			return rep, err
		}
		if rep.Iterations >= r.budget.MaxIterations {
			rep.Stop = StopBudgetExceeded
			return rep, &BudgetExceededError{
				Limit: LimitIterations, Iterations: rep.Iterations, Nodes: g.NumHandles(), Budget: r.budget,
			}
		}
		rep.Iterations++
		handles, unions := g.NumHandles(), g.Unions()

		var todo []pending
		for i, rule := range r.rules {
			for _, m := range rule.Searcher.Search(g) {
				if fired.add(firedKey(g, i, m)) {
					todo = append(todo, pending{rule: i, match: m})
				}
			}
		}

		for _, p := range todo {
			rule := r.rules[p.rule]
			for _, id := range rule.Applier.Apply(g, p.match) {
				_, merged, err := g.Union(p.match.Root, id)
				if err != nil {
					return rep, err
				}
				if merged {
					rep.Applied[rule.Name]++
				}
			}
			if n := g.NumHandles(); n > r.budget.MaxNodes {
				rep.Stop = StopBudgetExceeded
				return rep, &BudgetExceededError{
					Limit: LimitNodes, Iterations: rep.Iterations, Nodes: n, Budget: r.budget,
				}
			}
		}
		rebuilt := g.Rebuild()

		r.logger.Debug("saturation iteration",
			"iteration", rep.Iterations,
			"matches", len(todo),
			"congruences", rebuilt,
			"classes", g.NumClasses(),
			"handles", g.NumHandles(),
		)

		if g.NumHandles() == handles && g.Unions() == unions {
			rep.Stop = StopSaturated
			return rep, nil
		}
	}
}
