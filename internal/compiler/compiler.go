package compiler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/yautze/cube/internal/config"
	"github.com/yautze/cube/internal/meta"
	"github.com/yautze/cube/internal/plan"
	"github.com/yautze/cube/internal/rewrite"
	"github.com/yautze/cube/internal/saturate"
	"github.com/yautze/cube/internal/sqlgen"
)

// Compiler compiles plans against one MetaContext and configuration.
type Compiler struct {
	meta     *meta.Context
	cfg      config.Config
	runner   *saturate.Runner
	renderer *sqlgen.Renderer
	ids      IDGenerator
	logger   *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithIDGenerator replaces the UUIDv7 id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Compiler) {
		if g != nil {
			c.ids = g
		}
	}
}

// New builds the rule set for cfg once; it is shared by every compilation.
func New(m *meta.Context, cfg config.Config, opts ...Option) (*Compiler, error) {
	if m == nil {
		return nil, fmt.Errorf("compiler: nil meta context")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}
	c := &Compiler{
		meta:     m,
		cfg:      cfg,
		renderer: sqlgen.NewRenderer(m),
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.runner = saturate.New(rewrite.NewRules(m, cfg.RewriteConfig()),
		saturate.WithBudget(cfg.SaturationBudget()),
		saturate.WithLogger(c.logger),
	)
	return c, nil
}

// Config returns the configuration of c.
func (c *Compiler) Config() config.Config { return c.cfg }

// Compile rewrites e. A malformed plan is a *plan.MalformedPlanError.
// Budget exhaustion yields a fallback result carrying the input plan, or a
// *FallbackError when push-down is required. Internal invariant violations
// come back as assertion failures, never as panics.
func (c *Compiler) Compile(ctx context.Context, e *plan.Expr) (*Result, error) {
	res, _, err := c.compile(ctx, e)
	return res, err
}

// Explanation is a result together with the saturated e-graph.
type Explanation struct {
	Result *Result
	Root   plan.ID
	Graph  *rewrite.Graph
}

// Dot renders the saturated e-graph in Graphviz format.
func (x *Explanation) Dot() string { return x.Graph.Dot() }

// Explain compiles e and keeps the e-graph for inspection.
func (c *Compiler) Explain(ctx context.Context, e *plan.Expr) (*Explanation, error) {
	res, x, err := c.compile(ctx, e)
	if err != nil {
		return nil, err
	}
	x.Result = res
	return x, nil
}

func (c *Compiler) compile(ctx context.Context, e *plan.Expr) (res *Result, x *Explanation, err error) {
	if err := plan.Validate(e); err != nil {
		return nil, nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			perr, ok := r.(error)
			if !ok || !errors.HasAssertionFailure(perr) {
				panic(r)
			}
			res, x, err = nil, nil, errors.Wrap(perr, "compile")
		}
	}()

	res = &Result{ID: c.ids.Generate()}
	log := c.logger.With("compilation", res.ID)

	g := rewrite.NewGraph()
	root, original := rewrite.Insert(g, e, c.cfg.Mode())
	x = &Explanation{Root: root, Graph: g}

	rep, err := c.runner.Run(ctx, g)
	res.Stats = Stats{
		Stop:       rep.Stop,
		Iterations: rep.Iterations,
		Classes:    rep.Classes,
		Nodes:      rep.Nodes,
		Applied:    rep.Applied,
	}
	switch {
	case saturate.IsBudgetExceeded(err):
		log.Warn("saturation budget exceeded", "error", err)
		return c.fallback(res, e, DiagBudgetExceeded, err), x, c.fallbackErr(DiagBudgetExceeded, err)
	case err != nil:
		return nil, nil, fmt.Errorf("compile %s: %w", res.ID, err)
	}

	best, cost, err := saturate.Extract(g, root, original)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "compile %s", errors.Safe(res.ID))
	}
	res.Stats.Cost = cost.Total

	lowered, err := c.lower(best, &res.Pushed)
	if err != nil {
		log.Warn("pushed region failed to render", "error", err)
		res.Pushed = nil
		return c.fallback(res, e, DiagRenderFailed, err), x, c.fallbackErr(DiagRenderFailed, err)
	}
	if err := plan.ValidateOutput(lowered); err != nil {
		return nil, nil, errors.NewAssertionErrorWithWrappedErrf(err, "extracted plan is malformed")
	}
	res.Plan = lowered
	res.Outcome = OutcomeLocal
	if len(res.Pushed) > 0 {
		res.Outcome = OutcomePushed
	}

	log.Debug("compilation finished",
		"outcome", res.Outcome,
		"pushed", len(res.Pushed),
		"iterations", rep.Iterations,
		"classes", rep.Classes,
		"cost", cost.Total,
	)
	return res, x, nil
}

func (c *Compiler) fallback(res *Result, e *plan.Expr, code DiagnosticCode, err error) *Result {
	if c.cfg.RequirePushdown {
		return nil
	}
	res.Plan = e.Clone()
	res.Outcome = OutcomeFallback
	res.Diagnostics = append(res.Diagnostics, Diagnostic{
		Code:    code,
		Message: "no push-down applied: " + err.Error(),
	})
	return res
}

func (c *Compiler) fallbackErr(code DiagnosticCode, err error) error {
	if !c.cfg.RequirePushdown {
		return nil
	}
	return &FallbackError{Code: code, Err: err}
}

// lower replaces every finalized wrapper with the SQLScan it renders to.
func (c *Compiler) lower(e *plan.Expr, pushed *[]plan.PushedSQL) (*plan.Expr, error) {
	if e.Op == plan.OpCubeScanWrapper {
		q, err := c.renderer.Render(e)
		if err != nil {
			return nil, err
		}
		*pushed = append(*pushed, q)
		return plan.NewSQLScan(q), nil
	}
	out := &plan.Expr{Op: e.Op, Payload: e.Payload}
	if e.Children != nil {
		out.Children = make([]*plan.Expr, len(e.Children))
		for i, ch := range e.Children {
			lowered, err := c.lower(ch, pushed)
			if err != nil {
				return nil, err
			}
			out.Children[i] = lowered
		}
	}
	return out, nil
}
