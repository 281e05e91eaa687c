package saturate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yautze/cube/internal/meta"
	"github.com/yautze/cube/internal/plan"
	"github.com/yautze/cube/internal/rewrite"
	"github.com/yautze/cube/internal/testutil"
)

func runner(t *testing.T, m *meta.Context, mode rewrite.ListMode, opts ...Option) *Runner {
	t.Helper()
	cfg := rewrite.DefaultConfig()
	cfg.ListMode = mode
	return New(rewrite.NewRules(m, cfg), opts...)
}

func saturate(t *testing.T, r *Runner, e *plan.Expr, mode rewrite.ListMode) (*plan.Expr, Report) {
	t.Helper()
	g := rewrite.NewGraph()
	root, original := rewrite.Insert(g, e, mode)
	rep, err := r.Run(context.Background(), g)
	require.NoError(t, err)
	out, _, err := Extract(g, root, original)
	require.NoError(t, err)
	return out, rep
}

func TestRun_ZeroIterationsIsExhausted(t *testing.T) {
	r := runner(t, testutil.Meta(t), rewrite.ListFlat, WithBudget(Budget{MaxIterations: 0, MaxNodes: DefaultMaxNodes}))
	g := rewrite.NewGraph()
	rewrite.Insert(g, testutil.SumAmount(), rewrite.ListFlat)

	rep, err := r.Run(context.Background(), g)
	require.Error(t, err)
	assert.True(t, IsBudgetExceeded(err))
	assert.Equal(t, StopBudgetExceeded, rep.Stop)
	assert.Zero(t, rep.Iterations)

	var be *BudgetExceededError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, LimitIterations, be.Limit)
}

func TestRun_NodeBudget(t *testing.T) {
	r := runner(t, testutil.Meta(t), rewrite.ListFlat, WithBudget(Budget{MaxIterations: 64, MaxNodes: 20}))
	g := rewrite.NewGraph()
	rewrite.Insert(g, testutil.SumAmount(), rewrite.ListFlat)

	rep, err := r.Run(context.Background(), g)
	var be *BudgetExceededError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, LimitNodes, be.Limit)
	assert.Greater(t, be.Nodes, 20)
	assert.Equal(t, g.NumHandles(), be.Nodes, "the bound counts every node added")
	assert.LessOrEqual(t, rep.Nodes, be.Nodes, "merged nodes still count")
}

func TestRun_SmallIterationBudget(t *testing.T) {
	r := runner(t, testutil.Meta(t), rewrite.ListFlat, WithBudget(Budget{MaxIterations: 1, MaxNodes: DefaultMaxNodes}))
	g := rewrite.NewGraph()
	rewrite.Insert(g, testutil.SumAmount(), rewrite.ListFlat)

	rep, err := r.Run(context.Background(), g)
	require.Error(t, err)
	assert.True(t, IsBudgetExceeded(err))
	assert.Equal(t, StopBudgetExceeded, rep.Stop)
	assert.Equal(t, 1, rep.Iterations)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := runner(t, testutil.Meta(t), rewrite.ListFlat)
	g := rewrite.NewGraph()
	rewrite.Insert(g, testutil.SumAmount(), rewrite.ListFlat)

	rep, err := r.Run(ctx, g)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StopCancelled, rep.Stop)
}

func TestRun_ReachesFixpoint(t *testing.T) {
	for _, mode := range []rewrite.ListMode{rewrite.ListFlat, rewrite.ListCons} {
		t.Run(mode.String(), func(t *testing.T) {
			_, rep := saturate(t, runner(t, testutil.Meta(t), mode), testutil.SumAmount(), mode)
			assert.Equal(t, StopSaturated, rep.Stop)
			assert.Positive(t, rep.Applied["wrapper-aggregate"])
			assert.Positive(t, rep.Applied["wrapper-finalize-cube-scan-wrapper"])
			assert.Positive(t, rep.Classes)
		})
	}
}

func TestExtract_PushesAggregate(t *testing.T) {
	for _, mode := range []rewrite.ListMode{rewrite.ListFlat, rewrite.ListCons} {
		t.Run(mode.String(), func(t *testing.T) {
			out, _ := saturate(t, runner(t, testutil.Meta(t), mode), testutil.SumAmount(), mode)
			require.Equal(t, plan.OpCubeScanWrapper, out.Op)
			assert.Equal(t, plan.Bool(true), out.Child(1).Payload)

			ws := out.Child(0)
			require.Equal(t, plan.OpWrappedSelect, ws.Op)
			assert.Equal(t, plan.String(rewrite.SelectAggregate), ws.Child(plan.WSSelectType).Payload)
			aggr := ws.Child(plan.WSAggr)
			assert.Equal(t, plan.OpWrappedAggrExprs, aggr.Op)
			require.Len(t, aggr.Children, 1)
			assert.Equal(t, plan.OpAggFun, aggr.Child(0).Op)
			assert.Equal(t, plan.OpCubeScan, ws.Child(plan.WSInput).Op)
		})
	}
}

func TestExtract_UnsupportedAggregateStaysLocal(t *testing.T) {
	out, _ := saturate(t, runner(t, testutil.Meta(t, "functions/SUM"), rewrite.ListFlat), testutil.SumAmount(), rewrite.ListFlat)
	require.Equal(t, plan.OpAggregate, out.Op)
	assert.Equal(t, plan.OpCubeScan, out.Child(0).Op, "a scan with nothing pushed stays a scan")
	assert.True(t, out.Equal(testutil.SumAmount()))
}

func TestExtract_WithoutRewritesReturnsInput(t *testing.T) {
	e := plan.NewProjection(
		plan.NewCubeScan(testutil.OrdersBinding, plan.Members{"Orders.amount"}, false),
		[]*plan.Expr{
			plan.NewColumn("orders", "amount"),
			plan.NewScalarFun("upper", plan.NewColumn("orders", "status")),
			plan.NewLiteral(plan.Int(7)),
		},
		"",
	)
	for _, mode := range []rewrite.ListMode{rewrite.ListFlat, rewrite.ListCons} {
		t.Run(mode.String(), func(t *testing.T) {
			g := rewrite.NewGraph()
			root, original := rewrite.Insert(g, e, mode)
			g.Rebuild()
			out, cost, err := Extract(g, root, original)
			require.NoError(t, err)
			assert.True(t, out.Equal(e), "got %s", out)
			assert.Zero(t, cost.Rewritten)
		})
	}
}

func TestExtract_Deterministic(t *testing.T) {
	e := plan.NewSort(
		plan.NewAggregate(
			plan.NewCubeScan(testutil.OrdersBinding, nil, false),
			[]*plan.Expr{plan.NewColumn("orders", "status")},
			[]*plan.Expr{plan.NewAggFun("count", true, []*plan.Expr{plan.NewColumn("orders", "id")}, nil)},
		),
		[]*plan.Expr{plan.NewSortExpr(plan.NewColumn("orders", "status"), true, false)},
	)
	m := testutil.Meta(t)
	first, _ := saturate(t, runner(t, m, rewrite.ListFlat), e, rewrite.ListFlat)
	for range 5 {
		again, _ := saturate(t, runner(t, m, rewrite.ListFlat), e, rewrite.ListFlat)
		assert.Equal(t, plan.MustFingerprint(first), plan.MustFingerprint(again))
	}
}

func TestExtract_NoFeasibleTerm(t *testing.T) {
	g := rewrite.NewGraph()
	col, _ := rewrite.Insert(g, plan.NewColumn("orders", "amount"), rewrite.ListFlat)
	ctx := []plan.ID{
		g.Add(plan.Leaf(plan.OpAliasToCube, testutil.OrdersBinding)),
		g.Add(plan.Leaf(plan.OpFlag, plan.Bool(false))),
		g.Add(plan.Leaf(plan.OpFlag, plan.Bool(false))),
		g.Add(plan.Leaf(plan.OpCubeMembers, plan.Members(nil))),
	}
	root := g.Add(plan.Node{Op: plan.OpPushdownReplacer, Children: append([]plan.ID{col}, ctx...)})

	_, _, err := Extract(g, root, nil)
	require.Error(t, err)
}

func TestBudget_Validate(t *testing.T) {
	assert.NoError(t, DefaultBudget().Validate())
	assert.NoError(t, Budget{}.Validate())
	assert.Error(t, Budget{MaxIterations: -1}.Validate())
	assert.Error(t, Budget{MaxNodes: -1}.Validate())
}
