package sqlgen

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yautze/cube/internal/meta"
	"github.com/yautze/cube/internal/plan"
	"github.com/yautze/cube/internal/rewrite"
	"github.com/yautze/cube/internal/saturate"
	"github.com/yautze/cube/internal/testutil"
)

// pushed saturates e and returns the extracted wrapper.
func pushed(t *testing.T, m *meta.Context, e *plan.Expr) *plan.Expr {
	t.Helper()
	g := rewrite.NewGraph()
	root, original := rewrite.Insert(g, e, rewrite.ListFlat)
	_, err := saturate.New(rewrite.NewRules(m, rewrite.DefaultConfig())).Run(context.Background(), g)
	require.NoError(t, err)
	out, _, err := saturate.Extract(g, root, original)
	require.NoError(t, err)
	require.Equal(t, plan.OpCubeScanWrapper, out.Op, "plan was not pushed down:\n%s", out)
	return out
}

func TestRender_Golden(t *testing.T) {
	fetch := int64(10)
	tests := []struct {
		name string
		plan *plan.Expr
	}{
		{
			name: "sum_amount",
			plan: plan.NewAggregate(testutil.Scan(), nil, []*plan.Expr{
				plan.NewAggFun("sum", false, []*plan.Expr{testutil.Col("amount")}, nil),
			}),
		},
		{
			name: "count_distinct_sorted",
			plan: plan.NewSort(
				plan.NewAggregate(testutil.Scan(),
					[]*plan.Expr{testutil.Col("status")},
					[]*plan.Expr{plan.NewAggFun("count", true, []*plan.Expr{testutil.Col("id")}, nil)}),
				[]*plan.Expr{plan.NewSortExpr(testutil.Col("status"), true, false)},
			),
		},
		{
			name: "filtered_projection",
			plan: plan.NewProjection(
				plan.NewFilter(plan.NewBinary(testutil.Col("status"), "=", plan.NewLiteral(plan.String("paid"))), testutil.Scan()),
				[]*plan.Expr{testutil.Col("amount")},
				"",
			),
		},
		{
			name: "limited_projection",
			plan: plan.NewLimit(plan.NewProjection(testutil.Scan(), []*plan.Expr{testutil.Col("amount")}, ""), nil, &fetch),
		},
		{
			name: "projection_over_aggregate",
			plan: plan.NewProjection(
				plan.NewAggregate(testutil.Scan(),
					[]*plan.Expr{testutil.Col("status")},
					[]*plan.Expr{plan.NewAggFun("sum", false, []*plan.Expr{testutil.Col("amount")}, nil)}),
				[]*plan.Expr{testutil.Col("status"), plan.NewAlias(plan.NewColumn("", "SUM(orders.amount)"), "total")},
				"",
			),
		},
		{
			name: "window",
			plan: plan.NewWindow(testutil.Scan(), []*plan.Expr{
				plan.NewWindowFun("row_number", nil, nil, []*plan.Expr{plan.NewSortExpr(testutil.Col("amount"), true, false)}),
			}),
		},
	}

	m := testutil.Meta(t)
	r := NewRenderer(m)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := r.Render(pushed(t, m, tt.plan))
			require.NoError(t, err)
			assert.Equal(t, "default", q.DataSource)
			assert.Equal(t, testutil.OrdersBinding, q.AliasToCube)
			g.Assert(t, tt.name, []byte(q.SQL))
		})
	}
}

func TestRender_QuoteTemplates(t *testing.T) {
	m := testutil.OrdersMeta(t, meta.DataSource{Templates: map[string]string{
		meta.KeyQuoteIdentifier: "`",
		meta.KeyQuoteEscape:     "``",
	}})
	e := plan.NewAggregate(testutil.Scan(), nil, []*plan.Expr{
		plan.NewAggFun("max", false, []*plan.Expr{testutil.Col("amount")}, nil),
	})

	q, err := NewRenderer(m).Render(pushed(t, m, e))
	require.NoError(t, err)
	assert.Equal(t, "SELECT MAX(`orders`.`amount`) FROM public.orders AS `orders`", q.SQL)
}

func TestRender_Literals(t *testing.T) {
	tests := []struct {
		in   plan.Payload
		want string
	}{
		{plan.Null{}, "NULL"},
		{plan.Bool(true), "TRUE"},
		{plan.Bool(false), "FALSE"},
		{plan.Int(-3), "-3"},
		{plan.String("it's"), "'it''s'"},
	}
	for _, tt := range tests {
		got, err := literal(plan.NewLiteral(tt.in))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestRender_Rejects(t *testing.T) {
	m := testutil.Meta(t)
	r := NewRenderer(m)

	_, err := r.Render(testutil.Scan())
	var re *RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, plan.OpCubeScan, re.Op)

	unfinalized := &plan.Expr{Op: plan.OpCubeScanWrapper, Children: []*plan.Expr{testutil.Scan(), plan.NewFlag(false)}}
	_, err = r.Render(unfinalized)
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Message, "not finalized")

	_, err = r.Render(nil)
	require.Error(t, err)
}

func TestRender_MissingTemplate(t *testing.T) {
	m := testutil.Meta(t)
	w := pushed(t, m, plan.NewAggregate(testutil.Scan(), nil, []*plan.Expr{
		plan.NewAggFun("sum", false, []*plan.Expr{testutil.Col("amount")}, nil),
	}))

	// Same cube, but a destination that cannot render SUM.
	other, err := meta.New(
		[]meta.Cube{{Name: "Orders", SQLTable: "public.orders", DataSource: "default"}},
		[]meta.DataSource{{Name: "default", Disable: []string{"functions/SUM"}}},
	)
	require.NoError(t, err)

	_, err = NewRenderer(other).Render(w)
	var te *meta.TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "functions/SUM", te.Key)
}

func TestRender_SubqueryNeedsAlias(t *testing.T) {
	m := testutil.Meta(t, meta.KeyAlias)
	e := plan.NewProjection(
		plan.NewAggregate(testutil.Scan(), nil,
			[]*plan.Expr{plan.NewAggFun("sum", false, []*plan.Expr{testutil.Col("amount")}, nil)}),
		[]*plan.Expr{plan.NewColumn("", "SUM(orders.amount)")},
		"",
	)
	g := rewrite.NewGraph()
	root, original := rewrite.Insert(g, e, rewrite.ListFlat)
	_, err := saturate.New(rewrite.NewRules(m, rewrite.DefaultConfig())).Run(context.Background(), g)
	require.NoError(t, err)
	out, _, err := saturate.Extract(g, root, original)
	require.NoError(t, err)
	assert.Equal(t, plan.OpProjection, out.Op, "projection stays local:\n%s", out)
	assert.Equal(t, plan.OpCubeScanWrapper, out.Child(1).Op)
}
