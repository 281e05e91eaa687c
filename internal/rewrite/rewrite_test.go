package rewrite

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yautze/cube/internal/meta"
	"github.com/yautze/cube/internal/plan"
	"github.com/yautze/cube/internal/testutil"
)

// run applies rules until nothing changes. Each (rule, root, bindings)
// fires at most once.
func run(t *testing.T, g *Graph, rules []Rule) {
	t.Helper()
	fired := map[string]bool{}
	for range 64 {
		handles, unions := g.NumHandles(), g.Unions()
		type pending struct {
			rule  Rule
			match Match
		}
		var todo []pending
		for _, r := range rules {
			for _, m := range r.Searcher.Search(g) {
				key := r.Name + "@" + strconv.Itoa(int(g.Find(m.Root))) + ":" + m.Subst.Key(g)
				if fired[key] {
					continue
				}
				fired[key] = true
				todo = append(todo, pending{r, m})
			}
		}
		for _, p := range todo {
			for _, id := range p.rule.Applier.Apply(g, p.match) {
				_, _, err := g.Union(p.match.Root, id)
				require.NoError(t, err)
			}
		}
		g.Rebuild()
		if g.NumHandles() == handles && g.Unions() == unions {
			return
		}
	}
	t.Fatal("rules did not reach a fixpoint")
}

func contextLeaves(g *Graph, inProjection bool) [4]plan.ID {
	return [4]plan.ID{
		g.Add(plan.Leaf(plan.OpAliasToCube, testutil.OrdersBinding)),
		g.Add(plan.Leaf(plan.OpFlag, plan.Bool(false))),
		g.Add(plan.Leaf(plan.OpFlag, plan.Bool(inProjection))),
		g.Add(plan.Leaf(plan.OpCubeMembers, plan.Members(nil))),
	}
}

func pushed(g *Graph, e *plan.Expr, mode ListMode) (plan.ID, plan.ID) {
	inner, _ := Insert(g, e, mode)
	return g.Add(replacerNode(plan.OpPushdownReplacer, inner, contextLeaves(g, false))), inner
}

// elements decodes a list class in either mode.
func elements(t *testing.T, g *Graph, id plan.ID, op plan.Op, mode ListMode) []plan.ID {
	t.Helper()
	var out []plan.ID
	for {
		var cell plan.Node
		found := false
		for n := range g.NodesOf(id, op) {
			cell, found = n, true
			break
		}
		require.True(t, found, "class %d has no %s", id, op)
		if mode == ListFlat {
			for _, ch := range cell.Children {
				out = append(out, g.Find(ch))
			}
			return out
		}
		if len(cell.Children) == 0 {
			return out
		}
		out = append(out, g.Find(cell.Children[0]))
		id = cell.Children[1]
	}
}

func pulledInner(g *Graph, id plan.ID) (plan.ID, bool) {
	for n := range g.NodesOf(id, plan.OpPullupReplacer) {
		return n.Children[plan.ReplacerInner], true
	}
	return 0, false
}

func TestPattern_RepeatedVariable(t *testing.T) {
	g := NewGraph()
	one, _ := Insert(g, plan.NewLiteral(plan.Int(1)), ListFlat)
	plus := g.Add(plan.Leaf(plan.OpName, plan.String("+")))
	two, _ := Insert(g, plan.NewLiteral(plan.Int(2)), ListFlat)
	same := g.Add(plan.Node{Op: plan.OpBinary, Children: []plan.ID{one, plus, one}})
	mixed := g.Add(plan.Node{Op: plan.OpBinary, Children: []plan.ID{one, plus, two}})

	p := P(plan.OpBinary, V("x"), Leaf(plan.OpName, plan.String("+")), V("x"))
	matches := p.Search(g)
	require.Len(t, matches, 1)
	assert.Equal(t, same, matches[0].Root)
	assert.Empty(t, p.MatchAt(g, mixed))

	x, ok := matches[0].Subst.Get("x")
	require.True(t, ok)
	assert.Equal(t, one, x)
}

func TestPattern_BindForms(t *testing.T) {
	g := NewGraph()
	col, _ := Insert(g, plan.NewColumn("orders", "amount"), ListFlat)
	emptyList := g.Add(plan.Node{Op: plan.OpGroupExprs})
	fullList := g.Add(plan.Node{Op: plan.OpGroupExprs, Children: []plan.ID{col}})

	assert.Len(t, Bind("l", plan.OpGroupExprs).MatchAt(g, fullList), 1, "bare bind accepts any children")
	assert.Len(t, Bind("l", plan.OpGroupExprs).MatchAt(g, emptyList), 1)
	assert.Empty(t, BindEmpty("l", plan.OpGroupExprs).MatchAt(g, fullList))
	assert.Len(t, BindEmpty("l", plan.OpGroupExprs).MatchAt(g, emptyList), 1)
	assert.Empty(t, P(plan.OpGroupExprs).MatchAt(g, fullList), "a term without children matches only empty lists")

	assert.Equal(t, "?l@GroupExprs", Bind("l", plan.OpGroupExprs).String())
	assert.Equal(t, "Binary(?a Name{\"+\"} ?b)",
		P(plan.OpBinary, V("a"), Leaf(plan.OpName, plan.String("+")), V("b")).String())
}

func TestInstantiate_UnboundVariablePanics(t *testing.T) {
	g := NewGraph()
	assert.Panics(t, func() { Instantiate(g, P(plan.OpFilter, V("a"), V("b")), nil) })
}

func TestRewrite_UnboundRightHandSidePanics(t *testing.T) {
	lhs := P(plan.OpFilter, V("predicate"), Bind("input", plan.OpCubeScan))
	assert.Equal(t, []string{"predicate", "input"}, lhs.Vars())
	assert.NotPanics(t, func() { Rewrite("ok", KindTransform, lhs, P(plan.OpFilter, V("predicate"), V("input"))) })
	assert.Panics(t, func() { Rewrite("bad", KindTransform, lhs, P(plan.OpFilter, V("predicate"), V("other"))) })
	assert.NotPanics(t, func() {
		TransformingRewrite("cond", KindTransform, lhs, P(plan.OpFilter, V("predicate"), V("other")), nil)
	}, "a condition may bind more variables")
}

func TestInsert_ConsMode(t *testing.T) {
	g := NewGraph()
	a := plan.NewColumn("orders", "a")
	b := plan.NewColumn("orders", "b")
	id, nodes := Insert(g, plan.NewList(plan.OpGroupExprs, a, b), ListCons)

	aID, ok := g.Lookup(plan.Leaf(plan.OpColumn, a.Payload))
	require.True(t, ok)
	bID, ok := g.Lookup(plan.Leaf(plan.OpColumn, b.Payload))
	require.True(t, ok)

	assert.Equal(t, []plan.ID{aID, bID}, elements(t, g, id, plan.OpGroupExprs, ListCons))
	// two columns, the empty tail and two cells
	assert.Len(t, nodes, 5)
}

func TestAnalysis_AggregateFacts(t *testing.T) {
	g := NewGraph()
	sum := plan.NewAggFun("SUM", false, []*plan.Expr{plan.NewColumn("orders", "amount")}, nil)
	cmp := plan.NewBinary(sum, ">", plan.NewLiteral(plan.Int(10)))
	sumID, _ := Insert(g, sum, ListFlat)
	cmpID, _ := Insert(g, cmp, ListFlat)
	scanID, _ := Insert(g, plan.NewCubeScan(testutil.OrdersBinding, nil, false), ListFlat)
	filterID := g.Add(plan.Node{Op: plan.OpFilter, Children: []plan.ID{cmpID, scanID}})

	assert.True(t, g.Data(sumID).IsAggregate)
	assert.False(t, g.Data(cmpID).IsAggregate)
	assert.True(t, g.Data(cmpID).ReferencesAggregate)
	assert.Equal(t, testutil.OrdersBinding, g.Data(scanID).AliasToCube)
	assert.Equal(t, testutil.OrdersBinding, g.Data(filterID).AliasToCube)
	assert.False(t, g.Data(filterID).ReferencesAggregate, "plan nodes do not inherit expression facts")
}

func TestPushdown_AlwaysAvailable(t *testing.T) {
	push := make([]Rule, 0)
	for _, r := range NewRules(nil, DefaultConfig()) {
		if r.Kind == KindPushDown {
			push = append(push, r)
		}
	}

	for _, op := range plan.Ops() {
		if !composite(op) {
			continue
		}
		t.Run(op.String(), func(t *testing.T) {
			g := NewGraph()
			ctx := contextLeaves(g, false)
			slots := op.Info().Slots
			children := make([]plan.ID, len(slots))
			for i := range slots {
				children[i] = g.Add(plan.Leaf(plan.OpLiteral, plan.Int(int64(100+i))))
			}
			root := g.Add(replacerNode(plan.OpPushdownReplacer,
				g.Add(plan.Node{Op: op, Children: children}), ctx))

			for _, r := range push {
				for _, m := range r.Searcher.Search(g) {
					for _, id := range r.Applier.Apply(g, m) {
						_, _, err := g.Union(m.Root, id)
						require.NoError(t, err)
					}
				}
			}
			g.Rebuild()

			want := plan.Node{Op: op, Children: make([]plan.ID, len(slots))}
			for i, slot := range slots {
				if slot == plan.SlotPayload {
					want.Children[i] = children[i]
					continue
				}
				wrapped, ok := g.Lookup(replacerNode(plan.OpPushdownReplacer, children[i], ctx))
				require.True(t, ok, "slot %d is wrapped", i)
				want.Children[i] = wrapped
			}
			id, ok := g.Lookup(want)
			require.True(t, ok, "distributed node exists")
			assert.Equal(t, g.Find(root), id)
		})
	}
}

func TestAggregatePullup_CapabilityGating(t *testing.T) {
	x := plan.NewColumn("orders", "x")
	y := plan.NewSortExpr(plan.NewColumn("orders", "y"), true, false)

	tests := []struct {
		name        string
		fun         string
		distinct    bool
		withinGroup []*plan.Expr
		disable     []string
		pulled      bool
	}{
		{"sum", "SUM", false, nil, nil, true},
		{"lower-case name", "sum", false, nil, nil, true},
		{"count distinct uses its own key", "COUNT", true, nil, []string{"functions/COUNT"}, true},
		{"count distinct without key", "COUNT", true, nil, []string{"functions/COUNT_DISTINCT"}, false},
		{"plain count without key", "COUNT", false, nil, []string{"functions/COUNT"}, false},
		{"distinct sum keeps its key", "SUM", true, nil, nil, true},
		{"unknown function", "MEDIAN", false, nil, nil, false},
		{"within group supported", "PERCENTILE", false, []*plan.Expr{y}, nil, true},
		{"within group unsupported", "PERCENTILE", false, []*plan.Expr{y}, []string{meta.KeyWithinGroup}, false},
		{"empty within group needs nothing", "PERCENTILE", false, nil, []string{meta.KeyWithinGroup}, true},
	}
	for _, mode := range []ListMode{ListFlat, ListCons} {
		for _, tt := range tests {
			t.Run(fmt.Sprintf("%s/%s", mode, tt.name), func(t *testing.T) {
				cfg := DefaultConfig()
				cfg.ListMode = mode
				g := NewGraph()
				root, inner := pushed(g, plan.NewAggFun(tt.fun, tt.distinct, []*plan.Expr{x}, tt.withinGroup), mode)
				run(t, g, NewRules(testutil.Meta(t, tt.disable...), cfg))

				got, ok := pulledInner(g, root)
				assert.Equal(t, tt.pulled, ok)
				if ok {
					assert.Equal(t, g.Find(inner), g.Find(got), "pull-up rebuilds the original call")
				}
			})
		}
	}
}

func TestColumnPushdown_RespectsMembers(t *testing.T) {
	m := testutil.Meta(t)
	g := NewGraph()
	inner, _ := Insert(g, plan.NewColumn("orders", "secret"), ListFlat)
	members := g.Add(plan.Leaf(plan.OpCubeMembers, plan.Members{"Orders.amount"}))
	ctx := contextLeaves(g, false)
	ctx[3] = members
	root := g.Add(replacerNode(plan.OpPushdownReplacer, inner, ctx))

	allowedInner, _ := Insert(g, plan.NewColumn("orders", "amount"), ListFlat)
	allowed := g.Add(replacerNode(plan.OpPushdownReplacer, allowedInner, ctx))

	run(t, g, NewRules(m, DefaultConfig()))
	assert.False(t, g.Data(root).PulledUp)
	assert.True(t, g.Data(allowed).PulledUp)
}

func TestColumnPushdown_DefaultsToCubeMembers(t *testing.T) {
	m, err := meta.New(
		[]meta.Cube{{Name: "Orders", SQLTable: "public.orders", DataSource: "default", Members: []string{"Orders.amount"}}},
		[]meta.DataSource{{Name: "default"}},
	)
	require.NoError(t, err)

	g := NewGraph()
	ctx := contextLeaves(g, false)
	secretInner, _ := Insert(g, plan.NewColumn("orders", "secret"), ListFlat)
	secret := g.Add(replacerNode(plan.OpPushdownReplacer, secretInner, ctx))
	amountInner, _ := Insert(g, plan.NewColumn("orders", "amount"), ListFlat)
	amount := g.Add(replacerNode(plan.OpPushdownReplacer, amountInner, ctx))

	gated := ctx
	gated[3] = g.Add(plan.Leaf(plan.OpCubeMembers, plan.Members{"Orders.secret"}))
	overrideInner, _ := Insert(g, plan.NewColumn("orders", "secret"), ListFlat)
	override := g.Add(replacerNode(plan.OpPushdownReplacer, overrideInner, gated))

	ungated := ctx
	ungated[3] = g.Add(plan.Leaf(plan.OpCubeMembers, plan.Members{AllMembers}))
	anyInner, _ := Insert(g, plan.NewColumn("", "SUM(orders.amount)"), ListFlat)
	anyCol := g.Add(replacerNode(plan.OpPushdownReplacer, anyInner, ungated))

	run(t, g, NewRules(m, DefaultConfig()))
	assert.False(t, g.Data(secret).PulledUp, "undeclared member")
	assert.True(t, g.Data(amount).PulledUp)
	assert.True(t, g.Data(override).PulledUp, "the scan's own list wins")
	assert.True(t, g.Data(anyCol).PulledUp)
}

func TestProjectionSubquery(t *testing.T) {
	e := plan.NewProjection(
		plan.NewAggregate(testutil.Scan(),
			[]*plan.Expr{testutil.Col("status")},
			[]*plan.Expr{plan.NewAggFun("sum", false, []*plan.Expr{testutil.Col("amount")}, nil)}),
		[]*plan.Expr{plan.NewAlias(plan.NewColumn("", "SUM(orders.amount)"), "total")},
		"",
	)
	tests := []struct {
		name    string
		disable []string
		cfg     func(*Config)
		want    bool
	}{
		{name: "pushed", want: true},
		{name: "no alias template", disable: []string{meta.KeyAlias}},
		{name: "projection rules off", cfg: func(c *Config) { c.Projection = false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			g := NewGraph()
			root, _ := Insert(g, e, ListFlat)
			run(t, g, NewRules(testutil.Meta(t, tt.disable...), cfg))

			assert.Equal(t, tt.want, g.Data(root).Finalized)
		})
	}
}

func TestListRules_PreserveLengthAndOrder(t *testing.T) {
	for _, mode := range []ListMode{ListFlat, ListCons} {
		for _, n := range []int{0, 1, 3, 7} {
			t.Run(fmt.Sprintf("%s/%d", mode, n), func(t *testing.T) {
				cfg := DefaultConfig()
				cfg.ListMode = mode
				g := NewGraph()
				elems := make([]*plan.Expr, n)
				for i := range elems {
					elems[i] = plan.NewColumn("orders", fmt.Sprintf("c%d", i))
				}
				root, _ := pushed(g, plan.NewList(plan.OpProjectionExprs, elems...), mode)
				run(t, g, NewRules(testutil.Meta(t), cfg))

				inner, ok := pulledInner(g, root)
				require.True(t, ok)
				got := elements(t, g, inner, plan.OpWrappedProjectionExprs, mode)
				require.Len(t, got, n)
				for i, e := range elems {
					want, ok := g.Lookup(plan.Leaf(plan.OpColumn, e.Payload))
					require.True(t, ok)
					assert.Equal(t, want, got[i], "element %d", i)
				}
			})
		}
	}
}

func TestScalarPullup_NeedsTemplate(t *testing.T) {
	upper := plan.NewScalarFun("upper", plan.NewColumn("orders", "status"))

	g := NewGraph()
	root, _ := pushed(g, upper, ListFlat)
	run(t, g, NewRules(testutil.Meta(t), DefaultConfig()))
	assert.True(t, g.Data(root).PulledUp)

	g = NewGraph()
	root, _ = pushed(g, upper, ListFlat)
	run(t, g, NewRules(testutil.Meta(t, "functions/UPPER"), DefaultConfig()))
	assert.False(t, g.Data(root).PulledUp)
}

func TestAliasPullup_OnlyInProjection(t *testing.T) {
	alias := plan.NewAlias(plan.NewColumn("orders", "amount"), "total")
	rules := NewRules(testutil.Meta(t), DefaultConfig())

	for _, inProjection := range []bool{true, false} {
		g := NewGraph()
		inner, _ := Insert(g, alias, ListFlat)
		root := g.Add(replacerNode(plan.OpPushdownReplacer, inner, contextLeaves(g, inProjection)))
		run(t, g, rules)
		assert.Equal(t, inProjection, g.Data(root).PulledUp, "in_projection=%v", inProjection)
	}
}

func windowFun(name, col string) *plan.Expr {
	return plan.NewWindowFun(name, nil, []*plan.Expr{plan.NewColumn("orders", col)}, nil)
}

func TestWindowMerge_KeepsSegments(t *testing.T) {
	prev := []*plan.Expr{windowFun("RANK", "a"), windowFun("ROW_NUMBER", "b")}
	next := []*plan.Expr{windowFun("RANK", "c"), windowFun("RANK", "d"), windowFun("ROW_NUMBER", "e")}
	scan := plan.NewCubeScan(testutil.OrdersBinding, nil, false)
	tree := plan.NewWindow(plan.NewWindow(scan, prev), next)

	g := NewGraph()
	root, _ := Insert(g, tree, ListFlat)
	run(t, g, NewRules(testutil.Meta(t), DefaultConfig()))

	var merged []plan.Node
	for class := range g.Classes() {
		for _, n := range class.Nodes {
			if n.Op == plan.OpWindowExprs && len(n.Children) == 5 {
				merged = append(merged, n)
			}
		}
	}
	require.Len(t, merged, 1)

	wantInner := func(e *plan.Expr) plan.ID {
		id, _ := Insert(g, e, ListFlat)
		return id
	}
	for i, ch := range merged[0].Children {
		op := plan.OpPushdownReplacer
		src := next
		idx := i - len(prev)
		if i < len(prev) {
			op, src, idx = plan.OpPullupReplacer, prev, i
		}
		found := false
		for n := range g.NodesOf(ch, op) {
			found = found || g.Find(n.Children[plan.ReplacerInner]) == wantInner(src[idx])
		}
		assert.True(t, found, "element %d is %s of its source", i, op)
	}

	assert.True(t, g.Data(root).Finalized, "both windows end up in one select")
}

func TestWindowMerge_ConsMode(t *testing.T) {
	prev := []*plan.Expr{windowFun("RANK", "a"), windowFun("ROW_NUMBER", "b")}
	next := []*plan.Expr{windowFun("RANK", "c"), windowFun("RANK", "d"), windowFun("ROW_NUMBER", "e")}
	tree := plan.NewWindow(plan.NewWindow(plan.NewCubeScan(testutil.OrdersBinding, nil, false), prev), next)

	cfg := DefaultConfig()
	cfg.ListMode = ListCons
	g := NewGraph()
	root, _ := Insert(g, tree, ListCons)
	run(t, g, NewRules(testutil.Meta(t), cfg))
	assert.True(t, g.Data(root).Finalized)
}

func TestFilter_AggregatePredicateStaysLocal(t *testing.T) {
	scan := plan.NewCubeScan(testutil.OrdersBinding, nil, false)
	sum := plan.NewAggFun("SUM", false, []*plan.Expr{plan.NewColumn("orders", "amount")}, nil)

	g := NewGraph()
	bad, _ := Insert(g, plan.NewFilter(plan.NewBinary(sum, ">", plan.NewLiteral(plan.Int(1))), scan), ListFlat)
	good, _ := Insert(g, plan.NewFilter(plan.NewBinary(plan.NewColumn("orders", "amount"), ">", plan.NewLiteral(plan.Int(1))), scan), ListFlat)
	run(t, g, NewRules(testutil.Meta(t), DefaultConfig()))

	assert.False(t, g.Data(bad).Finalized)
	assert.True(t, g.Data(good).Finalized)
}

func TestWrapperRules_Toggles(t *testing.T) {
	scan := plan.NewCubeScan(testutil.OrdersBinding, nil, false)
	sum := plan.NewAggFun("SUM", false, []*plan.Expr{plan.NewColumn("orders", "amount")}, nil)
	tree := plan.NewAggregate(scan, nil, []*plan.Expr{sum})

	cfg := DefaultConfig()
	cfg.Aggregate = false
	g := NewGraph()
	root, _ := Insert(g, tree, ListFlat)
	run(t, g, NewRules(testutil.Meta(t), cfg))
	assert.False(t, g.Data(root).Finalized)

	g = NewGraph()
	root, _ = Insert(g, tree, ListFlat)
	run(t, g, NewRules(testutil.Meta(t), DefaultConfig()))
	assert.True(t, g.Data(root).Finalized)
}

func TestNewRules_UniqueNames(t *testing.T) {
	for _, mode := range []ListMode{ListFlat, ListCons} {
		cfg := DefaultConfig()
		cfg.ListMode = mode
		seen := map[string]bool{}
		for _, r := range NewRules(nil, cfg) {
			assert.False(t, seen[r.Name], "duplicate rule %s", r.Name)
			seen[r.Name] = true
			assert.NotZero(t, r.Kind)
		}
		assert.True(t, seen["wrapper-pull-up-aggregate-function"])
		assert.True(t, seen["wrapper-push-down-within-group-empty"])
	}
}

func TestParseListMode(t *testing.T) {
	m, err := ParseListMode("cons")
	require.NoError(t, err)
	assert.Equal(t, ListCons, m)
	m, err = ParseListMode("")
	require.NoError(t, err)
	assert.Equal(t, ListFlat, m)
	_, err = ParseListMode("tree")
	assert.Error(t, err)
}
