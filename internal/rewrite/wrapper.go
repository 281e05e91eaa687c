package rewrite

import (
	"github.com/yautze/cube/internal/meta"
	"github.com/yautze/cube/internal/plan"
)

// Select types of a WrappedSelect.
const (
	SelectProjection = "projection"
	SelectAggregate  = "aggregate"
)

var wsFields = [plan.WSNumFields]string{
	plan.WSSelectType:    "select_type",
	plan.WSProjection:    "projection",
	plan.WSSubqueries:    "subqueries",
	plan.WSGroup:         "group",
	plan.WSAggr:          "aggr",
	plan.WSWindow:        "window",
	plan.WSInput:         "input",
	plan.WSJoins:         "joins",
	plan.WSFilter:        "filter",
	plan.WSHaving:        "having",
	plan.WSLimit:         "limit",
	plan.WSOffset:        "offset",
	plan.WSOrder:         "order",
	plan.WSAlias:         "alias",
	plan.WSDistinct:      "distinct",
	plan.WSUngrouped:     "ungrouped",
	plan.WSUngroupedScan: "ungrouped_scan",
}

type slots map[int]*Pattern

func isChildSlot(i int) bool {
	return plan.OpWrappedSelect.Info().Slots[i] == plan.SlotChild
}

// selectOf returns a WrappedSelect whose slots are variables named after
// their field, except where over says otherwise.
func selectOf(over slots) *Pattern {
	children := make([]*Pattern, plan.WSNumFields)
	for i := range children {
		if p, ok := over[i]; ok {
			children[i] = p
			continue
		}
		children[i] = V(wsFields[i])
	}
	return P(plan.OpWrappedSelect, children...)
}

// rewrapped rebuilds a matched select for further rewriting: every child
// slot not in over is pulled up again, payload slots are copied.
func rewrapped(over slots) *Pattern {
	children := make([]*Pattern, plan.WSNumFields)
	for i := range children {
		switch p, ok := over[i]; {
		case ok:
			children[i] = p
		case isChildSlot(i):
			children[i] = pullupIn(V(wsFields[i]), false)
		default:
			children[i] = V(wsFields[i])
		}
	}
	return P(plan.OpWrappedSelect, children...)
}

// bare constrains a select to an unaggregated scan without a select list.
func bare(over slots) slots {
	s := slots{
		plan.WSSelectType: BindLeaf(wsFields[plan.WSSelectType], plan.OpName, plan.String(SelectProjection)),
		plan.WSProjection: BindEmpty(wsFields[plan.WSProjection], plan.OpWrappedProjectionExprs),
		plan.WSGroup:      BindEmpty(wsFields[plan.WSGroup], plan.OpWrappedGroupExprs),
		plan.WSAggr:       BindEmpty(wsFields[plan.WSAggr], plan.OpWrappedAggrExprs),
		plan.WSWindow:     BindEmpty(wsFields[plan.WSWindow], plan.OpWrappedWindowExprs),
	}
	for k, v := range over {
		s[k] = v
	}
	return s
}

func unlimited(over slots) slots {
	s := slots{
		plan.WSLimit:  BindLeaf(wsFields[plan.WSLimit], plan.OpNumber, plan.Null{}),
		plan.WSOffset: BindLeaf(wsFields[plan.WSOffset], plan.OpNumber, plan.Null{}),
	}
	for k, v := range over {
		s[k] = v
	}
	return s
}

func empty(field int, op plan.Op) slots {
	return slots{field: BindEmpty(wsFields[field], op)}
}

func wrapper(inner *Pattern, finalized bool) *Pattern {
	return P(plan.OpCubeScanWrapper, inner, flag(finalized))
}

// wrapped matches an unfinalized wrapper around a pulled-up select.
func wrapped(over slots) *Pattern {
	return wrapper(pullup(selectOf(over)), false)
}

func scanRules(m Meta) []Rule {
	wrappedScan := make([]*Pattern, plan.WSNumFields)
	for i := range wrappedScan {
		op := plan.OpWrappedSelect.Info().SlotOps[i]
		if op.IsList() {
			wrappedScan[i] = P(op)
		}
	}
	wrappedScan[plan.WSSelectType] = Leaf(plan.OpName, plan.String(SelectProjection))
	wrappedScan[plan.WSInput] = V("scan")
	wrappedScan[plan.WSLimit] = Leaf(plan.OpNumber, plan.Null{})
	wrappedScan[plan.WSOffset] = Leaf(plan.OpNumber, plan.Null{})
	wrappedScan[plan.WSAlias] = Leaf(plan.OpName, plan.Null{})
	wrappedScan[plan.WSDistinct] = flag(false)
	wrappedScan[plan.WSUngrouped] = V(varUngrouped)
	wrappedScan[plan.WSUngroupedScan] = V(varUngrouped)

	selectPulled := make([]*Pattern, plan.WSNumFields)
	selectBare := make([]*Pattern, plan.WSNumFields)
	for i := range selectPulled {
		v := V(wsFields[i])
		selectBare[i] = v
		switch {
		case i == plan.WSProjection:
			selectPulled[i] = replacer(plan.OpPullupReplacer, v, V("projection_in_projection"))
		case isChildSlot(i):
			selectPulled[i] = pullup(v)
		default:
			selectPulled[i] = v
		}
	}

	return []Rule{
		TransformingRewrite("wrapper-cube-scan", KindTransform,
			Bind("scan", plan.OpCubeScan, V(varAliasToCube), V(varCubeMembers), V(varUngrouped)),
			wrapper(pullupIn(P(plan.OpWrappedSelect, wrappedScan...), false), false),
			requireKeys(m, meta.KeySelect, meta.KeyFrom),
		),
		Rewrite("wrapper-pull-up-wrapped-select", KindPullUp,
			P(plan.OpWrappedSelect, selectPulled...),
			pullup(P(plan.OpWrappedSelect, selectBare...)),
		),
		Rewrite("wrapper-finalize-cube-scan-wrapper", KindTransform,
			wrapper(pullup(Bind("select", plan.OpWrappedSelect)), false),
			wrapper(V("select"), true),
		),
	}
}

func wrapperRules(m Meta, cfg Config) []Rule {
	rules := scanRules(m)
	if cfg.Aggregate {
		rules = append(rules, TransformingRewrite("wrapper-aggregate", KindTransform,
			P(plan.OpAggregate,
				wrapped(unlimited(bare(empty(plan.WSOrder, plan.OpWrappedOrderExprs)))),
				V("new_group"), V("new_aggr")),
			wrapper(rewrapped(slots{
				plan.WSSelectType: Leaf(plan.OpName, plan.String(SelectAggregate)),
				plan.WSGroup:      pushdownIn(V("new_group"), false),
				plan.WSAggr:       pushdownIn(V("new_aggr"), false),
			}), false),
			nonEmptyAggregate,
		))
	}
	if cfg.Projection {
		rules = append(rules, Rewrite("wrapper-projection", KindTransform,
			P(plan.OpProjection,
				V("new_projection"),
				wrapped(bare(slots{
					plan.WSAlias: BindLeaf(wsFields[plan.WSAlias], plan.OpName, plan.Null{}),
				})),
				V("new_alias")),
			wrapper(rewrapped(slots{
				plan.WSProjection: pushdownIn(V("new_projection"), true),
				plan.WSAlias:      V("new_alias"),
			}), false),
		), subqueryRule(m))
	}
	if cfg.Filter {
		filter := P(plan.OpWrappedFilterExprs, pushdownIn(V("predicate"), false))
		if cfg.ListMode == ListCons {
			filter = P(plan.OpWrappedFilterExprs,
				pushdownIn(V("predicate"), false),
				pushdownIn(P(plan.OpWrappedFilterExprs), false))
		}
		rules = append(rules, TransformingRewrite("wrapper-filter", KindTransform,
			P(plan.OpFilter,
				V("predicate"),
				wrapped(unlimited(bare(empty(plan.WSFilter, plan.OpWrappedFilterExprs))))),
			wrapper(rewrapped(slots{plan.WSFilter: filter}), false),
			scalarPredicate,
		))
	}
	if cfg.Sort {
		rules = append(rules, Rewrite("wrapper-sort", KindTransform,
			P(plan.OpSort,
				V("new_order"),
				wrapped(unlimited(empty(plan.WSOrder, plan.OpWrappedOrderExprs)))),
			wrapper(rewrapped(slots{plan.WSOrder: pushdownIn(V("new_order"), false)}), false),
		))
	}
	if cfg.Limit {
		limited := slots{
			plan.WSLimit:  V("new_limit"),
			plan.WSOffset: V("new_offset"),
		}
		rules = append(rules, Rewrite("wrapper-limit", KindTransform,
			P(plan.OpLimit, V("new_offset"), V("new_limit"), wrapped(unlimited(nil))),
			wrapper(pullup(selectOf(limited)), false),
		))
	}
	if cfg.Window {
		rules = append(rules,
			Rewrite("wrapper-window", KindTransform,
				P(plan.OpWindow, wrapped(unlimited(bare(nil))), V("new_window")),
				wrapper(rewrapped(slots{plan.WSWindow: pushdownIn(V("new_window"), false)}), false),
			),
			TransformingRewrite("wrapper-window-merge", KindTransform,
				P(plan.OpWindow,
					wrapped(unlimited(bare(slots{
						plan.WSWindow: Bind(wsFields[plan.WSWindow], plan.OpWrappedWindowExprs),
					}))),
					V("new_window")),
				wrapper(rewrapped(slots{plan.WSWindow: V("new_window_expr")}), false),
				mergeWindows(cfg.ListMode),
			),
		)
	}
	return rules
}

// nonEmptyAggregate rejects an aggregate without any output column.
func nonEmptyAggregate(g *Graph, s Subst) (Subst, bool) {
	for _, v := range []string{"new_group", "new_aggr"} {
		for n := range g.ClassesOf(s.MustGet(v)) {
			if n.Op.IsList() && len(n.Children) > 0 {
				return s, true
			}
		}
	}
	return nil, false
}

// scalarPredicate keeps aggregate predicates out of WHERE.
func scalarPredicate(g *Graph, s Subst) (Subst, bool) {
	f := g.Data(s.MustGet("predicate"))
	if f.IsAggregate || f.ReferencesAggregate {
		return nil, false
	}
	return s, true
}

// mergeWindows combines the window list already pulled into a select with
// the expressions of an outer Window. Pulled-up elements come first and are
// wrapped as pulled up; the new elements follow, wrapped for push-down.
// The merged list is bound to new_window_expr.
func mergeWindows(mode ListMode) Condition {
	return func(g *Graph, s Subst) (Subst, bool) {
		window := s.MustGet(wsFields[plan.WSWindow])
		var prev plan.Node
		found := false
		for n := range g.NodesOf(window, plan.OpWrappedWindowExprs) {
			if len(n.Children) > 0 {
				prev, found = n, true
				break
			}
		}
		if !found {
			return nil, false
		}

		next := s.MustGet("new_window")
		ctx := contextIDs(s)
		ctx[2] = g.Add(plan.Leaf(plan.OpFlag, plan.Bool(false)))

		if mode == ListCons {
			merged := g.Add(plan.Node{Op: plan.OpWindowExprs, Children: []plan.ID{
				g.Add(replacerNode(plan.OpPullupReplacer, window, ctx)),
				g.Add(replacerNode(plan.OpPushdownReplacer, next, ctx)),
			}})
			return s.With("new_window_expr", merged), true
		}

		var outer plan.Node
		found = false
		for n := range g.NodesOf(next, plan.OpWindowExprs) {
			outer, found = n, true
			break
		}
		if !found {
			return nil, false
		}
		children := make([]plan.ID, 0, len(prev.Children)+len(outer.Children))
		for _, ch := range prev.Children {
			children = append(children, g.Add(replacerNode(plan.OpPullupReplacer, ch, ctx)))
		}
		for _, ch := range outer.Children {
			children = append(children, g.Add(replacerNode(plan.OpPushdownReplacer, ch, ctx)))
		}
		merged := g.Add(plan.Node{Op: plan.OpWindowExprs, Children: children})
		return s.With("new_window_expr", merged), true
	}
}

// subqueryRule puts an aggregating select below a projection select. The
// aggregate becomes the FROM subquery of the projection, aliased as its scan,
// and the projection reads its outputs by plan.OutputName. Those outputs were
// gated when they entered the aggregate, so the outer context admits every
// member.
func subqueryRule(m Meta) Rule {
	members := Leaf(plan.OpCubeMembers, plan.Members{AllMembers})
	ctx := func(op plan.Op, inner *Pattern, inProjection bool) *Pattern {
		return P(op, inner, V(varAliasToCube), V(varUngrouped), flag(inProjection), members)
	}
	outer := make([]*Pattern, plan.WSNumFields)
	for i := range outer {
		if op := plan.OpWrappedSelect.Info().SlotOps[i]; op.IsList() {
			outer[i] = ctx(plan.OpPullupReplacer, P(op), false)
		}
	}
	outer[plan.WSSelectType] = Leaf(plan.OpName, plan.String(SelectProjection))
	outer[plan.WSProjection] = ctx(plan.OpPushdownReplacer, V("new_projection"), true)
	outer[plan.WSInput] = ctx(plan.OpPullupReplacer, V("inner"), false)
	outer[plan.WSLimit] = Leaf(plan.OpNumber, plan.Null{})
	outer[plan.WSOffset] = Leaf(plan.OpNumber, plan.Null{})
	outer[plan.WSAlias] = V("new_alias")
	outer[plan.WSDistinct] = flag(false)
	outer[plan.WSUngrouped] = V(wsFields[plan.WSUngrouped])
	outer[plan.WSUngroupedScan] = V(wsFields[plan.WSUngroupedScan])

	inner := selectOf(slots{
		plan.WSSelectType: Leaf(plan.OpName, plan.String(SelectAggregate)),
		plan.WSWindow:     P(plan.OpWrappedWindowExprs),
		plan.WSAlias:      Leaf(plan.OpName, plan.Null{}),
	})
	return TransformingRewrite("wrapper-projection-subquery", KindTransform,
		P(plan.OpProjection,
			V("new_projection"),
			wrapper(pullup(Bind("inner", plan.OpWrappedSelect, inner.Children...)), false),
			V("new_alias")),
		wrapper(P(plan.OpWrappedSelect, outer...), false),
		and(requireKeys(m, meta.KeyAlias), singleAlias),
	)
}

// singleAlias requires a binding of exactly one alias, which names the
// subquery.
func singleAlias(g *Graph, s Subst) (Subst, bool) {
	atc, ok := aliasToCube(g, s)
	return s, ok && len(atc) == 1
}
