package rewrite

import (
	"strconv"

	"github.com/yautze/cube/internal/meta"
	"github.com/yautze/cube/internal/plan"
)

// pushdownRules distributes a PushdownReplacer into every composite kind:
// child slots are wrapped with the same context, payload slots are kept.
// AggFun has its own named rule with the same shape.
func pushdownRules() []Rule {
	var rules []Rule
	for _, op := range plan.Ops() {
		if op == plan.OpAggFun || !composite(op) {
			continue
		}
		lhs, rhs := distribute(op)
		rules = append(rules, Rewrite("wrapper-push-down-"+ruleName(op), KindPushDown, pushdown(lhs), rhs))
	}
	return rules
}

// composite reports whether op has a child slot a replacer can enter.
func composite(op plan.Op) bool {
	k := op.Kind()
	if k != plan.KindExpr && k != plan.KindPlan {
		return false
	}
	for _, slot := range op.Info().Slots {
		if slot == plan.SlotChild {
			return true
		}
	}
	return false
}

// distribute returns K(?c0 … ?cn) and K(pushdown(?c0) … ) with payload
// slots left bare.
func distribute(op plan.Op) (lhs, rhs *Pattern) {
	slots := op.Info().Slots
	in := make([]*Pattern, len(slots))
	out := make([]*Pattern, len(slots))
	for i, slot := range slots {
		v := V("c" + strconv.Itoa(i))
		in[i] = v
		if slot == plan.SlotChild {
			out[i] = pushdown(v)
		} else {
			out[i] = v
		}
	}
	return P(op, in...), P(op, out...)
}

// collapse returns K(pullup(?c0) … ) and pullup(K(?c0 … )). A non-nil
// inProjection replaces the in_projection variable of every replacer.
func collapse(op plan.Op, inProjection *Pattern) (lhs, rhs *Pattern) {
	slots := op.Info().Slots
	in := make([]*Pattern, len(slots))
	out := make([]*Pattern, len(slots))
	for i, slot := range slots {
		v := V("c" + strconv.Itoa(i))
		out[i] = v
		if slot == plan.SlotChild {
			in[i] = replacer(plan.OpPullupReplacer, v, inProjection)
		} else {
			in[i] = v
		}
	}
	return P(op, in...), replacer(plan.OpPullupReplacer, P(op, out...), inProjection)
}

func expressionRules(m Meta) []Rule {
	rules := []Rule{
		TransformingRewrite("wrapper-push-down-column", KindPushDown,
			pushdown(Bind("column", plan.OpColumn)),
			pullup(V("column")),
			columnAllowed(m),
		),
		Rewrite("wrapper-push-down-literal", KindPushDown,
			pushdown(Bind("literal", plan.OpLiteral)),
			pullup(V("literal")),
		),
	}

	lhs, rhs := collapse(plan.OpBinary, nil)
	rules = append(rules, TransformingRewrite("wrapper-pull-up-binary", KindPullUp, lhs, rhs,
		requireKeys(m, meta.KeyBinary)))

	lhs, rhs = collapse(plan.OpScalarFun, nil)
	rules = append(rules, TransformingRewrite("wrapper-pull-up-scalar-fun", KindPullUp, lhs, rhs,
		functionSupported(m, "c0")))

	lhs, rhs = collapse(plan.OpWindowFun, nil)
	rules = append(rules, TransformingRewrite("wrapper-pull-up-window-fun", KindPullUp, lhs, rhs,
		and(requireKeys(m, meta.KeyWindowFunction), functionSupported(m, "c0"))))

	lhs, rhs = collapse(plan.OpSortExpr, nil)
	rules = append(rules, TransformingRewrite("wrapper-pull-up-sort-expr", KindPullUp, lhs, rhs,
		requireKeys(m, meta.KeySort)))

	// An alias renders only directly in a select list.
	lhs, rhs = collapse(plan.OpAliasExpr, flag(true))
	rules = append(rules, TransformingRewrite("wrapper-pull-up-alias-expr", KindPullUp, lhs, rhs,
		requireKeys(m, meta.KeyAlias)))

	return append(rules, aggregateRules(m)...)
}

func columnAllowed(m Meta) Condition {
	return func(g *Graph, s Subst) (Subst, bool) {
		v, ok := PayloadOf(g, s.MustGet("column"), plan.OpColumn)
		if !ok {
			return nil, false
		}
		col, ok := v.(plan.Column)
		if !ok || !memberAllowed(g, m, s, col) {
			return nil, false
		}
		return s, true
	}
}

// functionSupported requires functions/<NAME> for the name bound to v.
func functionSupported(m Meta, v string) Condition {
	return func(g *Graph, s Subst) (Subst, bool) {
		gen, ok := generator(g, m, s)
		if !ok {
			return nil, false
		}
		for n := range g.NodesOf(s.MustGet(v), plan.OpName) {
			name, ok := n.Payload.(plan.String)
			if ok && gen.ContainsKey(meta.FunctionKey(meta.FunctionName(string(name)))) {
				return s, true
			}
		}
		return nil, false
	}
}

func aggregateRules(m Meta) []Rule {
	return []Rule{
		Rewrite("wrapper-push-down-aggregate-function", KindPushDown,
			pushdown(P(plan.OpAggFun, V("fun"), V("args"), V("distinct"), V("within_group"))),
			P(plan.OpAggFun, V("fun"), pushdown(V("args")), V("distinct"), pushdown(V("within_group"))),
		),
		TransformingRewrite("wrapper-pull-up-aggregate-function", KindPullUp,
			P(plan.OpAggFun, V("fun"), pullup(V("args")), V("distinct"), pullup(V("within_group"))),
			pullup(P(plan.OpAggFun, V("fun"), V("args"), V("distinct"), V("within_group"))),
			aggregateSupported(m),
		),
	}
}

// aggregateSupported gates the pull-up of an aggregate call on the
// destination rendering its function key and, when there is a non-empty
// WITHIN GROUP ordering, the within_group expression.
func aggregateSupported(m Meta) Condition {
	return func(g *Graph, s Subst) (Subst, bool) {
		gen, ok := generator(g, m, s)
		if !ok {
			return nil, false
		}
		for fun := range g.NodesOf(s.MustGet("fun"), plan.OpName) {
			name, ok := fun.Payload.(plan.String)
			if !ok {
				continue
			}
			for d := range g.NodesOf(s.MustGet("distinct"), plan.OpFlag) {
				distinct := d.Payload == plan.Bool(true)
				if !gen.ContainsKey(meta.AggregateFunctionKey(string(name), distinct)) {
					continue
				}
				for wg := range g.NodesOf(s.MustGet("within_group"), plan.OpWithinGroup) {
					if len(wg.Children) == 0 || gen.ContainsKey(meta.KeyWithinGroup) {
						return s, true
					}
				}
			}
		}
		return nil, false
	}
}
