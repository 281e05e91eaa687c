package rewrite

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/yautze/cube/internal/plan"
)

// listRules returns the push-down and pull-up rules of every list kind.
// A pulled-up list takes the kind of its substitute, so a local list pulled
// into a wrapped select becomes that select's list kind.
func listRules(mode ListMode) []Rule {
	var rules []Rule
	for _, op := range plan.Ops() {
		if !op.IsList() {
			continue
		}
		sub := op.Substitute()
		name := ruleName(op)
		rules = append(rules, Rewrite("wrapper-push-down-"+name+"-empty", KindPushDown,
			pushdown(P(op)),
			pullup(P(sub)),
		))
		if mode == ListCons {
			rules = append(rules,
				Rewrite("wrapper-push-down-"+name+"-cons", KindPushDown,
					pushdown(P(op, V("head"), V("tail"))),
					P(op, pushdown(V("head")), pushdown(V("tail"))),
				),
				Rewrite("wrapper-pull-up-"+name+"-cons", KindPullUp,
					P(op, pullup(V("head")), pullup(V("tail"))),
					pullup(P(sub, V("head"), V("tail"))),
				),
			)
			continue
		}
		rules = append(rules,
			Rule{
				Name:     "wrapper-push-down-" + name + "-flat",
				Kind:     KindPushDown,
				Searcher: pushdown(Bind("list", op)),
				Applier:  flatPushdown{op: op},
			},
			Rule{
				Name:     "wrapper-pull-up-" + name + "-flat",
				Kind:     KindPullUp,
				Searcher: flatPullup{op: op},
				Applier:  flatPullup{op: op},
			},
		)
	}
	return rules
}

// flatPushdown wraps every element of a flat list in one step.
type flatPushdown struct{ op plan.Op }

func (a flatPushdown) Apply(g *Graph, m Match) []plan.ID {
	list := m.Subst.MustGet("list")
	ctx := contextIDs(m.Subst)
	var out []plan.ID
	for n := range g.NodesOf(list, a.op) {
		if len(n.Children) == 0 {
			continue
		}
		children := make([]plan.ID, len(n.Children))
		for i, ch := range n.Children {
			children[i] = g.Add(replacerNode(plan.OpPushdownReplacer, ch, ctx))
		}
		out = append(out, g.Add(plan.Node{Op: a.op, Children: children}))
	}
	return out
}

// flatPullup collapses a flat list whose elements are all pulled up under
// one context.
type flatPullup struct{ op plan.Op }

func itemVar(i int) string { return "item" + strconv.Itoa(i) }

func (r flatPullup) Search(g *Graph) []Match {
	var out []Match
	for class := range g.Classes() {
		for _, n := range class.Nodes {
			if n.Op != r.op || len(n.Children) == 0 {
				continue
			}
			for first := range g.NodesOf(n.Children[0], plan.OpPullupReplacer) {
				s, ok := r.collect(g, n, first)
				if ok {
					out = append(out, Match{Root: class.ID, Subst: s})
				}
			}
		}
	}
	return out
}

func (r flatPullup) collect(g *Graph, n, first plan.Node) (Subst, bool) {
	s := contextSubst(first, nil)
	s = s.With(itemVar(0), first.Children[plan.ReplacerInner])
	for i, ch := range n.Children[1:] {
		found := false
		for p := range g.NodesOf(ch, plan.OpPullupReplacer) {
			if sameContext(g, first, p) {
				s = s.With(itemVar(i+1), p.Children[plan.ReplacerInner])
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return s, true
}

func (r flatPullup) Apply(g *Graph, m Match) []plan.ID {
	var items []plan.ID
	for i := 0; ; i++ {
		id, ok := m.Subst.Get(itemVar(i))
		if !ok {
			break
		}
		items = append(items, id)
	}
	list := g.Add(plan.Node{Op: r.op.Substitute(), Children: items})
	return []plan.ID{g.Add(replacerNode(plan.OpPullupReplacer, list, contextIDs(m.Subst)))}
}

// contextIDs returns the four context classes bound in s.
func contextIDs(s Subst) [4]plan.ID {
	return [4]plan.ID{
		s.MustGet(varAliasToCube),
		s.MustGet(varUngrouped),
		s.MustGet(varInProjection),
		s.MustGet(varCubeMembers),
	}
}

func replacerNode(op plan.Op, inner plan.ID, ctx [4]plan.ID) plan.Node {
	return plan.Node{Op: op, Children: []plan.ID{inner, ctx[0], ctx[1], ctx[2], ctx[3]}}
}

// ruleName turns an op name into the kebab-case fragment of a rule name.
func ruleName(op plan.Op) string {
	var b strings.Builder
	for i, r := range op.String() {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
