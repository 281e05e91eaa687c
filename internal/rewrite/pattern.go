package rewrite

import (
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/yautze/cube/internal/plan"
)

// Pattern is a term with variables. The forms are:
//
//   - a variable (Var set, Op zero) matches any class and binds it;
//   - a term (Op set, Var empty) matches a node of kind Op, its payload when
//     Payload is set, and exactly len(Children) children;
//   - a bound term (both set) matches like a term and also binds the class.
//     A nil Children constrains nothing; a non-nil empty one requires an
//     empty list.
//
// A variable that appears twice must bind the same class both times.
type Pattern struct {
	Var      string
	Op       plan.Op
	Payload  plan.Payload
	Children []*Pattern
}

// V returns a variable.
func V(name string) *Pattern { return &Pattern{Var: name} }

// P returns a term. With no children it matches only nodes without children.
func P(op plan.Op, children ...*Pattern) *Pattern {
	return &Pattern{Op: op, Children: children}
}

// Leaf returns a payload term.
func Leaf(op plan.Op, v plan.Payload) *Pattern {
	return &Pattern{Op: op, Payload: v}
}

// Bind returns a bound term. Without children it accepts any node of op.
func Bind(name string, op plan.Op, children ...*Pattern) *Pattern {
	return &Pattern{Var: name, Op: op, Children: children}
}

// BindEmpty returns a bound term matching only an empty list of kind op.
func BindEmpty(name string, op plan.Op) *Pattern {
	return &Pattern{Var: name, Op: op, Children: []*Pattern{}}
}

// BindLeaf returns a bound payload term.
func BindLeaf(name string, op plan.Op, v plan.Payload) *Pattern {
	return &Pattern{Var: name, Op: op, Payload: v}
}

func (p *Pattern) String() string {
	var b strings.Builder
	p.format(&b)
	return b.String()
}

func (p *Pattern) format(b *strings.Builder) {
	if p.Op == plan.OpInvalid {
		b.WriteString("?" + p.Var)
		return
	}
	if p.Var != "" {
		b.WriteString("?" + p.Var + "@")
	}
	b.WriteString(p.Op.String())
	if p.Payload != nil {
		b.WriteString("{" + p.Payload.String() + "}")
	}
	if p.Children == nil && (p.Var != "" || p.Payload != nil) {
		return
	}
	b.WriteByte('(')
	for i, ch := range p.Children {
		if i > 0 {
			b.WriteByte(' ')
		}
		ch.format(b)
	}
	b.WriteByte(')')
}

// Vars returns the variables of p in first-occurrence order.
func (p *Pattern) Vars() []string {
	var out []string
	var walk func(*Pattern)
	walk = func(q *Pattern) {
		if q.Var != "" && !slices.Contains(out, q.Var) {
			out = append(out, q.Var)
		}
		for _, ch := range q.Children {
			walk(ch)
		}
	}
	walk(p)
	return out
}

// Binding is one variable assignment.
type Binding struct {
	Var string
	ID  plan.ID
}

// Subst is an ordered set of bindings. It is never modified in place.
type Subst []Binding

// Get returns the class bound to name.
func (s Subst) Get(name string) (plan.ID, bool) {
	for _, b := range s {
		if b.Var == name {
			return b.ID, true
		}
	}
	return 0, false
}

// MustGet returns the class bound to name and panics with an assertion
// failure if there is none.
func (s Subst) MustGet(name string) plan.ID {
	id, ok := s.Get(name)
	if !ok {
		panic(errors.AssertionFailedf("variable ?%s is not bound", errors.Safe(name)))
	}
	return id
}

// With returns a copy of s with name bound to id.
func (s Subst) With(name string, id plan.ID) Subst {
	out := make(Subst, len(s), len(s)+1)
	copy(out, s)
	return append(out, Binding{Var: name, ID: id})
}

// Key returns a stable encoding of the bindings under canonical ids.
func (s Subst) Key(g *Graph) string {
	var b []byte
	for _, bind := range s {
		b = append(b, bind.Var...)
		b = append(b, '=')
		b = strconv.AppendUint(b, uint64(g.Find(bind.ID)), 10)
		b = append(b, ';')
	}
	return string(b)
}

// Search returns every match of p rooted at a class of g, in ascending
// class order.
func (p *Pattern) Search(g *Graph) []Match {
	var out []Match
	for class := range g.Classes() {
		if p.Op != plan.OpInvalid && !hasOp(class.Nodes, p.Op) {
			continue
		}
		p.match(g, class.ID, nil, func(s Subst) {
			out = append(out, Match{Root: class.ID, Subst: s})
		})
	}
	return out
}

// MatchAt reports every match of p at class id.
func (p *Pattern) MatchAt(g *Graph, id plan.ID) []Subst {
	var out []Subst
	p.match(g, id, nil, func(s Subst) { out = append(out, s) })
	return out
}

func hasOp(nodes []plan.Node, op plan.Op) bool {
	for _, n := range nodes {
		if n.Op == op {
			return true
		}
	}
	return false
}

func (p *Pattern) match(g *Graph, id plan.ID, s Subst, yield func(Subst)) {
	id = g.Find(id)
	if p.Var != "" {
		if bound, ok := s.Get(p.Var); ok {
			if g.Find(bound) != id {
				return
			}
		} else {
			s = s.With(p.Var, id)
		}
	}
	if p.Op == plan.OpInvalid {
		yield(s)
		return
	}
	for n := range g.NodesOf(id, p.Op) {
		if p.Payload != nil && !plan.PayloadEqual(p.Payload, n.Payload) {
			continue
		}
		if p.Var != "" && p.Children == nil {
			yield(s)
			return
		}
		if len(n.Children) != len(p.Children) {
			continue
		}
		matchChildren(g, p.Children, n.Children, s, yield)
	}
}

func matchChildren(g *Graph, pats []*Pattern, ids []plan.ID, s Subst, yield func(Subst)) {
	if len(pats) == 0 {
		yield(s)
		return
	}
	pats[0].match(g, ids[0], s, func(next Subst) {
		matchChildren(g, pats[1:], ids[1:], next, yield)
	})
}

// Instantiate adds the term p describes under s and returns its class.
// Bound terms are read as variables. An unbound variable is an assertion
// failure.
func Instantiate(g *Graph, p *Pattern, s Subst) plan.ID {
	if p.Var != "" {
		return s.MustGet(p.Var)
	}
	n := plan.Node{Op: p.Op, Payload: p.Payload}
	if len(p.Children) > 0 {
		n.Children = make([]plan.ID, len(p.Children))
		for i, ch := range p.Children {
			n.Children[i] = Instantiate(g, ch, s)
		}
	}
	return g.Add(n)
}
