package rewrite

import (
	"slices"

	"github.com/yautze/cube/internal/meta"
	"github.com/yautze/cube/internal/plan"
)

// Meta resolves the SQL generator behind an alias binding and the cubes it
// names. *meta.Context implements it.
type Meta interface {
	SQLGeneratorByAliasToCube(atc plan.AliasToCube) (meta.SQLGenerator, bool)
	Cube(name string) (meta.Cube, bool)
}

// Context variables shared by every rule. A replacer's context is four
// payload leaves; rules bind them under these names and reuse them when they
// wrap children, so the context travels unchanged.
const (
	varAliasToCube  = "alias_to_cube"
	varUngrouped    = "ungrouped"
	varInProjection = "in_projection"
	varCubeMembers  = "cube_members"
)

// replacer builds a replacer pattern. inProjection overrides the
// in_projection variable when non-nil.
func replacer(op plan.Op, inner, inProjection *Pattern) *Pattern {
	if inProjection == nil {
		inProjection = V(varInProjection)
	}
	return P(op, inner, V(varAliasToCube), V(varUngrouped), inProjection, V(varCubeMembers))
}

func pushdown(inner *Pattern) *Pattern { return replacer(plan.OpPushdownReplacer, inner, nil) }

func pullup(inner *Pattern) *Pattern { return replacer(plan.OpPullupReplacer, inner, nil) }

func flag(b bool) *Pattern { return Leaf(plan.OpFlag, plan.Bool(b)) }

// pushdownIn and pullupIn fix in_projection to a literal.
func pushdownIn(inner *Pattern, inProjection bool) *Pattern {
	return replacer(plan.OpPushdownReplacer, inner, flag(inProjection))
}

func pullupIn(inner *Pattern, inProjection bool) *Pattern {
	return replacer(plan.OpPullupReplacer, inner, flag(inProjection))
}

// sameContext reports whether two replacer nodes carry the same context.
func sameContext(g *Graph, a, b plan.Node) bool {
	for i := plan.ReplacerAliasToCube; i <= plan.ReplacerCubeMembers; i++ {
		if g.Find(a.Children[i]) != g.Find(b.Children[i]) {
			return false
		}
	}
	return true
}

// contextSubst binds the context variables to the context of a replacer.
func contextSubst(n plan.Node, s Subst) Subst {
	s = s.With(varAliasToCube, n.Children[plan.ReplacerAliasToCube])
	s = s.With(varUngrouped, n.Children[plan.ReplacerUngrouped])
	s = s.With(varInProjection, n.Children[plan.ReplacerInProjection])
	return s.With(varCubeMembers, n.Children[plan.ReplacerCubeMembers])
}

// aliasToCube reads the binding bound to the alias_to_cube variable.
func aliasToCube(g *Graph, s Subst) (plan.AliasToCube, bool) {
	id, ok := s.Get(varAliasToCube)
	if !ok {
		return nil, false
	}
	v, ok := PayloadOf(g, id, plan.OpAliasToCube)
	if !ok {
		return nil, false
	}
	atc, ok := v.(plan.AliasToCube)
	return atc, ok
}

// generator resolves the destination of a match. An unresolved binding is a
// plain no-match.
func generator(g *Graph, m Meta, s Subst) (meta.SQLGenerator, bool) {
	atc, ok := aliasToCube(g, s)
	if !ok || m == nil {
		return nil, false
	}
	return m.SQLGeneratorByAliasToCube(atc)
}

// requireKeys is a condition that the destination renders every key.
func requireKeys(m Meta, keys ...string) Condition {
	return func(g *Graph, s Subst) (Subst, bool) {
		gen, ok := generator(g, m, s)
		if !ok {
			return nil, false
		}
		for _, k := range keys {
			if !gen.ContainsKey(k) {
				return nil, false
			}
		}
		return s, true
	}
}

// AllMembers in a member list admits every column.
const AllMembers = "*"

// memberAllowed reports whether a column may be referenced under the
// context. The scan's member list gates it; when that list is empty the
// cube's declared members do, and a cube declaring none allows everything.
func memberAllowed(g *Graph, m Meta, s Subst, col plan.Column) bool {
	id, ok := s.Get(varCubeMembers)
	if !ok {
		return false
	}
	v, ok := PayloadOf(g, id, plan.OpCubeMembers)
	if !ok {
		return false
	}
	members, _ := v.(plan.Members)
	if slices.Contains(members, AllMembers) {
		return true
	}
	cube := ""
	if atc, ok := aliasToCube(g, s); ok {
		cube, _ = atc.CubeFor(col.Relation)
	}
	if len(members) == 0 && cube != "" && m != nil {
		if c, ok := m.Cube(cube); ok {
			members = c.Members
		}
	}
	if len(members) == 0 {
		return true
	}
	return cube != "" && slices.Contains(members, cube+"."+col.Name)
}
