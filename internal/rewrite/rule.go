package rewrite

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/yautze/cube/internal/plan"
)

// Kind classifies a rule for logging and statistics.
type Kind uint8

const (
	// KindPushDown rules distribute a PushdownReplacer and always apply.
	KindPushDown Kind = iota + 1
	// KindPullUp rules collapse pulled-up children behind a predicate.
	KindPullUp
	// KindTransform rules restructure wrapped selects.
	KindTransform
)

func (k Kind) String() string {
	switch k {
	case KindPushDown:
		return "push-down"
	case KindPullUp:
		return "pull-up"
	case KindTransform:
		return "transform"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Match is one place a rule can apply.
type Match struct {
	Root  plan.ID
	Subst Subst
}

// Searcher finds matches in a rebuilt graph. It must not modify the graph.
type Searcher interface {
	Search(g *Graph) []Match
}

// Applier adds the right-hand side of a match and returns the classes to be
// unioned with the match root. Returning nothing means the rule declined.
type Applier interface {
	Apply(g *Graph, m Match) []plan.ID
}

// Condition is a predicate over a match. It may add nodes to the graph and
// bind them in the returned substitution; it must not do anything else.
type Condition func(g *Graph, s Subst) (Subst, bool)

// Rule is a named searcher and applier pair.
type Rule struct {
	Name     string
	Kind     Kind
	Searcher Searcher
	Applier  Applier
}

func (r Rule) String() string { return r.Name }

// Rewrite returns an unconditional pattern rule. Every variable of rhs must
// occur in lhs; it panics otherwise.
func Rewrite(name string, kind Kind, lhs, rhs *Pattern) Rule {
	bound := lhs.Vars()
	for _, v := range rhs.Vars() {
		if !slices.Contains(bound, v) {
			panic(errors.AssertionFailedf("rule %s: ?%s is not bound by its left-hand side",
				errors.Safe(name), errors.Safe(v)))
		}
	}
	return TransformingRewrite(name, kind, lhs, rhs, nil)
}

// TransformingRewrite returns a pattern rule guarded by cond.
func TransformingRewrite(name string, kind Kind, lhs, rhs *Pattern, cond Condition) Rule {
	return Rule{
		Name:     name,
		Kind:     kind,
		Searcher: lhs,
		Applier:  &patternApplier{rhs: rhs, cond: cond},
	}
}

type patternApplier struct {
	rhs  *Pattern
	cond Condition
}

func (a *patternApplier) Apply(g *Graph, m Match) []plan.ID {
	s := m.Subst
	if a.cond != nil {
		next, ok := a.cond(g, s)
		if !ok {
			return nil
		}
		s = next
	}
	return []plan.ID{Instantiate(g, a.rhs, s)}
}

// and joins conditions; later ones see the bindings of earlier ones.
func and(conds ...Condition) Condition {
	return func(g *Graph, s Subst) (Subst, bool) {
		for _, c := range conds {
			if c == nil {
				continue
			}
			next, ok := c(g, s)
			if !ok {
				return nil, false
			}
			s = next
		}
		return s, true
	}
}
