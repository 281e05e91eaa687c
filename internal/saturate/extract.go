package saturate

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/yautze/cube/internal/plan"
	"github.com/yautze/cube/internal/rewrite"
)

// Node costs. A plan operator left to the local engine costs far more than
// any amount of SQL, so every operator absorbed into a finalized wrapper
// lowers the total. A bare CubeScan is cheaper than a wrapper around it:
// with nothing above it pushed, the scan stays as it was.
// Replacers and unfinalized wrappers are not extractable.
const (
	CostLocalOperator = 1000
	CostWrapper       = 10
	CostTerm          = 1
)

// Cost is the cost of an extracted tree.
type Cost struct {
	Total uint64
	// Rewritten counts nodes that were not part of the inserted plan.
	Rewritten int
}

type choice struct {
	cost Cost
	node plan.Node
	key  string
}

func (c choice) less(o choice) bool {
	if c.cost.Total != o.cost.Total {
		return c.cost.Total < o.cost.Total
	}
	if c.cost.Rewritten != o.cost.Rewritten {
		return c.cost.Rewritten < o.cost.Rewritten
	}
	return c.key < o.key
}

// nodeCost returns the own cost of n, or false if n cannot be extracted.
func nodeCost(g *rewrite.Graph, n plan.Node) (uint64, bool) {
	switch n.Op.Kind() {
	case plan.KindReplacer:
		return 0, false
	case plan.KindPlan:
		switch n.Op {
		case plan.OpCubeScanWrapper:
			v, ok := rewrite.PayloadOf(g, n.Children[1], plan.OpFlag)
			if !ok || v != plan.Bool(true) {
				return 0, false
			}
			return CostWrapper, true
		case plan.OpWrappedSelect, plan.OpCubeScan:
			return CostTerm, true
		default:
			return CostLocalOperator, true
		}
	default:
		return CostTerm, true
	}
}

// Extract returns the cheapest tree of the class of root. Ties go to the
// tree with fewer rewritten nodes, so the inserted plan wins unless a
// rewrite is strictly cheaper; remaining ties are broken by node key.
// original lists the nodes the plan was inserted with.
//
// Lists are returned flat: a list element of the same kind as its parent is
// spliced in, which turns head/tail cells back into one list.
func Extract(g *rewrite.Graph, root plan.ID, original []plan.Node) (*plan.Expr, Cost, error) {
	orig := make(map[string]struct{}, len(original))
	for _, n := range original {
		orig[g.Canonicalize(n).Key()] = struct{}{}
	}

	best := make(map[plan.ID]choice)
	for changed := true; changed; {
		changed = false
		for class := range g.Classes() {
			for _, n := range class.Nodes {
				own, ok := nodeCost(g, n)
				if !ok {
					continue
				}
				key := n.Key()
				c := choice{cost: Cost{Total: own}, node: n, key: key}
				if _, ok := orig[key]; !ok {
					c.cost.Rewritten = 1
				}
				feasible := true
				for _, ch := range n.Children {
					sub, ok := best[g.Find(ch)]
					if !ok {
						feasible = false
						break
					}
					c.cost.Total = addCost(c.cost.Total, sub.cost.Total)
					c.cost.Rewritten += sub.cost.Rewritten
				}
				if !feasible {
					continue
				}
				if cur, ok := best[class.ID]; !ok || c.less(cur) {
					best[class.ID] = c
					changed = true
				}
			}
		}
	}

	rootChoice, ok := best[g.Find(root)]
	if !ok {
		return nil, Cost{}, errors.AssertionFailedf("class %d has no extractable term", errors.Safe(root))
	}
	e, err := build(g, best, root)
	if err != nil {
		return nil, Cost{}, err
	}
	return e, rootChoice.cost, nil
}

func addCost(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func build(g *rewrite.Graph, best map[plan.ID]choice, id plan.ID) (*plan.Expr, error) {
	c, ok := best[g.Find(id)]
	if !ok {
		return nil, errors.AssertionFailedf("class %d has no extractable term", errors.Safe(id))
	}
	e := &plan.Expr{Op: c.node.Op, Payload: c.node.Payload}
	for _, ch := range c.node.Children {
		sub, err := build(g, best, ch)
		if err != nil {
			return nil, err
		}
		if e.Op.IsList() && sub.Op == e.Op {
			e.Children = append(e.Children, sub.Children...)
			continue
		}
		e.Children = append(e.Children, sub)
	}
	return e, nil
}
