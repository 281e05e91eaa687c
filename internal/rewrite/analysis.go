package rewrite

import (
	"slices"

	"github.com/yautze/cube/internal/egraph"
	"github.com/yautze/cube/internal/plan"
)

// Facts is the analysis data of one e-class.
type Facts struct {
	// IsAggregate is set when the class holds an aggregate call.
	IsAggregate bool
	// ReferencesAggregate is set when an expression contains an aggregate
	// call below its root.
	ReferencesAggregate bool
	// PulledUp is set when the class holds a PullupReplacer.
	PulledUp bool
	// Finalized is set when the class holds a finalized CubeScanWrapper.
	Finalized bool
	// AliasToCube is the binding of the scan a plan reads from.
	AliasToCube plan.AliasToCube
}

// Graph is the e-graph the rules operate on.
type Graph = egraph.EGraph[Facts]

// NewGraph returns an empty graph with the rewrite analysis attached.
func NewGraph() *Graph {
	return egraph.New[Facts](analysis{})
}

type analysis struct{}

func (analysis) Make(g *Graph, n plan.Node) Facts {
	var f Facts
	switch n.Op.Kind() {
	case plan.KindExpr, plan.KindList:
		f.IsAggregate = n.Op == plan.OpAggFun
		for _, ch := range n.Children {
			d := g.Data(ch)
			if d.IsAggregate || d.ReferencesAggregate {
				f.ReferencesAggregate = true
			}
		}
	case plan.KindLeaf:
		if atc, ok := n.Payload.(plan.AliasToCube); ok {
			f.AliasToCube = atc
		}
	case plan.KindPlan:
		for _, ch := range n.Children {
			if atc := g.Data(ch).AliasToCube; atc != nil {
				f.AliasToCube = atc
				break
			}
		}
		if n.Op == plan.OpCubeScanWrapper {
			if v, ok := PayloadOf(g, n.Children[1], plan.OpFlag); ok && v == plan.Bool(true) {
				f.Finalized = true
			}
		}
	case plan.KindReplacer:
		f.PulledUp = n.Op == plan.OpPullupReplacer
	}
	return f
}

func (analysis) Merge(a, b Facts) Facts {
	out := Facts{
		IsAggregate:         a.IsAggregate || b.IsAggregate,
		ReferencesAggregate: a.ReferencesAggregate || b.ReferencesAggregate,
		PulledUp:            a.PulledUp || b.PulledUp,
		Finalized:           a.Finalized || b.Finalized,
		AliasToCube:         a.AliasToCube,
	}
	if out.AliasToCube == nil {
		out.AliasToCube = b.AliasToCube
	}
	return out
}

func (analysis) Equal(a, b Facts) bool {
	return a.IsAggregate == b.IsAggregate &&
		a.ReferencesAggregate == b.ReferencesAggregate &&
		a.PulledUp == b.PulledUp &&
		a.Finalized == b.Finalized &&
		slices.Equal(a.AliasToCube, b.AliasToCube)
}

// PayloadOf returns the payload of the first node of kind op in the class.
func PayloadOf(g *Graph, id plan.ID, op plan.Op) (plan.Payload, bool) {
	for n := range g.NodesOf(id, op) {
		return n.Payload, true
	}
	return nil, false
}
