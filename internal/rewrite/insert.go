package rewrite

import (
	"fmt"

	"github.com/yautze/cube/internal/plan"
)

// ListMode selects how variadic lists are stored in the graph.
type ListMode uint8

const (
	// ListFlat stores a list as one node holding every element.
	ListFlat ListMode = iota
	// ListCons stores a list as nested head/tail cells ending in an empty
	// list of the same kind.
	ListCons
)

func (m ListMode) String() string {
	switch m {
	case ListFlat:
		return "flat"
	case ListCons:
		return "cons"
	default:
		return fmt.Sprintf("ListMode(%d)", uint8(m))
	}
}

// ParseListMode parses "flat" or "cons".
func ParseListMode(s string) (ListMode, error) {
	switch s {
	case "flat", "":
		return ListFlat, nil
	case "cons":
		return ListCons, nil
	default:
		return 0, fmt.Errorf("unknown list mode %q", s)
	}
}

// Insert adds a plan tree to g and returns the class of its root together
// with every node it added, in insertion order.
func Insert(g *Graph, e *plan.Expr, mode ListMode) (plan.ID, []plan.Node) {
	var nodes []plan.Node
	add := func(n plan.Node) plan.ID {
		id := g.Add(n)
		nodes = append(nodes, n)
		return id
	}
	var insert func(*plan.Expr) plan.ID
	insert = func(e *plan.Expr) plan.ID {
		children := make([]plan.ID, len(e.Children))
		for i, ch := range e.Children {
			children[i] = insert(ch)
		}
		if e.Op.IsList() && mode == ListCons {
			tail := add(plan.Node{Op: e.Op})
			for i := len(children) - 1; i >= 0; i-- {
				tail = add(plan.Node{Op: e.Op, Children: []plan.ID{children[i], tail}})
			}
			return tail
		}
		n := plan.Node{Op: e.Op, Payload: e.Payload}
		if len(children) > 0 {
			n.Children = children
		}
		return add(n)
	}
	return insert(e), nodes
}
