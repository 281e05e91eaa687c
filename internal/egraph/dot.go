package egraph

import (
	"fmt"
	"strconv"

	"github.com/emicklei/dot"
)

// Dot renders the graph in Graphviz format: one cluster per class, one box
// per node, and an edge from every node to the first node of each child
// class labelled with the child position.
func (g *EGraph[D]) Dot() string {
	out := dot.NewGraph(dot.Directed)
	out.Attr("compound", "true")
	out.Attr("rankdir", "TB")

	first := make(map[uint32]dot.Node)
	type pendingEdge struct {
		from  dot.Node
		child uint32
		slot  int
	}
	var edges []pendingEdge

	for class := range g.Classes() {
		sub := out.Subgraph(fmt.Sprintf("class %d", class.ID), dot.ClusterOption{})
		for i, n := range class.Nodes {
			label := n.Op.String()
			if n.Payload != nil {
				label += "\n" + n.Payload.String()
			}
			node := sub.Node(fmt.Sprintf("c%d_n%d", class.ID, i)).
				Attr("label", label).
				Attr("shape", "box")
			if i == 0 {
				first[uint32(class.ID)] = node
			}
			for slot, ch := range n.Children {
				edges = append(edges, pendingEdge{from: node, child: uint32(g.Find(ch)), slot: slot})
			}
		}
	}
	for _, e := range edges {
		to, ok := first[e.child]
		if !ok {
			continue
		}
		out.Edge(e.from, to, strconv.Itoa(e.slot))
	}
	return out.String()
}
