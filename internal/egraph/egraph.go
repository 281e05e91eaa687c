package egraph

import (
	"iter"
	"slices"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/yautze/cube/internal/plan"
)

// Analysis computes per-class data bottom-up. Make derives the data of a
// single node from its children's classes; Merge combines the data of two
// classes being unioned and must be commutative and idempotent.
type Analysis[D any] interface {
	Make(g *EGraph[D], n plan.Node) D
	Merge(a, b D) D
	Equal(a, b D) bool
}

// Class is an equivalence class of nodes.
type Class[D any] struct {
	ID    plan.ID
	Nodes []plan.Node
	Data  D

	parents []parentRef
}

// parentRef records that node, living in class, uses this class as a child.
type parentRef struct {
	node  plan.Node
	class plan.ID
}

// EGraph is an arena of hash-consed nodes grouped into equivalence classes.
// It is owned by a single compilation and is not safe for concurrent use.
//
// Mutations (Add, Union) leave the graph in a state where congruent classes
// may not yet be merged; Rebuild restores congruence closure and analysis
// consistency. Searches should only run on a rebuilt graph.
type EGraph[D any] struct {
	analysis Analysis[D]
	uf       unionFind
	classes  []*Class[D]
	memo     *hashcons

	pending         []parentRef
	analysisPending []parentRef
	unions          int
}

// New returns an empty e-graph using analysis a.
func New[D any](a Analysis[D]) *EGraph[D] {
	return &EGraph[D]{analysis: a, memo: newHashcons()}
}

// Find returns the canonical class id of a handle.
func (g *EGraph[D]) Find(id plan.ID) plan.ID {
	g.mustExist(id)
	return g.uf.find(id)
}

func (g *EGraph[D]) mustExist(id plan.ID) {
	if int(id) >= g.uf.size() {
		panic(errors.AssertionFailedf("e-class %d does not exist (graph has %d handles)",
			errors.Safe(id), errors.Safe(g.uf.size())))
	}
}

// Canonicalize returns n with every child replaced by its canonical id.
func (g *EGraph[D]) Canonicalize(n plan.Node) plan.Node {
	out := plan.Node{Op: n.Op, Payload: n.Payload}
	if len(n.Children) > 0 {
		out.Children = make([]plan.ID, len(n.Children))
		for i, ch := range n.Children {
			out.Children[i] = g.Find(ch)
		}
	}
	return out
}

// Add inserts n and returns the handle of its class. Inserting a node that
// is already present returns the existing class. Add panics with an
// assertion failure if a child handle does not exist.
func (g *EGraph[D]) Add(n plan.Node) plan.ID {
	n = g.Canonicalize(n)
	if id, ok := g.memo.lookup(n); ok {
		return g.uf.find(id)
	}
	id := g.uf.makeSet()
	class := &Class[D]{ID: id, Nodes: []plan.Node{n}}
	g.classes = append(g.classes, class)
	for _, ch := range n.Children {
		child := g.classes[ch]
		child.parents = append(child.parents, parentRef{node: n, class: id})
	}
	g.memo.put(n, id)
	class.Data = g.analysis.Make(g, n)
	return id
}

// Lookup returns the class holding n, if any.
func (g *EGraph[D]) Lookup(n plan.Node) (plan.ID, bool) {
	for _, ch := range n.Children {
		if int(ch) >= g.uf.size() {
			return 0, false
		}
	}
	id, ok := g.memo.lookup(g.Canonicalize(n))
	if !ok {
		return 0, false
	}
	return g.uf.find(id), true
}

// Union merges the classes of a and b. It reports the surviving id and
// whether anything changed. The only failure is an unknown handle.
func (g *EGraph[D]) Union(a, b plan.ID) (plan.ID, bool, error) {
	if int(a) >= g.uf.size() || int(b) >= g.uf.size() {
		return 0, false, errors.AssertionFailedf("union of unknown e-classes %d and %d",
			errors.Safe(a), errors.Safe(b))
	}
	root, merged := g.union(a, b)
	return root, merged, nil
}

func (g *EGraph[D]) union(a, b plan.ID) (plan.ID, bool) {
	a, b = g.uf.find(a), g.uf.find(b)
	if a == b {
		return a, false
	}
	// The older class survives; ids stay stable for callers holding the root.
	if b < a {
		a, b = b, a
	}
	ca, cb := g.classes[a], g.classes[b]
	g.uf.link(a, b)
	g.unions++

	g.pending = append(g.pending, cb.parents...)
	merged := g.analysis.Merge(ca.Data, cb.Data)
	if !g.analysis.Equal(merged, ca.Data) {
		g.analysisPending = append(g.analysisPending, ca.parents...)
	}
	if !g.analysis.Equal(merged, cb.Data) {
		g.analysisPending = append(g.analysisPending, cb.parents...)
	}

	ca.Nodes = append(ca.Nodes, cb.Nodes...)
	ca.parents = append(ca.parents, cb.parents...)
	ca.Data = merged
	g.classes[b] = nil
	return a, true
}

// Rebuild restores congruence closure: parents whose children were merged
// are re-canonicalized, and any two that became identical are unioned. It
// then propagates analysis changes upward and deduplicates class contents.
// It returns the number of unions it performed.
func (g *EGraph[D]) Rebuild() int {
	start := g.unions
	for len(g.pending) > 0 || len(g.analysisPending) > 0 {
		for len(g.pending) > 0 {
			todo := g.pending
			g.pending = nil
			for _, p := range todo {
				canon := g.Canonicalize(p.node)
				if existing, ok := g.memo.lookup(canon); ok {
					g.union(existing, p.class)
					continue
				}
				g.memo.put(canon, g.uf.find(p.class))
			}
		}
		for len(g.analysisPending) > 0 {
			todo := g.analysisPending
			g.analysisPending = nil
			for _, p := range todo {
				class := g.classes[g.uf.find(p.class)]
				data := g.analysis.Make(g, g.Canonicalize(p.node))
				merged := g.analysis.Merge(class.Data, data)
				if !g.analysis.Equal(merged, class.Data) {
					class.Data = merged
					g.analysisPending = append(g.analysisPending, class.parents...)
				}
			}
		}
	}
	g.repair()
	return g.unions - start
}

// repair canonicalizes and deduplicates the nodes and parent lists of every
// live class, keeping nodes in a deterministic order.
func (g *EGraph[D]) repair() {
	for _, class := range g.classes {
		if class == nil {
			continue
		}
		for i, n := range class.Nodes {
			class.Nodes[i] = g.Canonicalize(n)
		}
		slices.SortFunc(class.Nodes, plan.Node.Compare)
		class.Nodes = slices.CompactFunc(class.Nodes, plan.Node.Equal)

		seen := make(map[string]struct{}, len(class.parents))
		parents := class.parents[:0]
		for _, p := range class.parents {
			p.node = g.Canonicalize(p.node)
			p.class = g.uf.find(p.class)
			key := string(strconv.AppendUint(append(p.node.AppendKey(nil), '@'), uint64(p.class), 10))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			parents = append(parents, p)
		}
		class.parents = parents
	}
}

// Class returns the class of id.
func (g *EGraph[D]) Class(id plan.ID) *Class[D] {
	return g.classes[g.Find(id)]
}

// Data returns the analysis data of the class of id.
func (g *EGraph[D]) Data(id plan.ID) D {
	return g.Class(id).Data
}

// ClassesOf iterates over the nodes of the class of id.
func (g *EGraph[D]) ClassesOf(id plan.ID) iter.Seq[plan.Node] {
	class := g.Class(id)
	return func(yield func(plan.Node) bool) {
		for _, n := range class.Nodes {
			if !yield(n) {
				return
			}
		}
	}
}

// NodesOf iterates over the nodes of kind op in the class of id.
func (g *EGraph[D]) NodesOf(id plan.ID, op plan.Op) iter.Seq[plan.Node] {
	class := g.Class(id)
	return func(yield func(plan.Node) bool) {
		for _, n := range class.Nodes {
			if n.Op == op && !yield(n) {
				return
			}
		}
	}
}

// Classes iterates over live classes in ascending id order. Classes added
// during iteration are not visited.
func (g *EGraph[D]) Classes() iter.Seq[*Class[D]] {
	snapshot := g.classes[:len(g.classes):len(g.classes)]
	return func(yield func(*Class[D]) bool) {
		for _, class := range snapshot {
			if class == nil || g.uf.find(class.ID) != class.ID {
				continue
			}
			if !yield(class) {
				return
			}
		}
	}
}

// NumClasses returns the number of live classes.
func (g *EGraph[D]) NumClasses() int {
	n := 0
	for range g.Classes() {
		n++
	}
	return n
}

// NumNodes returns the number of nodes across live classes.
func (g *EGraph[D]) NumNodes() int {
	n := 0
	for class := range g.Classes() {
		n += len(class.Nodes)
	}
	return n
}

// NumHandles returns the number of handles ever issued.
func (g *EGraph[D]) NumHandles() int { return g.uf.size() }

// Unions returns the number of merges performed so far.
func (g *EGraph[D]) Unions() int { return g.unions }
