package egraph

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yautze/cube/internal/plan"
)

// depth is a test analysis: the height of the shallowest term in a class.
type depth struct{}

func (depth) Make(g *EGraph[int], n plan.Node) int {
	best := 0
	for _, ch := range n.Children {
		best = max(best, g.Data(ch))
	}
	return best + 1
}

func (depth) Merge(a, b int) int { return min(a, b) }

func (depth) Equal(a, b int) bool { return a == b }

func lit(n int64) plan.Node { return plan.Leaf(plan.OpLiteral, plan.Int(n)) }

func name(s string) plan.Node { return plan.Leaf(plan.OpName, plan.String(s)) }

func binary(l plan.ID, op plan.ID, r plan.ID) plan.Node {
	return plan.Node{Op: plan.OpBinary, Children: []plan.ID{l, op, r}}
}

func TestEGraph_AddDeduplicates(t *testing.T) {
	g := New[int](depth{})

	a := g.Add(lit(1))
	b := g.Add(lit(1))
	c := g.Add(lit(2))

	assert.Equal(t, a, b, "identical nodes share a class")
	assert.NotEqual(t, a, c)
	assert.Equal(t, 2, g.NumClasses())
	assert.Equal(t, 2, g.NumNodes())

	id, ok := g.Lookup(lit(2))
	require.True(t, ok)
	assert.Equal(t, c, id)

	_, ok = g.Lookup(lit(3))
	assert.False(t, ok)
}

func TestEGraph_UnionAndCongruence(t *testing.T) {
	g := New[int](depth{})
	plus := g.Add(name("+"))
	one := g.Add(lit(1))
	two := g.Add(lit(2))
	x := g.Add(lit(10))

	left := g.Add(binary(one, plus, x))
	right := g.Add(binary(two, plus, x))
	require.NotEqual(t, g.Find(left), g.Find(right))

	root, merged, err := g.Union(one, two)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, one, root, "older class survives")

	unions := g.Rebuild()
	assert.Equal(t, 1, unions, "congruent parents merge on rebuild")
	assert.Equal(t, g.Find(left), g.Find(right))

	_, merged, err = g.Union(left, right)
	require.NoError(t, err)
	assert.False(t, merged, "union of one class is a no-op")

	nodes := 0
	for n := range g.ClassesOf(left) {
		assert.Equal(t, plan.OpBinary, n.Op)
		nodes++
	}
	assert.Equal(t, 1, nodes, "congruent nodes deduplicate after rebuild")
}

func TestEGraph_AnalysisPropagates(t *testing.T) {
	g := New[int](depth{})
	plus := g.Add(name("+"))
	one := g.Add(lit(1))
	inner := g.Add(binary(one, plus, one))
	outer := g.Add(binary(inner, plus, one))

	assert.Equal(t, 2, g.Data(inner))
	assert.Equal(t, 3, g.Data(outer))

	// inner is now known to equal a leaf, so outer gets shallower.
	_, _, err := g.Union(inner, g.Add(lit(5)))
	require.NoError(t, err)
	g.Rebuild()

	assert.Equal(t, 1, g.Data(inner))
	assert.Equal(t, 2, g.Data(outer))
}

func TestEGraph_UnionUnknownClass(t *testing.T) {
	g := New[int](depth{})
	a := g.Add(lit(1))

	_, _, err := g.Union(a, 99)
	require.Error(t, err)
	assert.True(t, errors.HasAssertionFailure(err))
}

func TestEGraph_AddUnknownChildPanics(t *testing.T) {
	g := New[int](depth{})
	assert.Panics(t, func() {
		g.Add(plan.Node{Op: plan.OpFilter, Children: []plan.ID{7, 8}})
	})
}

func TestEGraph_NodesOfFiltersByOp(t *testing.T) {
	g := New[int](depth{})
	a := g.Add(lit(1))
	b := g.Add(name("a"))
	_, _, err := g.Union(a, b)
	require.NoError(t, err)
	g.Rebuild()

	var ops []plan.Op
	for n := range g.NodesOf(a, plan.OpName) {
		ops = append(ops, n.Op)
	}
	assert.Equal(t, []plan.Op{plan.OpName}, ops)
}

func TestEGraph_ClassesAscending(t *testing.T) {
	g := New[int](depth{})
	for i := range 5 {
		g.Add(lit(int64(i)))
	}
	_, _, err := g.Union(3, 1)
	require.NoError(t, err)
	g.Rebuild()

	var ids []plan.ID
	for class := range g.Classes() {
		ids = append(ids, class.ID)
	}
	assert.Equal(t, []plan.ID{0, 1, 2, 4}, ids)
}

func TestEGraph_Dot(t *testing.T) {
	g := New[int](depth{})
	plus := g.Add(name("+"))
	one := g.Add(lit(1))
	g.Add(binary(one, plus, one))

	out := g.Dot()
	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, "cluster")
	assert.Contains(t, out, "Binary")
}
