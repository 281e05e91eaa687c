package plan

import (
	"slices"
	"strings"
)

// Expr is a plan as an owned tree. It is the form plans take outside an
// e-graph: upstream input, extraction output and the JSON file format.
// Lists always hold their elements directly.
type Expr struct {
	Op       Op
	Payload  Payload
	Children []*Expr
}

// NewLeaf returns a payload leaf.
func NewLeaf(op Op, v Payload) *Expr { return &Expr{Op: op, Payload: v} }

func NewFlag(b bool) *Expr { return NewLeaf(OpFlag, Bool(b)) }

// NewName returns a name leaf. An empty name is the absent name.
func NewName(s string) *Expr {
	if s == "" {
		return NewLeaf(OpName, Null{})
	}
	return NewLeaf(OpName, String(s))
}

// NewNumber returns a number leaf; nil is the absent number.
func NewNumber(n *int64) *Expr {
	if n == nil {
		return NewLeaf(OpNumber, Null{})
	}
	return NewLeaf(OpNumber, Int(*n))
}

// NewList returns a list of kind op.
func NewList(op Op, elems ...*Expr) *Expr {
	return &Expr{Op: op, Children: slices.Clone(elems)}
}

func NewColumn(relation, name string) *Expr {
	return NewLeaf(OpColumn, Column{Relation: relation, Name: name})
}

// NewLiteral returns a literal. v must be Null, Bool, Int or String.
func NewLiteral(v Payload) *Expr { return NewLeaf(OpLiteral, v) }

func NewBinary(left *Expr, op string, right *Expr) *Expr {
	return &Expr{Op: OpBinary, Children: []*Expr{left, NewName(op), right}}
}

func NewScalarFun(name string, args ...*Expr) *Expr {
	return &Expr{Op: OpScalarFun, Children: []*Expr{
		NewName(name), NewList(OpScalarFunArgs, args...),
	}}
}

// NewAggFun returns an aggregate call. withinGroup holds SortExpr terms and
// may be empty.
func NewAggFun(name string, distinct bool, args []*Expr, withinGroup []*Expr) *Expr {
	return &Expr{Op: OpAggFun, Children: []*Expr{
		NewName(name),
		NewList(OpAggFunArgs, args...),
		NewFlag(distinct),
		NewList(OpWithinGroup, withinGroup...),
	}}
}

func NewWindowFun(name string, args, partitionBy, orderBy []*Expr) *Expr {
	return &Expr{Op: OpWindowFun, Children: []*Expr{
		NewName(name),
		NewList(OpWindowFunArgs, args...),
		NewList(OpPartitionBy, partitionBy...),
		NewList(OpWindowOrderBy, orderBy...),
	}}
}

func NewSortExpr(e *Expr, asc, nullsFirst bool) *Expr {
	return &Expr{Op: OpSortExpr, Children: []*Expr{e, NewFlag(asc), NewFlag(nullsFirst)}}
}

func NewAlias(e *Expr, alias string) *Expr {
	return &Expr{Op: OpAliasExpr, Children: []*Expr{e, NewName(alias)}}
}

func NewCubeScan(aliasToCube AliasToCube, members Members, ungrouped bool) *Expr {
	return &Expr{Op: OpCubeScan, Children: []*Expr{
		NewLeaf(OpAliasToCube, slices.Clone(aliasToCube)),
		NewLeaf(OpCubeMembers, slices.Clone(members)),
		NewFlag(ungrouped),
	}}
}

func NewProjection(input *Expr, exprs []*Expr, alias string) *Expr {
	return &Expr{Op: OpProjection, Children: []*Expr{
		NewList(OpProjectionExprs, exprs...), input, NewName(alias),
	}}
}

func NewFilter(predicate, input *Expr) *Expr {
	return &Expr{Op: OpFilter, Children: []*Expr{predicate, input}}
}

func NewAggregate(input *Expr, group, aggr []*Expr) *Expr {
	return &Expr{Op: OpAggregate, Children: []*Expr{
		input, NewList(OpGroupExprs, group...), NewList(OpAggrExprs, aggr...),
	}}
}

func NewWindow(input *Expr, exprs []*Expr) *Expr {
	return &Expr{Op: OpWindow, Children: []*Expr{input, NewList(OpWindowExprs, exprs...)}}
}

func NewSort(input *Expr, exprs []*Expr) *Expr {
	return &Expr{Op: OpSort, Children: []*Expr{NewList(OpSortExprs, exprs...), input}}
}

func NewLimit(input *Expr, skip, fetch *int64) *Expr {
	return &Expr{Op: OpLimit, Children: []*Expr{NewNumber(skip), NewNumber(fetch), input}}
}

func NewJoin(left, right, on *Expr, joinType string) *Expr {
	return &Expr{Op: OpJoin, Children: []*Expr{left, right, on, NewName(joinType)}}
}

// NewSQLScan returns the leaf that replaces a pushed-down region.
func NewSQLScan(q PushedSQL) *Expr { return NewLeaf(OpSQLScan, q) }

// Child returns the i-th child or nil.
func (e *Expr) Child(i int) *Expr {
	if e == nil || i < 0 || i >= len(e.Children) {
		return nil
	}
	return e.Children[i]
}

// Equal reports deep structural equality.
func (e *Expr) Equal(o *Expr) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.Op != o.Op || !PayloadEqual(e.Payload, o.Payload) || len(e.Children) != len(o.Children) {
		return false
	}
	for i := range e.Children {
		if !e.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (e *Expr) Clone() *Expr {
	if e == nil {
		return nil
	}
	out := &Expr{Op: e.Op, Payload: e.Payload}
	if e.Children != nil {
		out.Children = make([]*Expr, len(e.Children))
		for i, ch := range e.Children {
			out.Children[i] = ch.Clone()
		}
	}
	return out
}

// Walk calls fn for e and every descendant, parents first. Returning false
// skips the children of the current node.
func (e *Expr) Walk(fn func(*Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, ch := range e.Children {
		ch.Walk(fn)
	}
}

// Count returns the number of nodes in the tree.
func (e *Expr) Count() int {
	n := 0
	e.Walk(func(*Expr) bool { n++; return true })
	return n
}

// String renders the tree as an indented s-expression. Leaves print inline.
func (e *Expr) String() string {
	var b strings.Builder
	e.format(&b, 0)
	return b.String()
}

func (e *Expr) format(b *strings.Builder, depth int) {
	if e == nil {
		b.WriteString("<nil>")
		return
	}
	if len(e.Children) == 0 {
		if e.Op.IsList() {
			b.WriteString("(" + e.Op.String() + ")")
			return
		}
		b.WriteString(e.Op.String())
		if e.Payload != nil {
			b.WriteString(" " + e.Payload.String())
		}
		return
	}
	b.WriteString("(" + e.Op.String())
	inline := true
	for _, ch := range e.Children {
		if len(ch.Children) > 0 {
			inline = false
			break
		}
	}
	for _, ch := range e.Children {
		if inline {
			b.WriteByte(' ')
		} else {
			b.WriteByte('\n')
			b.WriteString(strings.Repeat("  ", depth+1))
		}
		if len(ch.Children) == 0 && !ch.Op.IsList() {
			b.WriteString("{")
			ch.format(b, depth+1)
			b.WriteString("}")
			continue
		}
		ch.format(b, depth+1)
	}
	b.WriteByte(')')
}
