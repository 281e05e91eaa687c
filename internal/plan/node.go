package plan

import (
	"slices"
	"strconv"
	"strings"
)

// ID is an e-class handle. Children of a Node refer to classes, never to
// other nodes directly.
type ID uint32

// Node is one term of the plan language inside an e-graph.
type Node struct {
	Op       Op
	Payload  Payload
	Children []ID
}

// Leaf builds a payload node without children.
func Leaf(op Op, v Payload) Node {
	return Node{Op: op, Payload: v}
}

// AppendKey appends the hash-consing key of n. Two nodes are the same term
// exactly when their keys are equal.
func (n Node) AppendKey(dst []byte) []byte {
	dst = append(dst, byte(n.Op))
	if n.Payload != nil {
		dst = n.Payload.AppendKey(dst)
	}
	dst = append(dst, '(')
	for i, ch := range n.Children {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = strconv.AppendUint(dst, uint64(ch), 10)
	}
	return append(dst, ')')
}

// Key returns the hash-consing key as a string.
func (n Node) Key() string {
	return string(n.AppendKey(nil))
}

// Equal reports structural equality over op, payload and child handles.
func (n Node) Equal(o Node) bool {
	return n.Op == o.Op && PayloadEqual(n.Payload, o.Payload) && slices.Equal(n.Children, o.Children)
}

// Clone returns a copy that shares no child slice with n.
func (n Node) Clone() Node {
	n.Children = slices.Clone(n.Children)
	return n
}

// Compare orders nodes by op, then payload key, then children.
func (n Node) Compare(o Node) int {
	if n.Op != o.Op {
		if n.Op < o.Op {
			return -1
		}
		return 1
	}
	return strings.Compare(n.Key(), o.Key())
}

func (n Node) String() string {
	var b strings.Builder
	b.WriteString(n.Op.String())
	if n.Payload != nil {
		b.WriteByte(' ')
		b.WriteString(n.Payload.String())
	}
	if len(n.Children) > 0 || n.Op.IsList() {
		b.WriteByte('(')
		for i, ch := range n.Children {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteByte('#')
			b.WriteString(strconv.FormatUint(uint64(ch), 10))
		}
		b.WriteByte(')')
	}
	return b.String()
}
