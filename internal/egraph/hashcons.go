package egraph

import (
	"github.com/dchest/siphash"

	"github.com/yautze/cube/internal/plan"
)

// Fixed keys keep bucket placement identical across runs.
const (
	hashKey0 = 0x6375626573716c31
	hashKey1 = 0x65677261706831
)

type memoEntry struct {
	node plan.Node
	id   plan.ID
}

// hashcons maps canonical nodes to the class that holds them. Buckets are
// keyed by the siphash of the node key; collisions fall back to Equal.
type hashcons struct {
	buckets map[uint64][]memoEntry
	buf     []byte
}

func newHashcons() *hashcons {
	return &hashcons{buckets: make(map[uint64][]memoEntry)}
}

func (h *hashcons) sum(n plan.Node) uint64 {
	h.buf = n.AppendKey(h.buf[:0])
	return siphash.Hash(hashKey0, hashKey1, h.buf)
}

func (h *hashcons) lookup(n plan.Node) (plan.ID, bool) {
	for _, e := range h.buckets[h.sum(n)] {
		if e.node.Equal(n) {
			return e.id, true
		}
	}
	return 0, false
}

// put records n for id. n must not already be present.
func (h *hashcons) put(n plan.Node, id plan.ID) {
	sum := h.sum(n)
	h.buckets[sum] = append(h.buckets[sum], memoEntry{node: n.Clone(), id: id})
}
