package saturate

import (
	"strconv"

	"github.com/yautze/cube/internal/rewrite"
)

// firedSet records the (rule, root, bindings) triples that were applied in
// one run. Bindings are keyed by canonical class, so a match that becomes
// new after a union fires again.
type firedSet map[string]struct{}

func firedKey(g *rewrite.Graph, rule int, m rewrite.Match) string {
	b := strconv.AppendInt(nil, int64(rule), 10)
	b = append(b, '@')
	b = strconv.AppendUint(b, uint64(g.Find(m.Root)), 10)
	b = append(b, ':')
	return string(append(b, m.Subst.Key(g)...))
}

// add reports whether key is new and records it.
func (f firedSet) add(key string) bool {
	if _, ok := f[key]; ok {
		return false
	}
	f[key] = struct{}{}
	return true
}
