package egraph

import "github.com/yautze/cube/internal/plan"

// unionFind maps every handle ever issued to its canonical class id.
type unionFind struct {
	parents []plan.ID
}

func (u *unionFind) makeSet() plan.ID {
	id := plan.ID(len(u.parents))
	u.parents = append(u.parents, id)
	return id
}

func (u *unionFind) size() int { return len(u.parents) }

// find returns the root of id, halving paths as it goes.
func (u *unionFind) find(id plan.ID) plan.ID {
	for u.parents[id] != id {
		u.parents[id] = u.parents[u.parents[id]]
		id = u.parents[id]
	}
	return id
}

// link makes root the parent of child. Both must already be roots.
func (u *unionFind) link(root, child plan.ID) {
	u.parents[child] = root
}
