package tasktree

// Node is one task or goal-target in the forest. K is the id type (tasks use
// int64, goal-targets use string uuids); the tree logic never inspects ids
// beyond comparing them. P is the domain payload and is opaque here.
//
// A node exclusively owns its Children slice. ParentID is nil exactly when
// the node sits in the top-level sequence; otherwise it names the node whose
// Children contain it.
type Node[K comparable, P any] struct {
	ID       K
	ParentID *K
	Payload  P
	Children []*Node[K, P]
}

// Forest is the ordered sequence of top-level nodes.
type Forest[K comparable, P any] []*Node[K, P]

// clonePayload copies a payload value. Payloads that carry reference types
// (slices, pointers) provide their own Clone; plain value payloads are copied
// as-is.
func clonePayload[P any](p P) P {
	if c, ok := any(p).(interface{ Clone() P }); ok {
		return c.Clone()
	}
	return p
}

// Clone deep-copies the node and its whole subtree.
func (n *Node[K, P]) Clone() *Node[K, P] {
	if n == nil {
		return nil
	}
	out := &Node[K, P]{ID: n.ID, Payload: clonePayload(n.Payload)}
	if n.ParentID != nil {
		pid := *n.ParentID
		out.ParentID = &pid
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, c.Clone())
	}
	return out
}

// Clone deep-copies the forest.
func (f Forest[K, P]) Clone() Forest[K, P] {
	if f == nil {
		return nil
	}
	out := make(Forest[K, P], 0, len(f))
	for _, n := range f {
		out = append(out, n.Clone())
	}
	return out
}

// Walk visits every node depth-first in sibling order. Returning false from
// fn stops the walk.
func (f Forest[K, P]) Walk(fn func(*Node[K, P]) bool) {
	for _, n := range f {
		if !walkNode(n, fn) {
			return
		}
	}
}

func walkNode[K comparable, P any](n *Node[K, P], fn func(*Node[K, P]) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !walkNode(c, fn) {
			return false
		}
	}
	return true
}

// Count returns the number of nodes in the forest.
func (f Forest[K, P]) Count() int {
	total := 0
	f.Walk(func(*Node[K, P]) bool { total++; return true })
	return total
}

// BuildForest links a flat record list into a forest by ParentID, preserving
// input order for siblings. Records whose parent is absent from the list, or
// whose parent chain loops back on itself, are promoted to the top level. Any
// Children already set on the inputs are discarded.
func BuildForest[K comparable, P any](flat []*Node[K, P]) Forest[K, P] {
	byID := make(map[K]*Node[K, P], len(flat))
	for _, n := range flat {
		n.Children = nil
		byID[n.ID] = n
	}
	var roots Forest[K, P]
	for _, n := range flat {
		if n.ParentID != nil {
			if p, ok := byID[*n.ParentID]; ok && p != n {
				p.Children = append(p.Children, n)
				continue
			}
			n.ParentID = nil
		}
		roots = append(roots, n)
	}

	// Nodes on a parent cycle are reachable from no root. Cut the first
	// such node (in input order) loose from its parent and surface it; the
	// rest of its cluster stays attached underneath it.
	reached := make(map[K]bool, len(flat))
	roots.Walk(func(n *Node[K, P]) bool {
		reached[n.ID] = true
		return true
	})
	for _, n := range flat {
		if reached[n.ID] {
			continue
		}
		p := byID[*n.ParentID]
		for i, c := range p.Children {
			if c == n {
				p.Children = append(p.Children[:i], p.Children[i+1:]...)
				break
			}
		}
		n.ParentID = nil
		roots = append(roots, n)
		walkNode(n, func(m *Node[K, P]) bool {
			reached[m.ID] = true
			return true
		})
	}
	return roots
}
