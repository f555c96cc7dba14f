package tasktree

// The operations in this file are pure: they never mutate their input forest.
// Structural changes are made on a fresh clone and returned, so the caller
// decides when the visible state flips over. Lookups return pointers into the
// given forest and must be treated as read-only.

// FindByID returns the first node matching id, searching depth-first across
// all top-level nodes and their descendants. Ids are unique, so first match
// is only match. Returns nil when absent.
func FindByID[K comparable, P any](f Forest[K, P], id K) *Node[K, P] {
	var found *Node[K, P]
	f.Walk(func(n *Node[K, P]) bool {
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Locate returns the node matching id together with its position: the id of
// the node owning it (nil for top level) and its index in that sibling list.
// Returns (nil, nil, -1) when absent.
func Locate[K comparable, P any](f Forest[K, P], id K) (*Node[K, P], *K, int) {
	for i, n := range f {
		if n.ID == id {
			return n, nil, i
		}
	}
	var node *Node[K, P]
	var parentID *K
	index := -1
	f.Walk(func(n *Node[K, P]) bool {
		for i, c := range n.Children {
			if c.ID == id {
				pid := n.ID
				node, parentID, index = c, &pid, i
				return false
			}
		}
		return true
	})
	return node, parentID, index
}

// IsDescendant reports whether candidateID names a node inside the subtree
// rooted at ancestorID, through any number of levels. A node counts as part
// of its own subtree, so IsDescendant(f, x, x) is true when x exists. This is
// the cycle guard for reparenting.
func IsDescendant[K comparable, P any](f Forest[K, P], ancestorID, candidateID K) bool {
	root := FindByID(f, ancestorID)
	if root == nil {
		return false
	}
	found := false
	walkNode(root, func(n *Node[K, P]) bool {
		if n.ID == candidateID {
			found = true
			return false
		}
		return true
	})
	return found
}

// Detach removes the node matching id from wherever it currently sits and
// returns the new forest plus the removed subtree, children intact. The
// removed node's ParentID is cleared. When id is absent the input forest is
// returned unchanged with a nil node.
func Detach[K comparable, P any](f Forest[K, P], id K) (Forest[K, P], *Node[K, P]) {
	nf, n, _, _ := DetachAt(f, id)
	return nf, n
}

// DetachAt is Detach plus the removed node's prior position (parent id and
// sibling index), which callers use to restore it exactly on rollback.
func DetachAt[K comparable, P any](f Forest[K, P], id K) (Forest[K, P], *Node[K, P], *K, int) {
	if FindByID(f, id) == nil {
		return f, nil, nil, -1
	}
	out := f.Clone()
	for i, n := range out {
		if n.ID == id {
			out = append(out[:i:i], out[i+1:]...)
			n.ParentID = nil
			return out, n, nil, i
		}
	}
	var removed *Node[K, P]
	var parentID *K
	index := -1
	out.Walk(func(n *Node[K, P]) bool {
		for i, c := range n.Children {
			if c.ID == id {
				n.Children = append(n.Children[:i], n.Children[i+1:]...)
				pid := n.ID
				c.ParentID = nil
				removed, parentID, index = c, &pid, i
				return false
			}
		}
		return true
	})
	return out, removed, parentID, index
}

// AttachAsChild appends node to the children of the node matching parentID,
// setting node.ParentID accordingly. The attached node is cloned, so the
// caller's copy stays independent. Returns ErrNotFound and the input forest
// unchanged when parentID is absent.
func AttachAsChild[K comparable, P any](f Forest[K, P], parentID K, node *Node[K, P]) (Forest[K, P], error) {
	if FindByID(f, parentID) == nil {
		return f, ErrNotFound
	}
	out := f.Clone()
	p := FindByID(out, parentID)
	n := node.Clone()
	pid := parentID
	n.ParentID = &pid
	p.Children = append(p.Children, n)
	return out, nil
}

// InsertAt places node under parentID (nil for top level) at the given
// sibling index, clamped to the list bounds. Used to restore a detached node
// to its exact prior position.
func InsertAt[K comparable, P any](f Forest[K, P], parentID *K, index int, node *Node[K, P]) (Forest[K, P], error) {
	out := f.Clone()
	n := node.Clone()
	if parentID == nil {
		n.ParentID = nil
		out = insertNode(out, index, n)
		return out, nil
	}
	p := FindByID(out, *parentID)
	if p == nil {
		return f, ErrNotFound
	}
	pid := *parentID
	n.ParentID = &pid
	p.Children = insertNode(p.Children, index, n)
	return out, nil
}

func insertNode[K comparable, P any](list []*Node[K, P], index int, n *Node[K, P]) []*Node[K, P] {
	if index < 0 || index > len(list) {
		index = len(list)
	}
	list = append(list, nil)
	copy(list[index+1:], list[index:])
	list[index] = n
	return list
}

// RemoveSubtree detaches and discards the node matching id together with all
// of its descendants. Returns ErrNotFound and the input forest unchanged when
// id is absent.
func RemoveSubtree[K comparable, P any](f Forest[K, P], id K) (Forest[K, P], error) {
	out, removed := Detach(f, id)
	if removed == nil {
		return f, ErrNotFound
	}
	return out, nil
}

// MapSubtree applies fn to the node matching id, leaving siblings and
// ancestors untouched, and returns the new forest. fn receives the node in
// the returned forest and may mutate it freely.
func MapSubtree[K comparable, P any](f Forest[K, P], id K, fn func(*Node[K, P])) (Forest[K, P], error) {
	if FindByID(f, id) == nil {
		return f, ErrNotFound
	}
	out := f.Clone()
	fn(FindByID(out, id))
	return out, nil
}
