package tasktree

// ReparentIntent is a validated "move node under new parent" request produced
// by ProposeReparent and executed by ApplyReparent.
type ReparentIntent[K comparable] struct {
	NodeID      K
	NewParentID K
}

// ProposeReparent turns a drag gesture into a validated reparent intent.
//
// Dropping a node onto itself is ignored: the result is (nil, nil), not an
// error. A missing target or dragged node yields ErrNotFound. Dropping a node
// onto one of its own descendants yields ErrInvalidMove. Validation runs
// entirely against the pre-move forest; nothing is mutated on rejection.
func ProposeReparent[K comparable, P any](f Forest[K, P], draggedID, targetID K) (*ReparentIntent[K], error) {
	if draggedID == targetID {
		return nil, nil
	}
	if FindByID(f, targetID) == nil {
		return nil, ErrNotFound
	}
	if FindByID(f, draggedID) == nil {
		return nil, ErrNotFound
	}
	if IsDescendant(f, draggedID, targetID) {
		return nil, ErrInvalidMove
	}
	return &ReparentIntent[K]{NodeID: draggedID, NewParentID: targetID}, nil
}

// ApplyReparent executes a validated intent: the node is detached with its
// subtree and appended to the new parent's children, newest-last. A nil
// intent (self-drop) leaves the forest untouched.
func ApplyReparent[K comparable, P any](f Forest[K, P], intent *ReparentIntent[K]) (Forest[K, P], error) {
	if intent == nil {
		return f, nil
	}
	nf, node := Detach(f, intent.NodeID)
	if node == nil {
		return f, ErrNotFound
	}
	return AttachAsChild(nf, intent.NewParentID, node)
}
