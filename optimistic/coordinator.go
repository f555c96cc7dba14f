// Package optimistic keeps a local task forest responsive and eventually
// consistent with a remote task store: mutations apply locally first, sync in
// the background, and reconcile with the authoritative response or roll back
// on failure.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meikuraledutech/tasktree"
)

// Kind names an optimistic mutation.
type Kind string

const (
	KindReparent       Kind = "reparent"
	KindToggleComplete Kind = "toggle_complete"
	KindToggleStar     Kind = "toggle_star"
	KindReschedule     Kind = "reschedule"
	KindDelete         Kind = "delete"
)

// ErrUnsupported is returned when the configured Domain has no mutator for
// the requested kind (goal-targets, for example, carry no star).
var ErrUnsupported = errors.New("optimistic: mutation not supported for this payload kind")

// SyncError reports a mutation whose remote call failed after it was applied
// locally. By the time the failure surfaces the local change has already been
// rolled back to its pre-mutation snapshot.
type SyncError struct {
	Kind   Kind
	NodeID any
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("optimistic: %s of node %v did not persist, local change reverted: %v", e.Kind, e.NodeID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Remote is the task store surface the coordinator syncs against. Every
// node-returning call must yield the complete current state of the affected
// node; the coordinator reconciles by replacement.
type Remote[K comparable, P any] interface {
	Reparent(ctx context.Context, id K, newParentID *K) (*tasktree.Node[K, P], error)
	SetCompleted(ctx context.Context, id K, completed bool) (*tasktree.Node[K, P], error)
	ToggleStar(ctx context.Context, id K) (*tasktree.Node[K, P], error)
	Reschedule(ctx context.Context, id K, at *time.Time) (*tasktree.Node[K, P], error)
	Delete(ctx context.Context, id K) error
	Fetch(ctx context.Context, limit int) (tasktree.Forest[K, P], error)
}

// Config wires a Coordinator.
type Config[K comparable, P any] struct {
	Remote Remote[K, P]
	Domain Domain[P]

	// OnChange fires after every visible forest change (local apply,
	// reconcile, rollback, refresh). Called without internal locks held.
	OnChange func()

	// OnSyncFailure surfaces a rolled-back mutation to the user.
	OnSyncFailure func(*SyncError)
}

type pendingKey[K comparable] struct {
	kind Kind
	id   K
}

// snapshot is the rollback record for one in-flight mutation: a deep copy of
// the node plus where it sat.
type snapshot[K comparable, P any] struct {
	node     *tasktree.Node[K, P]
	parentID *K
	index    int
	taken    time.Time
}

// Coordinator owns a forest value and two materialized projections of it
// (starred, calendar). Mutations are keyed by (kind, node id); when calls for
// the same key overlap, the last-issued local mutation wins and stale
// responses are dropped.
//
// All methods are safe for concurrent use. Forests handed out by Forest,
// Starred and Calendar are never mutated afterwards and must be treated as
// read-only.
type Coordinator[K comparable, P any] struct {
	cfg Config[K, P]

	mu       sync.Mutex
	forest   tasktree.Forest[K, P]
	starred  []*tasktree.Node[K, P]
	calendar []*tasktree.Node[K, P]
	pending  map[pendingKey[K]]uint64
	seq      uint64

	wg sync.WaitGroup
}

// New creates a Coordinator with an empty forest. Call Refresh to hydrate.
func New[K comparable, P any](cfg Config[K, P]) *Coordinator[K, P] {
	return &Coordinator[K, P]{
		cfg:     cfg,
		pending: make(map[pendingKey[K]]uint64),
	}
}

// Forest returns the current forest value.
func (c *Coordinator[K, P]) Forest() tasktree.Forest[K, P] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forest
}

// Starred returns the starred projection in tree order.
func (c *Coordinator[K, P]) Starred() []*tasktree.Node[K, P] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*tasktree.Node[K, P](nil), c.starred...)
}

// Calendar returns the calendar projection in tree order.
func (c *Coordinator[K, P]) Calendar() []*tasktree.Node[K, P] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*tasktree.Node[K, P](nil), c.calendar...)
}

// Pending returns the number of in-flight mutations.
func (c *Coordinator[K, P]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Wait blocks until every in-flight sync has settled.
func (c *Coordinator[K, P]) Wait() { c.wg.Wait() }

// Reparent optimistically moves a node (with its subtree) under a new parent,
// or to the top level when newParentID is nil. Dropping a node onto itself is
// ignored. Returns ErrNotFound or ErrInvalidMove without touching the forest
// when validation fails; validation always runs against the pre-move forest.
func (c *Coordinator[K, P]) Reparent(ctx context.Context, id K, newParentID *K) error {
	c.mu.Lock()
	var intent *tasktree.ReparentIntent[K]
	if newParentID != nil {
		var err error
		intent, err = tasktree.ProposeReparent(c.forest, id, *newParentID)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		if intent == nil {
			c.mu.Unlock()
			return nil
		}
	} else if tasktree.FindByID(c.forest, id) == nil {
		c.mu.Unlock()
		return tasktree.ErrNotFound
	}
	snap, _ := c.captureLocked(id)
	var next tasktree.Forest[K, P]
	if intent != nil {
		next, _ = tasktree.ApplyReparent(c.forest, intent)
	} else {
		detached, node := tasktree.Detach(c.forest, id)
		next, _ = tasktree.InsertAt(detached, nil, len(detached), node)
	}
	seq := c.beginLocked(KindReparent, id)
	c.commitLocked(next)
	c.mu.Unlock()
	c.changed()

	c.dispatch(ctx, KindReparent, id, seq, snap, true, func(ctx context.Context) (*tasktree.Node[K, P], error) {
		return c.cfg.Remote.Reparent(ctx, id, newParentID)
	})
	return nil
}

// ToggleStar optimistically flips a node's star.
func (c *Coordinator[K, P]) ToggleStar(ctx context.Context, id K) error {
	if c.cfg.Domain.ToggleStar == nil {
		return ErrUnsupported
	}
	return c.mutatePayload(ctx, KindToggleStar, id, c.cfg.Domain.ToggleStar, func(ctx context.Context) (*tasktree.Node[K, P], error) {
		return c.cfg.Remote.ToggleStar(ctx, id)
	})
}

// ToggleComplete optimistically flips a node's completion state. The value
// sent to the remote is derived in the same critical section that applies the
// local flip, so rapid toggles always send alternating values.
func (c *Coordinator[K, P]) ToggleComplete(ctx context.Context, id K) error {
	d := c.cfg.Domain
	if d.ToggleComplete == nil || d.Completed == nil {
		return ErrUnsupported
	}
	var want bool
	transform := func(p P) P {
		want = !d.Completed(p)
		return d.ToggleComplete(p)
	}
	return c.mutatePayload(ctx, KindToggleComplete, id, transform, func(ctx context.Context) (*tasktree.Node[K, P], error) {
		return c.cfg.Remote.SetCompleted(ctx, id, want)
	})
}

// Reschedule optimistically sets (or, with a nil time, clears) a node's
// schedule slot.
func (c *Coordinator[K, P]) Reschedule(ctx context.Context, id K, at *time.Time) error {
	d := c.cfg.Domain
	if d.SetSchedule == nil {
		return ErrUnsupported
	}
	transform := func(p P) P { return d.SetSchedule(p, at) }
	return c.mutatePayload(ctx, KindReschedule, id, transform, func(ctx context.Context) (*tasktree.Node[K, P], error) {
		return c.cfg.Remote.Reschedule(ctx, id, at)
	})
}

// Delete optimistically removes a node and all of its descendants, mirroring
// the server-side cascade. On sync failure the whole subtree is restored at
// its prior position.
func (c *Coordinator[K, P]) Delete(ctx context.Context, id K) error {
	c.mu.Lock()
	snap, ok := c.captureLocked(id)
	if !ok {
		c.mu.Unlock()
		return tasktree.ErrNotFound
	}
	next, _ := tasktree.RemoveSubtree(c.forest, id)
	seq := c.beginLocked(KindDelete, id)
	c.commitLocked(next)
	c.mu.Unlock()
	c.changed()

	c.dispatch(ctx, KindDelete, id, seq, snap, false, func(ctx context.Context) (*tasktree.Node[K, P], error) {
		return nil, c.cfg.Remote.Delete(ctx, id)
	})
	return nil
}

// Refresh rehydrates the forest from the remote. Nodes with in-flight
// mutations keep their locally-applied state; the refresh merges around them
// instead of clobbering them.
func (c *Coordinator[K, P]) Refresh(ctx context.Context, limit int) error {
	fetched, err := c.cfg.Remote.Fetch(ctx, limit)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.commitLocked(c.mergePendingLocked(fetched))
	c.mu.Unlock()
	c.changed()
	return nil
}

// mutatePayload is the shared optimistic path for non-structural mutations:
// validate, snapshot, transform the payload locally, then sync.
func (c *Coordinator[K, P]) mutatePayload(ctx context.Context, kind Kind, id K, transform func(P) P, call func(context.Context) (*tasktree.Node[K, P], error)) error {
	c.mu.Lock()
	snap, ok := c.captureLocked(id)
	if !ok {
		c.mu.Unlock()
		return tasktree.ErrNotFound
	}
	next, err := tasktree.MapSubtree(c.forest, id, func(n *tasktree.Node[K, P]) {
		n.Payload = transform(n.Payload)
	})
	if err != nil {
		c.mu.Unlock()
		return err
	}
	seq := c.beginLocked(kind, id)
	c.commitLocked(next)
	c.mu.Unlock()
	c.changed()

	c.dispatch(ctx, kind, id, seq, snap, true, call)
	return nil
}

// dispatch runs the remote call in the background and settles the mutation
// when it returns. A nil node from a call that must return one is treated as
// a malformed response and triggers rollback.
func (c *Coordinator[K, P]) dispatch(ctx context.Context, kind Kind, id K, seq uint64, snap snapshot[K, P], expectNode bool, call func(context.Context) (*tasktree.Node[K, P], error)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		node, err := call(ctx)
		if err == nil && expectNode && node == nil {
			err = tasktree.ErrMalformedResponse
		}
		c.settle(kind, id, seq, snap, node, err)
	}()
}

func (c *Coordinator[K, P]) settle(kind Kind, id K, seq uint64, snap snapshot[K, P], node *tasktree.Node[K, P], err error) {
	key := pendingKey[K]{kind: kind, id: id}
	c.mu.Lock()
	if c.pending[key] != seq {
		// Superseded: a newer local mutation for this key is in flight and
		// its response will settle the key. This response must not clobber
		// the newer local state.
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)
	if err != nil {
		c.rollbackLocked(snap)
		fail := &SyncError{Kind: kind, NodeID: id, Err: err}
		c.mu.Unlock()
		c.changed()
		if c.cfg.OnSyncFailure != nil {
			c.cfg.OnSyncFailure(fail)
		}
		return
	}
	if kind == KindDelete {
		// Subtree is already gone locally; the confirmation carries no node.
		c.mu.Unlock()
		return
	}
	c.reconcileLocked(node)
	c.mu.Unlock()
	c.changed()
}

// rollbackLocked restores the snapshot: whatever the node looks like now is
// removed and the pre-mutation copy goes back to its recorded position.
func (c *Coordinator[K, P]) rollbackLocked(snap snapshot[K, P]) {
	next, removed := tasktree.Detach(c.forest, snap.node.ID)
	if removed == nil {
		next = c.forest
	}
	restored, err := tasktree.InsertAt(next, snap.parentID, snap.index, snap.node)
	if err != nil {
		// The old parent is gone (a concurrent delete was confirmed in the
		// meantime); surface the node at the top level rather than lose it.
		restored, _ = tasktree.InsertAt(next, nil, len(next), snap.node)
	}
	c.commitLocked(restored)
}

// reconcileLocked overwrites the affected node with the server's
// authoritative payload, and follows a server-side parent change. Local
// children are preserved: no single-node response can know about concurrent
// local edits below the node.
func (c *Coordinator[K, P]) reconcileLocked(node *tasktree.Node[K, P]) {
	_, curParent, _ := tasktree.Locate(c.forest, node.ID)
	next, err := tasktree.MapSubtree(c.forest, node.ID, func(n *tasktree.Node[K, P]) {
		n.Payload = node.Clone().Payload
	})
	if err != nil {
		// Node deleted locally while the call was in flight; nothing to
		// reconcile onto.
		return
	}
	if !sameParent(curParent, node.ParentID) {
		next = moveTo(next, node.ID, node.ParentID)
	}
	c.commitLocked(next)
}

func (c *Coordinator[K, P]) captureLocked(id K) (snapshot[K, P], bool) {
	node, parentID, index := tasktree.Locate(c.forest, id)
	if node == nil {
		return snapshot[K, P]{}, false
	}
	return snapshot[K, P]{node: node.Clone(), parentID: parentID, index: index, taken: time.Now()}, true
}

func (c *Coordinator[K, P]) beginLocked(kind Kind, id K) uint64 {
	c.seq++
	c.pending[pendingKey[K]{kind: kind, id: id}] = c.seq
	return c.seq
}

// commitLocked swaps in the new forest and rebuilds both projections in the
// same step, so a projection is never stale relative to the tree it derives
// from.
func (c *Coordinator[K, P]) commitLocked(next tasktree.Forest[K, P]) {
	c.forest = next
	c.starred = c.starred[:0]
	c.calendar = c.calendar[:0]
	d := c.cfg.Domain
	next.Walk(func(n *tasktree.Node[K, P]) bool {
		if d.Starred != nil && d.Starred(n.Payload) {
			c.starred = append(c.starred, n)
		}
		if d.Scheduled != nil && d.Scheduled(n.Payload) {
			c.calendar = append(c.calendar, n)
		}
		return true
	})
}

func (c *Coordinator[K, P]) changed() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange()
	}
}

// mergePendingLocked folds the locally-applied state of every pending node
// into a freshly fetched forest.
func (c *Coordinator[K, P]) mergePendingLocked(fetched tasktree.Forest[K, P]) tasktree.Forest[K, P] {
	seen := make(map[K]bool, len(c.pending))
	for key := range c.pending {
		if seen[key.id] {
			continue
		}
		seen[key.id] = true
		local, localParent, _ := tasktree.Locate(c.forest, key.id)
		if local == nil {
			// Pending delete: keep the node out of the refreshed forest.
			if next, err := tasktree.RemoveSubtree(fetched, key.id); err == nil {
				fetched = next
			}
			continue
		}
		if tasktree.FindByID(fetched, key.id) == nil {
			// The fetch does not know the node (or fetched before it
			// existed); keep the local copy.
			fetched = placeAt(fetched, local, localParent)
			continue
		}
		fetched, _ = tasktree.MapSubtree(fetched, key.id, func(n *tasktree.Node[K, P]) {
			n.Payload = local.Clone().Payload
		})
		if _, fetchedParent, _ := tasktree.Locate(fetched, key.id); !sameParent(fetchedParent, localParent) {
			fetched = moveTo(fetched, key.id, localParent)
		}
	}
	return fetched
}

// moveTo relocates a node under parentID (nil for top level), appending
// newest-last. When the parent is missing the node surfaces at the top level.
func moveTo[K comparable, P any](f tasktree.Forest[K, P], id K, parentID *K) tasktree.Forest[K, P] {
	detached, node := tasktree.Detach(f, id)
	if node == nil {
		return f
	}
	return placeAt(detached, node, parentID)
}

func placeAt[K comparable, P any](f tasktree.Forest[K, P], node *tasktree.Node[K, P], parentID *K) tasktree.Forest[K, P] {
	if parentID != nil {
		if attached, err := tasktree.AttachAsChild(f, *parentID, node); err == nil {
			return attached
		}
	}
	out, _ := tasktree.InsertAt(f, nil, len(f), node)
	return out
}

func sameParent[K comparable](a, b *K) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
