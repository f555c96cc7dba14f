package optimistic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/tasktree"
)

// fakeRemote scripts each call with a func field; unscripted calls fail the
// mutation.
type fakeRemote struct {
	mu           sync.Mutex
	reparent     func(id int64, newParentID *int64) (*tasktree.Task, error)
	setCompleted func(id int64, completed bool) (*tasktree.Task, error)
	toggleStar   func(id int64) (*tasktree.Task, error)
	reschedule   func(id int64, at *time.Time) (*tasktree.Task, error)
	delete       func(id int64) error
	fetch        func(limit int) (tasktree.TaskForest, error)
}

var errUnscripted = errors.New("unscripted remote call")

func (f *fakeRemote) Reparent(ctx context.Context, id int64, newParentID *int64) (*tasktree.Task, error) {
	f.mu.Lock()
	fn := f.reparent
	f.mu.Unlock()
	if fn == nil {
		return nil, errUnscripted
	}
	return fn(id, newParentID)
}

func (f *fakeRemote) SetCompleted(ctx context.Context, id int64, completed bool) (*tasktree.Task, error) {
	f.mu.Lock()
	fn := f.setCompleted
	f.mu.Unlock()
	if fn == nil {
		return nil, errUnscripted
	}
	return fn(id, completed)
}

func (f *fakeRemote) ToggleStar(ctx context.Context, id int64) (*tasktree.Task, error) {
	f.mu.Lock()
	fn := f.toggleStar
	f.mu.Unlock()
	if fn == nil {
		return nil, errUnscripted
	}
	return fn(id)
}

func (f *fakeRemote) Reschedule(ctx context.Context, id int64, at *time.Time) (*tasktree.Task, error) {
	f.mu.Lock()
	fn := f.reschedule
	f.mu.Unlock()
	if fn == nil {
		return nil, errUnscripted
	}
	return fn(id, at)
}

func (f *fakeRemote) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	fn := f.delete
	f.mu.Unlock()
	if fn == nil {
		return errUnscripted
	}
	return fn(id)
}

func (f *fakeRemote) Fetch(ctx context.Context, limit int) (tasktree.TaskForest, error) {
	f.mu.Lock()
	fn := f.fetch
	f.mu.Unlock()
	if fn == nil {
		return nil, errUnscripted
	}
	return fn(limit)
}

type failures struct {
	mu   sync.Mutex
	errs []*SyncError
}

func (f *failures) record(e *SyncError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, e)
}

func (f *failures) all() []*SyncError {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*SyncError(nil), f.errs...)
}

func task(id int64, fields tasktree.TaskFields, children ...*tasktree.Task) *tasktree.Task {
	n := &tasktree.Task{ID: id, Payload: fields}
	for _, c := range children {
		pid := id
		c.ParentID = &pid
		n.Children = append(n.Children, c)
	}
	return n
}

// newCoordinator hydrates a coordinator with the given forest over the fake.
func newCoordinator(t *testing.T, remote *fakeRemote, seed tasktree.TaskForest) (*Coordinator[int64, tasktree.TaskFields], *failures) {
	t.Helper()
	fails := &failures{}
	c := New(Config[int64, tasktree.TaskFields]{
		Remote:        remote,
		Domain:        TaskDomain(),
		OnSyncFailure: fails.record,
	})
	remote.mu.Lock()
	remote.fetch = func(int) (tasktree.TaskForest, error) { return seed.Clone(), nil }
	remote.mu.Unlock()
	require.NoError(t, c.Refresh(context.Background(), 0))
	return c, fails
}

func TestToggleStarAppliesLocallyThenReconciles(t *testing.T) {
	remote := &fakeRemote{}
	c, fails := newCoordinator(t, remote, tasktree.TaskForest{
		task(1, tasktree.TaskFields{Title: "write report"}),
	})

	// Hold the response so the locally-applied state is observable.
	release := make(chan struct{})
	remote.mu.Lock()
	remote.toggleStar = func(id int64) (*tasktree.Task, error) {
		<-release
		// The server disagrees: a concurrent edit already un-starred it.
		return task(1, tasktree.TaskFields{Title: "write report", IsStarred: false}), nil
	}
	remote.mu.Unlock()

	require.NoError(t, c.ToggleStar(context.Background(), 1))

	assert.True(t, tasktree.FindByID(c.Forest(), 1).Payload.IsStarred, "starred before the server answers")
	require.Len(t, c.Starred(), 1, "projection updated in the same step")
	assert.Equal(t, 1, c.Pending())

	close(release)
	c.Wait()

	assert.False(t, tasktree.FindByID(c.Forest(), 1).Payload.IsStarred, "server response wins")
	assert.Empty(t, c.Starred())
	assert.Equal(t, 0, c.Pending())
	assert.Empty(t, fails.all(), "a disagreeing success is not a failure")
}

func TestSyncFailureRollsBack(t *testing.T) {
	remote := &fakeRemote{}
	seed := tasktree.TaskForest{
		task(1, tasktree.TaskFields{Title: "parent"},
			task(2, tasktree.TaskFields{Title: "child", Tags: []string{"keep"}})),
	}
	c, fails := newCoordinator(t, remote, seed)
	before := c.Forest()

	boom := errors.New("boom")
	remote.mu.Lock()
	remote.toggleStar = func(int64) (*tasktree.Task, error) { return nil, boom }
	remote.mu.Unlock()

	require.NoError(t, c.ToggleStar(context.Background(), 2))
	c.Wait()

	assert.Equal(t, before, c.Forest(), "forest restored to its pre-mutation state")
	errs := fails.all()
	require.Len(t, errs, 1)
	assert.Equal(t, KindToggleStar, errs[0].Kind)
	assert.Equal(t, int64(2), errs[0].NodeID)
	assert.ErrorIs(t, errs[0], boom)
}

func TestReparentOptimisticThenRollback(t *testing.T) {
	remote := &fakeRemote{}
	c, fails := newCoordinator(t, remote, tasktree.TaskForest{
		task(1, tasktree.TaskFields{Title: "a"}),
		task(2, tasktree.TaskFields{Title: "b"}),
	})
	before := c.Forest()

	release := make(chan struct{})
	remote.mu.Lock()
	remote.reparent = func(int64, *int64) (*tasktree.Task, error) {
		<-release
		return nil, errors.New("500")
	}
	remote.mu.Unlock()

	newParent := int64(2)
	require.NoError(t, c.Reparent(context.Background(), 1, &newParent))

	moved := tasktree.FindByID(c.Forest(), 1)
	require.NotNil(t, moved.ParentID)
	assert.Equal(t, int64(2), *moved.ParentID, "moved before the server answers")

	close(release)
	c.Wait()

	assert.Equal(t, before, c.Forest(), "node back at its exact pre-drag position")
	require.Len(t, fails.all(), 1)
	assert.Equal(t, KindReparent, fails.all()[0].Kind)
}

func TestReparentRejectionsLeaveForestAlone(t *testing.T) {
	remote := &fakeRemote{}
	c, fails := newCoordinator(t, remote, tasktree.TaskForest{
		task(1, tasktree.TaskFields{Title: "a"},
			task(2, tasktree.TaskFields{Title: "b"})),
	})
	before := c.Forest()

	// Ancestor onto its own descendant.
	descendant := int64(2)
	err := c.Reparent(context.Background(), 1, &descendant)
	assert.ErrorIs(t, err, tasktree.ErrInvalidMove)

	// Self-drop is silently ignored.
	self := int64(1)
	assert.NoError(t, c.Reparent(context.Background(), 1, &self))

	// Missing target.
	missing := int64(99)
	assert.ErrorIs(t, c.Reparent(context.Background(), 1, &missing), tasktree.ErrNotFound)

	c.Wait()
	assert.Equal(t, before, c.Forest())
	assert.Equal(t, 0, c.Pending(), "no remote call was issued")
	assert.Empty(t, fails.all())
}

func TestReparentToTopLevel(t *testing.T) {
	remote := &fakeRemote{}
	c, _ := newCoordinator(t, remote, tasktree.TaskForest{
		task(1, tasktree.TaskFields{Title: "a"},
			task(2, tasktree.TaskFields{Title: "b"})),
	})

	remote.mu.Lock()
	remote.reparent = func(id int64, newParentID *int64) (*tasktree.Task, error) {
		require.Nil(t, newParentID)
		return task(2, tasktree.TaskFields{Title: "b"}), nil
	}
	remote.mu.Unlock()

	require.NoError(t, c.Reparent(context.Background(), 2, nil))
	c.Wait()

	f := c.Forest()
	require.Len(t, f, 2)
	assert.Nil(t, tasktree.FindByID(f, 2).ParentID)
}

func TestDeleteCascadesAndRollsBackWholeSubtree(t *testing.T) {
	seed := tasktree.TaskForest{
		task(1, tasktree.TaskFields{Title: "b"},
			task(2, tasktree.TaskFields{Title: "c"}),
			task(3, tasktree.TaskFields{Title: "d"},
				task(4, tasktree.TaskFields{Title: "e"}))),
		task(5, tasktree.TaskFields{Title: "other"}),
	}

	t.Run("confirmed", func(t *testing.T) {
		remote := &fakeRemote{}
		c, fails := newCoordinator(t, remote, seed)
		remote.mu.Lock()
		remote.delete = func(int64) error { return nil }
		remote.mu.Unlock()

		require.NoError(t, c.Delete(context.Background(), 1))
		c.Wait()

		for _, id := range []int64{1, 2, 3, 4} {
			assert.Nil(t, tasktree.FindByID(c.Forest(), id), "id %d must be gone", id)
		}
		require.NotNil(t, tasktree.FindByID(c.Forest(), 5))
		assert.Empty(t, fails.all())
	})

	t.Run("rejected", func(t *testing.T) {
		remote := &fakeRemote{}
		c, fails := newCoordinator(t, remote, seed)
		before := c.Forest()
		remote.mu.Lock()
		remote.delete = func(int64) error { return errors.New("503") }
		remote.mu.Unlock()

		require.NoError(t, c.Delete(context.Background(), 1))
		assert.Nil(t, tasktree.FindByID(c.Forest(), 4), "subtree gone optimistically")
		c.Wait()

		assert.Equal(t, before, c.Forest(), "whole subtree restored in place")
		require.Len(t, fails.all(), 1)
		assert.Equal(t, KindDelete, fails.all()[0].Kind)
	})
}

func TestStaleResponseDoesNotClobberNewerState(t *testing.T) {
	remote := &fakeRemote{}
	c, fails := newCoordinator(t, remote, tasktree.TaskForest{
		task(1, tasktree.TaskFields{Title: "t"}),
	})

	gates := []chan struct{}{make(chan struct{}), make(chan struct{})}
	responses := []*tasktree.Task{
		task(1, tasktree.TaskFields{Title: "t", IsStarred: true}),  // first toggle
		task(1, tasktree.TaskFields{Title: "t", IsStarred: false}), // second toggle
	}
	calls := 0
	remote.mu.Lock()
	remote.toggleStar = func(int64) (*tasktree.Task, error) {
		remote.mu.Lock()
		i := calls
		calls++
		remote.mu.Unlock()
		<-gates[i]
		return responses[i], nil
	}
	remote.mu.Unlock()

	// Two rapid toggles: star, un-star. The second supersedes the first.
	require.NoError(t, c.ToggleStar(context.Background(), 1))
	require.NoError(t, c.ToggleStar(context.Background(), 1))
	assert.False(t, tasktree.FindByID(c.Forest(), 1).Payload.IsStarred, "last local write wins")

	// Let the newer response land first, then the stale one.
	close(gates[1])
	for c.Pending() > 0 {
		time.Sleep(time.Millisecond)
	}
	close(gates[0])
	c.Wait()

	assert.False(t, tasktree.FindByID(c.Forest(), 1).Payload.IsStarred,
		"stale response for the superseded mutation is dropped")
	assert.Empty(t, c.Starred())
	assert.Empty(t, fails.all())
}

func TestRefreshPreservesPendingNodes(t *testing.T) {
	remote := &fakeRemote{}
	c, _ := newCoordinator(t, remote, tasktree.TaskForest{
		task(1, tasktree.TaskFields{Title: "local"}),
	})

	release := make(chan struct{})
	remote.mu.Lock()
	remote.toggleStar = func(int64) (*tasktree.Task, error) {
		<-release
		return task(1, tasktree.TaskFields{Title: "local", IsStarred: true}), nil
	}
	remote.mu.Unlock()
	require.NoError(t, c.ToggleStar(context.Background(), 1))

	// A periodic refresh races with the in-flight star.
	remote.mu.Lock()
	remote.fetch = func(int) (tasktree.TaskForest, error) {
		return tasktree.TaskForest{
			task(1, tasktree.TaskFields{Title: "server", IsStarred: false}),
			task(2, tasktree.TaskFields{Title: "new from server"}),
		}, nil
	}
	remote.mu.Unlock()
	require.NoError(t, c.Refresh(context.Background(), 0))

	n := tasktree.FindByID(c.Forest(), 1)
	assert.Equal(t, "local", n.Payload.Title, "pending node keeps its local state")
	assert.True(t, n.Payload.IsStarred)
	require.NotNil(t, tasktree.FindByID(c.Forest(), 2), "refresh still merges new nodes")

	close(release)
	c.Wait()
}

func TestMalformedResponseTriggersRollback(t *testing.T) {
	remote := &fakeRemote{}
	c, fails := newCoordinator(t, remote, tasktree.TaskForest{
		task(1, tasktree.TaskFields{Title: "t"}),
	})
	before := c.Forest()

	// A nil node from a call that must return one cannot be reconciled.
	remote.mu.Lock()
	remote.toggleStar = func(int64) (*tasktree.Task, error) { return nil, nil }
	remote.mu.Unlock()

	require.NoError(t, c.ToggleStar(context.Background(), 1))
	c.Wait()

	assert.Equal(t, before, c.Forest())
	errs := fails.all()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], tasktree.ErrMalformedResponse)
}

func TestToggleCompleteSendsNewValue(t *testing.T) {
	remote := &fakeRemote{}
	c, _ := newCoordinator(t, remote, tasktree.TaskForest{
		task(1, tasktree.TaskFields{Title: "t", Completed: false}),
	})

	var sent bool
	remote.mu.Lock()
	remote.setCompleted = func(id int64, completed bool) (*tasktree.Task, error) {
		sent = completed
		return task(1, tasktree.TaskFields{Title: "t", Completed: completed}), nil
	}
	remote.mu.Unlock()

	require.NoError(t, c.ToggleComplete(context.Background(), 1))
	c.Wait()
	assert.True(t, sent)
	assert.True(t, tasktree.FindByID(c.Forest(), 1).Payload.Completed)
}

func TestRapidTogglesSendAlternatingValues(t *testing.T) {
	remote := &fakeRemote{}
	c, _ := newCoordinator(t, remote, tasktree.TaskForest{
		task(1, tasktree.TaskFields{Title: "t"}),
	})

	// Hold every response so both toggles derive their value from local
	// state alone.
	release := make(chan struct{})
	var mu sync.Mutex
	var sent []bool
	remote.mu.Lock()
	remote.setCompleted = func(id int64, completed bool) (*tasktree.Task, error) {
		mu.Lock()
		sent = append(sent, completed)
		mu.Unlock()
		<-release
		return task(1, tasktree.TaskFields{Title: "t", Completed: completed}), nil
	}
	remote.mu.Unlock()

	require.NoError(t, c.ToggleComplete(context.Background(), 1))
	require.NoError(t, c.ToggleComplete(context.Background(), 1))
	assert.False(t, tasktree.FindByID(c.Forest(), 1).Payload.Completed, "two toggles net to unchanged")

	close(release)
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []bool{true, false}, sent,
		"each toggle sends the value its local flip produced")
}

func TestProjectionsTrackMembership(t *testing.T) {
	remote := &fakeRemote{}
	at := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	c, _ := newCoordinator(t, remote, tasktree.TaskForest{
		task(1, tasktree.TaskFields{Title: "starred open", IsStarred: true}),
		task(2, tasktree.TaskFields{Title: "starred done", IsStarred: true, Completed: true}),
		task(3, tasktree.TaskFields{Title: "scheduled", ScheduledTime: &at}),
	})

	starred := c.Starred()
	require.Len(t, starred, 1, "completed tasks leave the starred projection")
	assert.Equal(t, int64(1), starred[0].ID)
	require.Len(t, c.Calendar(), 1)
	assert.Equal(t, int64(3), c.Calendar()[0].ID)

	// Completing the starred task removes it from the projection.
	remote.mu.Lock()
	remote.setCompleted = func(id int64, completed bool) (*tasktree.Task, error) {
		return task(1, tasktree.TaskFields{Title: "starred open", IsStarred: true, Completed: completed}), nil
	}
	remote.mu.Unlock()
	require.NoError(t, c.ToggleComplete(context.Background(), 1))
	assert.Empty(t, c.Starred(), "projection updated in the same step as the tree")

	// Clearing the schedule empties the calendar.
	remote.mu.Lock()
	remote.reschedule = func(id int64, at *time.Time) (*tasktree.Task, error) {
		return task(3, tasktree.TaskFields{Title: "scheduled", ScheduledTime: at}), nil
	}
	remote.mu.Unlock()
	require.NoError(t, c.Reschedule(context.Background(), 3, nil))
	assert.Empty(t, c.Calendar())

	c.Wait()
	assert.Empty(t, c.Starred())
	assert.Empty(t, c.Calendar())
}

func TestUnsupportedMutationForTargets(t *testing.T) {
	c := New(Config[string, tasktree.TargetFields]{
		Domain: TargetDomain(),
	})
	assert.ErrorIs(t, c.ToggleStar(context.Background(), "x"), ErrUnsupported)
	assert.ErrorIs(t, c.Reschedule(context.Background(), "x", nil), ErrUnsupported)
}
