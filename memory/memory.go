// Package memory is an in-memory tasktree.Store with the same semantics as
// the postgres implementation: cascade deletes, cycle-checked reparents,
// complete-node responses. It backs the HTTP tests and runs without a
// database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meikuraledutech/tasktree"
)

type taskRec struct {
	id       int64
	parentID *int64
	fields   tasktree.TaskFields
}

type targetRec struct {
	id       string
	goalID   int64
	parentID *string
	fields   tasktree.TargetFields
}

// Store keeps everything behind one mutex; records stay flat and trees are
// assembled per call, the same way the SQL store reads them.
type Store struct {
	mu        sync.Mutex
	nextID    int64
	tasks     map[int64]*taskRec
	taskOrder []int64
	targets   map[string]*targetRec
	tgtOrder  []string
}

var _ tasktree.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		tasks:   make(map[int64]*taskRec),
		targets: make(map[string]*targetRec),
	}
}

// CreateSchema is a no-op; the store needs no setup.
func (s *Store) CreateSchema(ctx context.Context) error { return nil }

// DropSchema discards all data.
func (s *Store) DropSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[int64]*taskRec)
	s.taskOrder = nil
	s.targets = make(map[string]*targetRec)
	s.tgtOrder = nil
	return nil
}

// ── Tasks ─────────────────────────────────────────────────────────────

func (s *Store) taskForestLocked() tasktree.TaskForest {
	flat := make([]*tasktree.Task, 0, len(s.taskOrder))
	for _, id := range s.taskOrder {
		r := s.tasks[id]
		flat = append(flat, &tasktree.Task{ID: r.id, ParentID: cloneID(r.parentID), Payload: r.fields.Clone()})
	}
	return tasktree.BuildForest(flat)
}

func (s *Store) taskNodeLocked(id int64) *tasktree.Task {
	return tasktree.FindByID(s.taskForestLocked(), id)
}

// ListTasks returns the task forest, nested. A positive limit caps the
// number of records considered, in creation order.
func (s *Store) ListTasks(ctx context.Context, limit int) (tasktree.TaskForest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order := s.taskOrder
	if limit > 0 && limit < len(order) {
		order = order[:limit]
	}
	flat := make([]*tasktree.Task, 0, len(order))
	for _, id := range order {
		r := s.tasks[id]
		flat = append(flat, &tasktree.Task{ID: r.id, ParentID: cloneID(r.parentID), Payload: r.fields.Clone()})
	}
	return tasktree.BuildForest(flat), nil
}

// CreateTask adds a task, optionally under an existing parent.
func (s *Store) CreateTask(ctx context.Context, fields tasktree.TaskFields, parentID *int64) (*tasktree.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if parentID != nil {
		if _, ok := s.tasks[*parentID]; !ok {
			return nil, tasktree.ErrNotFound
		}
	}
	s.nextID++
	now := time.Now().UTC()
	f := fields.Clone()
	if f.Priority == "" {
		f.Priority = tasktree.PriorityMedium
	}
	if f.Tags == nil {
		f.Tags = []string{}
	}
	f.CreatedAt = now
	f.UpdatedAt = now
	rec := &taskRec{id: s.nextID, parentID: cloneID(parentID), fields: f}
	s.tasks[rec.id] = rec
	s.taskOrder = append(s.taskOrder, rec.id)
	return s.taskNodeLocked(rec.id), nil
}

// GetTask returns the task with its subtree, or ErrNotFound.
func (s *Store) GetTask(ctx context.Context, id int64) (*tasktree.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.taskNodeLocked(id)
	if n == nil {
		return nil, tasktree.ErrNotFound
	}
	return n, nil
}

// UpdateTask applies a partial update. A set ParentID is validated against
// the stored tree before anything changes: parenting a task to itself or to
// one of its own descendants is ErrInvalidMove.
func (s *Store) UpdateTask(ctx context.Context, id int64, patch tasktree.TaskPatch) (*tasktree.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok {
		return nil, tasktree.ErrNotFound
	}
	if patch.ParentID.Set && patch.ParentID.Value != nil {
		pid := *patch.ParentID.Value
		if _, ok := s.tasks[pid]; !ok {
			return nil, tasktree.ErrNotFound
		}
		if tasktree.IsDescendant(s.taskForestLocked(), id, pid) {
			return nil, tasktree.ErrInvalidMove
		}
	}
	if patch.ParentID.Set {
		rec.parentID = cloneID(patch.ParentID.Value)
	}
	applyOpt(patch.Title, &rec.fields.Title)
	applyOpt(patch.Description, &rec.fields.Description)
	applyOpt(patch.Completed, &rec.fields.Completed)
	applyOpt(patch.Priority, &rec.fields.Priority)
	if patch.DueDate.Set {
		rec.fields.DueDate = cloneID(patch.DueDate.Value)
	}
	if patch.ScheduledTime.Set {
		rec.fields.ScheduledTime = cloneID(patch.ScheduledTime.Value)
	}
	if patch.Tags.Set {
		if patch.Tags.Value == nil {
			rec.fields.Tags = []string{}
		} else {
			rec.fields.Tags = append([]string{}, *patch.Tags.Value...)
		}
	}
	rec.fields.UpdatedAt = time.Now().UTC()
	return s.taskNodeLocked(id), nil
}

// ToggleTaskStar flips the star and returns the task's full state.
func (s *Store) ToggleTaskStar(ctx context.Context, id int64) (*tasktree.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok {
		return nil, tasktree.ErrNotFound
	}
	rec.fields.IsStarred = !rec.fields.IsStarred
	rec.fields.UpdatedAt = time.Now().UTC()
	return s.taskNodeLocked(id), nil
}

// ScheduleTask sets or, with a nil time, clears the schedule slot.
func (s *Store) ScheduleTask(ctx context.Context, id int64, at *time.Time) (*tasktree.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok {
		return nil, tasktree.ErrNotFound
	}
	rec.fields.ScheduledTime = cloneID(at)
	rec.fields.UpdatedAt = time.Now().UTC()
	return s.taskNodeLocked(id), nil
}

// DeleteTask removes a task and all of its descendants. No error if the id
// doesn't exist.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node := s.taskNodeLocked(id)
	if node == nil {
		return nil
	}
	doomed := make(map[int64]bool)
	tasktree.TaskForest{node}.Walk(func(n *tasktree.Task) bool {
		doomed[n.ID] = true
		return true
	})
	for did := range doomed {
		delete(s.tasks, did)
	}
	kept := s.taskOrder[:0]
	for _, tid := range s.taskOrder {
		if !doomed[tid] {
			kept = append(kept, tid)
		}
	}
	s.taskOrder = kept
	return nil
}

// ── Goal targets ──────────────────────────────────────────────────────

func (s *Store) targetForestLocked(goalID int64) tasktree.TargetForest {
	var flat []*tasktree.Target
	for _, id := range s.tgtOrder {
		r := s.targets[id]
		if r.goalID != goalID {
			continue
		}
		flat = append(flat, &tasktree.Target{ID: r.id, ParentID: cloneID(r.parentID), Payload: r.fields.Clone()})
	}
	return tasktree.BuildForest(flat)
}

func (s *Store) targetNodeLocked(goalID int64, id string) *tasktree.Target {
	return tasktree.FindByID(s.targetForestLocked(goalID), id)
}

// ListTargets returns the goal's targets flat, in creation order.
func (s *Store) ListTargets(ctx context.Context, goalID int64) ([]*tasktree.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*tasktree.Target{}
	for _, id := range s.tgtOrder {
		r := s.targets[id]
		if r.goalID != goalID {
			continue
		}
		out = append(out, &tasktree.Target{ID: r.id, ParentID: cloneID(r.parentID), Payload: r.fields.Clone()})
	}
	return out, nil
}

// CreateTarget adds a target to the goal, generating a uuid id.
func (s *Store) CreateTarget(ctx context.Context, goalID int64, fields tasktree.TargetFields, parentID *string) (*tasktree.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if parentID != nil {
		p, ok := s.targets[*parentID]
		if !ok || p.goalID != goalID {
			return nil, tasktree.ErrNotFound
		}
	}
	now := time.Now().UTC()
	f := fields.Clone()
	if f.Status == "" {
		f.Status = tasktree.StatusConcept
	}
	if f.Notes == nil {
		f.Notes = []string{}
	}
	f.CreatedAt = now
	f.UpdatedAt = now
	rec := &targetRec{id: uuid.NewString(), goalID: goalID, parentID: cloneID(parentID), fields: f}
	s.targets[rec.id] = rec
	s.tgtOrder = append(s.tgtOrder, rec.id)
	return s.targetNodeLocked(goalID, rec.id), nil
}

// UpdateTarget applies a partial update with the same reparent validation as
// tasks.
func (s *Store) UpdateTarget(ctx context.Context, goalID int64, id string, patch tasktree.TargetPatch) (*tasktree.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.targets[id]
	if !ok || rec.goalID != goalID {
		return nil, tasktree.ErrNotFound
	}
	if patch.ParentID.Set && patch.ParentID.Value != nil {
		pid := *patch.ParentID.Value
		p, ok := s.targets[pid]
		if !ok || p.goalID != goalID {
			return nil, tasktree.ErrNotFound
		}
		if tasktree.IsDescendant(s.targetForestLocked(goalID), id, pid) {
			return nil, tasktree.ErrInvalidMove
		}
	}
	if patch.ParentID.Set {
		rec.parentID = cloneID(patch.ParentID.Value)
	}
	applyOpt(patch.Title, &rec.fields.Title)
	applyOpt(patch.Description, &rec.fields.Description)
	applyOpt(patch.Status, &rec.fields.Status)
	if patch.Deadline.Set {
		rec.fields.Deadline = cloneID(patch.Deadline.Value)
	}
	if patch.Notes.Set {
		if patch.Notes.Value == nil {
			rec.fields.Notes = []string{}
		} else {
			rec.fields.Notes = append([]string{}, *patch.Notes.Value...)
		}
	}
	rec.fields.UpdatedAt = time.Now().UTC()
	return s.targetNodeLocked(goalID, id), nil
}

// DeleteTarget removes a target and all of its descendants. No error if the
// id doesn't exist.
func (s *Store) DeleteTarget(ctx context.Context, goalID int64, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node := s.targetNodeLocked(goalID, id)
	if node == nil {
		return nil
	}
	doomed := make(map[string]bool)
	tasktree.TargetForest{node}.Walk(func(n *tasktree.Target) bool {
		doomed[n.ID] = true
		return true
	})
	for did := range doomed {
		delete(s.targets, did)
	}
	kept := s.tgtOrder[:0]
	for _, tid := range s.tgtOrder {
		if !doomed[tid] {
			kept = append(kept, tid)
		}
	}
	s.tgtOrder = kept
	return nil
}

func cloneID[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func applyOpt[T any](o tasktree.Optional[T], dst *T) {
	if o.Set && o.Value != nil {
		*dst = *o.Value
	}
}
