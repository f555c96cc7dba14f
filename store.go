package tasktree

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// Optional distinguishes an absent JSON field from an explicit null. A PUT
// body of {"parent_id": null} moves a task to the top level, while a body
// without the key leaves the parent alone.
type Optional[T any] struct {
	Set   bool
	Value *T // nil when the field was explicitly null
}

// Some wraps a concrete value.
func Some[T any](v T) Optional[T] { return Optional[T]{Set: true, Value: &v} }

// Null is a set-to-null field.
func Null[T any]() Optional[T] { return Optional[T]{Set: true} }

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(b, []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// IsZero reports whether the field was absent, so omitzero-tagged patch
// fields drop it on marshal instead of emitting a spurious null.
func (o Optional[T]) IsZero() bool { return !o.Set }

// TaskPatch is a partial task update. Only set fields are applied.
type TaskPatch struct {
	Title         Optional[string]    `json:"title,omitzero"`
	Description   Optional[string]    `json:"description,omitzero"`
	Completed     Optional[bool]      `json:"completed,omitzero"`
	Priority      Optional[Priority]  `json:"priority,omitzero"`
	DueDate       Optional[time.Time] `json:"due_date,omitzero"`
	ScheduledTime Optional[time.Time] `json:"scheduled_time,omitzero"`
	Tags          Optional[[]string]  `json:"tags,omitzero"`
	ParentID      Optional[int64]     `json:"parent_id,omitzero"`
}

// TargetPatch is a partial goal-target update. Only set fields are applied.
type TargetPatch struct {
	Title       Optional[string]    `json:"title,omitzero"`
	Description Optional[string]    `json:"description,omitzero"`
	Status      Optional[string]    `json:"status,omitzero"`
	Deadline    Optional[time.Time] `json:"deadline,omitzero"`
	Notes       Optional[[]string]  `json:"notes,omitzero"`
	ParentID    Optional[string]    `json:"goaltarget_parent_id,omitzero"`
}

// Store defines the contract for persisting and retrieving task and
// goal-target trees. Mutating calls return the complete current state of the
// affected node, never a diff; clients reconcile by replacement.
//
// Reparenting updates (a set ParentID in a patch) are validated against the
// stored tree before any write: a parent inside the node's own subtree is
// rejected with ErrInvalidMove. Deletes cascade to all descendants.
type Store interface {
	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// Tasks
	ListTasks(ctx context.Context, limit int) (TaskForest, error)
	CreateTask(ctx context.Context, fields TaskFields, parentID *int64) (*Task, error)
	GetTask(ctx context.Context, id int64) (*Task, error)
	UpdateTask(ctx context.Context, id int64, patch TaskPatch) (*Task, error)
	ToggleTaskStar(ctx context.Context, id int64) (*Task, error)
	ScheduleTask(ctx context.Context, id int64, at *time.Time) (*Task, error)
	DeleteTask(ctx context.Context, id int64) error

	// Goal targets (flat records linked by goaltarget_parent_id)
	ListTargets(ctx context.Context, goalID int64) ([]*Target, error)
	CreateTarget(ctx context.Context, goalID int64, fields TargetFields, parentID *string) (*Target, error)
	UpdateTarget(ctx context.Context, goalID int64, id string, patch TargetPatch) (*Target, error)
	DeleteTarget(ctx context.Context, goalID int64, id string) error
}
