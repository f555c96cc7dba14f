package tasktree

import (
	"slices"
	"time"
)

// Priority of a task.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Status of a goal-target.
const (
	StatusConcept  = "concept"
	StatusActive   = "active"
	StatusAchieved = "achieved"
)

// TaskFields is the domain payload of a task node. The tree logic never
// reads these fields; they exist for the store, the wire format, and the
// starred/calendar projections.
type TaskFields struct {
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Completed     bool       `json:"completed"`
	Priority      Priority   `json:"priority,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	IsStarred     bool       `json:"is_starred"`
	Tags          []string   `json:"tags"`
	CreatedAt     time.Time  `json:"created_at,omitzero"`
	UpdatedAt     time.Time  `json:"updated_at,omitzero"`
}

// Clone copies the payload including its reference fields.
func (f TaskFields) Clone() TaskFields {
	out := f
	out.Tags = slices.Clone(f.Tags)
	out.DueDate = cloneTime(f.DueDate)
	out.ScheduledTime = cloneTime(f.ScheduledTime)
	return out
}

// StarredOpen reports membership in the starred projection: starred and not
// yet completed.
func (f TaskFields) StarredOpen() bool { return f.IsStarred && !f.Completed }

// Scheduled reports membership in the calendar projection.
func (f TaskFields) Scheduled() bool { return f.ScheduledTime != nil }

// TargetFields is the domain payload of a goal-target node.
type TargetFields struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Notes       []string   `json:"notes"`
	CreatedAt   time.Time  `json:"created_at,omitzero"`
	UpdatedAt   time.Time  `json:"updated_at,omitzero"`
}

// Clone copies the payload including its reference fields.
func (f TargetFields) Clone() TargetFields {
	out := f
	out.Notes = slices.Clone(f.Notes)
	out.Deadline = cloneTime(f.Deadline)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Task and Target fix the two entity kinds the app works with: tasks carry
// integer ids, goal-targets carry string uuids.
type (
	Task         = Node[int64, TaskFields]
	TaskForest   = Forest[int64, TaskFields]
	Target       = Node[string, TargetFields]
	TargetForest = Forest[string, TargetFields]
)
