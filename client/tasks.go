package client

import (
	"context"
	"fmt"
	"time"

	"github.com/meikuraledutech/tasktree"
)

// taskDTO is the wire shape of one task: flat fields plus a nested subtasks
// array.
type taskDTO struct {
	ID       int64  `json:"id"`
	ParentID *int64 `json:"parent_id"`
	tasktree.TaskFields
	Subtasks []taskDTO `json:"subtasks"`
}

func (d taskDTO) node() *tasktree.Task {
	n := &tasktree.Task{ID: d.ID, ParentID: d.ParentID, Payload: d.TaskFields}
	for _, s := range d.Subtasks {
		c := s.node()
		pid := d.ID
		c.ParentID = &pid
		n.Children = append(n.Children, c)
	}
	return n
}

// TasksRemote drives the /tasks endpoints.
type TasksRemote struct {
	c *Client
}

// Fetch retrieves the full task forest (nested subtasks arrays).
func (r *TasksRemote) Fetch(ctx context.Context, limit int) (tasktree.TaskForest, error) {
	var dtos []taskDTO
	path := "/tasks"
	if limit > 0 {
		path = fmt.Sprintf("/tasks?limit=%d", limit)
	}
	if err := r.c.do(ctx, "GET", path, nil, &dtos); err != nil {
		return nil, err
	}
	forest := make(tasktree.TaskForest, 0, len(dtos))
	for _, d := range dtos {
		forest = append(forest, d.node())
	}
	return forest, nil
}

// Create adds a task, optionally under a parent, and returns the created
// node.
func (r *TasksRemote) Create(ctx context.Context, fields tasktree.TaskFields, parentID *int64) (*tasktree.Task, error) {
	body := map[string]any{
		"title":       fields.Title,
		"description": fields.Description,
		"priority":    fields.Priority,
		"due_date":    fields.DueDate,
		"tags":        fields.Tags,
		"parent_id":   parentID,
	}
	var dto taskDTO
	if err := r.c.do(ctx, "POST", "/tasks", body, &dto); err != nil {
		return nil, err
	}
	return taskNode(dto)
}

// Reparent moves a task under newParentID, or to the top level when nil.
func (r *TasksRemote) Reparent(ctx context.Context, id int64, newParentID *int64) (*tasktree.Task, error) {
	var dto taskDTO
	if err := r.c.do(ctx, "PUT", fmt.Sprintf("/tasks/%d", id), map[string]any{"parent_id": newParentID}, &dto); err != nil {
		return nil, err
	}
	return taskNode(dto)
}

// SetCompleted sets a task's completion flag.
func (r *TasksRemote) SetCompleted(ctx context.Context, id int64, completed bool) (*tasktree.Task, error) {
	var dto taskDTO
	if err := r.c.do(ctx, "PUT", fmt.Sprintf("/tasks/%d", id), map[string]any{"completed": completed}, &dto); err != nil {
		return nil, err
	}
	return taskNode(dto)
}

// ToggleStar flips a task's star server-side and returns the result.
func (r *TasksRemote) ToggleStar(ctx context.Context, id int64) (*tasktree.Task, error) {
	var dto taskDTO
	if err := r.c.do(ctx, "PATCH", fmt.Sprintf("/tasks/%d/star", id), nil, &dto); err != nil {
		return nil, err
	}
	return taskNode(dto)
}

// Reschedule sets a task's schedule slot; a nil time clears it (the wire
// encodes clearing as an empty string).
func (r *TasksRemote) Reschedule(ctx context.Context, id int64, at *time.Time) (*tasktree.Task, error) {
	scheduled := ""
	if at != nil {
		scheduled = at.Format(time.RFC3339)
	}
	var dto taskDTO
	if err := r.c.do(ctx, "PATCH", fmt.Sprintf("/tasks/%d/schedule", id), map[string]any{"scheduled_time": scheduled}, &dto); err != nil {
		return nil, err
	}
	return taskNode(dto)
}

// Delete removes a task; the server cascades to its descendants.
func (r *TasksRemote) Delete(ctx context.Context, id int64) error {
	return r.c.do(ctx, "DELETE", fmt.Sprintf("/tasks/%d", id), nil, nil)
}

// taskNode validates a single-node response before handing it to
// reconciliation. A missing id means the payload cannot identify the node it
// describes, so overwriting anything with it would be unsafe.
func taskNode(dto taskDTO) (*tasktree.Task, error) {
	if dto.ID == 0 {
		return nil, fmt.Errorf("%w: task response missing id", tasktree.ErrMalformedResponse)
	}
	return dto.node(), nil
}
