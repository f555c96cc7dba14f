package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/meikuraledutech/tasktree"
)

const taskCols = `id, parent_id, title, description, completed, priority, due_date, scheduled_time, is_starred, tags, created_at, updated_at`

// scanTask reads one tasks row into a childless node.
func scanTask(row interface{ Scan(...any) error }) (*tasktree.Task, error) {
	var (
		n        tasktree.Task
		priority string
		tags     []byte
	)
	err := row.Scan(
		&n.ID, &n.ParentID,
		&n.Payload.Title, &n.Payload.Description, &n.Payload.Completed, &priority,
		&n.Payload.DueDate, &n.Payload.ScheduledTime, &n.Payload.IsStarred, &tags,
		&n.Payload.CreatedAt, &n.Payload.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Payload.Priority = tasktree.Priority(priority)
	n.Payload.Tags = []string{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &n.Payload.Tags); err != nil {
			return nil, fmt.Errorf("tasktree: decode tags: %w", err)
		}
	}
	return &n, nil
}

// loadTaskForest reads every tasks row ordered by id and links the tree. A
// positive limit caps the number of records considered.
func (s *PGStore) loadTaskForest(ctx context.Context, limit int) (tasktree.TaskForest, error) {
	q := `SELECT ` + taskCols + ` FROM tasks ORDER BY id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("tasktree: query tasks: %w", err)
	}
	defer rows.Close()

	var flat []*tasktree.Task
	for rows.Next() {
		n, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("tasktree: scan task: %w", err)
		}
		flat = append(flat, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tasktree: rows tasks: %w", err)
	}
	return tasktree.BuildForest(flat), nil
}

// ListTasks returns the full task forest, nested via Children.
func (s *PGStore) ListTasks(ctx context.Context, limit int) (tasktree.TaskForest, error) {
	forest, err := s.loadTaskForest(ctx, limit)
	if err != nil {
		return nil, err
	}
	if forest == nil {
		forest = tasktree.TaskForest{}
	}
	return forest, nil
}

// CreateTask inserts a task, optionally under an existing parent.
// Returns ErrNotFound if parentID names no stored task.
func (s *PGStore) CreateTask(ctx context.Context, fields tasktree.TaskFields, parentID *int64) (*tasktree.Task, error) {
	if parentID != nil {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, *parentID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("tasktree: check parent: %w", err)
		}
		if !exists {
			return nil, tasktree.ErrNotFound
		}
	}
	if fields.Priority == "" {
		fields.Priority = tasktree.PriorityMedium
	}
	tags, err := json.Marshal(orEmpty(fields.Tags))
	if err != nil {
		return nil, fmt.Errorf("tasktree: encode tags: %w", err)
	}
	row := s.db.QueryRow(ctx,
		`INSERT INTO tasks (parent_id, title, description, priority, due_date, tags)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+taskCols,
		parentID, fields.Title, fields.Description, string(fields.Priority), fields.DueDate, tags,
	)
	n, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("tasktree: insert task: %w", err)
	}
	return n, nil
}

// GetTask fetches a task with its whole subtree.
// Returns ErrNotFound if the task doesn't exist.
func (s *PGStore) GetTask(ctx context.Context, id int64) (*tasktree.Task, error) {
	forest, err := s.loadTaskForest(ctx, 0)
	if err != nil {
		return nil, err
	}
	n := tasktree.FindByID(forest, id)
	if n == nil {
		return nil, tasktree.ErrNotFound
	}
	return n, nil
}

// UpdateTask applies a partial update. A set ParentID is validated against
// the stored tree before any write: parenting a task to itself or to one of
// its own descendants returns ErrInvalidMove and changes nothing.
func (s *PGStore) UpdateTask(ctx context.Context, id int64, patch tasktree.TaskPatch) (*tasktree.Task, error) {
	if patch.ParentID.Set && patch.ParentID.Value != nil {
		forest, err := s.loadTaskForest(ctx, 0)
		if err != nil {
			return nil, err
		}
		pid := *patch.ParentID.Value
		if tasktree.FindByID(forest, pid) == nil {
			return nil, tasktree.ErrNotFound
		}
		if tasktree.IsDescendant(forest, id, pid) {
			return nil, tasktree.ErrInvalidMove
		}
	}

	sets := []string{`updated_at = NOW()`}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Title.Set && patch.Title.Value != nil {
		add("title", *patch.Title.Value)
	}
	if patch.Description.Set && patch.Description.Value != nil {
		add("description", *patch.Description.Value)
	}
	if patch.Completed.Set && patch.Completed.Value != nil {
		add("completed", *patch.Completed.Value)
	}
	if patch.Priority.Set && patch.Priority.Value != nil {
		add("priority", string(*patch.Priority.Value))
	}
	if patch.DueDate.Set {
		add("due_date", patch.DueDate.Value)
	}
	if patch.ScheduledTime.Set {
		add("scheduled_time", patch.ScheduledTime.Value)
	}
	if patch.Tags.Set {
		var val []string
		if patch.Tags.Value != nil {
			val = *patch.Tags.Value
		}
		tags, err := json.Marshal(orEmpty(val))
		if err != nil {
			return nil, fmt.Errorf("tasktree: encode tags: %w", err)
		}
		add("tags", tags)
	}
	if patch.ParentID.Set {
		add("parent_id", patch.ParentID.Value)
	}

	args = append(args, id)
	q := fmt.Sprintf("UPDATE tasks SET %s WHERE id = $%d", joinSets(sets), len(args))
	ct, err := s.db.Exec(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("tasktree: update task: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, tasktree.ErrNotFound
	}
	return s.GetTask(ctx, id)
}

// ToggleTaskStar flips is_starred and returns the task's full state.
func (s *PGStore) ToggleTaskStar(ctx context.Context, id int64) (*tasktree.Task, error) {
	ct, err := s.db.Exec(ctx,
		`UPDATE tasks SET is_starred = NOT is_starred, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("tasktree: toggle star: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, tasktree.ErrNotFound
	}
	return s.GetTask(ctx, id)
}

// ScheduleTask sets or, with a nil time, clears scheduled_time.
func (s *PGStore) ScheduleTask(ctx context.Context, id int64, at *time.Time) (*tasktree.Task, error) {
	ct, err := s.db.Exec(ctx,
		`UPDATE tasks SET scheduled_time = $1, updated_at = NOW() WHERE id = $2`, at, id)
	if err != nil {
		return nil, fmt.Errorf("tasktree: schedule task: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, tasktree.ErrNotFound
	}
	return s.GetTask(ctx, id)
}

// DeleteTask deletes a task by its ID.
// Descendants are cascade-deleted by the DB.
// No error if the task doesn't exist.
func (s *PGStore) DeleteTask(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("tasktree: delete task: %w", err)
	}
	return nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}
