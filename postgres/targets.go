package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/meikuraledutech/tasktree"
)

const targetCols = `id, goaltarget_parent_id, title, description, status, deadline, notes, created_at, updated_at`

// scanTarget reads one goal_targets row into a childless node.
func scanTarget(row interface{ Scan(...any) error }) (*tasktree.Target, error) {
	var (
		n     tasktree.Target
		notes []byte
	)
	err := row.Scan(
		&n.ID, &n.ParentID,
		&n.Payload.Title, &n.Payload.Description, &n.Payload.Status,
		&n.Payload.Deadline, &notes,
		&n.Payload.CreatedAt, &n.Payload.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Payload.Notes = []string{}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &n.Payload.Notes); err != nil {
			return nil, fmt.Errorf("tasktree: decode notes: %w", err)
		}
	}
	return &n, nil
}

// ListTargets returns a goal's targets flat, ordered by created_at. The tree
// is assembled client-side from goaltarget_parent_id.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListTargets(ctx context.Context, goalID int64) ([]*tasktree.Target, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+targetCols+` FROM goal_targets WHERE goal_id = $1 ORDER BY created_at, id`, goalID)
	if err != nil {
		return nil, fmt.Errorf("tasktree: query targets: %w", err)
	}
	defer rows.Close()

	targets := []*tasktree.Target{}
	for rows.Next() {
		n, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("tasktree: scan target: %w", err)
		}
		targets = append(targets, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tasktree: rows targets: %w", err)
	}
	return targets, nil
}

func (s *PGStore) targetForest(ctx context.Context, goalID int64) (tasktree.TargetForest, error) {
	flat, err := s.ListTargets(ctx, goalID)
	if err != nil {
		return nil, err
	}
	return tasktree.BuildForest(flat), nil
}

// CreateTarget inserts a target with an auto-generated uuid, optionally under
// an existing parent target of the same goal.
func (s *PGStore) CreateTarget(ctx context.Context, goalID int64, fields tasktree.TargetFields, parentID *string) (*tasktree.Target, error) {
	if parentID != nil {
		var exists bool
		err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM goal_targets WHERE id = $1 AND goal_id = $2)`,
			*parentID, goalID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("tasktree: check parent target: %w", err)
		}
		if !exists {
			return nil, tasktree.ErrNotFound
		}
	}
	if fields.Status == "" {
		fields.Status = tasktree.StatusConcept
	}
	notes, err := json.Marshal(orEmpty(fields.Notes))
	if err != nil {
		return nil, fmt.Errorf("tasktree: encode notes: %w", err)
	}
	row := s.db.QueryRow(ctx,
		`INSERT INTO goal_targets (id, goal_id, goaltarget_parent_id, title, description, status, deadline, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+targetCols,
		uuid.NewString(), goalID, parentID, fields.Title, fields.Description, fields.Status, fields.Deadline, notes,
	)
	n, err := scanTarget(row)
	if err != nil {
		return nil, fmt.Errorf("tasktree: insert target: %w", err)
	}
	return n, nil
}

// UpdateTarget applies a partial update. A set ParentID is cycle-checked
// against the goal's stored tree before any write.
func (s *PGStore) UpdateTarget(ctx context.Context, goalID int64, id string, patch tasktree.TargetPatch) (*tasktree.Target, error) {
	if patch.ParentID.Set && patch.ParentID.Value != nil {
		forest, err := s.targetForest(ctx, goalID)
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
	if patch.Status.Set && patch.Status.Value != nil {
		add("status", *patch.Status.Value)
	}
	if patch.Deadline.Set {
		add("deadline", patch.Deadline.Value)
	}
	if patch.Notes.Set {
		var val []string
		if patch.Notes.Value != nil {
			val = *patch.Notes.Value
		}
		notes, err := json.Marshal(orEmpty(val))
		if err != nil {
			return nil, fmt.Errorf("tasktree: encode notes: %w", err)
		}
		add("notes", notes)
	}
	if patch.ParentID.Set {
		add("goaltarget_parent_id", patch.ParentID.Value)
	}

	args = append(args, id, goalID)
	q := fmt.Sprintf("UPDATE goal_targets SET %s WHERE id = $%d AND goal_id = $%d",
		joinSets(sets), len(args)-1, len(args))
	ct, err := s.db.Exec(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("tasktree: update target: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, tasktree.ErrNotFound
	}

	row := s.db.QueryRow(ctx,
		`SELECT `+targetCols+` FROM goal_targets WHERE id = $1`, id)
	n, err := scanTarget(row)
	if err != nil {
		if isNoRows(err) {
			return nil, tasktree.ErrNotFound
		}
		return nil, fmt.Errorf("tasktree: get target: %w", err)
	}
	return n, nil
}

// DeleteTarget deletes a target by its ID.
// Descendants are cascade-deleted by the DB.
// No error if the target doesn't exist.
func (s *PGStore) DeleteTarget(ctx context.Context, goalID int64, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM goal_targets WHERE id = $1 AND goal_id = $2`, id, goalID)
	if err != nil {
		return fmt.Errorf("tasktree: delete target: %w", err)
	}
	return nil
}
