package client

import (
	"context"
	"fmt"
	"time"

	"github.com/meikuraledutech/tasktree"
)

// targetDTO is the wire shape of one goal-target. Target lists come back
// flat; the tree is assembled client-side from goaltarget_parent_id.
type targetDTO struct {
	ID       string  `json:"id"`
	ParentID *string `json:"goaltarget_parent_id"`
	tasktree.TargetFields
}

func (d targetDTO) node() *tasktree.Target {
	return &tasktree.Target{ID: d.ID, ParentID: d.ParentID, Payload: d.TargetFields}
}

// TargetsRemote drives the /goals/{goalId}/targets endpoints.
type TargetsRemote struct {
	c      *Client
	goalID int64
}

// Fetch retrieves the goal's targets and assembles them into a forest. The
// limit parameter is accepted for interface symmetry and ignored: target
// lists are always fetched whole.
func (r *TargetsRemote) Fetch(ctx context.Context, limit int) (tasktree.TargetForest, error) {
	var dtos []targetDTO
	if err := r.c.do(ctx, "GET", fmt.Sprintf("/goals/%d/targets", r.goalID), nil, &dtos); err != nil {
		return nil, err
	}
	flat := make([]*tasktree.Target, 0, len(dtos))
	for _, d := range dtos {
		flat = append(flat, d.node())
	}
	return tasktree.BuildForest(flat), nil
}

// Create adds a target to the goal, optionally under a parent target.
func (r *TargetsRemote) Create(ctx context.Context, fields tasktree.TargetFields, parentID *string) (*tasktree.Target, error) {
	body := map[string]any{
		"title":                fields.Title,
		"description":          fields.Description,
		"status":               fields.Status,
		"deadline":             fields.Deadline,
		"notes":                fields.Notes,
		"goaltarget_parent_id": parentID,
	}
	var dto targetDTO
	if err := r.c.do(ctx, "POST", fmt.Sprintf("/goals/%d/targets", r.goalID), body, &dto); err != nil {
		return nil, err
	}
	return targetNode(dto)
}

// Reparent moves a target under newParentID, or to the top level when nil.
func (r *TargetsRemote) Reparent(ctx context.Context, id string, newParentID *string) (*tasktree.Target, error) {
	var dto targetDTO
	path := fmt.Sprintf("/goals/%d/targets/%s", r.goalID, id)
	if err := r.c.do(ctx, "PUT", path, map[string]any{"goaltarget_parent_id": newParentID}, &dto); err != nil {
		return nil, err
	}
	return targetNode(dto)
}

// SetCompleted flips a target between achieved and active.
func (r *TargetsRemote) SetCompleted(ctx context.Context, id string, completed bool) (*tasktree.Target, error) {
	status := tasktree.StatusActive
	if completed {
		status = tasktree.StatusAchieved
	}
	var dto targetDTO
	path := fmt.Sprintf("/goals/%d/targets/%s", r.goalID, id)
	if err := r.c.do(ctx, "PUT", path, map[string]any{"status": status}, &dto); err != nil {
		return nil, err
	}
	return targetNode(dto)
}

// ToggleStar is not part of the goal-target surface.
func (r *TargetsRemote) ToggleStar(ctx context.Context, id string) (*tasktree.Target, error) {
	return nil, fmt.Errorf("client: goal targets have no star")
}

// Reschedule is not part of the goal-target surface.
func (r *TargetsRemote) Reschedule(ctx context.Context, id string, at *time.Time) (*tasktree.Target, error) {
	return nil, fmt.Errorf("client: goal targets have no schedule slot")
}

// Delete removes a target; the server cascades to its descendants.
func (r *TargetsRemote) Delete(ctx context.Context, id string) error {
	return r.c.do(ctx, "DELETE", fmt.Sprintf("/goals/%d/targets/%s", r.goalID, id), nil, nil)
}

func targetNode(dto targetDTO) (*tasktree.Target, error) {
	if dto.ID == "" {
		return nil, fmt.Errorf("%w: target response missing id", tasktree.ErrMalformedResponse)
	}
	return dto.node(), nil
}
