package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/tasktree"
	"github.com/meikuraledutech/tasktree/memory"
)

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	return New(memory.New(), 0)
}

func do(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createTask(t *testing.T, app *fiber.App, title string, parentID *int64) taskJSON {
	t.Helper()
	body := map[string]any{"title": title}
	if parentID != nil {
		body["parent_id"] = *parentID
	}
	resp := do(t, app, "POST", "/tasks", body)
	require.Equal(t, 201, resp.StatusCode)
	return decode[taskJSON](t, resp)
}

func TestCreateAndListTasks(t *testing.T) {
	app := newApp(t)

	parent := createTask(t, app, "parent", nil)
	assert.Equal(t, "parent", parent.Title)
	assert.Equal(t, tasktree.PriorityMedium, parent.Priority)
	assert.NotNil(t, parent.Subtasks)

	child := createTask(t, app, "child", &parent.ID)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)

	resp := do(t, app, "GET", "/tasks", nil)
	require.Equal(t, 200, resp.StatusCode)
	list := decode[[]taskJSON](t, resp)
	require.Len(t, list, 1, "children nest under their parent")
	require.Len(t, list[0].Subtasks, 1)
	assert.Equal(t, child.ID, list[0].Subtasks[0].ID)
}

func TestListTasksDefaultLimit(t *testing.T) {
	app := New(memory.New(), 2)
	for _, title := range []string{"a", "b", "c"} {
		body := map[string]any{"title": title}
		resp := do(t, app, "POST", "/tasks", body)
		require.Equal(t, 201, resp.StatusCode)
	}

	// No limit in the query: the configured default applies.
	resp := do(t, app, "GET", "/tasks", nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, decode[[]taskJSON](t, resp), 2)

	// An explicit limit, including 0 for unlimited, overrides the default.
	resp = do(t, app, "GET", "/tasks?limit=1", nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, decode[[]taskJSON](t, resp), 1)

	resp = do(t, app, "GET", "/tasks?limit=0", nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, decode[[]taskJSON](t, resp), 3)

	resp = do(t, app, "GET", "/tasks?limit=soon", nil)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestGetTask(t *testing.T) {
	app := newApp(t)
	parent := createTask(t, app, "parent", nil)
	child := createTask(t, app, "child", &parent.ID)

	resp := do(t, app, "GET", fmt.Sprintf("/tasks/%d", parent.ID), nil)
	require.Equal(t, 200, resp.StatusCode)
	got := decode[taskJSON](t, resp)
	require.Len(t, got.Subtasks, 1)
	assert.Equal(t, child.ID, got.Subtasks[0].ID)

	resp = do(t, app, "GET", "/tasks/999", nil)
	assert.Equal(t, 404, resp.StatusCode)

	resp = do(t, app, "GET", "/tasks/abc", nil)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestUpdateTaskReparentStatuses(t *testing.T) {
	app := newApp(t)
	a := createTask(t, app, "a", nil)
	b := createTask(t, app, "b", &a.ID)
	c := createTask(t, app, "c", nil)

	// Valid reparent.
	resp := do(t, app, "PUT", fmt.Sprintf("/tasks/%d", b.ID), map[string]any{"parent_id": c.ID})
	require.Equal(t, 200, resp.StatusCode)
	got := decode[taskJSON](t, resp)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, c.ID, *got.ParentID)

	// Cycle: a under its own descendant... make b a child of a again first.
	resp = do(t, app, "PUT", fmt.Sprintf("/tasks/%d", b.ID), map[string]any{"parent_id": a.ID})
	require.Equal(t, 200, resp.StatusCode)
	resp = do(t, app, "PUT", fmt.Sprintf("/tasks/%d", a.ID), map[string]any{"parent_id": b.ID})
	assert.Equal(t, 422, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Contains(t, body["error"], "cycle")

	// Explicit null moves to the top level.
	resp = do(t, app, "PUT", fmt.Sprintf("/tasks/%d", b.ID), map[string]any{"parent_id": nil})
	require.Equal(t, 200, resp.StatusCode)
	got = decode[taskJSON](t, resp)
	assert.Nil(t, got.ParentID)

	// A patch without parent_id leaves the parent alone.
	resp = do(t, app, "PUT", fmt.Sprintf("/tasks/%d", c.ID), map[string]any{"title": "renamed"})
	require.Equal(t, 200, resp.StatusCode)
	got = decode[taskJSON](t, resp)
	assert.Equal(t, "renamed", got.Title)

	resp = do(t, app, "PUT", "/tasks/999", map[string]any{"title": "x"})
	assert.Equal(t, 404, resp.StatusCode)
}

func TestStarAndSchedule(t *testing.T) {
	app := newApp(t)
	n := createTask(t, app, "t", nil)

	resp := do(t, app, "PATCH", fmt.Sprintf("/tasks/%d/star", n.ID), nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.True(t, decode[taskJSON](t, resp).IsStarred)

	resp = do(t, app, "PATCH", fmt.Sprintf("/tasks/%d/schedule", n.ID),
		map[string]any{"scheduled_time": "2026-09-01T10:30:00Z"})
	require.Equal(t, 200, resp.StatusCode)
	got := decode[taskJSON](t, resp)
	require.NotNil(t, got.ScheduledTime)

	// Empty string clears the slot.
	resp = do(t, app, "PATCH", fmt.Sprintf("/tasks/%d/schedule", n.ID),
		map[string]any{"scheduled_time": ""})
	require.Equal(t, 200, resp.StatusCode)
	assert.Nil(t, decode[taskJSON](t, resp).ScheduledTime)

	resp = do(t, app, "PATCH", fmt.Sprintf("/tasks/%d/schedule", n.ID),
		map[string]any{"scheduled_time": "tomorrow-ish"})
	assert.Equal(t, 400, resp.StatusCode)
}

func TestDeleteTask(t *testing.T) {
	app := newApp(t)
	parent := createTask(t, app, "parent", nil)
	createTask(t, app, "child", &parent.ID)

	resp := do(t, app, "DELETE", fmt.Sprintf("/tasks/%d", parent.ID), nil)
	assert.Equal(t, 204, resp.StatusCode)

	resp = do(t, app, "GET", "/tasks", nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, decode[[]taskJSON](t, resp))
}

func TestTargetEndpoints(t *testing.T) {
	app := newApp(t)

	resp := do(t, app, "POST", "/goals/7/targets", map[string]any{"title": "outline"})
	require.Equal(t, 201, resp.StatusCode)
	root := decode[targetJSON](t, resp)
	assert.NotEmpty(t, root.ID)
	assert.Equal(t, tasktree.StatusConcept, root.Status)

	resp = do(t, app, "POST", "/goals/7/targets",
		map[string]any{"title": "draft", "goaltarget_parent_id": root.ID})
	require.Equal(t, 201, resp.StatusCode)
	child := decode[targetJSON](t, resp)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, root.ID, *child.ParentID)

	resp = do(t, app, "GET", "/goals/7/targets", nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, decode[[]targetJSON](t, resp), 2, "targets come back flat")

	// Parent from another goal does not exist here.
	resp = do(t, app, "POST", "/goals/8/targets",
		map[string]any{"title": "stray", "goaltarget_parent_id": root.ID})
	assert.Equal(t, 404, resp.StatusCode)

	// Cycle rejection surfaces as 422, same as tasks.
	resp = do(t, app, "PUT", "/goals/7/targets/"+root.ID,
		map[string]any{"goaltarget_parent_id": child.ID})
	assert.Equal(t, 422, resp.StatusCode)

	resp = do(t, app, "PUT", "/goals/7/targets/"+child.ID,
		map[string]any{"status": tasktree.StatusAchieved})
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, tasktree.StatusAchieved, decode[targetJSON](t, resp).Status)

	resp = do(t, app, "DELETE", "/goals/7/targets/"+root.ID, nil)
	assert.Equal(t, 204, resp.StatusCode)
	resp = do(t, app, "GET", "/goals/7/targets", nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, decode[[]targetJSON](t, resp))
}
