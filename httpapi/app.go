// Package httpapi exposes a tasktree.Store as the task store service REST
// surface.
package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/meikuraledutech/tasktree"
)

// taskJSON is the wire shape of one task; subtasks nest.
type taskJSON struct {
	ID       int64  `json:"id"`
	ParentID *int64 `json:"parent_id"`
	tasktree.TaskFields
	Subtasks []taskJSON `json:"subtasks"`
}

func toTaskJSON(n *tasktree.Task) taskJSON {
	out := taskJSON{ID: n.ID, ParentID: n.ParentID, TaskFields: n.Payload, Subtasks: []taskJSON{}}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	for _, c := range n.Children {
		out.Subtasks = append(out.Subtasks, toTaskJSON(c))
	}
	return out
}

// targetJSON is the wire shape of one goal-target; lists stay flat.
type targetJSON struct {
	ID       string  `json:"id"`
	ParentID *string `json:"goaltarget_parent_id"`
	tasktree.TargetFields
}

func toTargetJSON(n *tasktree.Target) targetJSON {
	out := targetJSON{ID: n.ID, ParentID: n.ParentID, TargetFields: n.Payload}
	if out.Notes == nil {
		out.Notes = []string{}
	}
	return out
}

type createTaskBody struct {
	tasktree.TaskFields
	ParentID *int64 `json:"parent_id"`
}

type createTargetBody struct {
	tasktree.TargetFields
	ParentID *string `json:"goaltarget_parent_id"`
}

type scheduleBody struct {
	ScheduledTime string `json:"scheduled_time"`
}

// fail translates store errors onto the wire: 404 for missing nodes, 422 for
// moves that would cycle, 500 otherwise.
func fail(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, tasktree.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, tasktree.ErrInvalidMove):
		return c.Status(422).JSON(fiber.Map{"error": "move would create a cycle"})
	default:
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
}

func paramInt(c fiber.Ctx, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Params(name), 10, 64)
	return v, err == nil
}

// New builds the fiber application serving the task store API on top of the
// given store. defaultTaskLimit caps GET /tasks responses when the request
// names no limit; zero means unlimited.
func New(store tasktree.Store, defaultTaskLimit int) *fiber.App {
	app := fiber.New()

	// ── Schema ────────────────────────────────────────────────────────
	app.Post("/schema", func(c fiber.Ctx) error {
		if err := store.CreateSchema(c.Context()); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "schema created"})
	})

	app.Delete("/schema", func(c fiber.Ctx) error {
		if err := store.DropSchema(c.Context()); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "schema dropped"})
	})

	// ── Tasks ─────────────────────────────────────────────────────────
	app.Get("/tasks", func(c fiber.Ctx) error {
		limit := defaultTaskLimit
		if q := c.Query("limit"); q != "" {
			v, err := strconv.Atoi(q)
			if err != nil {
				return c.Status(400).JSON(fiber.Map{"error": "invalid limit"})
			}
			limit = v
		}
		forest, err := store.ListTasks(c.Context(), limit)
		if err != nil {
			return fail(c, err)
		}
		out := []taskJSON{}
		for _, n := range forest {
			out = append(out, toTaskJSON(n))
		}
		return c.JSON(out)
	})

	app.Post("/tasks", func(c fiber.Ctx) error {
		var body createTaskBody
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		n, err := store.CreateTask(c.Context(), body.TaskFields, body.ParentID)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(201).JSON(toTaskJSON(n))
	})

	app.Get("/tasks/:id", func(c fiber.Ctx) error {
		id, ok := paramInt(c, "id")
		if !ok {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		n, err := store.GetTask(c.Context(), id)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(toTaskJSON(n))
	})

	app.Put("/tasks/:id", func(c fiber.Ctx) error {
		id, ok := paramInt(c, "id")
		if !ok {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		var patch tasktree.TaskPatch
		if err := c.Bind().JSON(&patch); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		n, err := store.UpdateTask(c.Context(), id, patch)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(toTaskJSON(n))
	})

	app.Patch("/tasks/:id/star", func(c fiber.Ctx) error {
		id, ok := paramInt(c, "id")
		if !ok {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		n, err := store.ToggleTaskStar(c.Context(), id)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(toTaskJSON(n))
	})

	app.Patch("/tasks/:id/schedule", func(c fiber.Ctx) error {
		id, ok := paramInt(c, "id")
		if !ok {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		var body scheduleBody
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		// An empty scheduled_time clears the slot.
		var at *time.Time
		if body.ScheduledTime != "" {
			t, err := time.Parse(time.RFC3339, body.ScheduledTime)
			if err != nil {
				return c.Status(400).JSON(fiber.Map{"error": "invalid scheduled_time"})
			}
			at = &t
		}
		n, err := store.ScheduleTask(c.Context(), id, at)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(toTaskJSON(n))
	})

	app.Delete("/tasks/:id", func(c fiber.Ctx) error {
		id, ok := paramInt(c, "id")
		if !ok {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		if err := store.DeleteTask(c.Context(), id); err != nil {
			return fail(c, err)
		}
		return c.SendStatus(204)
	})

	// ── Goal targets ──────────────────────────────────────────────────
	app.Get("/goals/:goalId/targets", func(c fiber.Ctx) error {
		goalID, ok := paramInt(c, "goalId")
		if !ok {
			return c.Status(400).JSON(fiber.Map{"error": "invalid goal id"})
		}
		targets, err := store.ListTargets(c.Context(), goalID)
		if err != nil {
			return fail(c, err)
		}
		out := []targetJSON{}
		for _, n := range targets {
			out = append(out, toTargetJSON(n))
		}
		return c.JSON(out)
	})

	app.Post("/goals/:goalId/targets", func(c fiber.Ctx) error {
		goalID, ok := paramInt(c, "goalId")
		if !ok {
			return c.Status(400).JSON(fiber.Map{"error": "invalid goal id"})
		}
		var body createTargetBody
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		n, err := store.CreateTarget(c.Context(), goalID, body.TargetFields, body.ParentID)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(201).JSON(toTargetJSON(n))
	})

	app.Put("/goals/:goalId/targets/:id", func(c fiber.Ctx) error {
		goalID, ok := paramInt(c, "goalId")
		if !ok {
			return c.Status(400).JSON(fiber.Map{"error": "invalid goal id"})
		}
		var patch tasktree.TargetPatch
		if err := c.Bind().JSON(&patch); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		n, err := store.UpdateTarget(c.Context(), goalID, c.Params("id"), patch)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(toTargetJSON(n))
	})

	app.Delete("/goals/:goalId/targets/:id", func(c fiber.Ctx) error {
		goalID, ok := paramInt(c, "goalId")
		if !ok {
			return c.Status(400).JSON(fiber.Map{"error": "invalid goal id"})
		}
		if err := store.DeleteTarget(c.Context(), goalID, c.Params("id")); err != nil {
			return fail(c, err)
		}
		return c.SendStatus(204)
	})

	return app
}
