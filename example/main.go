package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/meikuraledutech/tasktree"
	"github.com/meikuraledutech/tasktree/client"
	"github.com/meikuraledutech/tasktree/httpapi"
	"github.com/meikuraledutech/tasktree/memory"
	"github.com/meikuraledutech/tasktree/optimistic"
)

const addr = "127.0.0.1:3737"

func main() {
	ctx := context.Background()

	// Run the task store service in-process, backed by the memory store.
	store := memory.New()
	app := httpapi.New(store, 0)
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	// Seed a small tree: chores with two subtasks.
	chores, err := store.CreateTask(ctx, tasktree.TaskFields{Title: "Weekend chores"}, nil)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	laundry, _ := store.CreateTask(ctx, tasktree.TaskFields{Title: "Laundry"}, &chores.ID)
	groceries, _ := store.CreateTask(ctx, tasktree.TaskFields{Title: "Groceries", Priority: tasktree.PriorityHigh}, &chores.ID)

	// Wire the coordinator over the HTTP client.
	remote := client.New("http://" + addr).Tasks()
	coord := optimistic.New(optimistic.Config[int64, tasktree.TaskFields]{
		Remote: remote,
		Domain: optimistic.TaskDomain(),
		OnSyncFailure: func(e *optimistic.SyncError) {
			fmt.Printf("sync failure: %v\n", e)
		},
	})

	if err := coord.Refresh(ctx, 100); err != nil {
		log.Fatalf("refresh: %v", err)
	}
	fmt.Println("hydrated:")
	printForest(coord.Forest())

	// ── Optimistic star ───────────────────────────────────────────────
	if err := coord.ToggleStar(ctx, groceries.ID); err != nil {
		log.Fatalf("star: %v", err)
	}
	coord.Wait()
	fmt.Printf("\nstarred projection (%d):\n", len(coord.Starred()))
	for _, n := range coord.Starred() {
		fmt.Printf("  %s\n", n.Payload.Title)
	}

	// ── Drag-and-drop reparent: laundry under groceries ───────────────
	if err := coord.Reparent(ctx, laundry.ID, &groceries.ID); err != nil {
		log.Fatalf("reparent: %v", err)
	}
	coord.Wait()
	fmt.Println("\nafter reparent:")
	printForest(coord.Forest())

	// ── Rejected drop: chores onto its own descendant ─────────────────
	err = coord.Reparent(ctx, chores.ID, &laundry.ID)
	fmt.Printf("\ndrop of ancestor onto descendant: %v\n", err)

	// ── Cascade delete ────────────────────────────────────────────────
	if err := coord.Delete(ctx, groceries.ID); err != nil {
		log.Fatalf("delete: %v", err)
	}
	coord.Wait()
	fmt.Println("\nafter cascade delete:")
	printForest(coord.Forest())
}

func printForest(f tasktree.TaskForest) {
	type line struct {
		ID       int64   `json:"id"`
		Title    string  `json:"title"`
		Children []int64 `json:"children,omitempty"`
	}
	var lines []line
	f.Walk(func(n *tasktree.Task) bool {
		l := line{ID: n.ID, Title: n.Payload.Title}
		for _, c := range n.Children {
			l.Children = append(l.Children, c.ID)
		}
		lines = append(lines, l)
		return true
	})
	out, _ := json.MarshalIndent(lines, "", "  ")
	fmt.Println(string(out))
}
