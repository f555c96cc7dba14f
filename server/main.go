package main

import (
	"context"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meikuraledutech/tasktree"
	"github.com/meikuraledutech/tasktree/config"
	"github.com/meikuraledutech/tasktree/httpapi"
	"github.com/meikuraledutech/tasktree/postgres"
)

func main() {
	cfgPath := os.Getenv("TASKTREE_CONFIG")
	if cfgPath == "" {
		cfgPath = "tasktree.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	var store tasktree.Store = postgres.New(pool)

	app := httpapi.New(store, cfg.TaskLimit)
	log.Fatal(app.Listen(cfg.Addr))
}
