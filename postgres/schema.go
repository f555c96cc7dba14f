package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
    id             BIGSERIAL PRIMARY KEY,
    parent_id      BIGINT REFERENCES tasks(id) ON DELETE CASCADE,
    title          TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    completed      BOOLEAN NOT NULL DEFAULT FALSE,
    priority       TEXT NOT NULL DEFAULT 'medium',
    due_date       TIMESTAMPTZ,
    scheduled_time TIMESTAMPTZ,
    is_starred     BOOLEAN NOT NULL DEFAULT FALSE,
    tags           JSONB NOT NULL DEFAULT '[]',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS goal_targets (
    id                   TEXT PRIMARY KEY,
    goal_id              BIGINT NOT NULL,
    goaltarget_parent_id TEXT REFERENCES goal_targets(id) ON DELETE CASCADE,
    title                TEXT NOT NULL,
    description          TEXT NOT NULL DEFAULT '',
    status               TEXT NOT NULL DEFAULT 'concept',
    deadline             TIMESTAMPTZ,
    notes                JSONB NOT NULL DEFAULT '[]',
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tasks_parent          ON tasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_tasks_scheduled       ON tasks(scheduled_time);
CREATE INDEX IF NOT EXISTS idx_goal_targets_goal     ON goal_targets(goal_id);
CREATE INDEX IF NOT EXISTS idx_goal_targets_parent   ON goal_targets(goaltarget_parent_id);
`

// CreateSchema creates the tasks and goal_targets tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops the goal_targets and tasks tables.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS goal_targets, tasks CASCADE;`)
	return err
}
