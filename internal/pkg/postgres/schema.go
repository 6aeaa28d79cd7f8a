package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// One tasks table with indexed project_id/creation_year columns instead of a
// table per creation year - bounds query surface without dynamic SQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		owner TEXT NOT NULL,
		audio_file TEXT,
		audio_duration FLOAT8,
		creation_year INT NOT NULL,
		created TIMESTAMPTZ NOT NULL,
		updated TIMESTAMPTZ,
		assigned BOOLEAN NOT NULL DEFAULT FALSE,
		job_id TEXT,
		err_status TEXT)`,
	`CREATE INDEX IF NOT EXISTS projects_owner_idx ON projects(owner)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		task_id INT NOT NULL,
		editor TEXT,
		collator TEXT,
		start_time FLOAT8 NOT NULL,
		end_time FLOAT8 NOT NULL,
		language TEXT,
		text_file TEXT,
		created TIMESTAMPTZ,
		modified TIMESTAMPTZ,
		commit_id TEXT,
		ownership INT NOT NULL DEFAULT 0,
		creation_year INT NOT NULL,
		job_id TEXT,
		err_status TEXT,
		PRIMARY KEY (project_id, task_id))`,
	`CREATE INDEX IF NOT EXISTS tasks_editor_idx ON tasks(editor)`,
	`CREATE INDEX IF NOT EXISTS tasks_collator_idx ON tasks(collator)`,
	`CREATE INDEX IF NOT EXISTS tasks_year_idx ON tasks(creation_year)`,
	`CREATE TABLE IF NOT EXISTS incoming (
		url TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		task_id INT,
		service_type TEXT NOT NULL,
		created TIMESTAMPTZ NOT NULL)`,
	`CREATE INDEX IF NOT EXISTS incoming_project_idx ON incoming(project_id)`,
	`CREATE TABLE IF NOT EXISTS outgoing (
		url TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		task_id INT,
		audio_file TEXT NOT NULL,
		start_time FLOAT8,
		end_time FLOAT8,
		created TIMESTAMPTZ NOT NULL)`,
	`CREATE INDEX IF NOT EXISTS outgoing_project_idx ON outgoing(project_id)`,
	`CREATE TABLE IF NOT EXISTS email_lock (
		id TEXT NOT NULL,
		key TEXT NOT NULL,
		status INT NOT NULL,
		PRIMARY KEY (id, key))`,
}

// CreateTables initializes the schema, idempotent
func CreateTables(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range schema {
		if _, err := pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("can't create schema: %w", err)
		}
	}
	return nil
}
