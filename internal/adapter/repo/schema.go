package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		stage TEXT NOT NULL,
		prompt TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_stage ON jobs (stage)`,
	`CREATE TABLE IF NOT EXISTS image_feedback (
		id BIGSERIAL PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		variant TEXT NOT NULL,
		rating INTEGER NOT NULL DEFAULT 0,
		selected BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (job_id, variant)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_image_feedback_job ON image_feedback (job_id)`,
}

// EnsureSchema creates the tables and indexes the repository needs. Statements
// are idempotent so startup can run this unconditionally.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("repo: ensure schema: %w", err)
		}
	}
	return nil
}
