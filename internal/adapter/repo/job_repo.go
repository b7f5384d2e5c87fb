// Package repo provides the durable job store implementations: a Postgres
// repository for production and an in-memory store for tests and local runs.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studio/internal/domain"
)

// JobRepositoryPG persists jobs as full JSON payloads alongside a few
// denormalized columns for listing and search. The JSONB document is the
// source of truth; stage, prompt and timestamps are duplicated so queries
// never have to parse payloads.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepositoryPG wires the repository to an existing connection pool.
func NewJobRepositoryPG(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("repo: marshal job: %w", err)
	}
	const q = `
		INSERT INTO jobs (id, data, stage, prompt, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			data = EXCLUDED.data,
			stage = EXCLUDED.stage,
			prompt = EXCLUDED.prompt,
			completed_at = EXCLUDED.completed_at`
	_, err = r.pool.Exec(ctx, q, job.ID, data, string(job.Stage), job.Request.Prompt, job.Request.CreatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("repo: insert job: %w", err)
	}
	return nil
}

func (r *JobRepositoryPG) Get(ctx context.Context, id string) (*domain.Job, error) {
	const q = `SELECT data FROM jobs WHERE id = $1`
	var data []byte
	if err := r.pool.QueryRow(ctx, q, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("repo: get job: %w", err)
	}
	return decodeJob(data)
}

func (r *JobRepositoryPG) Update(ctx context.Context, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("repo: marshal job: %w", err)
	}
	const q = `
		UPDATE jobs
		SET data = $2, stage = $3, prompt = $4, completed_at = $5
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, job.ID, data, string(job.Stage), job.Request.Prompt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("repo: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *JobRepositoryPG) ListAll(ctx context.Context) ([]*domain.Job, error) {
	const q = `SELECT data FROM jobs ORDER BY created_at DESC`
	return r.queryJobs(ctx, q)
}

func (r *JobRepositoryPG) ListActive(ctx context.Context) ([]*domain.Job, error) {
	const q = `
		SELECT data FROM jobs
		WHERE stage NOT IN ($1, $2)
		ORDER BY created_at DESC`
	return r.queryJobs(ctx, q, string(domain.StageComplete), string(domain.StageFailed))
}

func (r *JobRepositoryPG) Search(ctx context.Context, query string) ([]*domain.Job, error) {
	const q = `
		SELECT data FROM jobs
		WHERE prompt ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC`
	return r.queryJobs(ctx, q, query)
}

func (r *JobRepositoryPG) queryJobs(ctx context.Context, q string, args ...any) ([]*domain.Job, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("repo: query jobs: %w", err)
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("repo: scan job: %w", err)
		}
		job, err := decodeJob(data)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo: iterate jobs: %w", err)
	}
	return out, nil
}

// SaveFeedback upserts one rating row per (job, variant). When selected is
// true the previous selection for the job is cleared in the same transaction
// so at most one variant stays selected.
func (r *JobRepositoryPG) SaveFeedback(ctx context.Context, jobID string, variant domain.Variant, rating int, selected bool) error {
	if !domain.ValidRating(rating) {
		return domain.ErrInvalidRating
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo: begin feedback tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if selected {
		const clear = `UPDATE image_feedback SET selected = FALSE WHERE job_id = $1`
		if _, err := tx.Exec(ctx, clear, jobID); err != nil {
			return fmt.Errorf("repo: clear selection: %w", err)
		}
	}
	const upsert = `
		INSERT INTO image_feedback (job_id, variant, rating, selected, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id, variant) DO UPDATE SET
			rating = EXCLUDED.rating,
			selected = EXCLUDED.selected,
			created_at = EXCLUDED.created_at`
	if _, err := tx.Exec(ctx, upsert, jobID, string(variant), rating, selected, time.Now().UTC()); err != nil {
		return fmt.Errorf("repo: upsert feedback: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo: commit feedback: %w", err)
	}
	return nil
}

func (r *JobRepositoryPG) GetFeedback(ctx context.Context, jobID string) ([]domain.Feedback, error) {
	const q = `
		SELECT job_id, variant, rating, selected, created_at
		FROM image_feedback
		WHERE job_id = $1
		ORDER BY variant`
	rows, err := r.pool.Query(ctx, q, jobID)
	if err != nil {
		return nil, fmt.Errorf("repo: query feedback: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Feedback, 0, 6)
	for rows.Next() {
		var fb domain.Feedback
		var variant string
		if err := rows.Scan(&fb.JobID, &variant, &fb.Rating, &fb.Selected, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("repo: scan feedback: %w", err)
		}
		fb.Variant = domain.Variant(variant)
		out = append(out, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo: iterate feedback: %w", err)
	}
	return out, nil
}

// TopPerformingPrompts joins positive feedback back to the crafted prompt text
// inside the job payload. Selected variants rank above merely liked ones.
func (r *JobRepositoryPG) TopPerformingPrompts(ctx context.Context, limit int) ([]domain.LearnedPrompt, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
		SELECT f.job_id, f.variant, f.rating, f.selected,
		       j.prompt,
		       COALESCE(p.elem->>'narrative_prompt', '')
		FROM image_feedback f
		JOIN jobs j ON j.id = f.job_id
		LEFT JOIN LATERAL (
			SELECT elem FROM jsonb_array_elements(j.data->'prompts') elem
			WHERE elem->>'variant' = f.variant
			LIMIT 1
		) p ON TRUE
		WHERE f.rating > 0 OR f.selected
		ORDER BY f.selected DESC, f.rating DESC, f.created_at DESC
		LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("repo: query top prompts: %w", err)
	}
	defer rows.Close()

	var out []domain.LearnedPrompt
	for rows.Next() {
		var lp domain.LearnedPrompt
		var variant string
		if err := rows.Scan(&lp.JobID, &variant, &lp.Rating, &lp.Selected, &lp.UserPrompt, &lp.PromptText); err != nil {
			return nil, fmt.Errorf("repo: scan top prompt: %w", err)
		}
		lp.Variant = domain.Variant(variant)
		out = append(out, lp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo: iterate top prompts: %w", err)
	}
	return out, nil
}

func decodeJob(data []byte) (*domain.Job, error) {
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("repo: decode job: %w", err)
	}
	return &job, nil
}

var _ domain.JobStore = (*JobRepositoryPG)(nil)
