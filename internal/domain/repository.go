package domain

import "context"

// JobStore defines durable persistence for jobs and per-variant feedback.
// Implementations must be safe for concurrent use; each call is atomic.
type JobStore interface {
	// Create inserts a job record, replacing any existing record with the
	// same id.
	Create(ctx context.Context, job *Job) error
	// Get returns the job by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Job, error)
	// Update replaces the full serialized job state. Callers pass the
	// complete current job, not a delta.
	Update(ctx context.Context, job *Job) error
	// ListAll returns every job, newest-created first.
	ListAll(ctx context.Context) ([]*Job, error)
	// ListActive returns jobs whose stage is not terminal.
	ListActive(ctx context.Context) ([]*Job, error)
	// Search returns jobs whose original prompt contains the query as a
	// case-insensitive substring, newest first.
	Search(ctx context.Context, query string) ([]*Job, error)

	// SaveFeedback upserts the rating for one (job, variant) pair. When
	// selected is true, every other variant of the same job is deselected
	// first.
	SaveFeedback(ctx context.Context, jobID string, variant Variant, rating int, selected bool) error
	// GetFeedback returns all feedback rows for a job.
	GetFeedback(ctx context.Context, jobID string) ([]Feedback, error)
	// TopPerformingPrompts returns prompts from variants rated positive or
	// selected, selected first then by rating descending.
	TopPerformingPrompts(ctx context.Context, limit int) ([]LearnedPrompt, error)
}
