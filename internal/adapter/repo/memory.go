package repo

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"studio/internal/domain"
)

// MemoryJobStore is a mutex-guarded in-memory implementation of
// domain.JobStore. It backs unit tests and database-less development runs;
// semantics match JobRepositoryPG exactly.
type MemoryJobStore struct {
	mu       sync.RWMutex
	jobs     map[string]*domain.Job
	feedback map[string]map[domain.Variant]domain.Feedback
}

// NewMemoryJobStore creates an empty in-memory store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:     make(map[string]*domain.Job),
		feedback: make(map[string]map[domain.Variant]domain.Feedback),
	}
}

// cloneJob deep-copies via JSON so callers never share mutable state with
// the store, mirroring the serialize/deserialize round trip of the SQL
// implementation.
func cloneJob(job *domain.Job) *domain.Job {
	data, err := json.Marshal(job)
	if err != nil {
		return nil
	}
	var out domain.Job
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return &out
}

func (s *MemoryJobStore) Create(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryJobStore) Update(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return domain.ErrNotFound
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryJobStore) ListAll(ctx context.Context) ([]*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, cloneJob(job))
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryJobStore) ListActive(ctx context.Context) ([]*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Job
	for _, job := range s.jobs {
		if !job.Stage.Terminal() {
			out = append(out, cloneJob(job))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryJobStore) Search(ctx context.Context, query string) ([]*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Job
	for _, job := range s.jobs {
		if strings.Contains(strings.ToLower(job.Request.Prompt), needle) {
			out = append(out, cloneJob(job))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryJobStore) SaveFeedback(ctx context.Context, jobID string, variant domain.Variant, rating int, selected bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !domain.ValidRating(rating) {
		return domain.ErrInvalidRating
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.feedback[jobID]
	if !ok {
		rows = make(map[domain.Variant]domain.Feedback)
		s.feedback[jobID] = rows
	}
	if selected {
		for v, fb := range rows {
			fb.Selected = false
			rows[v] = fb
		}
	}
	rows[variant] = domain.Feedback{
		JobID:     jobID,
		Variant:   variant,
		Rating:    rating,
		Selected:  selected,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *MemoryJobStore) GetFeedback(ctx context.Context, jobID string) ([]domain.Feedback, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.feedback[jobID]
	out := make([]domain.Feedback, 0, len(rows))
	for _, fb := range rows {
		out = append(out, fb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Variant < out[j].Variant })
	return out, nil
}

func (s *MemoryJobStore) TopPerformingPrompts(ctx context.Context, limit int) ([]domain.LearnedPrompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.LearnedPrompt
	for jobID, rows := range s.feedback {
		job, ok := s.jobs[jobID]
		if !ok {
			continue
		}
		for _, fb := range rows {
			if fb.Rating <= 0 && !fb.Selected {
				continue
			}
			lp := domain.LearnedPrompt{
				JobID:      jobID,
				Variant:    fb.Variant,
				UserPrompt: job.Request.Prompt,
				Rating:     fb.Rating,
				Selected:   fb.Selected,
			}
			if p, ok := job.Prompt(fb.Variant); ok {
				lp.PromptText = p.NarrativePrompt
			}
			out = append(out, lp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Selected != out[j].Selected {
			return out[i].Selected
		}
		return out[i].Rating > out[j].Rating
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewestFirst(jobs []*domain.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].Request.CreatedAt.After(jobs[j].Request.CreatedAt)
	})
}

var _ domain.JobStore = (*MemoryJobStore)(nil)
