package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
)

type createJobRequest struct {
	Prompt         string   `json:"prompt"`
	ReferencePaths []string `json:"reference_paths,omitempty"`
	AspectRatio    string   `json:"aspect_ratio,omitempty"`
	Resolution     string   `json:"resolution,omitempty"`
}

// CreateJob accepts a generation request, persists the queued job, then kicks
// off the pipeline in the background. The job is readable immediately.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		a.jsonError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = a.DefaultAspectRatio
	}
	resolution := req.Resolution
	if resolution == "" {
		resolution = a.DefaultResolution
	}

	job, err := a.Pipeline.Create(r.Context(), domain.Request{
		Prompt:         req.Prompt,
		ReferencePaths: req.ReferencePaths,
		AspectRatio:    aspect,
		Resolution:     resolution,
	})
	if err != nil {
		a.jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	jobID := job.ID
	a.Supervisor.Go(context.WithoutCancel(r.Context()), "pipeline-"+jobID, func(ctx context.Context) {
		if _, err := a.Pipeline.Run(ctx, jobID); err != nil {
			a.Logger.Error().Err(err).Str("job_id", jobID).Msg("http: pipeline run failed")
		}
	})

	a.json(w, http.StatusAccepted, job)
}

// ListJobs returns jobs newest first. ?q= (or ?search=) filters by prompt
// substring, ?active=true narrows to jobs still in flight and ?sort=oldest
// flips the order.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		query = strings.TrimSpace(r.URL.Query().Get("search"))
	}

	var (
		jobs []*domain.Job
		err  error
	)
	switch {
	case query != "":
		jobs, err = a.Store.Search(r.Context(), query)
	case r.URL.Query().Get("active") == "true":
		jobs, err = a.Store.ListActive(r.Context())
	default:
		jobs, err = a.Store.ListAll(r.Context())
	}
	if err != nil {
		a.jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if r.URL.Query().Get("sort") == "oldest" {
		for i, j := 0, len(jobs)-1; i < j; i, j = i+1, j-1 {
			jobs[i], jobs[j] = jobs[j], jobs[i]
		}
	}
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// GetJob returns one job by ID.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.jsonError(w, http.StatusNotFound, "job not found")
			return
		}
		a.jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.json(w, http.StatusOK, job)
}
