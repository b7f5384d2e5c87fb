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

type refineRequest struct {
	Variant     string `json:"variant"`
	Instruction string `json:"instruction"`
}

// RefineImage validates the request, then runs the edit in the background and
// answers 202. The outcome arrives on the event stream as image_refined, or as
// a job_failed event tagged operation=refine. The parent job's stage is
// untouched either way.
func (a *App) RefineImage(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	variant, err := domain.ParseVariant(req.Variant)
	if err != nil {
		a.jsonError(w, http.StatusBadRequest, "unknown variant")
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		a.jsonError(w, http.StatusBadRequest, "instruction is required")
		return
	}

	job, err := a.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.jsonError(w, http.StatusNotFound, "job not found")
			return
		}
		a.jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if img, ok := job.Image(variant); !ok || !img.Success {
		a.jsonError(w, http.StatusNotFound, "variant has no generated image")
		return
	}

	jobID := job.ID
	a.Supervisor.Go(context.WithoutCancel(r.Context()), "refine-"+jobID, func(ctx context.Context) {
		if _, err := a.Pipeline.Refine(ctx, jobID, variant, req.Instruction); err != nil {
			a.Logger.Error().Err(err).Str("job_id", jobID).Str("variant", string(variant)).Msg("http: refinement failed")
		}
	})

	a.json(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"job_id":  jobID,
		"variant": string(variant),
	})
}
