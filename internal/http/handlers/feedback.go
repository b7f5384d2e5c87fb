package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
)

type feedbackRequest struct {
	Variant  string `json:"variant"`
	Rating   int    `json:"rating"`
	Selected bool   `json:"selected"`
}

// SaveFeedback records a rating for one variant. Marking a variant selected
// clears any previous selection on the job.
func (a *App) SaveFeedback(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if _, err := a.Store.Get(r.Context(), jobID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.jsonError(w, http.StatusNotFound, "job not found")
			return
		}
		a.jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	variant, err := domain.ParseVariant(req.Variant)
	if err != nil {
		a.jsonError(w, http.StatusBadRequest, "unknown variant")
		return
	}
	if !domain.ValidRating(req.Rating) {
		a.jsonError(w, http.StatusBadRequest, "rating must be -1, 0 or 1")
		return
	}

	if err := a.Store.SaveFeedback(r.Context(), jobID, variant, req.Rating, req.Selected); err != nil {
		a.jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "saved"})
}

// GetFeedback lists all feedback rows for a job.
func (a *App) GetFeedback(w http.ResponseWriter, r *http.Request) {
	feedback, err := a.Store.GetFeedback(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if feedback == nil {
		feedback = []domain.Feedback{}
	}
	a.json(w, http.StatusOK, map[string]any{"feedback": feedback})
}

// TopPrompts exposes the learned-prompt ranking used by prompt crafting.
func (a *App) TopPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := a.Store.TopPerformingPrompts(r.Context(), 10)
	if err != nil {
		a.jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if prompts == nil {
		prompts = []domain.LearnedPrompt{}
	}
	a.json(w, http.StatusOK, map[string]any{"prompts": prompts})
}
