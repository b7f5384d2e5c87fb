package handlers

import "net/http"

// Health reports liveness plus how many pipelines are running.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_tasks": a.Supervisor.Active(),
	})
}
