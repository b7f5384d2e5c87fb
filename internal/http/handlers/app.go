// Package handlers implements the JSON API and SSE stream for the studio.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/pipeline"
	"studio/internal/storage"
)

// App bundles the dependencies every handler needs.
type App struct {
	Store      domain.JobStore
	Pipeline   *pipeline.Orchestrator
	Supervisor *pipeline.Supervisor
	Broker     *Broker
	Files      *storage.FileStore
	Logger     zerolog.Logger

	DefaultAspectRatio string
	DefaultResolution  string
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) jsonError(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}
