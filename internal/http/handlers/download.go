package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
	"studio/pkg/zip"
)

// DownloadJob streams a zip of every successful image (refinements included)
// for one job.
func (a *App) DownloadJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.jsonError(w, http.StatusNotFound, "job not found")
			return
		}
		a.jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var assets []zip.Asset
	for _, img := range job.SuccessfulImages() {
		data, err := a.Files.Read(r.Context(), img.FilePath)
		if err != nil {
			continue
		}
		assets = append(assets, zip.Asset{Filename: path.Base(img.FilePath), Data: data})
	}
	for _, ref := range job.Refinements {
		data, err := a.Files.Read(r.Context(), ref.FilePath)
		if err != nil {
			continue
		}
		assets = append(assets, zip.Asset{Filename: path.Base(ref.FilePath), Data: data})
	}
	if len(assets) == 0 {
		a.jsonError(w, http.StatusNotFound, "no images to download")
		return
	}

	archive := zip.ArchiveAssets(assets)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
