package handlers

import (
	"fmt"
	"net/http"
	"time"

	"babygen/pkg/zip"
)

// OutputsZip bundles every saved portrait into a single download.
func (a *App) OutputsZip(w http.ResponseWriter, r *http.Request) {
	paths, err := a.Files.ListOutputs()
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to list outputs")
		return
	}
	if len(paths) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no generated portraits yet")
		return
	}

	name := fmt.Sprintf("baby_portraits_%s.zip", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := zip.ArchiveFiles(w, paths); err != nil {
		a.Log.Error().Err(err).Msg("zip archive write failed")
	}
}
