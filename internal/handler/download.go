package handler

import (
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/csv-extractor/internal/auth"
)

// DownloadHandler streams generated files and deletes them once sent.
type DownloadHandler struct {
	runs   RunService
	logger *slog.Logger
}

func NewDownloadHandler(runs RunService, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{runs: runs, logger: logger}
}

// HandleDownload serves the file at the path returned by POST /run-python.
// GET /download?path=<run_id>/output.csv
func (h *DownloadHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())
	path := r.URL.Query().Get("path")

	f, err := h.runs.OpenArtifact(r.Context(), owner, path)
	if err != nil {
		writeError(w, err)
		return
	}
	h.serve(w, r, f, path)
}

// HandleRunDownload serves the file recorded on a run.
// GET /api/runs/{id}/download
func (h *DownloadHandler) HandleRunDownload(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())

	f, err := h.runs.RunArtifact(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.serve(w, r, f, f.Name())
}

// serve writes f as an attachment and releases it afterwards. path is what
// Release is called with.
func (h *DownloadHandler) serve(w http.ResponseWriter, r *http.Request, f *os.File, path string) {
	info, err := f.Stat()
	if err != nil {
		f.Close()
		writeError(w, err)
		return
	}

	name := filepath.Base(f.Name())
	contentType := "text/csv"
	if ext := filepath.Ext(name); ext != ".csv" {
		contentType = mime.TypeByExtension(ext)
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	http.ServeContent(w, r, name, info.ModTime(), f)
	f.Close()

	if r.Method != http.MethodGet {
		return
	}
	if err := h.runs.Release(path); err != nil {
		h.logger.Warn("failed to remove downloaded file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
