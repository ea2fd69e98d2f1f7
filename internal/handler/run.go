package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/csv-extractor/internal/apperror"
	"github.com/sakif/csv-extractor/internal/auth"
	"github.com/sakif/csv-extractor/internal/model"
	"github.com/sakif/csv-extractor/internal/service"
)

// RunService is what the HTTP layer needs from service.RunService.
type RunService interface {
	Run(ctx context.Context, owner, code string) (*model.Run, error)
	Get(ctx context.Context, owner, id string) (*model.Run, error)
	List(ctx context.Context, owner string, limit, offset int) ([]model.Run, error)
	OpenArtifact(ctx context.Context, owner, path string) (*os.File, error)
	RunArtifact(ctx context.Context, owner, id string) (*os.File, error)
	Release(path string) error
}

var _ RunService = (*service.RunService)(nil)

// maxBodyBytes leaves room for JSON escaping of a maximum-size submission.
const maxBodyBytes = 2*service.MaxCodeLength + 1024

// RunRequest is the body of POST /run-python.
type RunRequest struct {
	Code string `json:"code"`
}

// RunResponse is returned when a submission ran to completion.
type RunResponse struct {
	Status   string `json:"status"`
	RunID    string `json:"run_id"`
	FilePath string `json:"file_path"`
	Output   string `json:"output"`
}

// RunHandler serves code submission and run history.
type RunHandler struct {
	runs   RunService
	logger *slog.Logger
}

func NewRunHandler(runs RunService, logger *slog.Logger) *RunHandler {
	return &RunHandler{runs: runs, logger: logger}
}

// HandleRun validates and executes the submitted code.
// POST /run-python  {"code": "..."}
func (h *RunHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, apperror.ValidationFailed("code", "request body is too large"))
			return
		}
		h.logger.Warn("invalid run request body", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "request body must be JSON with a code field"))
		return
	}

	owner, _ := auth.OwnerFromContext(r.Context())

	run, err := h.runs.Run(r.Context(), owner, req.Code)
	if err != nil {
		status, body := newErrorResponse(err)
		if run != nil {
			body.RunID = run.ID
		}
		if status == http.StatusInternalServerError {
			h.logger.Error("run failed", slog.String("error", err.Error()))
		}
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, RunResponse{
		Status:   "success",
		RunID:    run.ID,
		FilePath: run.FilePath,
		Output:   run.Output,
	})
}

// HandleList returns the caller's runs, newest first.
// GET /api/runs?limit=20&offset=0
func (h *RunHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	owner, _ := auth.OwnerFromContext(r.Context())
	runs, err := h.runs.List(r.Context(), owner, limit, offset)
	if err != nil {
		h.logger.Error("failed to list runs", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

// HandleGet returns one run.
// GET /api/runs/{id}
func (h *RunHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())

	run, err := h.runs.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// intParam reads an optional non-negative integer query parameter; absent is 0.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}
