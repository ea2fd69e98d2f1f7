package handler

// Every error leaves the API in one shape:
//
//	{"error": "disallowed_import", "message": "import not allowed: os", "detail": "..."}
//
// "error" is the stable kind from apperror.Kind, "message" is safe to show a
// user, and "detail" carries parser output or the child's stderr when there is any.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/csv-extractor/internal/apperror"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Field   string `json:"field,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}

// writeJSON sets the header and status before the body; after the first
// write further header changes are dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an error to its HTTP status. The service layer never sees
// status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation),
		errors.Is(err, apperror.ErrSyntax),
		errors.Is(err, apperror.ErrDisallowedImport),
		errors.Is(err, apperror.ErrDisallowedCall):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrExecution):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperror.ErrTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, apperror.ErrCancelled):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// newErrorResponse builds the body for err. Errors that are not an
// *apperror.AppError become a generic 500: their text may hold SQL or paths.
func newErrorResponse(err error) (int, ErrorResponse) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		}
	}

	return statusFor(err), ErrorResponse{
		Error:   apperror.Kind(err),
		Message: appErr.Message,
		Detail:  appErr.Detail,
		Field:   appErr.Field,
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := newErrorResponse(err)
	writeJSON(w, status, body)
}
