package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/csv-extractor/internal/model"
)

// ColumnSource lists the columns submissions can rely on.
type ColumnSource interface {
	Columns() ([]model.Column, error)
}

type SchemaResponse struct {
	Columns []model.Column `json:"columns"`
}

type SchemaHandler struct {
	source ColumnSource
	logger *slog.Logger
}

func NewSchemaHandler(source ColumnSource, logger *slog.Logger) *SchemaHandler {
	return &SchemaHandler{source: source, logger: logger}
}

// HandleSchema describes the source CSV.
// GET /schema
func (h *SchemaHandler) HandleSchema(w http.ResponseWriter, r *http.Request) {
	columns, err := h.source.Columns()
	if err != nil {
		h.logger.Error("failed to read schema", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SchemaResponse{Columns: columns})
}

// HandleHealth reports that the process is serving.
// GET /healthz
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
