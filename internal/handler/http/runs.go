package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/internal/repository"
	"github.com/utafrali/catalogue-search/pkg/httputil"
	"github.com/utafrali/catalogue-search/pkg/pagination"
)

// RunHandler serves the reindex run history.
type RunHandler struct {
	runs   repository.RunRepository
	logger *slog.Logger
}

// NewRunHandler creates a new run history HTTP handler.
func NewRunHandler(runs repository.RunRepository, logger *slog.Logger) *RunHandler {
	return &RunHandler{runs: runs, logger: logger}
}

// runListResponse is the body of the run listing.
type runListResponse struct {
	httputil.ListResponse[domain.ReindexResult]
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// List handles GET /api/v1/reindex/runs?limit=&offset=
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	p := pagination.FromRequest(r)

	runs, err := h.runs.List(r.Context(), p.Offset+p.Limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	start, end := p.Window(len(runs))
	httputil.WriteJSON(w, http.StatusOK, runListResponse{
		ListResponse: httputil.NewListResponse(runs[start:end]),
		Limit:        p.Limit,
		Offset:       p.Offset,
	})
}

// Get handles GET /api/v1/reindex/runs/{id}
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	run, err := h.runs.GetByID(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, run)
}
