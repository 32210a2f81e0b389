package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/internal/service"
	"github.com/utafrali/catalogue-search/pkg/httputil"
	"github.com/utafrali/catalogue-search/pkg/logger"
	"github.com/utafrali/catalogue-search/pkg/validator"
)

const maxBodyBytes = 1 << 20

// CatalogueHandler serves the search query and the reindex mutation.
type CatalogueHandler struct {
	search  *service.SearchService
	indexer *service.Indexer
	logger  *slog.Logger
}

// NewCatalogueHandler creates a new catalogue HTTP handler.
func NewCatalogueHandler(search *service.SearchService, indexer *service.Indexer, logger *slog.Logger) *CatalogueHandler {
	return &CatalogueHandler{
		search:  search,
		indexer: indexer,
		logger:  logger,
	}
}

// Search handles POST /api/v1/catalogue/search
func (h *CatalogueHandler) Search(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req domain.SearchRequest
	if err := decodeOptional(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.search.Search(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

// Reindex handles POST /api/v1/catalogue/reindex. The run is synchronous; a
// run whose documents were rejected still answers 200 with success=false.
func (h *CatalogueHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req domain.ReindexRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	ctx := logger.WithTenant(r.Context(), req.Tenant)
	result, err := h.indexer.Reindex(ctx, req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

// decodeOptional decodes and validates a JSON body; an empty body leaves dst
// at its zero value.
func decodeOptional(r *http.Request, dst any) error {
	err := validator.DecodeAndValidate(r, dst)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return validator.Validate(dst)
	}
	return err
}
