package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/catalogue-search/internal/repository"
	"github.com/utafrali/catalogue-search/internal/service"
	"github.com/utafrali/catalogue-search/pkg/health"
	"github.com/utafrali/catalogue-search/pkg/middleware"
)

// DefaultRequestTimeout bounds every request, reindex included.
const DefaultRequestTimeout = 5 * time.Minute

// RouterConfig holds the transport settings of the router.
type RouterConfig struct {
	ServiceName    string
	RequestTimeout time.Duration
	CORS           middleware.CORSConfig

	// PprofCIDRs enables /debug/pprof for the listed networks when non-empty.
	PprofCIDRs []string
}

// NewRouter creates a chi router with all catalogue routes registered.
func NewRouter(
	searchService *service.SearchService,
	indexer *service.Indexer,
	runs repository.RunRepository,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	catalogueHandler := NewCatalogueHandler(searchService, indexer, logger)
	runHandler := NewRunHandler(runs, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/catalogue", func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Post("/search", catalogueHandler.Search)
			r.Post("/reindex", catalogueHandler.Reindex)
		})

		r.Route("/reindex/runs", func(r chi.Router) {
			r.Get("/", runHandler.List)
			r.Get("/{id}", runHandler.Get)
		})
	})

	return r
}
