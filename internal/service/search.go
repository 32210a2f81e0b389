package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/internal/engine"
	"github.com/utafrali/catalogue-search/internal/query"
	apperrors "github.com/utafrali/catalogue-search/pkg/errors"
	"github.com/utafrali/catalogue-search/pkg/tracing"
	"github.com/utafrali/catalogue-search/pkg/validator"
)

// SearchService answers product-variant searches against the index an
// Indexer writes.
type SearchService struct {
	engine engine.IndexEngine
	index  string
	cache  *ResultCache
	logger *slog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(eng engine.IndexEngine, index string, logger *slog.Logger) *SearchService {
	return &SearchService{
		engine: eng,
		index:  index,
		logger: logger,
	}
}

// WithCache makes the service answer repeated requests from cache. The same
// cache must be handed to the Indexer so rewrites purge it.
func (s *SearchService) WithCache(cache *ResultCache) *SearchService {
	s.cache = cache
	return s
}

// Search returns one page of variants matching req. A missing index yields an
// empty page rather than an error.
func (s *SearchService) Search(ctx context.Context, req *domain.SearchRequest) (*domain.ProductVariantsConnection, error) {
	if req == nil {
		req = &domain.SearchRequest{}
	}

	if err := validator.Validate(req); err != nil {
		searchRequests.WithLabelValues("invalid").Inc()
		return nil, err
	}

	from, size := req.After, req.PageSize()
	// Compared without adding so a huge after cannot overflow.
	if from > domain.MaxResultWindow || size > domain.MaxResultWindow-from {
		searchRequests.WithLabelValues("invalid").Inc()
		return nil, apperrors.InvalidInput(fmt.Sprintf(
			"after + first must not exceed %d, got after=%d first=%d", domain.MaxResultWindow, from, size))
	}

	compiled, err := query.Compile(req.Filter, req.OrderBy)
	if err != nil {
		searchRequests.WithLabelValues("invalid").Inc()
		return nil, apperrors.InvalidInput(err.Error())
	}

	engineReq := compiled.Request(from, size)
	key, cacheable := s.cache.key(s.index, engineReq)
	if cacheable {
		if conn, ok := s.cache.get(key); ok {
			searchRequests.WithLabelValues("cached").Inc()
			return conn, nil
		}
	}

	ctx, span := tracing.Tracer("catalogue-search/service").Start(ctx, "catalogue.search")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.name", s.index),
		attribute.Int("search.from", from),
		attribute.Int("search.size", size),
	)

	start := time.Now()
	raw, err := s.engine.Search(ctx, s.index, engineReq)
	searchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, engine.ErrIndexNotFound) {
			searchRequests.WithLabelValues("no_index").Inc()
			s.logger.WarnContext(ctx, "search against missing index",
				slog.String("index", s.index),
			)
			return emptyConnection(), nil
		}
		searchRequests.WithLabelValues("error").Inc()
		tracing.RecordError(span, err)
		if errors.Is(err, engine.ErrUnreachable) {
			return nil, apperrors.Unavailable(fmt.Sprintf("search %s: %v", s.index, err))
		}
		return nil, fmt.Errorf("search %s: %w", s.index, err)
	}

	searchRequests.WithLabelValues("success").Inc()
	span.SetAttributes(
		attribute.Int("search.total_hits", raw.TotalHits),
		attribute.Int("search.returned", len(raw.Hits)),
	)
	s.logger.DebugContext(ctx, "search executed",
		slog.Int("total_hits", raw.TotalHits),
		slog.Int("returned", len(raw.Hits)),
		slog.Int64("took_ms", raw.TookMs),
	)

	conn := toConnection(raw)
	if cacheable {
		s.cache.add(key, conn)
	}
	return conn, nil
}

func toConnection(raw *domain.RawSearchResult) *domain.ProductVariantsConnection {
	conn := &domain.ProductVariantsConnection{
		ProductVariants: raw.Hits,
		TotalCount:      len(raw.Hits),
		TotalHits:       raw.TotalHits,
	}
	if conn.ProductVariants == nil {
		conn.ProductVariants = []domain.Document{}
	}
	if len(raw.Hits) > 0 {
		conn.Aggregations = &domain.ProductVariantsAggregation{
			PriceRange: domain.PriceRange{
				Min: raw.Aggregations[query.AggMinPrice],
				Max: raw.Aggregations[query.AggMaxPrice],
			},
		}
	}
	return conn
}

func emptyConnection() *domain.ProductVariantsConnection {
	return &domain.ProductVariantsConnection{ProductVariants: []domain.Document{}}
}
