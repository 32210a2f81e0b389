package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/utafrali/catalogue-search/internal/catalogue"
	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/internal/engine"
	"github.com/utafrali/catalogue-search/internal/lock"
	"github.com/utafrali/catalogue-search/internal/repository"
	"github.com/utafrali/catalogue-search/internal/source"
	apperrors "github.com/utafrali/catalogue-search/pkg/errors"
	"github.com/utafrali/catalogue-search/pkg/tracing"
)

// Defaults for IndexerConfig fields left zero.
const (
	DefaultBatchSize = 100
	DefaultLockTTL   = 10 * time.Minute
)

// CatalogueSource fetches the catalogue tree to index.
type CatalogueSource interface {
	FetchTree(ctx context.Context, tenant, language string) ([]domain.CatalogueNode, error)
}

// RunPublisher announces finished runs. Implementations must not block for
// long; publish failures never fail the run.
type RunPublisher interface {
	PublishReindexed(ctx context.Context, run *domain.ReindexResult) error
}

// IndexerConfig tunes the reindex pipeline.
type IndexerConfig struct {
	Index           string
	BatchSize       int
	LockTTL         time.Duration
	DefaultLanguage string
}

// Indexer rebuilds the search index from the upstream catalogue. It is the
// only writer of the index.
type Indexer struct {
	source    CatalogueSource
	engine    engine.IndexEngine
	locker    lock.Locker
	runs      repository.RunRepository
	publisher RunPublisher
	cache     *ResultCache
	cfg       IndexerConfig
	logger    *slog.Logger
}

// NewIndexer creates an indexer. publisher may be nil.
func NewIndexer(
	src CatalogueSource,
	eng engine.IndexEngine,
	locker lock.Locker,
	runs repository.RunRepository,
	publisher RunPublisher,
	cfg IndexerConfig,
	logger *slog.Logger,
) *Indexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = domain.DefaultLanguage
	}
	return &Indexer{
		source:    src,
		engine:    eng,
		locker:    locker,
		runs:      runs,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// WithCache registers the search cache to purge whenever the index is
// rewritten.
func (s *Indexer) WithCache(cache *ResultCache) *Indexer {
	s.cache = cache
	return s
}

// Index returns the name of the index this indexer writes.
func (s *Indexer) Index() string {
	return s.cfg.Index
}

// Reindex fetches, normalizes and rewrites the whole catalogue for
// req.Tenant. Rejected documents do not produce an error: the result has
// Success=false and lists the failures. Fetch, structural and engine errors
// are returned as errors after the run is recorded.
func (s *Indexer) Reindex(ctx context.Context, req domain.ReindexRequest) (*domain.ReindexResult, error) {
	req.Tenant = strings.TrimSpace(req.Tenant)
	if req.Tenant == "" {
		return nil, apperrors.InvalidInput("tenant is required")
	}
	if !source.ValidTenant(req.Tenant) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("tenant %q must match [a-z0-9-]+", req.Tenant))
	}
	if req.Language == "" {
		req.Language = s.cfg.DefaultLanguage
	}

	release, err := s.locker.Acquire(ctx, "reindex:"+s.cfg.Index, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil, apperrors.Conflict(fmt.Sprintf("a reindex of %s is already in progress", s.cfg.Index))
		}
		return nil, apperrors.Unavailable(fmt.Sprintf("acquire reindex lock: %v", err))
	}
	defer release()

	ctx, span := tracing.Tracer("catalogue-search/service").Start(ctx, "catalogue.reindex")
	defer span.End()

	run := &domain.ReindexResult{
		ID:        uuid.NewString(),
		Tenant:    req.Tenant,
		Language:  req.Language,
		Index:     s.cfg.Index,
		StartedAt: time.Now().UTC(),
	}
	span.SetAttributes(
		attribute.String("reindex.run_id", run.ID),
		attribute.String("catalogue.tenant", run.Tenant),
		attribute.String("catalogue.language", run.Language),
		attribute.String("index.name", run.Index),
	)

	logger := s.logger.With(
		slog.String("run_id", run.ID),
		slog.String("tenant", run.Tenant),
		slog.String("language", run.Language),
		slog.String("index", run.Index),
	)
	logger.InfoContext(ctx, "reindex started")

	runErr := s.run(ctx, run, logger)
	s.cache.Purge()

	run.FinishedAt = time.Now().UTC()
	run.ExecutionTimeMs = run.FinishedAt.Sub(run.StartedAt).Milliseconds()
	s.observe(run, runErr)

	switch {
	case runErr != nil:
		tracing.RecordError(span, runErr)
		run.Success = false
		run.TotalCount = 0
		run.Message = runErr.Error()
		logger.ErrorContext(ctx, "reindex failed",
			slog.String("error", runErr.Error()),
			slog.Int64("execution_time_ms", run.ExecutionTimeMs),
		)
	case !run.Success:
		span.SetStatus(codes.Error, run.Message)
		logger.ErrorContext(ctx, "reindex aborted on rejected documents",
			slog.Int("failure_count", len(run.Failures)),
			slog.Int64("execution_time_ms", run.ExecutionTimeMs),
		)
	default:
		span.SetAttributes(attribute.Int("reindex.total_count", run.TotalCount))
		logger.InfoContext(ctx, "reindex completed",
			slog.Int("total_count", run.TotalCount),
			slog.Int64("execution_time_ms", run.ExecutionTimeMs),
		)
	}

	s.record(ctx, run, logger)

	if runErr != nil {
		return run, classify(runErr)
	}
	return run, nil
}

// run performs the fetch → normalize → recreate → write → count sequence,
// filling in run. It returns an error only for fatal failures.
func (s *Indexer) run(ctx context.Context, run *domain.ReindexResult, logger *slog.Logger) error {
	tree, err := s.source.FetchTree(ctx, run.Tenant, run.Language)
	if err != nil {
		return fmt.Errorf("fetch catalogue: %w", err)
	}

	docs, err := catalogue.Normalize(tree)
	if err != nil {
		return fmt.Errorf("normalize catalogue: %w", err)
	}

	batches := chunk(docs, s.cfg.BatchSize)
	logger.DebugContext(ctx, "catalogue normalized",
		slog.Int("documents", len(docs)),
		slog.Int("batches", len(batches)),
	)

	if err := s.recreateIndex(ctx); err != nil {
		return err
	}
	s.cache.Purge()

	for i, batch := range batches {
		resp, err := s.engine.BulkWrite(ctx, s.cfg.Index, batch)
		if err != nil {
			return fmt.Errorf("write batch %d of %d: %w", i+1, len(batches), err)
		}

		if failures := collectFailures(s.cfg.Index, batch, resp); len(failures) > 0 {
			run.Success = false
			run.TotalCount = 0
			run.Failures = failures
			run.Message = fmt.Sprintf("Encountered %d error(s). See failures for details.", len(failures))
			logger.WarnContext(ctx, "batch rejected documents, aborting remaining batches",
				slog.Int("batch", i+1),
				slog.Int("failure_count", len(failures)),
				slog.Int("skipped_batches", len(batches)-i-1),
			)
			return nil
		}

		logger.DebugContext(ctx, "batch written",
			slog.Int("batch", i+1),
			slog.Int("of", len(batches)),
			slog.Int("documents", len(batch)),
			slog.Int64("took_ms", resp.TookMs),
		)
	}

	count, err := s.engine.Count(ctx, s.cfg.Index)
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}

	run.Success = true
	run.TotalCount = count
	run.Message = fmt.Sprintf("Successfully indexed %d items", count)
	return nil
}

// recreateIndex deletes the index when it exists and creates it empty.
// Searches in between see no index.
func (s *Indexer) recreateIndex(ctx context.Context) error {
	exists, err := s.engine.IndexExists(ctx, s.cfg.Index)
	if err != nil {
		return fmt.Errorf("check index %s: %w", s.cfg.Index, err)
	}
	if exists {
		if err := s.engine.DeleteIndex(ctx, s.cfg.Index); err != nil {
			return fmt.Errorf("delete index %s: %w", s.cfg.Index, err)
		}
	}
	if err := s.engine.CreateIndex(ctx, s.cfg.Index); err != nil {
		return fmt.Errorf("create index %s: %w", s.cfg.Index, err)
	}
	return nil
}

// collectFailures pairs every failed bulk item with the document it carried.
func collectFailures(index string, batch []domain.Document, resp *domain.BulkResponse) []domain.ReindexFailure {
	if resp == nil || !resp.Errors {
		return nil
	}

	var failures []domain.ReindexFailure
	for i, item := range resp.Items {
		if !item.Failed() {
			continue
		}
		f := domain.ReindexFailure{
			Status:    item.Status,
			Error:     item.Error,
			Operation: domain.BulkAction{Index: domain.BulkActionMeta{Index: index}},
		}
		if i < len(batch) {
			f.Document = batch[i]
		}
		failures = append(failures, f)
	}
	return failures
}

func chunk(docs []domain.Document, size int) [][]domain.Document {
	batches := make([][]domain.Document, 0, (len(docs)+size-1)/size)
	for start := 0; start < len(docs); start += size {
		end := min(start+size, len(docs))
		batches = append(batches, docs[start:end])
	}
	return batches
}

// record persists and announces run. Neither failure affects the caller.
func (s *Indexer) record(ctx context.Context, run *domain.ReindexResult, logger *slog.Logger) {
	// The run is recorded even when the caller's context ended mid-run.
	ctx = context.WithoutCancel(ctx)

	if err := s.runs.Create(ctx, run); err != nil {
		logger.ErrorContext(ctx, "failed to record reindex run", slog.String("error", err.Error()))
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishReindexed(ctx, run); err != nil {
		logger.ErrorContext(ctx, "failed to publish catalogue.reindexed event", slog.String("error", err.Error()))
	}
}

func (s *Indexer) observe(run *domain.ReindexResult, runErr error) {
	outcome := outcomeSuccess
	switch {
	case runErr != nil:
		outcome = outcomeError
	case !run.Success:
		outcome = outcomeWriteFailure
	default:
		indexedDocuments.WithLabelValues(run.Index).Set(float64(run.TotalCount))
	}
	reindexRuns.WithLabelValues(run.Index, outcome).Inc()
	reindexDuration.WithLabelValues(run.Index).Observe(float64(run.ExecutionTimeMs) / 1000)
}

// classify maps pipeline errors onto application errors for the transport.
// The original error text is kept in the message.
func classify(err error) error {
	switch {
	case errors.Is(err, source.ErrInvalidTenant):
		return apperrors.InvalidInput(err.Error())
	case errors.Is(err, source.ErrFetch):
		return apperrors.BadGateway(err.Error())
	case errors.Is(err, catalogue.ErrMalformedTree):
		return apperrors.Unprocessable(err.Error())
	case errors.Is(err, engine.ErrUnreachable),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.Unavailable(err.Error())
	default:
		return err
	}
}
