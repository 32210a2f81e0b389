package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/internal/service"
	pkgkafka "github.com/utafrali/catalogue-search/pkg/kafka"
	"github.com/utafrali/catalogue-search/pkg/logger"
)

const (
	sourceName    = "catalogue-search"
	aggregateType = "catalogue"
)

// Publisher is the subset of *pkgkafka.Producer used to emit events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// ReindexedData is the payload of catalogue.reindexed. It summarizes a run
// without the per-document failures, which stay in the run history.
type ReindexedData struct {
	RunID           string `json:"run_id"`
	Tenant          string `json:"tenant"`
	Language        string `json:"language"`
	Index           string `json:"index"`
	Success         bool   `json:"success"`
	TotalCount      int    `json:"total_count"`
	FailureCount    int    `json:"failure_count"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	Message         string `json:"message"`
}

// Producer announces finished reindex runs.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

var _ service.RunPublisher = (*Producer)(nil)

// NewProducer creates a reindex event producer.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishReindexed emits catalogue.reindexed keyed by tenant.
func (p *Producer) PublishReindexed(ctx context.Context, run *domain.ReindexResult) error {
	data := ReindexedData{
		RunID:           run.ID,
		Tenant:          run.Tenant,
		Language:        run.Language,
		Index:           run.Index,
		Success:         run.Success,
		TotalCount:      run.TotalCount,
		FailureCount:    len(run.Failures),
		ExecutionTimeMs: run.ExecutionTimeMs,
		Message:         run.Message,
	}

	evt, err := pkgkafka.NewEvent(TopicCatalogueReindexed, run.Tenant, aggregateType, sourceName, data)
	if err != nil {
		return fmt.Errorf("build reindexed event: %w", err)
	}
	evt.WithMetadata("run_id", run.ID)
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := p.publisher.Publish(ctx, TopicCatalogueReindexed, evt); err != nil {
		return fmt.Errorf("publish reindexed event: %w", err)
	}
	return nil
}
