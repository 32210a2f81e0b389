package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/catalogue-search/internal/domain"
	apperrors "github.com/utafrali/catalogue-search/pkg/errors"
	pkgkafka "github.com/utafrali/catalogue-search/pkg/kafka"
	"github.com/utafrali/catalogue-search/pkg/logger"
)

// Kafka topics owned by the catalogue search service.
var (
	TopicCataloguePublished = pkgkafka.Topic("published")
	TopicCatalogueReindexed = pkgkafka.Topic("reindexed")
)

// PublishedData is the payload of catalogue.published.
type PublishedData struct {
	Tenant   string `json:"tenant"`
	Language string `json:"language"`
}

// Reindexer runs a full reindex.
type Reindexer interface {
	Reindex(ctx context.Context, req domain.ReindexRequest) (*domain.ReindexResult, error)
}

// DefaultRerunInterval is the wait between attempts to reindex for a
// published event while another run holds the reindex lock.
const DefaultRerunInterval = 5 * time.Second

// Consumer turns catalogue publication events into full reindex runs.
type Consumer struct {
	reindexer     Reindexer
	rerunInterval time.Duration
	logger        *slog.Logger
}

// NewConsumer creates a new event consumer.
func NewConsumer(reindexer Reindexer, logger *slog.Logger) *Consumer {
	return &Consumer{
		reindexer:     reindexer,
		rerunInterval: DefaultRerunInterval,
		logger:        logger,
	}
}

// WithRerunInterval sets how long a published event waits for a running
// reindex before trying again.
func (c *Consumer) WithRerunInterval(d time.Duration) *Consumer {
	if d > 0 {
		c.rerunInterval = d
	}
	return c
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicCataloguePublished:
		return c.handlePublished(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// handlePublished reindexes the whole catalogue of the published tenant.
// While another run holds the lock the event waits and tries again, since
// that run may have fetched the tree before this publication. A run that ends
// with rejected documents is not retried since the same tree would be
// rejected again.
func (c *Consumer) handlePublished(ctx context.Context, event *pkgkafka.Event) error {
	var data PublishedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal catalogue.published data: %w", err)
	}

	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}
	log := logger.WithContext(ctx, c.logger).With(
		slog.String("event_id", event.EventID),
		slog.String("tenant", data.Tenant),
	)

	res, err := c.reindexAfterRunning(ctx, log, domain.ReindexRequest{
		Tenant:   data.Tenant,
		Language: data.Language,
	})
	if err != nil {
		return fmt.Errorf("reindex from published event: %w", err)
	}

	if !res.Success {
		log.WarnContext(ctx, "reindex from published event rejected documents",
			slog.String("run_id", res.ID),
			slog.Int("failure_count", len(res.Failures)),
		)
		return nil
	}

	log.InfoContext(ctx, "reindexed catalogue from published event",
		slog.String("run_id", res.ID),
		slog.Int("total_count", res.TotalCount),
	)
	return nil
}

// reindexAfterRunning calls Reindex until it is not refused as a conflict
// or ctx ends.
func (c *Consumer) reindexAfterRunning(ctx context.Context, log *slog.Logger, req domain.ReindexRequest) (*domain.ReindexResult, error) {
	for attempt := 1; ; attempt++ {
		res, err := c.reindexer.Reindex(ctx, req)
		if !errors.Is(err, apperrors.ErrConflict) {
			return res, err
		}
		log.InfoContext(ctx, "reindex already in progress, rerunning once it ends",
			slog.Int("attempt", attempt),
			slog.Duration("wait", c.rerunInterval),
		)

		timer := time.NewTimer(c.rerunInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
