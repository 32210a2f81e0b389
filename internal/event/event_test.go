package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogue-search/internal/domain"
	apperrors "github.com/utafrali/catalogue-search/pkg/errors"
	pkgkafka "github.com/utafrali/catalogue-search/pkg/kafka"
	"github.com/utafrali/catalogue-search/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeReindexer struct {
	mu    sync.Mutex
	calls []domain.ReindexRequest
	res   *domain.ReindexResult
	err   error

	// conflicts is the number of leading calls refused as already running.
	conflicts int
}

func (f *fakeReindexer) Reindex(_ context.Context, req domain.ReindexRequest) (*domain.ReindexResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if len(f.calls) <= f.conflicts {
		return nil, apperrors.Conflict("a reindex is already in progress")
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.res != nil {
		return f.res, nil
	}
	return &domain.ReindexResult{ID: "run-1", Tenant: req.Tenant, Success: true, TotalCount: 2}, nil
}

type fakePublisher struct {
	topic string
	event *pkgkafka.Event
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, event *pkgkafka.Event) error {
	f.topic = topic
	f.event = event
	return f.err
}

func publishedEvent(t *testing.T, tenant, language string) *pkgkafka.Event {
	t.Helper()
	evt, err := pkgkafka.NewEvent(TopicCataloguePublished, tenant, aggregateType, "cms", PublishedData{
		Tenant:   tenant,
		Language: language,
	})
	require.NoError(t, err)
	return evt
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "catalogue.published", TopicCataloguePublished)
	assert.Equal(t, "catalogue.reindexed", TopicCatalogueReindexed)
}

func TestConsumer_PublishedTriggersReindex(t *testing.T) {
	r := &fakeReindexer{}
	c := NewConsumer(r, testLogger())

	err := c.Handle(context.Background(), publishedEvent(t, "acme", "no"))
	require.NoError(t, err)

	require.Len(t, r.calls, 1)
	assert.Equal(t, domain.ReindexRequest{Tenant: "acme", Language: "no"}, r.calls[0])
}

func TestConsumer_UnknownEventIsIgnored(t *testing.T) {
	r := &fakeReindexer{}
	c := NewConsumer(r, testLogger())

	evt, err := pkgkafka.NewEvent("catalogue.archived", "acme", aggregateType, "cms", map[string]string{})
	require.NoError(t, err)

	require.NoError(t, c.Handle(context.Background(), evt))
	assert.Empty(t, r.calls)
}

func TestConsumer_MalformedPayload(t *testing.T) {
	c := NewConsumer(&fakeReindexer{}, testLogger())
	evt := &pkgkafka.Event{EventType: TopicCataloguePublished, Data: json.RawMessage(`"not an object"`)}

	err := c.Handle(context.Background(), evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal catalogue.published data")
}

func TestConsumer_ConflictRerunsAfterRunningReindex(t *testing.T) {
	r := &fakeReindexer{conflicts: 2}
	c := NewConsumer(r, testLogger()).WithRerunInterval(time.Millisecond)

	require.NoError(t, c.Handle(context.Background(), publishedEvent(t, "acme", "en")))

	require.Len(t, r.calls, 3)
	for _, call := range r.calls {
		assert.Equal(t, domain.ReindexRequest{Tenant: "acme", Language: "en"}, call)
	}
}

func TestConsumer_ConflictStopsWithContext(t *testing.T) {
	r := &fakeReindexer{conflicts: math.MaxInt}
	c := NewConsumer(r, testLogger()).WithRerunInterval(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Handle(ctx, publishedEvent(t, "acme", "en"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, r.calls, 1)
}

func TestConsumer_DefaultRerunInterval(t *testing.T) {
	c := NewConsumer(&fakeReindexer{}, testLogger()).WithRerunInterval(0)
	assert.Equal(t, DefaultRerunInterval, c.rerunInterval)
}

func TestConsumer_RejectedDocumentsAreNotRetried(t *testing.T) {
	r := &fakeReindexer{res: &domain.ReindexResult{
		ID:       "run-2",
		Success:  false,
		Failures: []domain.ReindexFailure{{Status: 400}},
	}}
	c := NewConsumer(r, testLogger())

	assert.NoError(t, c.Handle(context.Background(), publishedEvent(t, "acme", "en")))
}

func TestConsumer_FatalErrorIsReturned(t *testing.T) {
	r := &fakeReindexer{err: apperrors.BadGateway("catalogue fetch failed")}
	c := NewConsumer(r, testLogger())

	err := c.Handle(context.Background(), publishedEvent(t, "acme", "en"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUpstream))
}

func TestConsumer_DuplicateEventsReindexOnce(t *testing.T) {
	r := &fakeReindexer{}
	c := NewConsumer(r, testLogger())
	handler := pkgkafka.IdempotentHandler(pkgkafka.NewMemoryIdempotencyStore(time.Hour), c.Handle, testLogger())

	evt := publishedEvent(t, "acme", "en")
	require.NoError(t, handler(context.Background(), evt))
	require.NoError(t, handler(context.Background(), evt))

	assert.Len(t, r.calls, 1)
}

func TestProducer_PublishReindexed(t *testing.T) {
	pub := &fakePublisher{}
	p := NewProducer(pub, testLogger())

	run := &domain.ReindexResult{
		ID:              "run-9",
		Tenant:          "acme",
		Language:        "en",
		Index:           "catalogue",
		Success:         false,
		ExecutionTimeMs: 1200,
		Message:         "Encountered 2 error(s). See failures for details.",
		Failures:        []domain.ReindexFailure{{Status: 400}, {Status: 429}},
	}

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	require.NoError(t, p.PublishReindexed(ctx, run))

	assert.Equal(t, TopicCatalogueReindexed, pub.topic)
	require.NotNil(t, pub.event)
	assert.Equal(t, TopicCatalogueReindexed, pub.event.EventType)
	assert.Equal(t, "acme", pub.event.AggregateID)
	assert.Equal(t, "corr-1", pub.event.CorrelationID)
	assert.Equal(t, "run-9", pub.event.Metadata["run_id"])

	var data ReindexedData
	require.NoError(t, pub.event.UnmarshalData(&data))
	assert.Equal(t, "run-9", data.RunID)
	assert.False(t, data.Success)
	assert.Equal(t, 2, data.FailureCount)
	assert.Equal(t, int64(1200), data.ExecutionTimeMs)
}

func TestProducer_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	p := NewProducer(pub, testLogger())

	err := p.PublishReindexed(context.Background(), &domain.ReindexResult{ID: "run-1", Tenant: "acme"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish reindexed event")
}
