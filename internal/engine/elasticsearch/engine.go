package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/internal/engine"
	"github.com/utafrali/catalogue-search/internal/query"
)

// Engine is an Elasticsearch-backed implementation of engine.IndexEngine.
type Engine struct {
	client *elasticsearch.Client
	logger *slog.Logger
}

var _ engine.IndexEngine = (*Engine)(nil)

// Config holds the connection settings for the cluster.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source domain.Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Value *float64 `json:"value"`
	} `json:"aggregations"`
}

// esBulkItem is one entry of a bulk response, keyed by its operation.
type esBulkItem struct {
	ID     string                `json:"_id"`
	Status int                   `json:"status"`
	Error  *domain.BulkItemError `json:"error"`
}

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Took   int64                   `json:"took"`
	Errors bool                    `json:"errors"`
	Items  []map[string]esBulkItem `json:"items"`
}

type esCountResponse struct {
	Count int `json:"count"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates a new Elasticsearch engine. It does not contact the cluster;
// use Ping to check reachability.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	return &Engine{
		client: client,
		logger: logger,
	}, nil
}

// unreachable wraps a transport failure, where no response was received.
func unreachable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, engine.ErrUnreachable, err)
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return unreachable("elasticsearch ping", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// IndexExists reports whether the named index exists.
func (e *Engine) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := e.client.Indices.Exists(
		[]string{index},
		e.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, unreachable("elasticsearch index exists", err)
	}
	defer closeBody(res)

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("elasticsearch index exists: unexpected status %s", res.Status())
	}
}

// DeleteIndex removes the named index. A 404 response is treated as success.
func (e *Engine) DeleteIndex(ctx context.Context, index string) error {
	res, err := e.client.Indices.Delete(
		[]string{index},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return unreachable("elasticsearch delete index", err)
	}
	defer closeBody(res)

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("elasticsearch delete index", res)
	}

	e.logger.Info("elasticsearch index deleted", "index", index)
	return nil
}

// CreateIndex creates the named index with the catalogue mapping.
func (e *Engine) CreateIndex(ctx context.Context, index string) error {
	res, err := e.client.Indices.Create(
		index,
		e.client.Indices.Create.WithBody(strings.NewReader(buildIndexMapping())),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return unreachable("elasticsearch create index", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return responseError("elasticsearch create index", res)
	}

	e.logger.Info("elasticsearch index created", "index", index)
	return nil
}

// BulkWrite indexes docs using the bulk NDJSON API with refresh=true, so
// documents are searchable once it returns. Per-item rejections are reported
// in the response, not as an error.
func (e *Engine) BulkWrite(ctx context.Context, index string, docs []domain.Document) (*domain.BulkResponse, error) {
	if len(docs) == 0 {
		return &domain.BulkResponse{Items: []domain.BulkItem{}}, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	action := domain.BulkAction{Index: domain.BulkActionMeta{Index: index}}

	for i := range docs {
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk write: encode action: %w", err)
		}
		if err := enc.Encode(docs[i]); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk write: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(index),
		e.client.Bulk.WithRefresh("true"),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, unreachable("elasticsearch bulk write", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return nil, responseError("elasticsearch bulk write", res)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, fmt.Errorf("elasticsearch bulk write: decode response: %w", err)
	}
	if len(bulkResp.Items) != len(docs) {
		return nil, fmt.Errorf("elasticsearch bulk write: got %d items for %d documents", len(bulkResp.Items), len(docs))
	}

	out := &domain.BulkResponse{
		Errors: bulkResp.Errors,
		Items:  make([]domain.BulkItem, 0, len(bulkResp.Items)),
		TookMs: bulkResp.Took,
	}
	for _, entry := range bulkResp.Items {
		for op, item := range entry {
			out.Items = append(out.Items, domain.BulkItem{
				Operation: op,
				ID:        item.ID,
				Status:    item.Status,
				Error:     item.Error,
			})
		}
	}

	e.logger.Debug("bulk wrote documents", "index", index, "count", len(docs), "errors", bulkResp.Errors)
	return out, nil
}

// Count returns the number of documents in the named index.
func (e *Engine) Count(ctx context.Context, index string) (int, error) {
	res, err := e.client.Count(
		e.client.Count.WithIndex(index),
		e.client.Count.WithContext(ctx),
	)
	if err != nil {
		return 0, unreachable("elasticsearch count", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return 0, responseError("elasticsearch count", res)
	}

	var countResp esCountResponse
	if err := json.NewDecoder(res.Body).Decode(&countResp); err != nil {
		return 0, fmt.Errorf("elasticsearch count: decode response: %w", err)
	}
	return countResp.Count, nil
}

// Search executes a compiled request against the named index.
func (e *Engine) Search(ctx context.Context, index string, req *query.Request) (*domain.RawSearchResult, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(index),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, unreachable("elasticsearch search", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return nil, responseError("elasticsearch search", res)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	hits := make([]domain.Document, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		hits = append(hits, hit.Source)
	}

	aggs := make(map[string]*float64, len(esResp.Aggregations))
	for name, agg := range esResp.Aggregations {
		aggs[name] = agg.Value
	}

	return &domain.RawSearchResult{
		Hits:         hits,
		TotalHits:    esResp.Hits.Total.Value,
		Aggregations: aggs,
		TookMs:       esResp.Took,
	}, nil
}

// responseError turns an error response into a Go error. A missing index
// wraps engine.ErrIndexNotFound.
func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(res.Body)

	var errResp esErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Type == "" {
		if res.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s: %w", op, engine.ErrIndexNotFound)
		}
		return fmt.Errorf("%s: unexpected status %s", op, res.Status())
	}
	if errResp.Error.Type == "index_not_found_exception" {
		return fmt.Errorf("%s: %w: %s", op, engine.ErrIndexNotFound, errResp.Error.Reason)
	}
	return fmt.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
}

func closeBody(res *esapi.Response) {
	if res.Body != nil {
		_ = res.Body.Close()
	}
}
